package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/skillindex/internal/index"
	"github.com/dshills/skillindex/internal/indexer"
	"github.com/dshills/skillindex/internal/searcher"
	"github.com/dshills/skillindex/pkg/types"
)

// APIKeyHeader carries the administrative shared secret
const APIKeyHeader = "X-API-Key"

// DefaultAddr is the listen address used when none is configured
const DefaultAddr = ":8001"

// Config holds HTTP server configuration
type Config struct {
	Addr     string // e.g. ":8001"
	APIKey   string // administrative secret; empty disables rebuild and update
	UseCache bool   // serve repeated queries from the searcher's result cache
	Logger   *slog.Logger
}

// Server exposes search and index administration over HTTP
type Server struct {
	config   Config
	manager  *index.Manager
	searcher *searcher.Searcher
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new HTTP server
func NewServer(manager *index.Manager, srch *searcher.Searcher, config *Config) *Server {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		manager:  manager,
		searcher: srch,
		logger:   cfg.Logger,
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	mux.HandleFunc("POST /index/rebuild", s.requireAPIKey(s.handleRebuild))
	mux.HandleFunc("POST /index/update", s.requireAPIKey(s.handleUpdate))
	mux.HandleFunc("GET /index", s.handleIndexStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.loggingMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.config.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

// handleSearch handles GET /search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	req.UseCache = s.config.UseCache

	resp, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleGetDocument handles GET /documents/{id}
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Current()
	if snap == nil {
		s.respondError(w, types.ErrIndexNotBuilt)
		return
	}
	id := r.PathValue("id")
	doc, _, ok := snap.Document(id)
	if !ok {
		s.respondError(w, fmt.Errorf("document %q: %w", id, types.ErrNotFound))
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// handleRebuild handles POST /index/rebuild
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	result, err := s.manager.Rebuild(r.Context(), r.URL.Query().Get("corpus_source"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resultBody(result))
}

// handleUpdate handles POST /index/update
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	result, err := s.manager.Update(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resultBody(result))
}

// handleIndexStatus handles GET /index
func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.manager.Status())
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"loaded": s.manager.Current() != nil,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// requireAPIKey rejects requests whose X-API-Key does not match the configured secret
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := index.CheckAPIKey(s.config.APIKey, r.Header.Get(APIKeyHeader)); err != nil {
			s.logger.Warn("admin request rejected", "path", r.URL.Path, "error", err)
			s.respondError(w, err)
			return
		}
		next(w, r)
	}
}

func resultBody(result *indexer.Result) map[string]any {
	return map[string]any{
		"status":      result.Action,
		"meta":        result.Meta,
		"indexed":     result.Indexed,
		"dropped":     result.Dropped,
		"duration_ms": result.Duration.Milliseconds(),
	}
}

// parseSearchRequest reads search parameters from the query string
func parseSearchRequest(r *http.Request) (searcher.Request, error) {
	q := r.URL.Query()
	req := searcher.Request{
		Query:  q.Get("q"),
		K:      searcher.DefaultK,
		Engine: q.Get("engine"),
		Filters: searcher.Filters{
			Tags:   types.ParseTags(q.Get("tags")),
			Owner:  q.Get("owner"),
			Source: q.Get("source"),
		},
	}

	if v := q.Get("k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: k must be an integer", types.ErrInvalidRequest)
		}
		req.K = k
	}

	if v := q.Get("hybrid_weight"); v != "" {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("%w: hybrid_weight must be a number", types.ErrInvalidRequest)
		}
		req.HybridWeight = &w
	}

	if v := q.Get("requires_internet"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("%w: requires_internet must be a boolean", types.ErrInvalidRequest)
		}
		req.Filters.RequiresInternet = &b
	}

	if v := strings.TrimSpace(q.Get("field_weights")); v != "" {
		if err := json.Unmarshal([]byte(v), &req.FieldWeights); err != nil {
			return req, fmt.Errorf("%w: field_weights must be a JSON object of numbers", types.ErrInvalidRequest)
		}
	}

	return req, nil
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrIndexBusy):
		return http.StatusConflict
	case errors.Is(err, types.ErrIndexNotBuilt),
		errors.Is(err, types.ErrEngineUnavailable),
		errors.Is(err, types.ErrProviderUnavailable),
		errors.Is(err, types.ErrAdminDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
