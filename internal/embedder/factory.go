package embedder

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	CacheSize int
	Timeout   time.Duration

	// RequestsPerSecond throttles remote calls; zero disables throttling
	RequestsPerSecond float64
	Burst             int
}

// Enabled reports whether the configuration selects a provider at all
func (c Config) Enabled() bool {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	return p != "" && p != ProviderNone
}

// New creates an embedder with explicit configuration.
// An empty or "none" provider returns ErrNoProviderEnabled.
func New(cfg Config) (Embedder, error) {
	if !cfg.Enabled() {
		return nil, ErrNoProviderEnabled
	}

	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	opts := Options{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
		Cache:     cache,
		Limiter:   newLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}

	var (
		emb Embedder
		err error
	)
	// Constructors return typed pointers; a failed one must not leak out as a
	// non-nil Embedder holding a nil pointer.
	switch provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider {
	case ProviderJina:
		var p *JinaProvider
		if p, err = NewJinaProvider(opts); err == nil {
			emb = p
		}
	case ProviderOpenAI:
		var p *OpenAIProvider
		if p, err = NewOpenAIProvider(opts); err == nil {
			emb = p
		}
	case ProviderLocal:
		var p *LocalProvider
		if p, err = NewLocalProvider(cfg.Dimension, cache); err == nil {
			emb = p
		}
	default:
		err = fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return emb, nil
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
