package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/skillindex/internal/index"
	"github.com/dshills/skillindex/internal/indexer"
	"github.com/dshills/skillindex/internal/searcher"
	"github.com/dshills/skillindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another build is already running
	ErrorCodeNotIndexed         = -32003 // No index built yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeEngineUnavailable  = -32005 // Requested engine or provider cannot serve
	ErrorCodeUnauthorized       = -32006 // api_key missing or wrong
	ErrorCodeAdminDisabled      = -32007 // No administrative key configured
	ErrorCodeNotFound           = -32008 // Document id not indexed
)

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	req := searcher.Request{
		Query:    query,
		K:        getIntDefault(args, "k", searcher.DefaultK),
		Engine:   getStringDefault(args, "engine", ""),
		UseCache: s.config.UseCache,
	}

	if raw, present := args["hybrid_weight"]; present && raw != nil {
		v, ok := raw.(float64)
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "hybrid_weight must be a number", map[string]interface{}{
				"param": "hybrid_weight",
			})
		}
		req.HybridWeight = &v
	}

	if v, present := args["field_weights"]; present && v != nil {
		raw, ok := v.(map[string]interface{})
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "field_weights must be an object of numbers", map[string]interface{}{
				"param": "field_weights",
			})
		}
		req.FieldWeights = make(map[string]float64, len(raw))
		for field, v := range raw {
			w, ok := v.(float64)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, "field weights must be numbers", map[string]interface{}{
					"param": "field_weights",
					"field": field,
				})
			}
			req.FieldWeights[field] = w
		}
	}

	if filters, ok := args["filters"].(map[string]interface{}); ok {
		req.Filters = parseFilters(filters)
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, toMCPError(err)
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleGetDocument handles the get_document tool invocation
func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	snap := s.manager.Current()
	if snap == nil {
		return nil, toMCPError(types.ErrIndexNotBuilt)
	}
	doc, _, found := snap.Document(id)
	if !found {
		return nil, toMCPError(fmt.Errorf("document %q: %w", id, types.ErrNotFound))
	}
	return mcp.NewToolResultText(formatJSON(doc)), nil
}

// handleRebuildIndex handles the rebuild_index tool invocation
func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := s.adminArgs(request)
	if err != nil {
		return nil, err
	}

	result, err := s.manager.Rebuild(ctx, getStringDefault(args, "corpus_source", ""))
	if err != nil {
		return nil, toMCPError(err)
	}
	return mcp.NewToolResultText(formatJSON(resultBody(result))), nil
}

// handleUpdateIndex handles the update_index tool invocation
func (s *Server) handleUpdateIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.adminArgs(request); err != nil {
		return nil, err
	}

	result, err := s.manager.Update(ctx)
	if err != nil {
		return nil, toMCPError(err)
	}
	return mcp.NewToolResultText(formatJSON(resultBody(result))), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(s.manager.Status())), nil
}

// adminArgs extracts the arguments of an administrative tool and checks api_key
func (s *Server) adminArgs(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		// update_index has no required arguments besides the key
		args = map[string]interface{}{}
	}
	if err := index.CheckAPIKey(s.config.APIKey, getStringDefault(args, "api_key", "")); err != nil {
		s.logger.Warn("admin tool rejected", "tool", request.Params.Name, "error", err)
		return nil, toMCPError(err)
	}
	return args, nil
}

func resultBody(result *indexer.Result) map[string]interface{} {
	return map[string]interface{}{
		"status":      result.Action,
		"meta":        result.Meta,
		"indexed":     result.Indexed,
		"dropped":     result.Dropped,
		"duration_ms": result.Duration.Milliseconds(),
	}
}

// parseFilters reads the filters object of search_documents
func parseFilters(args map[string]interface{}) searcher.Filters {
	f := searcher.Filters{
		Owner:  getStringDefault(args, "owner", ""),
		Source: getStringDefault(args, "source", ""),
	}
	switch tags := args["tags"].(type) {
	case []interface{}:
		for _, tag := range tags {
			if str, ok := tag.(string); ok {
				f.Tags = append(f.Tags, str)
			}
		}
	case string:
		f.Tags = types.ParseTags(tags)
	}
	if v, ok := args["requires_internet"].(bool); ok {
		f.RequiresInternet = &v
	}
	return f
}

// Helper functions

// toMCPError maps domain errors onto MCP error codes
func toMCPError(err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrInvalidRequest):
		code = ErrorCodeInvalidParams
	case errors.Is(err, types.ErrIndexNotBuilt):
		code = ErrorCodeNotIndexed
	case errors.Is(err, types.ErrEngineUnavailable), errors.Is(err, types.ErrProviderUnavailable):
		code = ErrorCodeEngineUnavailable
	case errors.Is(err, types.ErrUnauthorized):
		code = ErrorCodeUnauthorized
	case errors.Is(err, types.ErrAdminDisabled):
		code = ErrorCodeAdminDisabled
	case errors.Is(err, types.ErrIndexBusy):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, types.ErrNotFound):
		code = ErrorCodeNotFound
	}
	return &MCPError{Code: code, Message: err.Error(), Err: err}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
	Err     error
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func (e *MCPError) Unwrap() error {
	return e.Err
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
