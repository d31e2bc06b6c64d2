package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/skillindex/internal/searcher"
)

// apiKeyProperty is shared by the administrative tools
var apiKeyProperty = map[string]interface{}{
	"type":        "string",
	"description": "Administrative shared secret (same value as the HTTP X-API-Key header)",
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Search the indexed corpus with a natural language or keyword query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results to return (1-100)",
					"default":     searcher.DefaultK,
					"minimum":     1,
					"maximum":     searcher.MaxK,
				},
				"engine": map[string]interface{}{
					"type":        "string",
					"description": "Scoring engine: auto (dense when available), sparse/tfidf, dense/sbert, or hybrid",
					"enum":        []string{"auto", "sparse", "tfidf", "dense", "sbert", "hybrid"},
					"default":     "auto",
				},
				"hybrid_weight": map[string]interface{}{
					"type":        "number",
					"description": "Dense share of a hybrid score (0.0-1.0); defaults to the index setting",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"field_weights": map[string]interface{}{
					"type":        "object",
					"description": "Per-field weight overrides, e.g. {\"name\": 0.8}",
					"additionalProperties": map[string]interface{}{
						"type":    "number",
						"minimum": 0.0,
					},
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters to narrow results",
					"properties": map[string]interface{}{
						"tags": map[string]interface{}{
							"type":        "array",
							"description": "Every listed tag must be present (case-insensitive)",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"owner": map[string]interface{}{
							"type":        "string",
							"description": "Exact owner (case-insensitive)",
						},
						"source": map[string]interface{}{
							"type":        "string",
							"description": "Exact source (case-insensitive)",
						},
						"requires_internet": map[string]interface{}{
							"type":        "boolean",
							"description": "Match documents by their network requirement",
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// getDocumentTool returns the tool definition for get_document
func getDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_document",
		Description: "Fetch one indexed document by id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Document id",
				},
			},
			Required: []string{"id"},
		},
	}
}

// rebuildIndexTool returns the tool definition for rebuild_index
func rebuildIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_index",
		Description: "Rebuild the index from scratch from the corpus",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"api_key": apiKeyProperty,
				"corpus_source": map[string]interface{}{
					"type":        "string",
					"description": "\"db\" for the registry database or a path to a JSON corpus; defaults to the configured source",
				},
			},
			Required: []string{"api_key"},
		},
	}
}

// updateIndexTool returns the tool definition for update_index
func updateIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_index",
		Description: "Append corpus documents that are not indexed yet",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"api_key": apiKeyProperty,
			},
			Required: []string{"api_key"},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Report whether an index is loaded, its engines and metadata",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
