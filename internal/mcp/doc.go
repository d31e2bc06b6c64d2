// Package mcp exposes the search service as Model Context Protocol tools
// over stdio.
//
// # Tools
//
// search_documents runs a query:
//
//	{
//	  "query": "video editor",
//	  "k": 5,
//	  "engine": "hybrid",
//	  "hybrid_weight": 0.7,
//	  "field_weights": {"name": 0.8},
//	  "filters": {"tags": ["media"], "requires_internet": false}
//	}
//
// get_document returns one document by id. index_status reports whether an
// index is loaded, whether a build is running, the usable engines and the
// index metadata.
//
// rebuild_index and update_index change the index and require an
// "api_key" argument equal to the configured administrative key. With no key
// configured they always fail with ErrorCodeAdminDisabled.
//
// # Errors
//
// Handler errors are *MCPError values carrying a JSON-RPC code:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32002  a build is already running
//	-32003  no index built yet
//	-32004  empty query
//	-32005  engine or embedding provider unavailable
//	-32006  api_key missing or wrong
//	-32007  administrative key not configured
//	-32008  document not found
//
// MCPError unwraps to the sentinel error from pkg/types when one applies.
//
// # Transport
//
// stdout carries protocol messages only, so all logging must go to stderr.
package mcp
