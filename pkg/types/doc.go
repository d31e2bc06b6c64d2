// Package types provides shared type definitions for the skillindex service.
//
// This package defines domain types used across multiple components,
// including documents, the index descriptor and search results.
//
// # Core Types
//
// Document is one corpus record. Its text fields feed the sparse and dense
// representations, the remaining attributes are used for filtering or passed
// through to results:
//
//	doc := types.Document{
//	    ID:          "video-editor",
//	    Name:        "Video Editor",
//	    Description: "Cut and trim clips",
//	    Tags:        types.Tags{"media", "video"},
//	}
//
// IndexMeta records which engines an index supports and the field weights it
// was built with. SearchResult carries one ranked document plus the evidence
// that placed it there.
//
// # Errors
//
// Sentinel errors are wrapped with fmt.Errorf("...: %w", err) by lower layers
// and matched with errors.Is by the HTTP and MCP transports.
package types
