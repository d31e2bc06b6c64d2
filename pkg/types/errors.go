package types

import "errors"

// Domain errors shared by the index, query and transport layers
var (
	// Document errors
	ErrInvalidDocumentID = errors.New("document id cannot be empty")

	// Request errors (client side)
	ErrInvalidRequest = errors.New("invalid request")

	// Availability errors
	ErrIndexNotBuilt       = errors.New("no index built yet")
	ErrEngineUnavailable   = errors.New("engine unavailable")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Administrative errors
	ErrUnauthorized  = errors.New("invalid api key")
	ErrAdminDisabled = errors.New("administrative api key not configured")
	ErrIndexBusy     = errors.New("index build already in progress")
)
