// Package httpapi serves the search and index administration endpoints.
//
// Routes:
//
//	GET  /search?q=&k=5&engine=auto&hybrid_weight=&tags=a,b&owner=&source=&requires_internet=&field_weights={json}
//	GET  /documents/{id}
//	POST /index/rebuild?corpus_source=   (X-API-Key)
//	POST /index/update                   (X-API-Key)
//	GET  /index
//	GET  /healthz
//
// Errors are returned as {"error": "..."} with a status derived from the
// sentinel errors in pkg/types: invalid requests are 400, a bad key is 401,
// a missing document is 404, a build already running is 409, and an unbuilt
// index, an unavailable engine or provider, or an unconfigured key are 503.
package httpapi
