// Package dense builds the embedding representation of the corpus.
//
// Each field is embedded separately through an embedder.Embedder, in batches
// that run concurrently, and the field vectors are fused into one combined
// vector per document. The provider is optional: Available reports whether it
// answers, and index builds fall back to sparse-only when it does not.
package dense
