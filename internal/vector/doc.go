// Package vector provides the dense and sparse vector types used by the index
// and a FlatIndex over either of them.
//
// Both Dense and Sparse satisfy Vector, so fusion and search code is written
// once with type parameters. Stored vectors are unit length, which makes the
// inner product equal to cosine similarity.
//
// FlatIndex hands candidate retrieval to a comet flat cosine index (sparse
// vectors are expanded to the index dimension first) and rescores the
// candidates with the exact inner product. Equal scores are ordered by
// position; when a tie reaches past the fetched candidates, or comet cannot
// serve the query, every vector is scored directly.
package vector
