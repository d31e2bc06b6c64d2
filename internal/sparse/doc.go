// Package sparse builds the lexical TF-IDF representation of the corpus.
//
// The vectorizer is fitted once, on the combined text of the first build, and
// serialized with the index. Updates and query encoding reuse the stored
// vectorizer so every sparse vector of an index shares one vocabulary.
//
// Tokens are lower-cased runs of two or more word characters, counted as
// unigrams and bigrams, weighted by smoothed IDF and L2-normalized.
package sparse
