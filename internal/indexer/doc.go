// Package indexer builds and incrementally updates the stored retrieval index.
//
// # Basic Usage
//
//	idx := indexer.New(store, dense.NewBuilder(emb, logger), &indexer.Config{
//	    StorageRoot: root,
//	})
//
//	result, err := idx.Build(ctx, docs, fieldWeights)
//	fmt.Printf("indexed %d documents, engines %v\n",
//	    result.Indexed, result.Meta.AvailableEngines)
//
// # Build
//
// A build cleans the corpus (blank and repeated ids are dropped, first wins),
// fits a new TF-IDF vectorizer, encodes every field and the fused combined
// vector, and embeds the same fields when the provider answers a ping. Everything
// is written in one transaction that first clears the store, so a failed build
// leaves the previous index in place. A provider that is down at the start
// produces a sparse-only index; a provider error after embedding began aborts.
//
// # Update
//
// Update compares corpus ids with the stored ones and resolves an Action
// through Decide:
//
//	missing meta, documents, vectorizer or sparse vectors -> full build
//	no new ids                                             -> no-op
//	dense index but provider down or model changed         -> ErrProviderUnavailable
//	otherwise                                              -> append
//
// Appended documents are encoded with the stored vectorizer, which is never
// refit, and written after the existing positions. Rows already in the store
// are not rewritten. Documents whose content changed under an existing id are
// not re-encoded; run a build to pick those up.
//
// # Concurrency
//
// Build and Update share an IndexLock. A call made while another is running
// returns types.ErrIndexBusy immediately.
package indexer
