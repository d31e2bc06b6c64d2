// Package searcher ranks indexed documents for a free-text query.
//
// A Searcher reads whatever snapshot its source currently publishes, so a
// rebuild never blocks queries. Four engines are accepted:
//   - sparse: TF-IDF cosine over the fused document vectors (alias tfidf)
//   - dense: embedding cosine, needs the provider that built the index (alias sbert)
//   - hybrid: both, min-max normalized and blended
//   - auto: dense when possible, otherwise sparse
//
// # Basic Usage
//
//	s := searcher.NewSearcher(manager, denseBuilder, nil)
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query:  "video editor",
//	    K:      5,
//	    Engine: "hybrid",
//	})
//
//	for i, r := range resp.Results {
//	    fmt.Printf("[%d] %s (score: %.3f)\n", i+1, r.Name, r.Score)
//	}
//
// # Hybrid Blending
//
// The dense share of a hybrid score is the mean of the caller's hybrid weight
// and an adaptive factor that grows from 0.55 for one or two word queries to
// 0.75 for five or more. A document retrieved by only one engine scores 0 in
// the other before normalization.
//
// # Bonuses
//
// After filtering, a result whose name equals the query (ignoring case and
// hyphens) gains 0.15, and every result gains 0.05 times the weighted mean of
// its per-field similarities. Results are re-sorted after bonuses, then cut
// to k.
//
// # Caching
//
// Responses can be cached in an LRU keyed by the snapshot identity and every
// ranking parameter. A new snapshot never serves stale entries.
package searcher
