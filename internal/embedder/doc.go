// Package embedder turns document fields and queries into dense vectors.
//
// Three providers implement Embedder:
//
//   - OpenAIProvider talks to any OpenAI-compatible embeddings endpoint
//     through github.com/sashabaranov/go-openai.
//   - JinaProvider calls the Jina AI embeddings API over net/http.
//   - LocalProvider hashes word and character-trigram features offline. It
//     needs no network and is what the tests use.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    os.Getenv("OPENAI_API_KEY"),
//	    CacheSize: 10000,
//	})
//	if errors.Is(err, embedder.ErrNoProviderEnabled) {
//	    // run sparse-only
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{"video editor", "spreadsheet tool"},
//	})
//
// Every returned vector is unit length, so inner product equals cosine
// similarity.
//
// # Caching
//
// Embeddings are cached in an LRU keyed by model and text hash. A batch only
// sends the texts that missed the cache, and results come back in request order.
//
// # Reliability
//
// Remote calls are retried with exponential backoff (3 attempts, 100ms
// doubling to at most 5s). Rejected credentials are not retried. When
// Config.RequestsPerSecond is set a token bucket from golang.org/x/time/rate
// throttles every request, including Ping.
//
// # Availability
//
// Ping sends a one-text request and is how index builds decide whether dense
// vectors can be produced. A build whose provider fails Ping degrades to a
// sparse-only index instead of failing.
package embedder
