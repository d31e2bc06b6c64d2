package embedder

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderNone   = "none"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hashing"

	// Default endpoints
	DefaultJinaBaseURL = "https://api.jina.ai/v1"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// DefaultCacheSize is the number of embeddings kept in memory
	DefaultCacheSize = 10000

	// DefaultTimeout bounds a single provider request
	DefaultTimeout = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	pingText = "ping"
)

// Options configures a remote provider
type Options struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
	Cache     *Cache
	Limiter   *rate.Limiter
	Retry     RetryConfig
}

func (o Options) withDefaults(model string, dimension int) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.Dimension <= 0 {
		o.Dimension = dimension
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retry.MaxRetries <= 0 {
		o.Retry = DefaultRetryConfig()
	}
	return o
}

// wait blocks on the limiter when one is configured
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// single embeds one text through a batch call
func single(ctx context.Context, e Embedder, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}
