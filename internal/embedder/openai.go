package embedder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// openAIDimensions lists native dimensions of known embedding models
var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIProvider implements Embedder against any OpenAI-compatible embeddings endpoint
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
	reduced   bool // dimension requested explicitly from the API
	cache     *Cache
	limiter   *rate.Limiter
	retry     RetryConfig
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(opts Options) (*OpenAIProvider, error) {
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai api key not set", ErrNoProviderEnabled)
	}

	reduced := opts.Dimension > 0
	native := OpenAIDimension
	if model := cmp.Or(opts.Model, DefaultOpenAIModel); openAIDimensions[model] > 0 {
		native = openAIDimensions[model]
	}
	opts = opts.withDefaults(DefaultOpenAIModel, native)

	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(config),
		model:     opts.Model,
		dimension: opts.Dimension,
		reduced:   reduced,
		cache:     opts.Cache,
		limiter:   opts.Limiter,
		retry:     opts.Retry,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, o, req)
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	embeddings, err := cachedBatch(o.cache, model, req.Texts, func(texts []string) ([]*Embedding, error) {
		return retryWithBackoff(ctx, o.retry, func() ([]*Embedding, error) {
			if err := wait(ctx, o.limiter); err != nil {
				return nil, err
			}
			return o.callAPI(ctx, texts, model)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	request := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	}
	if o.reduced {
		request.Dimensions = o.dimension
	}

	resp, err := o.client.CreateEmbeddings(ctx, request)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) &&
			(apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden) {
			return nil, permanent(err)
		}
		return nil, fmt.Errorf("api call: %w", err)
	}

	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openai.Embedding) int {
		return cmp.Compare(a.Index, b.Index)
	})

	embeddings := make([]*Embedding, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		embeddings[i] = &Embedding{
			Vector:   v,
			Provider: ProviderOpenAI,
			Model:    model,
		}
	}

	return embeddings, nil
}

// Ping issues a one-text request that bypasses the cache
func (o *OpenAIProvider) Ping(ctx context.Context) error {
	if err := wait(ctx, o.limiter); err != nil {
		return err
	}
	if _, err := o.callAPI(ctx, []string{pingText}, o.model); err != nil {
		return fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	return nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
