package embedder

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/time/rate"
)

// JinaProvider implements Embedder using the Jina AI embeddings API
type JinaProvider struct {
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	limiter    *rate.Limiter
	retry      RetryConfig
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(opts Options) (*JinaProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: jina api key not set", ErrNoProviderEnabled)
	}
	opts = opts.withDefaults(DefaultJinaModel, JinaDimension)
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultJinaBaseURL
	}

	return &JinaProvider{
		apiKey:    opts.APIKey,
		model:     opts.Model,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		dimension: opts.Dimension,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		cache:   opts.Cache,
		limiter: opts.Limiter,
		retry:   opts.Retry,
	}, nil
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, j, req)
}

func (j *JinaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = j.model
	}

	embeddings, err := cachedBatch(j.cache, model, req.Texts, func(texts []string) ([]*Embedding, error) {
		return retryWithBackoff(ctx, j.retry, func() ([]*Embedding, error) {
			if err := wait(ctx, j.limiter); err != nil {
				return nil, err
			}
			return j.callAPI(ctx, texts, model)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderJina,
		Model:      model,
	}, nil
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input":      texts,
		"model":      model,
		"normalized": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Data  []jinaDatum `json:"data"`
		Model string      `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	slices.SortFunc(apiResp.Data, func(a, b jinaDatum) int {
		return cmp.Compare(a.Index, b.Index)
	})

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:   data.Embedding,
			Provider: ProviderJina,
			Model:    model,
		}
	}

	return embeddings, nil
}

type jinaDatum struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// Ping issues a one-text request that bypasses the cache
func (j *JinaProvider) Ping(ctx context.Context) error {
	if err := wait(ctx, j.limiter); err != nil {
		return err
	}
	if _, err := j.callAPI(ctx, []string{pingText}, j.model); err != nil {
		return fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	return nil
}

func (j *JinaProvider) Dimension() int {
	return j.dimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}
