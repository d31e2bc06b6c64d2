package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider embeds text offline by hashing word and character-trigram
// features into a fixed number of buckets. Texts that share vocabulary get
// similar vectors, which is enough for development and tests.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(dimension int, cache *Cache) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, l, req)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings, err := cachedBatch(l.cache, l.model, req.Texts, func(texts []string) ([]*Embedding, error) {
		out := make([]*Embedding, len(texts))
		for i, text := range texts {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("embedding text %d: %w", i, err)
			}
			out[i] = &Embedding{
				Vector:   l.hashVector(text),
				Provider: ProviderLocal,
				Model:    l.model,
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) hashVector(text string) []float32 {
	vec := make([]float32, l.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	for _, word := range words {
		l.addFeature(vec, "w:"+word, 1)
		runes := []rune("^" + word + "$")
		for i := 0; i+3 <= len(runes); i++ {
			l.addFeature(vec, "c:"+string(runes[i:i+3]), 0.5)
		}
	}
	return vec
}

func (l *LocalProvider) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := sum % uint64(len(vec))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Ping always succeeds for the local provider
func (l *LocalProvider) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}

	return result
}
