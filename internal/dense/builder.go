package dense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/skillindex/internal/corpus"
	"github.com/dshills/skillindex/internal/embedder"
	"github.com/dshills/skillindex/internal/fusion"
	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

const (
	// DefaultConcurrency is the number of embedding batches in flight
	DefaultConcurrency = 4
	// DefaultPingTimeout bounds the availability probe
	DefaultPingTimeout = 10 * time.Second
)

// ErrDimensionMismatch is returned when the provider changes vector size mid-build
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Representation holds the dense vectors of a batch of documents.
// Absent fields and undefined documents hold zero vectors so every slice
// stays parallel to the document list.
type Representation struct {
	Combined  []vector.Dense
	Defined   []bool
	Fields    map[string][]vector.Dense
	Dimension int
	Provider  string
	Model     string
}

// Len returns the number of encoded documents
func (r *Representation) Len() int {
	return len(r.Combined)
}

// Builder produces dense representations through an embedding provider
type Builder struct {
	embedder    embedder.Embedder
	batchSize   int
	concurrency int
	pingTimeout time.Duration
	logger      *slog.Logger
}

// NewBuilder creates a builder. A nil embedder yields a builder that is never available.
func NewBuilder(emb embedder.Embedder, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		embedder:    emb,
		batchSize:   embedder.DefaultBatchSize,
		concurrency: DefaultConcurrency,
		pingTimeout: DefaultPingTimeout,
		logger:      logger,
	}
}

// Embedder returns the underlying provider, or nil
func (b *Builder) Embedder() embedder.Embedder {
	return b.embedder
}

// Available probes the provider. Failures are logged, not returned:
// callers degrade to sparse-only.
func (b *Builder) Available(ctx context.Context) bool {
	if b.embedder == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, b.pingTimeout)
	defer cancel()

	if err := b.embedder.Ping(ctx); err != nil {
		b.logger.Warn("embedding provider unavailable",
			"provider", b.embedder.Provider(),
			"model", b.embedder.Model(),
			"error", err)
		return false
	}
	return true
}

// Build embeds every present field of every document and fuses them.
// Any provider error aborts the build.
func (b *Builder) Build(ctx context.Context, prepared []corpus.Prepared, weights map[string]float64) (*Representation, error) {
	if b.embedder == nil {
		return nil, embedder.ErrNoProviderEnabled
	}

	rep := &Representation{
		Fields:   make(map[string][]vector.Dense, len(types.Fields)),
		Provider: b.embedder.Provider(),
		Model:    b.embedder.Model(),
	}
	for _, field := range types.Fields {
		rep.Fields[field] = make([]vector.Dense, len(prepared))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for _, field := range types.Fields {
		texts := corpus.FieldTexts(prepared, field)

		positions := make([]int, 0, len(texts))
		for i, text := range texts {
			if text != "" {
				positions = append(positions, i)
			}
		}

		for start := 0; start < len(positions); start += b.batchSize {
			batch := positions[start:min(start+b.batchSize, len(positions))]
			g.Go(func() error {
				batchTexts := make([]string, len(batch))
				for i, pos := range batch {
					batchTexts[i] = texts[pos]
				}

				resp, err := b.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: batchTexts})
				if err != nil {
					return fmt.Errorf("embed %s field: %w", field, err)
				}

				mu.Lock()
				defer mu.Unlock()
				for i, emb := range resp.Embeddings {
					if rep.Dimension == 0 {
						rep.Dimension = len(emb.Vector)
					} else if len(emb.Vector) != rep.Dimension {
						return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb.Vector), rep.Dimension)
					}
					rep.Fields[field][batch[i]] = vector.Dense(emb.Vector)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if rep.Dimension == 0 {
		rep.Dimension = b.embedder.Dimension()
	}
	b.fillZeros(rep)

	fields := make([]fusion.FieldVectors[vector.Dense], 0, len(types.Fields))
	for _, field := range types.Fields {
		fields = append(fields, fusion.FieldVectors[vector.Dense]{
			Field:   field,
			Vectors: rep.Fields[field],
			Present: corpus.Presence(prepared, field),
		})
	}
	rep.Combined, rep.Defined = fusion.Combine(fields, weights, len(prepared))
	for i, ok := range rep.Defined {
		if !ok {
			rep.Combined[i] = make(vector.Dense, rep.Dimension)
		}
	}

	b.logger.Debug("dense representation built",
		"documents", len(prepared),
		"dimension", rep.Dimension,
		"provider", rep.Provider)
	return rep, nil
}

// EncodeQuery embeds a query string
func (b *Builder) EncodeQuery(ctx context.Context, query string) (vector.Dense, error) {
	if b.embedder == nil {
		return nil, embedder.ErrNoProviderEnabled
	}
	emb, err := b.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, err
	}
	return vector.Dense(emb.Vector), nil
}

func (b *Builder) fillZeros(rep *Representation) {
	for _, field := range types.Fields {
		for i, v := range rep.Fields[field] {
			if v == nil {
				rep.Fields[field][i] = make(vector.Dense, rep.Dimension)
			}
		}
	}
}
