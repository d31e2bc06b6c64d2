package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/skillindex/internal/indexer"
	"github.com/dshills/skillindex/internal/sparse"
	"github.com/dshills/skillindex/internal/storage"
	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

// Snapshot is an immutable, fully loaded index. Every slice is parallel to
// Documents. Queries read it without locking.
type Snapshot struct {
	Meta      *types.IndexMeta
	Documents []types.Document
	positions map[string]int

	Vectorizer   *sparse.Vectorizer
	Sparse       *vector.FlatIndex[vector.Sparse]
	SparseFields map[string][]vector.Sparse

	Dense       *vector.FlatIndex[vector.Dense]
	DenseFields map[string][]vector.Dense

	LoadedAt time.Time
}

// Len returns the number of indexed documents
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Documents)
}

// Document looks a document up by id
func (s *Snapshot) Document(id string) (types.Document, int, bool) {
	if s == nil {
		return types.Document{}, 0, false
	}
	pos, ok := s.positions[id]
	if !ok {
		return types.Document{}, 0, false
	}
	return s.Documents[pos], pos, true
}

// HasSparse reports whether the sparse engine can serve queries
func (s *Snapshot) HasSparse() bool {
	return s != nil && s.Vectorizer != nil && s.Sparse != nil
}

// HasDense reports whether dense document vectors are loaded. Serving dense
// queries also needs an embedding provider.
func (s *Snapshot) HasDense() bool {
	return s != nil && s.Dense != nil
}

// Engines lists the engines the loaded artifacts support
func (s *Snapshot) Engines() []string {
	var engines []string
	if s.HasSparse() {
		engines = append(engines, types.EngineSparse)
	}
	if s.HasDense() {
		engines = append(engines, types.EngineDense)
	}
	if s.HasSparse() && s.HasDense() {
		engines = append(engines, types.EngineHybrid)
	}
	return engines
}

// Load reads every artifact from store. A missing or incompatible index
// returns types.ErrIndexNotBuilt. Missing or corrupt vector artifacts disable
// only the engine that needs them.
func Load(ctx context.Context, store storage.Storage, logger *slog.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	meta, err := store.GetMeta(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrIndexNotBuilt
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index meta: %w", err)
	}
	if !indexer.CompatibleFormat(meta.FormatVersion) {
		logger.Warn("ignoring index with unsupported format", "format_version", meta.FormatVersion)
		return nil, types.ErrIndexNotBuilt
	}

	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	snap := &Snapshot{
		Meta:      meta,
		Documents: docs,
		positions: make(map[string]int, len(docs)),
		LoadedAt:  time.Now(),
	}
	for i, doc := range docs {
		snap.positions[doc.ID] = i
	}

	snap.loadSparse(ctx, store, logger)
	if meta.HasDense() {
		snap.loadDense(ctx, store, logger)
	}

	logger.Info("index loaded",
		"build_id", meta.BuildID,
		"documents", len(docs),
		"engines", snap.Engines())
	return snap, nil
}

func (s *Snapshot) loadSparse(ctx context.Context, store storage.Storage, logger *slog.Logger) {
	state, err := store.GetVectorizer(ctx)
	if err != nil {
		logger.Warn("sparse engine disabled: vectorizer unavailable", "error", err)
		return
	}
	vec, err := sparse.Unmarshal(state.State)
	if err != nil {
		logger.Warn("sparse engine disabled: vectorizer unreadable", "error", err)
		return
	}

	combined, err := store.ListSparseVectors(ctx, storage.FieldCombined)
	if err == nil && len(combined) != len(s.Documents) {
		err = fmt.Errorf("%d vectors for %d documents", len(combined), len(s.Documents))
	}
	if err != nil {
		logger.Warn("sparse engine disabled: combined vectors unusable", "error", err)
		return
	}

	s.Vectorizer = vec
	s.Sparse = vector.NewFlatIndex(combined)
	s.SparseFields = loadFields(ctx, len(s.Documents), store.ListSparseVectors, logger, "sparse")
}

func (s *Snapshot) loadDense(ctx context.Context, store storage.Storage, logger *slog.Logger) {
	combined, err := store.ListDenseVectors(ctx, storage.FieldCombined)
	if err == nil && len(combined) != len(s.Documents) {
		err = fmt.Errorf("%d vectors for %d documents", len(combined), len(s.Documents))
	}
	if err == nil {
		for i, v := range combined {
			if len(v) != s.Meta.DenseDimension {
				err = fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), s.Meta.DenseDimension)
				break
			}
		}
	}
	if err != nil {
		logger.Warn("dense engine disabled: combined vectors unusable", "error", err)
		return
	}

	s.Dense = vector.NewFlatIndex(combined)
	s.DenseFields = loadFields(ctx, len(s.Documents), store.ListDenseVectors, logger, "dense")
}

// loadFields reads the per-field vectors, leaving out fields whose stored
// count does not match the document count
func loadFields[V any](ctx context.Context, n int, list func(context.Context, string) ([]V, error), logger *slog.Logger, rep string) map[string][]V {
	fields := make(map[string][]V, len(types.Fields))
	for _, field := range types.Fields {
		vecs, err := list(ctx, field)
		if err == nil && len(vecs) != n {
			err = fmt.Errorf("%d vectors for %d documents", len(vecs), n)
		}
		if err != nil {
			logger.Warn("field vectors unavailable", "representation", rep, "field", field, "error", err)
			continue
		}
		fields[field] = vecs
	}
	return fields
}
