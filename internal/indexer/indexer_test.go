package indexer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillindex/internal/dense"
	"github.com/dshills/skillindex/internal/embedder"
	"github.com/dshills/skillindex/internal/storage"
	"github.com/dshills/skillindex/pkg/types"
)

// switchableEmbedder wraps the local provider and can be taken offline
type switchableEmbedder struct {
	embedder.Embedder
	down        atomic.Bool
	failBatches atomic.Bool
}

var errOffline = errors.New("provider offline")

func (s *switchableEmbedder) Ping(ctx context.Context) error {
	if s.down.Load() {
		return errOffline
	}
	return s.Embedder.Ping(ctx)
}

func (s *switchableEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if s.down.Load() || s.failBatches.Load() {
		return nil, errOffline
	}
	return s.Embedder.GenerateBatch(ctx, req)
}

func newSwitchable(t *testing.T) *switchableEmbedder {
	t.Helper()
	local, err := embedder.NewLocalProvider(32, nil)
	require.NoError(t, err)
	return &switchableEmbedder{Embedder: local}
}

func setupStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func baseCorpus() []types.Document {
	return []types.Document{
		{ID: "A", Name: "video editor", Description: "cut and trim clips", Excerpt: "timeline editing"},
		{ID: "B", Name: "spreadsheet tool", Description: "tables and formulas"},
	}
}

func TestBuild_SparseOnly(t *testing.T) {
	store := setupStorage(t)
	idx := New(store, nil, &Config{StorageRoot: "/tmp/root", Database: "/tmp/root/skillindex.db"})
	ctx := context.Background()

	docs := append(baseCorpus(), types.Document{ID: " "}, types.Document{ID: "A", Name: "duplicate"})
	result, err := idx.Build(ctx, docs, nil)
	require.NoError(t, err)

	assert.Equal(t, ActionBuild, result.Action)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 2, result.Dropped)

	meta := result.Meta
	assert.NotEmpty(t, meta.BuildID)
	assert.Equal(t, FormatVersion, meta.FormatVersion)
	assert.Equal(t, types.EmbeddingTypeSparse, meta.EmbeddingType)
	assert.Equal(t, []string{types.EngineSparse}, meta.AvailableEngines)
	assert.Equal(t, 2, meta.DocumentCount)
	assert.Positive(t, meta.VocabularySize)
	assert.InDelta(t, 0.6, meta.FieldWeights[types.FieldName], 1e-9)
	assert.Equal(t, types.DefaultHybridWeight, meta.HybridWeightDefault)
	assert.Equal(t, "/tmp/root", meta.Artifacts.StorageRoot)
	assert.Empty(t, meta.Artifacts.DenseFields)

	st, err := storage.ReadStatus(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, storage.Status{HasMeta: true, HasVectorizer: true, DocumentCount: 2, SparseCombined: 2}, st)

	for _, field := range types.Fields {
		n, err := store.CountVectors(ctx, storage.RepresentationSparse, field)
		require.NoError(t, err)
		assert.Equal(t, 2, n, field)
	}
}

func TestBuild_Hybrid(t *testing.T) {
	store := setupStorage(t)
	emb := newSwitchable(t)
	idx := New(store, dense.NewBuilder(emb, nil), nil)
	ctx := context.Background()

	result, err := idx.Build(ctx, baseCorpus(), map[string]float64{types.FieldName: 2, types.FieldDescription: 2, types.FieldExcerpt: 0})
	require.NoError(t, err)

	meta := result.Meta
	assert.Equal(t, types.EmbeddingTypeHybrid, meta.EmbeddingType)
	assert.ElementsMatch(t, []string{types.EngineSparse, types.EngineDense, types.EngineHybrid}, meta.AvailableEngines)
	assert.Equal(t, embedder.ProviderLocal, meta.DenseProvider)
	assert.Equal(t, 32, meta.DenseDimension)
	assert.InDelta(t, 0.5, meta.FieldWeights[types.FieldName], 1e-9)
	assert.InDelta(t, 0.0, meta.FieldWeights[types.FieldExcerpt], 1e-9)

	vecs, err := store.ListDenseVectors(ctx, storage.FieldCombined)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 1.0, vecs[0].Norm(), 1e-5)
}

func TestBuild_ProviderDownFallsBackToSparse(t *testing.T) {
	emb := newSwitchable(t)
	emb.down.Store(true)
	idx := New(setupStorage(t), dense.NewBuilder(emb, nil), nil)

	result, err := idx.Build(context.Background(), baseCorpus(), nil)
	require.NoError(t, err)
	assert.False(t, result.Meta.HasDense())
}

func TestBuild_FailureKeepsPreviousIndex(t *testing.T) {
	store := setupStorage(t)
	emb := newSwitchable(t)
	idx := New(store, dense.NewBuilder(emb, nil), nil)
	ctx := context.Background()

	first, err := idx.Build(ctx, baseCorpus(), nil)
	require.NoError(t, err)

	// provider answers pings but fails mid-build
	emb.failBatches.Store(true)
	_, err = idx.Build(ctx, append(baseCorpus(), types.Document{ID: "C", Name: "Video Editor"}), nil)
	assert.ErrorIs(t, err, errOffline)

	meta, err := store.GetMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Meta.BuildID, meta.BuildID)
	n, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBuild_Busy(t *testing.T) {
	idx := New(setupStorage(t), nil, nil)
	require.True(t, idx.lock.TryAcquire())
	assert.True(t, idx.Busy())

	_, err := idx.Build(context.Background(), baseCorpus(), nil)
	assert.ErrorIs(t, err, types.ErrIndexBusy)
	_, err = idx.Update(context.Background(), baseCorpus())
	assert.ErrorIs(t, err, types.ErrIndexBusy)

	idx.lock.Release()
	assert.False(t, idx.Busy())
}

func TestUpdate_EmptyStoreBuilds(t *testing.T) {
	idx := New(setupStorage(t), nil, nil)

	result, err := idx.Update(context.Background(), baseCorpus())
	require.NoError(t, err)
	assert.Equal(t, ActionBuild, result.Action)
	assert.Equal(t, 2, result.Meta.DocumentCount)
}

func TestUpdate_NoNewDocuments(t *testing.T) {
	idx := New(setupStorage(t), nil, nil)
	ctx := context.Background()

	built, err := idx.Build(ctx, baseCorpus(), nil)
	require.NoError(t, err)

	// content changes alone are not picked up
	changed := baseCorpus()
	changed[0].Name = "renamed"
	result, err := idx.Update(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, result.Action)
	assert.Equal(t, built.Meta.BuildID, result.Meta.BuildID)
}

func TestUpdate_AppendsOnlyNewDocuments(t *testing.T) {
	store := setupStorage(t)
	emb := newSwitchable(t)
	idx := New(store, dense.NewBuilder(emb, nil), nil)
	ctx := context.Background()

	built, err := idx.Build(ctx, baseCorpus(), nil)
	require.NoError(t, err)

	beforeSparse, err := store.ListSparseVectors(ctx, storage.FieldCombined)
	require.NoError(t, err)
	beforeDense, err := store.ListDenseVectors(ctx, types.FieldName)
	require.NoError(t, err)
	beforeVectorizer, err := store.GetVectorizer(ctx)
	require.NoError(t, err)

	corpus := append(baseCorpus(), types.Document{ID: "D", Name: "audio mixer", Description: "mix tracks"})
	result, err := idx.Update(ctx, corpus)
	require.NoError(t, err)
	assert.Equal(t, ActionAppend, result.Action)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, built.Meta.BuildID, result.Meta.BuildID)
	assert.Equal(t, 3, result.Meta.DocumentCount)

	afterSparse, err := store.ListSparseVectors(ctx, storage.FieldCombined)
	require.NoError(t, err)
	require.Len(t, afterSparse, 3)
	assert.Equal(t, beforeSparse, afterSparse[:2], "existing vectors untouched")

	afterDense, err := store.ListDenseVectors(ctx, types.FieldName)
	require.NoError(t, err)
	require.Len(t, afterDense, 3)
	assert.Equal(t, beforeDense, afterDense[:2])

	afterVectorizer, err := store.GetVectorizer(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeVectorizer.State, afterVectorizer.State, "vectorizer is never refit on update")

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})

	stored, err := store.GetDocument(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Position)
}

func TestUpdate_DenseIndexNeedsProvider(t *testing.T) {
	store := setupStorage(t)
	emb := newSwitchable(t)
	idx := New(store, dense.NewBuilder(emb, nil), nil)
	ctx := context.Background()

	_, err := idx.Build(ctx, baseCorpus(), nil)
	require.NoError(t, err)

	emb.down.Store(true)
	_, err = idx.Update(ctx, append(baseCorpus(), types.Document{ID: "D", Name: "audio mixer"}))
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)

	n, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpdate_ModelChangeNeedsRebuild(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	_, err := New(store, dense.NewBuilder(newSwitchable(t), nil), nil).Build(ctx, baseCorpus(), nil)
	require.NoError(t, err)

	other, err := embedder.NewLocalProvider(64, nil)
	require.NoError(t, err)
	meta, err := store.GetMeta(ctx)
	require.NoError(t, err)
	meta.DenseModel = "something-else"
	require.NoError(t, store.PutMeta(ctx, meta))

	_, err = New(store, dense.NewBuilder(other, nil), nil).
		Update(ctx, append(baseCorpus(), types.Document{ID: "D", Name: "audio mixer"}))
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}

func TestUpdate_SparseIndexIgnoresProvider(t *testing.T) {
	store := setupStorage(t)
	ctx := context.Background()

	_, err := New(store, nil, nil).Build(ctx, baseCorpus(), nil)
	require.NoError(t, err)

	// a provider configured later does not turn the index hybrid
	result, err := New(store, dense.NewBuilder(newSwitchable(t), nil), nil).
		Update(ctx, append(baseCorpus(), types.Document{ID: "D", Name: "audio mixer"}))
	require.NoError(t, err)
	assert.Equal(t, ActionAppend, result.Action)
	assert.False(t, result.Meta.HasDense())

	n, err := store.CountVectors(ctx, storage.RepresentationDense, storage.FieldCombined)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate_IncompatibleFormatRebuilds(t *testing.T) {
	store := setupStorage(t)
	idx := New(store, nil, nil)
	ctx := context.Background()

	built, err := idx.Build(ctx, baseCorpus(), nil)
	require.NoError(t, err)

	meta, err := store.GetMeta(ctx)
	require.NoError(t, err)
	meta.FormatVersion = "2.0.0"
	require.NoError(t, store.PutMeta(ctx, meta))

	result, err := idx.Update(ctx, baseCorpus())
	require.NoError(t, err)
	assert.Equal(t, ActionBuild, result.Action)
	assert.NotEqual(t, built.Meta.BuildID, result.Meta.BuildID)
}
