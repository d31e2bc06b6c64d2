package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/skillindex/internal/corpus"
	"github.com/dshills/skillindex/internal/dense"
	"github.com/dshills/skillindex/internal/fusion"
	"github.com/dshills/skillindex/internal/sparse"
	"github.com/dshills/skillindex/internal/storage"
	"github.com/dshills/skillindex/pkg/types"
)

// Indexer coordinates the indexing pipeline: clean -> prepare -> encode -> store
type Indexer struct {
	storage storage.Storage
	dense   *dense.Builder
	config  Config
	logger  *slog.Logger
	lock    IndexLock
	now     func() time.Time
}

// Config contains configuration for the indexer
type Config struct {
	StorageRoot  string         // Recorded in index meta artifacts
	Database     string         // Database path recorded in index meta artifacts
	Sparse       sparse.Options // Vectorizer options (default: sparse.DefaultOptions())
	HybridWeight float64        // Default dense share recorded in meta (default: 0.7)
	Logger       *slog.Logger
}

// Result describes a finished build or update
type Result struct {
	Action   Action
	Meta     *types.IndexMeta
	Indexed  int // documents written by this operation
	Dropped  int // corpus records without an id or with a repeated id
	Duration time.Duration
}

// New creates a new Indexer instance. A nil dense builder indexes sparse only.
func New(store storage.Storage, denseBuilder *dense.Builder, config *Config) *Indexer {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.Sparse.MaxFeatures <= 0 {
		cfg.Sparse = sparse.DefaultOptions()
	}
	if cfg.HybridWeight <= 0 || cfg.HybridWeight > 1 {
		cfg.HybridWeight = types.DefaultHybridWeight
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if denseBuilder == nil {
		denseBuilder = dense.NewBuilder(nil, cfg.Logger)
	}
	return &Indexer{
		storage: store,
		dense:   denseBuilder,
		config:  cfg,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// Busy reports whether a build or update is in progress
func (idx *Indexer) Busy() bool {
	return idx.lock.Held()
}

// Build replaces the whole index with one built from docs. Field weights are
// merged over the defaults and normalized.
func (idx *Indexer) Build(ctx context.Context, docs []types.Document, weights map[string]float64) (*Result, error) {
	if !idx.lock.TryAcquire() {
		return nil, types.ErrIndexBusy
	}
	defer idx.lock.Release()

	return idx.build(ctx, docs, weights)
}

// Update appends documents whose ids are not yet indexed. It falls back to a
// full build when the stored index is missing or incomplete.
func (idx *Indexer) Update(ctx context.Context, docs []types.Document) (*Result, error) {
	if !idx.lock.TryAcquire() {
		return nil, types.ErrIndexBusy
	}
	defer idx.lock.Release()

	startTime := time.Now()
	cleaned, dropped := corpus.Clean(docs)

	st, meta, err := idx.inspect(ctx)
	if err != nil {
		return nil, err
	}

	var fresh []types.Document
	if st.HasDocuments {
		known, err := idx.knownIDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, doc := range cleaned {
			if _, ok := known[doc.ID]; !ok {
				fresh = append(fresh, doc)
			}
		}
		st.NewDocuments = len(fresh)
	}
	if st.IndexHasDense && st.NewDocuments > 0 {
		st.ProviderReady = idx.providerMatches(meta) && idx.dense.Available(ctx)
	}

	action, err := Decide(st)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionBuild:
		var weights map[string]float64
		if meta != nil {
			weights = meta.FieldWeights
		}
		idx.logger.Info("stored index incomplete, running full build",
			"has_meta", st.HasMeta,
			"has_documents", st.HasDocuments,
			"has_vectorizer", st.HasVectorizer,
			"sparse_complete", st.SparseComplete)
		return idx.build(ctx, docs, weights)

	case ActionNoop:
		idx.logger.Info("no new documents", "corpus", len(cleaned))
		return &Result{Action: ActionNoop, Meta: meta, Dropped: dropped, Duration: time.Since(startTime)}, nil
	}

	if err := idx.appendDocuments(ctx, meta, fresh); err != nil {
		return nil, err
	}

	idx.logger.Info("index updated",
		"build_id", meta.BuildID,
		"appended", len(fresh),
		"documents", meta.DocumentCount,
		"dropped", dropped)
	return &Result{
		Action:   ActionAppend,
		Meta:     meta,
		Indexed:  len(fresh),
		Dropped:  dropped,
		Duration: time.Since(startTime),
	}, nil
}

func (idx *Indexer) build(ctx context.Context, docs []types.Document, weights map[string]float64) (*Result, error) {
	startTime := time.Now()

	cleaned, dropped := corpus.Clean(docs)
	if dropped > 0 {
		idx.logger.Warn("dropped corpus records", "count", dropped)
	}

	weights = fusion.ResolveWeights(weights, nil)
	prepared := corpus.PrepareAll(cleaned)

	vec, sparseRep := sparse.Build(prepared, weights, idx.config.Sparse)

	var denseRep *dense.Representation
	if idx.dense.Available(ctx) {
		var err error
		denseRep, err = idx.dense.Build(ctx, prepared, weights)
		if err != nil {
			return nil, fmt.Errorf("failed to build dense representation: %w", err)
		}
	} else {
		idx.logger.Warn("building sparse-only index")
	}

	state, err := vec.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize vectorizer: %w", err)
	}

	meta := idx.newMeta(weights, vec, denseRep, len(cleaned))

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.Clear(ctx); err != nil {
		return nil, err
	}
	if err := tx.PutVectorizer(ctx, &storage.VectorizerState{Format: vec.Format, State: state}); err != nil {
		return nil, err
	}
	if err := tx.InsertDocuments(ctx, 0, cleaned); err != nil {
		return nil, err
	}
	if err := writeVectors(ctx, tx, 0, sparseRep, denseRep); err != nil {
		return nil, err
	}
	if err := tx.PutMeta(ctx, meta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	idx.logger.Info("index built",
		"build_id", meta.BuildID,
		"documents", meta.DocumentCount,
		"vocabulary", meta.VocabularySize,
		"engines", meta.AvailableEngines,
		"duration", time.Since(startTime))

	return &Result{
		Action:   ActionBuild,
		Meta:     meta,
		Indexed:  len(cleaned),
		Dropped:  dropped,
		Duration: time.Since(startTime),
	}, nil
}

// appendDocuments encodes fresh documents with the stored vectorizer and
// writes them after the existing positions. meta is updated in place.
func (idx *Indexer) appendDocuments(ctx context.Context, meta *types.IndexMeta, fresh []types.Document) error {
	state, err := idx.storage.GetVectorizer(ctx)
	if err != nil {
		return fmt.Errorf("failed to read vectorizer: %w", err)
	}
	vec, err := sparse.Unmarshal(state.State)
	if err != nil {
		return fmt.Errorf("failed to load vectorizer: %w", err)
	}

	weights := fusion.ResolveWeights(meta.FieldWeights, nil)
	prepared := corpus.PrepareAll(fresh)
	sparseRep := sparse.Encode(vec, prepared, weights)

	var denseRep *dense.Representation
	if meta.HasDense() {
		denseRep, err = idx.dense.Build(ctx, prepared, weights)
		if err != nil {
			return fmt.Errorf("failed to build dense representation: %w", err)
		}
		if denseRep.Dimension != meta.DenseDimension {
			return fmt.Errorf("%w: got %d, index has %d", dense.ErrDimensionMismatch, denseRep.Dimension, meta.DenseDimension)
		}
	}

	start := meta.DocumentCount

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.InsertDocuments(ctx, start, fresh); err != nil {
		return err
	}
	if err := writeVectors(ctx, tx, start, sparseRep, denseRep); err != nil {
		return err
	}

	meta.DocumentCount += len(fresh)
	meta.UpdatedAt = idx.now().UTC()
	if err := tx.PutMeta(ctx, meta); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// inspect reads what the store holds. Meta written by an incompatible format
// version is reported as missing.
func (idx *Indexer) inspect(ctx context.Context) (State, *types.IndexMeta, error) {
	status, err := storage.ReadStatus(ctx, idx.storage)
	if err != nil {
		return State{}, nil, fmt.Errorf("failed to read index status: %w", err)
	}

	st := State{
		HasMeta:        status.HasMeta,
		HasDocuments:   status.DocumentCount > 0,
		HasVectorizer:  status.HasVectorizer,
		SparseComplete: status.SparseCombined > 0 && status.SparseCombined == status.DocumentCount,
	}
	if !st.HasMeta {
		return st, nil, nil
	}

	meta, err := idx.storage.GetMeta(ctx)
	if err != nil {
		return State{}, nil, fmt.Errorf("failed to read index meta: %w", err)
	}
	if !CompatibleFormat(meta.FormatVersion) || meta.DocumentCount != status.DocumentCount {
		st.HasMeta = false
		return st, nil, nil
	}
	st.IndexHasDense = meta.HasDense()
	return st, meta, nil
}

func (idx *Indexer) knownIDs(ctx context.Context) (map[string]struct{}, error) {
	docs, err := idx.storage.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed documents: %w", err)
	}
	known := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		known[doc.ID] = struct{}{}
	}
	return known, nil
}

// providerMatches reports whether the configured provider produced the indexed vectors
func (idx *Indexer) providerMatches(meta *types.IndexMeta) bool {
	emb := idx.dense.Embedder()
	if emb == nil {
		return false
	}
	if emb.Provider() != meta.DenseProvider || emb.Model() != meta.DenseModel {
		idx.logger.Warn("configured embedding provider differs from the index",
			"configured", emb.Provider()+"/"+emb.Model(),
			"indexed", meta.DenseProvider+"/"+meta.DenseModel)
		return false
	}
	return true
}

func (idx *Indexer) newMeta(weights map[string]float64, vec *sparse.Vectorizer, denseRep *dense.Representation, n int) *types.IndexMeta {
	now := idx.now().UTC()
	storedFields := append([]string{storage.FieldCombined}, types.Fields...)

	meta := &types.IndexMeta{
		BuildID:             uuid.NewString(),
		FormatVersion:       FormatVersion,
		EmbeddingType:       types.EmbeddingTypeSparse,
		AvailableEngines:    []string{types.EngineSparse},
		FieldNames:          slices.Clone(types.Fields),
		FieldWeights:        weights,
		HybridWeightDefault: idx.config.HybridWeight,
		VocabularySize:      vec.Size(),
		DocumentCount:       n,
		Artifacts: types.Artifacts{
			StorageRoot:  idx.config.StorageRoot,
			Database:     idx.config.Database,
			Vectorizer:   "vectorizer",
			SparseFields: storedFields,
			Documents:    "documents",
		},
		BuiltAt:   now,
		UpdatedAt: now,
	}

	if denseRep != nil {
		meta.EmbeddingType = types.EmbeddingTypeHybrid
		meta.AvailableEngines = append(meta.AvailableEngines, types.EngineDense, types.EngineHybrid)
		meta.DenseProvider = denseRep.Provider
		meta.DenseModel = denseRep.Model
		meta.DenseDimension = denseRep.Dimension
		meta.Artifacts.DenseFields = slices.Clone(storedFields)
	}
	return meta
}

// writeVectors stores the combined and per-field vectors of both representations
func writeVectors(ctx context.Context, tx storage.Tx, start int, sparseRep *sparse.Representation, denseRep *dense.Representation) error {
	if err := tx.InsertSparseVectors(ctx, storage.FieldCombined, start, sparseRep.Combined); err != nil {
		return err
	}
	for _, field := range types.Fields {
		if err := tx.InsertSparseVectors(ctx, field, start, sparseRep.Fields[field]); err != nil {
			return err
		}
	}
	if denseRep == nil {
		return nil
	}

	if err := tx.InsertDenseVectors(ctx, storage.FieldCombined, start, denseRep.Combined); err != nil {
		return err
	}
	for _, field := range types.Fields {
		if err := tx.InsertDenseVectors(ctx, field, start, denseRep.Fields[field]); err != nil {
			return err
		}
	}
	return nil
}
