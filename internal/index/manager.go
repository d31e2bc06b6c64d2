package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/skillindex/internal/corpus"
	"github.com/dshills/skillindex/internal/indexer"
	"github.com/dshills/skillindex/internal/storage"
	"github.com/dshills/skillindex/pkg/types"
)

// Config contains configuration for the manager
type Config struct {
	CorpusSource   string             // "db" or a JSON file path, used when a rebuild names none
	CorpusDatabase string             // Registry database read by the "db" source
	FieldWeights   map[string]float64 // Weights for full builds
	Logger         *slog.Logger
}

// Status is what index_status reports
type Status struct {
	Loaded  bool             `json:"loaded"`
	Busy    bool             `json:"busy"`
	Engines []string         `json:"engines"`
	Meta    *types.IndexMeta `json:"meta"`
}

// Manager owns the published snapshot. Rebuild and Update write through the
// indexer, reload from storage and swap the new snapshot in with one store.
type Manager struct {
	store   storage.Storage
	indexer *indexer.Indexer
	config  Config
	logger  *slog.Logger

	current   atomic.Pointer[Snapshot]
	publishMu sync.Mutex // orders reload+publish so an older load never replaces a newer one
}

// NewManager creates a manager with no snapshot published. Call Reload to
// pick up an existing index.
func NewManager(store storage.Storage, idx *indexer.Indexer, config *Config) *Manager {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:   store,
		indexer: idx,
		config:  cfg,
		logger:  cfg.Logger,
	}
}

// Current returns the published snapshot, or nil when no index is loaded
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Reload loads the stored index and publishes it. When nothing is built
// the published snapshot is cleared and nil is returned.
func (m *Manager) Reload(ctx context.Context) error {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	snap, err := Load(ctx, m.store, m.logger)
	if errors.Is(err, types.ErrIndexNotBuilt) {
		m.current.Store(nil)
		m.logger.Info("no index built yet")
		return nil
	}
	if err != nil {
		return err
	}
	m.current.Store(snap)
	return nil
}

// Rebuild reads the corpus from source (the configured source when empty)
// and replaces the index with a full build
func (m *Manager) Rebuild(ctx context.Context, source string) (*indexer.Result, error) {
	if m.indexer.Busy() {
		return nil, types.ErrIndexBusy
	}
	docs, err := m.loadCorpus(ctx, source)
	if err != nil {
		return nil, err
	}

	result, err := m.indexer.Build(ctx, docs, m.config.FieldWeights)
	if err != nil {
		return nil, err
	}
	if err := m.Reload(ctx); err != nil {
		return nil, fmt.Errorf("index built but reload failed: %w", err)
	}
	return result, nil
}

// Update reads the configured corpus and appends documents not yet indexed
func (m *Manager) Update(ctx context.Context) (*indexer.Result, error) {
	if m.indexer.Busy() {
		return nil, types.ErrIndexBusy
	}
	docs, err := m.loadCorpus(ctx, "")
	if err != nil {
		return nil, err
	}

	result, err := m.indexer.Update(ctx, docs)
	if err != nil {
		return nil, err
	}
	if result.Action == indexer.ActionNoop && m.Current() != nil {
		return result, nil
	}
	if err := m.Reload(ctx); err != nil {
		return nil, fmt.Errorf("index updated but reload failed: %w", err)
	}
	return result, nil
}

// Status reports the published snapshot
func (m *Manager) Status() Status {
	snap := m.Current()
	st := Status{
		Loaded: snap != nil,
		Busy:   m.indexer.Busy(),
	}
	if snap != nil {
		st.Meta = snap.Meta
		st.Engines = snap.Engines()
	}
	return st
}

func (m *Manager) loadCorpus(ctx context.Context, source string) ([]types.Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		source = m.config.CorpusSource
	}
	docs, err := corpus.Resolve(source, m.config.CorpusDatabase).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	m.logger.Debug("corpus loaded", "source", source, "documents", len(docs))
	return docs, nil
}
