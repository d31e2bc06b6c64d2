package types

import (
	"slices"
	"time"
)

// Engine names as recorded in the index meta
const (
	EngineSparse = "sparse"
	EngineDense  = "dense"
	EngineHybrid = "hybrid"
)

// Embedding types recorded in the index meta
const (
	EmbeddingTypeSparse = "sparse"
	EmbeddingTypeHybrid = "hybrid"
)

// DefaultHybridWeight is the dense share used when a query does not override it
const DefaultHybridWeight = 0.7

// IndexMeta describes a built index: which engines are usable, the field
// weights in effect and where the artifacts live.
type IndexMeta struct {
	BuildID       string `json:"build_id"`
	FormatVersion string `json:"format_version"`

	EmbeddingType       string             `json:"embedding_type"`
	AvailableEngines    []string           `json:"available_engines"`
	FieldNames          []string           `json:"field_names"`
	FieldWeights        map[string]float64 `json:"field_weights"`
	HybridWeightDefault float64            `json:"hybrid_weight_default"`

	DenseProvider  string `json:"dense_provider,omitempty"`
	DenseModel     string `json:"dense_model,omitempty"`
	DenseDimension int    `json:"dense_dimension,omitempty"`

	VocabularySize int `json:"vocabulary_size"`
	DocumentCount  int `json:"document_count"`

	Artifacts Artifacts `json:"artifacts"`

	BuiltAt   time.Time `json:"built_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Artifacts names the persisted pieces of an index
type Artifacts struct {
	StorageRoot  string   `json:"storage_root"`
	Database     string   `json:"database"`
	Vectorizer   string   `json:"vectorizer"`
	SparseFields []string `json:"sparse_fields"`
	DenseFields  []string `json:"dense_fields,omitempty"`
	Documents    string   `json:"documents"`
}

// HasEngine reports whether the index was built with the named engine
func (m *IndexMeta) HasEngine(engine string) bool {
	if m == nil {
		return false
	}
	return slices.Contains(m.AvailableEngines, engine)
}

// HasDense reports whether the index carries dense vectors
func (m *IndexMeta) HasDense() bool {
	return m.HasEngine(EngineDense)
}
