package storage

import (
	"context"
	"time"

	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

// Representation names a vector family in the vectors table
type Representation string

const (
	RepresentationSparse Representation = "sparse"
	RepresentationDense  Representation = "dense"
)

// FieldCombined is the field name under which fused document vectors are stored
const FieldCombined = "combined"

// Storage defines the interface for persisting index artifacts
type Storage interface {
	// Index meta operations
	GetMeta(ctx context.Context) (*types.IndexMeta, error)
	PutMeta(ctx context.Context, meta *types.IndexMeta) error

	// Vectorizer operations
	GetVectorizer(ctx context.Context) (*VectorizerState, error)
	PutVectorizer(ctx context.Context, state *VectorizerState) error

	// Document operations. Positions are dense and start at 0.
	InsertDocuments(ctx context.Context, start int, docs []types.Document) error
	ListDocuments(ctx context.Context) ([]types.Document, error)
	GetDocument(ctx context.Context, id string) (*StoredDocument, error)
	CountDocuments(ctx context.Context) (int, error)

	// Vector operations
	InsertDenseVectors(ctx context.Context, field string, start int, vecs []vector.Dense) error
	InsertSparseVectors(ctx context.Context, field string, start int, vecs []vector.Sparse) error
	ListDenseVectors(ctx context.Context, field string) ([]vector.Dense, error)
	ListSparseVectors(ctx context.Context, field string) ([]vector.Sparse, error)
	CountVectors(ctx context.Context, rep Representation, field string) (int, error)

	// Clear removes every artifact, leaving the schema in place
	Clear(ctx context.Context) error

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// VectorizerState is the serialized sparse vectorizer
type VectorizerState struct {
	Format    string
	State     []byte
	UpdatedAt time.Time
}

// StoredDocument is a document with its index position
type StoredDocument struct {
	Position int
	Document types.Document
}

// Status summarizes what the store currently holds
type Status struct {
	HasMeta        bool
	HasVectorizer  bool
	DocumentCount  int
	SparseCombined int
	DenseCombined  int
}
