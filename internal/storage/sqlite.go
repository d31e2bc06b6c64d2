package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

// DatabaseFile is the index database name under the storage root
const DatabaseFile = "skillindex.db"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = types.ErrNotFound
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrGap is returned when stored vectors do not cover every position
	ErrGap = errors.New("vector positions are not contiguous")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

// Open creates the storage root if needed and opens the index database in it
func Open(root string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return NewSQLiteStorage(filepath.Join(root, DatabaseFile))
}

// Path returns the database path the storage was opened with
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Meta operations

func (s *SQLiteStorage) getMetaWithQuerier(ctx context.Context, q querier) (*types.IndexMeta, error) {
	var data string
	err := q.QueryRowContext(ctx, "SELECT data FROM index_meta WHERE id = 1").Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index meta: %w", err)
	}

	var meta types.IndexMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode index meta: %w", err)
	}
	return &meta, nil
}

func (s *SQLiteStorage) GetMeta(ctx context.Context) (*types.IndexMeta, error) {
	return s.getMetaWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) putMetaWithQuerier(ctx context.Context, q querier, meta *types.IndexMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode index meta: %w", err)
	}
	query := `
		INSERT INTO index_meta (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, string(data), time.Now()); err != nil {
		return fmt.Errorf("failed to write index meta: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) PutMeta(ctx context.Context, meta *types.IndexMeta) error {
	return s.putMetaWithQuerier(ctx, s.querier(), meta)
}

// Vectorizer operations

func (s *SQLiteStorage) getVectorizerWithQuerier(ctx context.Context, q querier) (*VectorizerState, error) {
	var state VectorizerState
	err := q.QueryRowContext(ctx, "SELECT format, state, updated_at FROM vectorizer WHERE id = 1").
		Scan(&state.Format, &state.State, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vectorizer: %w", err)
	}
	return &state, nil
}

func (s *SQLiteStorage) GetVectorizer(ctx context.Context) (*VectorizerState, error) {
	return s.getVectorizerWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) putVectorizerWithQuerier(ctx context.Context, q querier, state *VectorizerState) error {
	now := time.Now()
	query := `
		INSERT INTO vectorizer (id, format, state, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET format = excluded.format, state = excluded.state, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, state.Format, state.State, now); err != nil {
		return fmt.Errorf("failed to write vectorizer: %w", err)
	}
	state.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) PutVectorizer(ctx context.Context, state *VectorizerState) error {
	return s.putVectorizerWithQuerier(ctx, s.querier(), state)
}

// Document operations

func (s *SQLiteStorage) insertDocumentsWithQuerier(ctx context.Context, q querier, start int, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	stmt, err := q.PrepareContext(ctx, "INSERT INTO documents (position, id, data, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare document insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	for i := range docs {
		data, err := json.Marshal(&docs[i])
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", docs[i].ID, err)
		}
		if _, err := stmt.ExecContext(ctx, start+i, docs[i].ID, string(data), now); err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("document %s: %w", docs[i].ID, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to insert document %s: %w", docs[i].ID, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) InsertDocuments(ctx context.Context, start int, docs []types.Document) error {
	return s.insertDocumentsWithQuerier(ctx, s.querier(), start, docs)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]types.Document, error) {
	rows, err := q.QueryContext(ctx, "SELECT position, data FROM documents ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		var (
			position int
			data     string
		)
		if err := rows.Scan(&position, &data); err != nil {
			return nil, err
		}
		if position != len(docs) {
			return nil, fmt.Errorf("document position %d: %w", len(docs), ErrGap)
		}
		var doc types.Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document at %d: %w", position, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]types.Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, id string) (*StoredDocument, error) {
	var (
		stored StoredDocument
		data   string
	)
	err := q.QueryRowContext(ctx, "SELECT position, data FROM documents WHERE id = ?", id).Scan(&stored.Position, &data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &stored.Document); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return &stored, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*StoredDocument, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) countDocumentsWithQuerier(ctx context.Context, q querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int, error) {
	return s.countDocumentsWithQuerier(ctx, s.querier())
}

// Vector operations

func (s *SQLiteStorage) insertBlobsWithQuerier(ctx context.Context, q querier, rep Representation, field string, start int, blobs [][]byte) error {
	if len(blobs) == 0 {
		return nil
	}

	stmt, err := q.PrepareContext(ctx, "INSERT INTO vectors (representation, field, position, data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vector insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, blob := range blobs {
		if _, err := stmt.ExecContext(ctx, string(rep), field, start+i, blob); err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("%s/%s vector %d: %w", rep, field, start+i, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to insert %s/%s vector %d: %w", rep, field, start+i, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) listBlobsWithQuerier(ctx context.Context, q querier, rep Representation, field string) ([][]byte, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT position, data FROM vectors WHERE representation = ? AND field = ? ORDER BY position",
		string(rep), field)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s vectors: %w", rep, field, err)
	}
	defer func() { _ = rows.Close() }()

	var blobs [][]byte
	for rows.Next() {
		var (
			position int
			blob     []byte
		)
		if err := rows.Scan(&position, &blob); err != nil {
			return nil, err
		}
		if position != len(blobs) {
			return nil, fmt.Errorf("%s/%s position %d: %w", rep, field, len(blobs), ErrGap)
		}
		blobs = append(blobs, blob)
	}
	return blobs, rows.Err()
}

func (s *SQLiteStorage) insertDenseVectorsWithQuerier(ctx context.Context, q querier, field string, start int, vecs []vector.Dense) error {
	blobs := make([][]byte, len(vecs))
	for i, v := range vecs {
		blobs[i] = serializeDense(v)
	}
	return s.insertBlobsWithQuerier(ctx, q, RepresentationDense, field, start, blobs)
}

func (s *SQLiteStorage) InsertDenseVectors(ctx context.Context, field string, start int, vecs []vector.Dense) error {
	return s.insertDenseVectorsWithQuerier(ctx, s.querier(), field, start, vecs)
}

func (s *SQLiteStorage) insertSparseVectorsWithQuerier(ctx context.Context, q querier, field string, start int, vecs []vector.Sparse) error {
	blobs := make([][]byte, len(vecs))
	for i, v := range vecs {
		blobs[i] = serializeSparse(v)
	}
	return s.insertBlobsWithQuerier(ctx, q, RepresentationSparse, field, start, blobs)
}

func (s *SQLiteStorage) InsertSparseVectors(ctx context.Context, field string, start int, vecs []vector.Sparse) error {
	return s.insertSparseVectorsWithQuerier(ctx, s.querier(), field, start, vecs)
}

func (s *SQLiteStorage) listDenseVectorsWithQuerier(ctx context.Context, q querier, field string) ([]vector.Dense, error) {
	blobs, err := s.listBlobsWithQuerier(ctx, q, RepresentationDense, field)
	if err != nil {
		return nil, err
	}
	vecs := make([]vector.Dense, len(blobs))
	for i, blob := range blobs {
		if vecs[i], err = deserializeDense(blob); err != nil {
			return nil, fmt.Errorf("dense/%s vector %d: %w", field, i, err)
		}
	}
	return vecs, nil
}

func (s *SQLiteStorage) ListDenseVectors(ctx context.Context, field string) ([]vector.Dense, error) {
	return s.listDenseVectorsWithQuerier(ctx, s.querier(), field)
}

func (s *SQLiteStorage) listSparseVectorsWithQuerier(ctx context.Context, q querier, field string) ([]vector.Sparse, error) {
	blobs, err := s.listBlobsWithQuerier(ctx, q, RepresentationSparse, field)
	if err != nil {
		return nil, err
	}
	vecs := make([]vector.Sparse, len(blobs))
	for i, blob := range blobs {
		if vecs[i], err = deserializeSparse(blob); err != nil {
			return nil, fmt.Errorf("sparse/%s vector %d: %w", field, i, err)
		}
	}
	return vecs, nil
}

func (s *SQLiteStorage) ListSparseVectors(ctx context.Context, field string) ([]vector.Sparse, error) {
	return s.listSparseVectorsWithQuerier(ctx, s.querier(), field)
}

func (s *SQLiteStorage) countVectorsWithQuerier(ctx context.Context, q querier, rep Representation, field string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vectors WHERE representation = ? AND field = ?",
		string(rep), field).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s/%s vectors: %w", rep, field, err)
	}
	return n, nil
}

func (s *SQLiteStorage) CountVectors(ctx context.Context, rep Representation, field string) (int, error) {
	return s.countVectorsWithQuerier(ctx, s.querier(), rep, field)
}

func (s *SQLiteStorage) clearWithQuerier(ctx context.Context, q querier) error {
	for _, table := range []string{"vectors", "documents", "vectorizer", "index_meta"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Clear(ctx context.Context) error {
	return s.clearWithQuerier(ctx, s.querier())
}

// Transaction methods delegate to the storage implementation with the tx querier

func (t *sqliteTx) GetMeta(ctx context.Context) (*types.IndexMeta, error) {
	return t.storage.getMetaWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) PutMeta(ctx context.Context, meta *types.IndexMeta) error {
	return t.storage.putMetaWithQuerier(ctx, t.querier(), meta)
}

func (t *sqliteTx) GetVectorizer(ctx context.Context) (*VectorizerState, error) {
	return t.storage.getVectorizerWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) PutVectorizer(ctx context.Context, state *VectorizerState) error {
	return t.storage.putVectorizerWithQuerier(ctx, t.querier(), state)
}

func (t *sqliteTx) InsertDocuments(ctx context.Context, start int, docs []types.Document) error {
	return t.storage.insertDocumentsWithQuerier(ctx, t.querier(), start, docs)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]types.Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) GetDocument(ctx context.Context, id string) (*StoredDocument, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) CountDocuments(ctx context.Context) (int, error) {
	return t.storage.countDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertDenseVectors(ctx context.Context, field string, start int, vecs []vector.Dense) error {
	return t.storage.insertDenseVectorsWithQuerier(ctx, t.querier(), field, start, vecs)
}

func (t *sqliteTx) InsertSparseVectors(ctx context.Context, field string, start int, vecs []vector.Sparse) error {
	return t.storage.insertSparseVectorsWithQuerier(ctx, t.querier(), field, start, vecs)
}

func (t *sqliteTx) ListDenseVectors(ctx context.Context, field string) ([]vector.Dense, error) {
	return t.storage.listDenseVectorsWithQuerier(ctx, t.querier(), field)
}

func (t *sqliteTx) ListSparseVectors(ctx context.Context, field string) ([]vector.Sparse, error) {
	return t.storage.listSparseVectorsWithQuerier(ctx, t.querier(), field)
}

func (t *sqliteTx) CountVectors(ctx context.Context, rep Representation, field string) (int, error) {
	return t.storage.countVectorsWithQuerier(ctx, t.querier(), rep, field)
}

func (t *sqliteTx) Clear(ctx context.Context) error {
	return t.storage.clearWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	return fmt.Errorf("cannot close storage from within transaction")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// ReadStatus summarizes what s holds. Missing meta or vectorizer is not an error.
func ReadStatus(ctx context.Context, s Storage) (Status, error) {
	var st Status
	var err error

	if _, err = s.GetMeta(ctx); err == nil {
		st.HasMeta = true
	} else if !errors.Is(err, ErrNotFound) {
		return st, err
	}
	if _, err = s.GetVectorizer(ctx); err == nil {
		st.HasVectorizer = true
	} else if !errors.Is(err, ErrNotFound) {
		return st, err
	}
	if st.DocumentCount, err = s.CountDocuments(ctx); err != nil {
		return st, err
	}
	if st.SparseCombined, err = s.CountVectors(ctx, RepresentationSparse, FieldCombined); err != nil {
		return st, err
	}
	if st.DenseCombined, err = s.CountVectors(ctx, RepresentationDense, FieldCombined); err != nil {
		return st, err
	}
	return st, nil
}

// isConstraintError reports a UNIQUE or PRIMARY KEY violation from either driver
func isConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}
