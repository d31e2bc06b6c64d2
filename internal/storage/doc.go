// Package storage provides SQLite-based persistence for the retrieval index.
//
// The storage layer manages:
//   - The index descriptor (build id, engines, field weights, dense provider)
//   - The fitted sparse vectorizer
//   - Documents in index position order
//   - Per-field and combined vectors for each representation
//
// # Database Schema
//
// Tables:
//   - index_meta: single row holding the JSON index descriptor
//   - vectorizer: single row holding the serialized TF-IDF state
//   - documents: position, unique id and the JSON document
//   - vectors: (representation, field, position) keyed blobs
//
// Positions start at 0 and are contiguous. Reads that find a gap return ErrGap,
// which callers treat as a partially written index.
//
// # Basic Usage
//
//	db, err := storage.Open("~/.skillindex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// # Transactions
//
// Builds and updates write through a transaction so readers never observe a
// half-written index:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.InsertDocuments(ctx, start, docs)
//	_ = tx.InsertSparseVectors(ctx, storage.FieldCombined, start, vecs)
//	_ = tx.PutMeta(ctx, meta)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// The pool holds a single connection, so calls on the storage itself block
// while a transaction is open. Use the Tx for every read inside a build.
//
// # Build Tags
//
// Pure Go build (default, or purego tag) uses modernc.org/sqlite.
//
// CGO build (sqlite_cgo tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo"
package storage
