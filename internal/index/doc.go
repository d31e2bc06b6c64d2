// Package index holds the in-memory index served to queries.
//
// A Snapshot is loaded from storage in one pass and never mutated. The
// Manager publishes snapshots through an atomic pointer: queries take the
// pointer once, while rebuilds and updates write storage, load a fresh
// snapshot and swap it in. Readers never see a half-built index.
package index
