// Package corpus loads documents and derives the per-field text that both
// representations are built from.
//
// Two providers are available: JSONFile reads an exported corpus (a list, or
// an object keyed by id) and SQLite reads the Skill table of the registry
// database. Prepare turns a document into its name, description and excerpt
// field texts plus the combined text used to fit the sparse vectorizer.
package corpus
