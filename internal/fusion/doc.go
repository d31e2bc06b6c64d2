// Package fusion combines per-field vectors into one document vector.
//
// Field weights are normalized to sum to 1. Each document only counts the
// fields whose raw text is present, so a missing excerpt shifts weight to the
// name and description of that document without affecting any other.
package fusion
