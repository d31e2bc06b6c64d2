package indexer

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/dshills/skillindex/pkg/types"
)

// FormatVersion is written to every index meta. Indexes with another major
// version are treated as absent.
const FormatVersion = "1.0.0"

// Action is what an update resolved to
type Action string

const (
	ActionBuild  Action = "built"
	ActionAppend Action = "appended"
	ActionNoop   Action = "unchanged"
)

// State is what an update sees in the store before it writes anything
type State struct {
	HasMeta        bool
	HasDocuments   bool
	HasVectorizer  bool
	SparseComplete bool // one combined sparse vector per stored document
	IndexHasDense  bool
	ProviderReady  bool // provider answers and matches the indexed model
	NewDocuments   int
}

// Decide maps the store state to an update action:
//
//	missing meta, documents, vectorizer or sparse vectors -> full build
//	no new documents                                       -> no-op
//	dense index but provider not ready                     -> ErrProviderUnavailable
//	otherwise                                              -> append
func Decide(st State) (Action, error) {
	switch {
	case !st.HasMeta, !st.HasDocuments, !st.HasVectorizer, !st.SparseComplete:
		return ActionBuild, nil
	case st.NewDocuments == 0:
		return ActionNoop, nil
	case st.IndexHasDense && !st.ProviderReady:
		return "", fmt.Errorf("%w: index has dense vectors, cannot append without the provider", types.ErrProviderUnavailable)
	default:
		return ActionAppend, nil
	}
}

// CompatibleFormat reports whether an index written with version can be read
func CompatibleFormat(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return v.Major() == semver.MustParse(FormatVersion).Major()
}
