package searcher

import (
	"strings"

	"github.com/dshills/skillindex/pkg/types"
)

// ExactMatchBonus is added when the query equals the document name
const ExactMatchBonus = 0.15

// Filters restrict results by document attributes. Zero values do not filter.
type Filters struct {
	Tags             []string `json:"tags"`
	Owner            string   `json:"owner,omitempty"`
	Source           string   `json:"source,omitempty"`
	RequiresInternet *bool    `json:"requires_internet"`
}

// normalized trims and lower-cases every criterion and drops empty tags
func (f Filters) normalized() Filters {
	out := Filters{
		Owner:            normalizeValue(f.Owner),
		Source:           normalizeValue(f.Source),
		RequiresInternet: f.RequiresInternet,
	}
	for _, tag := range f.Tags {
		if tag = normalizeValue(tag); tag != "" {
			out.Tags = append(out.Tags, tag)
		}
	}
	return out
}

// Active reports whether any criterion is set
func (f Filters) Active() bool {
	return len(f.Tags) > 0 || f.Owner != "" || f.Source != "" || f.RequiresInternet != nil
}

// Match reports whether doc passes every criterion. f must be normalized.
func (f Filters) Match(doc *types.Document) bool {
	if f.Owner != "" && normalizeValue(doc.Owner) != f.Owner {
		return false
	}
	if f.Source != "" && normalizeValue(doc.Source) != f.Source {
		return false
	}
	if f.RequiresInternet != nil && doc.RequiresInternet != *f.RequiresInternet {
		return false
	}
	if len(f.Tags) == 0 {
		return true
	}

	have := make(map[string]struct{}, len(doc.Tags))
	for _, tag := range doc.Tags {
		have[normalizeValue(tag)] = struct{}{}
	}
	for _, tag := range f.Tags {
		if _, ok := have[tag]; !ok {
			return false
		}
	}
	return true
}

func normalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsExactMatch compares query and name case-insensitively, treating '-' as a
// space. Surrounding whitespace is trimmed before the replacement only.
func IsExactMatch(query, name string) bool {
	q := normalizeName(query)
	return q != "" && q == normalizeName(name)
}

func normalizeName(s string) string {
	return strings.ReplaceAll(normalizeValue(s), "-", " ")
}
