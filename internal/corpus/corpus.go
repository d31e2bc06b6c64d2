package corpus

import (
	"context"
	"strings"

	"github.com/dshills/skillindex/pkg/types"
)

// SourceDatabase selects the registry database as corpus source
const SourceDatabase = "db"

// Provider supplies the documents to index
type Provider interface {
	Load(ctx context.Context) ([]types.Document, error)
}

// Resolve returns the provider for a corpus source: "" or "db" reads the
// registry database at dbPath, anything else is a JSON file path.
func Resolve(source, dbPath string) Provider {
	source = strings.TrimSpace(source)
	if source == "" || source == SourceDatabase {
		return &SQLite{Path: dbPath}
	}
	return &JSONFile{Path: source}
}

// Prepared holds the text of each indexed field of one document
type Prepared struct {
	fields map[string]string
}

// Prepare derives field texts from a document. The name and description
// fields concatenate their primary and secondary values; blank parts are dropped.
func Prepare(doc types.Document) Prepared {
	return Prepared{fields: map[string]string{
		types.FieldName:        join(doc.Name, doc.NameSecondary),
		types.FieldDescription: join(doc.Description, doc.DescriptionSecondary),
		types.FieldExcerpt:     strings.TrimSpace(doc.Excerpt),
	}}
}

// PrepareAll prepares every document in order
func PrepareAll(docs []types.Document) []Prepared {
	out := make([]Prepared, len(docs))
	for i, doc := range docs {
		out[i] = Prepare(doc)
	}
	return out
}

// Field returns the prepared text of a field
func (p Prepared) Field(field string) string {
	return p.fields[field]
}

// Present reports whether the field has any text
func (p Prepared) Present(field string) bool {
	return p.fields[field] != ""
}

// Combined joins the non-empty field texts in canonical field order
func (p Prepared) Combined() string {
	parts := make([]string, 0, len(types.Fields))
	for _, field := range types.Fields {
		parts = append(parts, p.fields[field])
	}
	return join(parts...)
}

// FieldTexts collects one field across documents
func FieldTexts(prepared []Prepared, field string) []string {
	out := make([]string, len(prepared))
	for i, p := range prepared {
		out[i] = p.Field(field)
	}
	return out
}

// Presence collects the presence mask of one field across documents
func Presence(prepared []Prepared, field string) []bool {
	out := make([]bool, len(prepared))
	for i, p := range prepared {
		out[i] = p.Present(field)
	}
	return out
}

// CombinedTexts collects the combined text of every document
func CombinedTexts(prepared []Prepared) []string {
	out := make([]string, len(prepared))
	for i, p := range prepared {
		out[i] = p.Combined()
	}
	return out
}

// Clean drops documents without an id and repeated ids, keeping the first
// occurrence. It returns the number of dropped documents.
func Clean(docs []types.Document) ([]types.Document, int) {
	seen := make(map[string]struct{}, len(docs))
	out := make([]types.Document, 0, len(docs))
	for _, doc := range docs {
		doc.ID = strings.TrimSpace(doc.ID)
		if err := doc.Validate(); err != nil {
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		out = append(out, doc)
	}
	return out, len(docs) - len(out)
}

func join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}
