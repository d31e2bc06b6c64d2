package types

import (
	"encoding/json"
	"strings"
)

// Field names indexed for every document, in canonical order.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldExcerpt     = "excerpt"
)

// Fields lists the indexed fields in canonical order.
var Fields = []string{FieldName, FieldDescription, FieldExcerpt}

// DefaultFieldWeights are applied when neither the index nor the query supplies weights.
var DefaultFieldWeights = map[string]float64{
	FieldName:        0.6,
	FieldDescription: 0.3,
	FieldExcerpt:     0.1,
}

// Document is one indexed record of the corpus
type Document struct {
	// Identification
	ID string `json:"id"`

	// Text fields
	Name                 string `json:"name"`
	NameSecondary        string `json:"name_secondary,omitempty"`
	Description          string `json:"description"`
	DescriptionSecondary string `json:"description_secondary,omitempty"`
	Excerpt              string `json:"excerpt,omitempty"`

	// Filterable attributes
	Tags             Tags   `json:"tags"`
	Owner            string `json:"owner,omitempty"`
	Source           string `json:"source,omitempty"`
	RequiresInternet bool   `json:"requires_internet"`

	// Passthrough metadata
	Contact       string          `json:"contact,omitempty"`
	Path          string          `json:"path,omitempty"`
	Weight        float64         `json:"weight,omitempty"`
	Installs      int64           `json:"installs,omitempty"`
	Stars         int64           `json:"stars,omitempty"`
	SecurityScore *float64        `json:"security_score,omitempty"`
	SecurityData  json.RawMessage `json:"security_data,omitempty"`
}

// Validate checks if the document can be indexed
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrInvalidDocumentID
	}
	return nil
}

// Field returns the raw text of an indexed field, without secondary variants
func (d *Document) Field(field string) string {
	switch field {
	case FieldName:
		return d.Name
	case FieldDescription:
		return d.Description
	case FieldExcerpt:
		return d.Excerpt
	}
	return ""
}

// Tags is a set of labels. It decodes from a JSON list or a comma-separated string.
type Tags []string

// UnmarshalJSON accepts ["a","b"], "a, b" or null.
func (t *Tags) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = cleanTags(list)
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*t = ParseTags(joined)
	return nil
}

// ParseTags splits a comma-separated tag string, dropping blanks
func ParseTags(s string) Tags {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return cleanTags(strings.Split(s, ","))
}

func cleanTags(in []string) Tags {
	out := make(Tags, 0, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
