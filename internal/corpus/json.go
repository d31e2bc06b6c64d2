package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dshills/skillindex/pkg/types"
)

// JSONFile reads a corpus file holding either a list of documents or an
// object keyed by id. Object entries keep their order in the file.
type JSONFile struct {
	Path string
}

// record accepts the legacy registry field names alongside the canonical ones
type record struct {
	types.Document
	NameZh        string `json:"name_zh"`
	DescriptionZh string `json:"description_zh"`
	SkillPath     string `json:"skill_path"`
}

func (r record) document() types.Document {
	doc := r.Document
	if doc.NameSecondary == "" {
		doc.NameSecondary = r.NameZh
	}
	if doc.DescriptionSecondary == "" {
		doc.DescriptionSecondary = r.DescriptionZh
	}
	if doc.Path == "" {
		doc.Path = r.SkillPath
	}
	return doc
}

// Load implements Provider
func (j *JSONFile) Load(ctx context.Context) ([]types.Document, error) {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", j.Path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, err := DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decode corpus %s: %w", j.Path, err)
	}
	return docs, nil
}

// DecodeJSON parses a corpus document list or id-keyed object
func DecodeJSON(data []byte) ([]types.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var records []record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		docs := make([]types.Document, len(records))
		for i, r := range records {
			docs[i] = r.document()
		}
		return docs, nil
	case '{':
		return decodeObject(trimmed)
	default:
		return nil, fmt.Errorf("corpus must be a JSON array or object")
	}
}

func decodeObject(data []byte) ([]types.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var docs []types.Document
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)

		var r record
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		doc := r.document()
		if doc.ID == "" {
			doc.ID = key
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
