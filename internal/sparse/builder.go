package sparse

import (
	"github.com/dshills/skillindex/internal/corpus"
	"github.com/dshills/skillindex/internal/fusion"
	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

// Representation holds the sparse vectors of a batch of documents
type Representation struct {
	Combined []vector.Sparse
	Fields   map[string][]vector.Sparse
}

// Len returns the number of encoded documents
func (r *Representation) Len() int {
	return len(r.Combined)
}

// Build fits a new vectorizer on the combined text of the corpus and encodes it
func Build(prepared []corpus.Prepared, weights map[string]float64, opts Options) (*Vectorizer, *Representation) {
	v := Fit(corpus.CombinedTexts(prepared), opts)
	return v, Encode(v, prepared, weights)
}

// Encode transforms documents with an already fitted vectorizer. Each field
// is encoded on its own and the combined vector is their weighted fusion.
func Encode(v *Vectorizer, prepared []corpus.Prepared, weights map[string]float64) *Representation {
	rep := &Representation{Fields: make(map[string][]vector.Sparse, len(types.Fields))}

	fields := make([]fusion.FieldVectors[vector.Sparse], 0, len(types.Fields))
	for _, field := range types.Fields {
		vecs := v.TransformAll(corpus.FieldTexts(prepared, field))
		rep.Fields[field] = vecs
		fields = append(fields, fusion.FieldVectors[vector.Sparse]{
			Field:   field,
			Vectors: vecs,
			Present: corpus.Presence(prepared, field),
		})
	}

	// undefined documents keep the empty vector, which scores 0 against any query
	rep.Combined, _ = fusion.Combine(fields, weights, len(prepared))
	return rep
}
