package fusion

import (
	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

// NormalizeWeights maps weights onto fields so they sum to 1.
// Negative or missing weights count as zero; if nothing positive remains
// every field gets an equal share. Keys outside fields are ignored.
func NormalizeWeights(weights map[string]float64, fields []string) map[string]float64 {
	out := make(map[string]float64, len(fields))
	if len(fields) == 0 {
		return out
	}

	var total float64
	for _, field := range fields {
		w := weights[field]
		if w < 0 {
			w = 0
		}
		out[field] = w
		total += w
	}

	if total <= 0 {
		equal := 1.0 / float64(len(fields))
		for _, field := range fields {
			out[field] = equal
		}
		return out
	}

	for field, w := range out {
		out[field] = w / total
	}
	return out
}

// ResolveWeights layers the default weights, the weights an index was built
// with and a per-query override, then normalizes over the indexed fields.
func ResolveWeights(indexWeights, override map[string]float64) map[string]float64 {
	merged := make(map[string]float64, len(types.Fields))
	for field, w := range types.DefaultFieldWeights {
		merged[field] = w
	}
	for field, w := range indexWeights {
		merged[field] = w
	}
	for field, w := range override {
		merged[field] = w
	}
	return NormalizeWeights(merged, types.Fields)
}

// FieldVectors holds one field's vectors for every document, parallel to
// Present which is true where the field's raw text is non-empty.
type FieldVectors[V vector.Vector[V]] struct {
	Field   string
	Vectors []V
	Present []bool
}

// Combine fuses per-field vectors into one unit vector per document.
//
// A field contributes to a document only when present there, and the sum is
// divided by the weight of the fields that did contribute. Documents with no
// contributing field come back undefined: defined[i] is false and fused[i] is
// the zero value of V.
func Combine[V vector.Vector[V]](fields []FieldVectors[V], weights map[string]float64, n int) (fused []V, defined []bool) {
	fused = make([]V, n)
	defined = make([]bool, n)

	for i := 0; i < n; i++ {
		var acc V
		var denom float64
		for _, fv := range fields {
			w := weights[fv.Field]
			if w <= 0 || i >= len(fv.Present) || !fv.Present[i] {
				continue
			}
			acc = acc.Plus(fv.Vectors[i].Scaled(w))
			denom += w
		}
		if denom == 0 {
			continue
		}
		fused[i] = acc.Scaled(1 / denom).Normalized()
		defined[i] = true
	}

	return fused, defined
}
