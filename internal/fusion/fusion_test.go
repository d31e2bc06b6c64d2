package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

func sum(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

func TestNormalizeWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]float64
		want    map[string]float64
	}{
		{
			name:    "defaults",
			weights: types.DefaultFieldWeights,
			want:    map[string]float64{"name": 0.6, "description": 0.3, "excerpt": 0.1},
		},
		{
			name:    "unnormalized",
			weights: map[string]float64{"name": 2, "description": 1, "excerpt": 1},
			want:    map[string]float64{"name": 0.5, "description": 0.25, "excerpt": 0.25},
		},
		{
			name:    "negative clamps to zero",
			weights: map[string]float64{"name": -1, "description": 1, "excerpt": 3},
			want:    map[string]float64{"name": 0, "description": 0.25, "excerpt": 0.75},
		},
		{
			name:    "all zero gives equal split",
			weights: map[string]float64{"name": 0, "description": 0, "excerpt": 0},
			want:    map[string]float64{"name": 1.0 / 3, "description": 1.0 / 3, "excerpt": 1.0 / 3},
		},
		{
			name:    "absent gives equal split",
			weights: nil,
			want:    map[string]float64{"name": 1.0 / 3, "description": 1.0 / 3, "excerpt": 1.0 / 3},
		},
		{
			name:    "unknown keys ignored",
			weights: map[string]float64{"name": 1, "bogus": 10},
			want:    map[string]float64{"name": 1, "description": 0, "excerpt": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeWeights(tt.weights, types.Fields)
			require.Len(t, got, len(types.Fields))
			for field, want := range tt.want {
				assert.InDelta(t, want, got[field], 1e-9, field)
			}
			assert.InDelta(t, 1.0, sum(got), 1e-9)
		})
	}
}

func TestNormalizeWeightsSumProperty(t *testing.T) {
	inputs := []float64{0, 0.001, 0.5, 1, 7, 1e6}
	for _, a := range inputs {
		for _, b := range inputs {
			for _, c := range inputs {
				got := NormalizeWeights(map[string]float64{"name": a, "description": b, "excerpt": c}, types.Fields)
				assert.InDelta(t, 1.0, sum(got), 1e-9)
			}
		}
	}
}

func TestResolveWeights(t *testing.T) {
	got := ResolveWeights(
		map[string]float64{"name": 0.5, "description": 0.5, "excerpt": 0},
		map[string]float64{"excerpt": 1},
	)
	assert.InDelta(t, 0.25, got["name"], 1e-9)
	assert.InDelta(t, 0.25, got["description"], 1e-9)
	assert.InDelta(t, 0.5, got["excerpt"], 1e-9)

	defaults := ResolveWeights(nil, nil)
	assert.InDelta(t, 0.6, defaults["name"], 1e-9)
}

func TestCombineSingleFieldIdentity(t *testing.T) {
	vecs := []vector.Dense{
		vector.Dense{0.6, 0.8}.Normalized(),
		vector.Dense{1, 0},
		vector.Dense{0, 1},
	}
	fields := []FieldVectors[vector.Dense]{
		{Field: "name", Vectors: vecs, Present: []bool{true, true, true}},
	}

	fused, defined := Combine(fields, map[string]float64{"name": 1}, len(vecs))
	require.Len(t, fused, 3)
	for i := range vecs {
		assert.True(t, defined[i])
		for j := range vecs[i] {
			assert.InDelta(t, vecs[i][j], fused[i][j], 1e-6)
		}
	}
}

func TestCombinePresenceMask(t *testing.T) {
	name := []vector.Dense{{1, 0}, {1, 0}}
	desc := []vector.Dense{{0, 1}, {0, 0}}
	fields := []FieldVectors[vector.Dense]{
		{Field: "name", Vectors: name, Present: []bool{true, true}},
		{Field: "description", Vectors: desc, Present: []bool{true, false}},
	}
	weights := map[string]float64{"name": 0.5, "description": 0.5}

	fused, defined := Combine(fields, weights, 2)
	require.True(t, defined[0])
	require.True(t, defined[1])

	// both fields present: equal blend
	assert.InDelta(t, 1/math.Sqrt2, fused[0][0], 1e-6)
	assert.InDelta(t, 1/math.Sqrt2, fused[0][1], 1e-6)

	// description absent for doc 1: name alone survives unchanged
	assert.InDelta(t, 1.0, fused[1][0], 1e-6)
	assert.InDelta(t, 0.0, fused[1][1], 1e-6)
}

func TestCombineUndefinedDocument(t *testing.T) {
	fields := []FieldVectors[vector.Dense]{
		{Field: "name", Vectors: []vector.Dense{nil, {1, 0}}, Present: []bool{false, true}},
		{Field: "description", Vectors: []vector.Dense{nil, {0, 1}}, Present: []bool{false, true}},
	}

	fused, defined := Combine(fields, map[string]float64{"name": 0.5, "description": 0.5}, 2)
	assert.False(t, defined[0])
	assert.Empty(t, fused[0], "undefined document has no vector")
	assert.True(t, defined[1])
	for _, v := range fused[1] {
		assert.False(t, math.IsNaN(float64(v)))
	}
}

func TestCombineZeroNormPassesThrough(t *testing.T) {
	fields := []FieldVectors[vector.Dense]{
		{Field: "name", Vectors: []vector.Dense{{0, 0}}, Present: []bool{true}},
	}
	fused, defined := Combine(fields, map[string]float64{"name": 1}, 1)
	require.True(t, defined[0])
	assert.Equal(t, vector.Dense{0, 0}, fused[0])
}

func TestCombineSparse(t *testing.T) {
	fields := []FieldVectors[vector.Sparse]{
		{Field: "name", Vectors: []vector.Sparse{vector.NewSparse(map[int32]float64{0: 1})}, Present: []bool{true}},
		{Field: "excerpt", Vectors: []vector.Sparse{vector.NewSparse(map[int32]float64{2: 1})}, Present: []bool{true}},
	}
	fused, defined := Combine(fields, map[string]float64{"name": 0.75, "excerpt": 0.25}, 1)
	require.True(t, defined[0])
	assert.InDelta(t, 1.0, fused[0].Norm(), 1e-6)
	assert.Equal(t, []int32{0, 2}, fused[0].Indices)
	assert.Greater(t, fused[0].Values[0], fused[0].Values[1])
}
