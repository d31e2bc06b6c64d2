package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillindex/internal/vector"
)

func TestDenseCodec(t *testing.T) {
	v := vector.Dense{0.25, -1, 3.5}
	blob := serializeDense(v)
	assert.Len(t, blob, 12)

	got, err := deserializeDense(blob)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = deserializeDense(blob[:5])
	assert.ErrorIs(t, err, ErrCorruptVector)
}

func TestSparseCodec(t *testing.T) {
	v := vector.NewSparse(map[int32]float64{7: 0.5, 2: -0.5})
	got, err := deserializeSparse(serializeSparse(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = deserializeSparse([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptVector)

	// decreasing indices are rejected
	bad := serializeSparse(vector.Sparse{Indices: []int32{5, 1}, Values: []float32{1, 1}})
	_, err = deserializeSparse(bad)
	assert.ErrorIs(t, err, ErrCorruptVector)
}
