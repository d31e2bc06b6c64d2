package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dshills/skillindex/internal/vector"
)

// ErrCorruptVector is returned when a stored vector blob cannot be decoded
var ErrCorruptVector = errors.New("corrupt vector blob")

// serializeDense stores float32 components little-endian
func serializeDense(v vector.Dense) []byte {
	blob := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(f))
	}
	return blob
}

func deserializeDense(blob []byte) (vector.Dense, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("%w: dense length %d", ErrCorruptVector, len(blob))
	}
	v := make(vector.Dense, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// serializeSparse stores (index int32, value float32) pairs little-endian
func serializeSparse(v vector.Sparse) []byte {
	blob := make([]byte, len(v.Indices)*8)
	for i, idx := range v.Indices {
		binary.LittleEndian.PutUint32(blob[i*8:], uint32(idx))
		binary.LittleEndian.PutUint32(blob[i*8+4:], math.Float32bits(v.Values[i]))
	}
	return blob
}

func deserializeSparse(blob []byte) (vector.Sparse, error) {
	if len(blob)%8 != 0 {
		return vector.Sparse{}, fmt.Errorf("%w: sparse length %d", ErrCorruptVector, len(blob))
	}
	n := len(blob) / 8
	v := vector.Sparse{
		Indices: make([]int32, n),
		Values:  make([]float32, n),
	}
	for i := 0; i < n; i++ {
		v.Indices[i] = int32(binary.LittleEndian.Uint32(blob[i*8:]))
		v.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*8+4:]))
		if i > 0 && v.Indices[i] <= v.Indices[i-1] {
			return vector.Sparse{}, fmt.Errorf("%w: indices not increasing", ErrCorruptVector)
		}
	}
	return v, nil
}
