package vector

import (
	"math"
	"slices"
)

// Vector is the arithmetic shared by dense and sparse representations so
// field fusion and flat search can be written once.
type Vector[V any] interface {
	Dot(V) float64
	Norm() float64
	Scaled(w float64) V
	Plus(V) V
	Normalized() V

	// Dim is the smallest dimension that holds every stored component
	Dim() int
	// Floats expands the vector to exactly dim float32 components
	Floats(dim int) []float32
}

// Dense is a fixed-dimension embedding
type Dense []float32

// Dot returns the inner product. Extra trailing components of the longer vector are ignored.
func (d Dense) Dot(o Dense) float64 {
	n := min(len(d), len(o))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(d[i]) * float64(o[i])
	}
	return sum
}

// Norm returns the L2 norm
func (d Dense) Norm() float64 {
	return math.Sqrt(d.Dot(d))
}

// Scaled returns d*w as a new vector
func (d Dense) Scaled(w float64) Dense {
	out := make(Dense, len(d))
	for i, v := range d {
		out[i] = float32(float64(v) * w)
	}
	return out
}

// Plus returns d+o. An empty receiver acts as the zero vector.
func (d Dense) Plus(o Dense) Dense {
	out := make(Dense, max(len(d), len(o)))
	copy(out, d)
	for i, v := range o {
		out[i] += v
	}
	return out
}

// Normalized returns d scaled to unit length. A zero vector is returned unchanged.
func (d Dense) Normalized() Dense {
	norm := d.Norm()
	if norm == 0 {
		return slices.Clone(d)
	}
	return d.Scaled(1 / norm)
}

// Dim returns the vector length
func (d Dense) Dim() int {
	return len(d)
}

// Floats returns d padded with zeros or cut to dim components
func (d Dense) Floats(dim int) []float32 {
	out := make([]float32, dim)
	copy(out, d)
	return out
}

// Sparse stores non-zero components with strictly increasing indices
type Sparse struct {
	Indices []int32   `json:"indices"`
	Values  []float32 `json:"values"`
}

// NewSparse builds a Sparse vector from index/value pairs, dropping zeros
func NewSparse(components map[int32]float64) Sparse {
	indices := make([]int32, 0, len(components))
	for idx, v := range components {
		if v != 0 {
			indices = append(indices, idx)
		}
	}
	slices.Sort(indices)

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = float32(components[idx])
	}
	return Sparse{Indices: indices, Values: values}
}

// Len returns the number of stored components
func (s Sparse) Len() int {
	return len(s.Indices)
}

// Dot returns the inner product via a merge over the sorted indices
func (s Sparse) Dot(o Sparse) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(s.Indices) && j < len(o.Indices) {
		switch {
		case s.Indices[i] == o.Indices[j]:
			sum += float64(s.Values[i]) * float64(o.Values[j])
			i++
			j++
		case s.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Norm returns the L2 norm
func (s Sparse) Norm() float64 {
	var sum float64
	for _, v := range s.Values {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Scaled returns s*w as a new vector
func (s Sparse) Scaled(w float64) Sparse {
	out := Sparse{
		Indices: slices.Clone(s.Indices),
		Values:  make([]float32, len(s.Values)),
	}
	for i, v := range s.Values {
		out.Values[i] = float32(float64(v) * w)
	}
	return out
}

// Plus returns s+o
func (s Sparse) Plus(o Sparse) Sparse {
	out := Sparse{
		Indices: make([]int32, 0, len(s.Indices)+len(o.Indices)),
		Values:  make([]float32, 0, len(s.Values)+len(o.Values)),
	}
	i, j := 0, 0
	for i < len(s.Indices) || j < len(o.Indices) {
		switch {
		case j >= len(o.Indices) || (i < len(s.Indices) && s.Indices[i] < o.Indices[j]):
			out.Indices = append(out.Indices, s.Indices[i])
			out.Values = append(out.Values, s.Values[i])
			i++
		case i >= len(s.Indices) || o.Indices[j] < s.Indices[i]:
			out.Indices = append(out.Indices, o.Indices[j])
			out.Values = append(out.Values, o.Values[j])
			j++
		default:
			out.Indices = append(out.Indices, s.Indices[i])
			out.Values = append(out.Values, s.Values[i]+o.Values[j])
			i++
			j++
		}
	}
	return out
}

// Normalized returns s scaled to unit length. A zero vector is returned unchanged.
func (s Sparse) Normalized() Sparse {
	norm := s.Norm()
	if norm == 0 {
		return s.Scaled(1)
	}
	return s.Scaled(1 / norm)
}

// Dim returns one past the highest stored index
func (s Sparse) Dim() int {
	if len(s.Indices) == 0 {
		return 0
	}
	return int(s.Indices[len(s.Indices)-1]) + 1
}

// Floats expands s into dim float32 components, dropping indices past dim
func (s Sparse) Floats(dim int) []float32 {
	return s.ToDense(dim)
}

// ToDense expands s into a dense vector of the given dimension
func (s Sparse) ToDense(dim int) Dense {
	out := make(Dense, dim)
	for i, idx := range s.Indices {
		if int(idx) < dim {
			out[idx] = s.Values[i]
		}
	}
	return out
}

