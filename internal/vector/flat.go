package vector

import (
	"cmp"
	"slices"

	"github.com/wizenheimer/comet"
)

// tieMargin is how many extra candidates are fetched from comet per
// requested hit, so equal scores at the cut can be ordered by position.
const tieMargin = 2

// Hit is one search result from a FlatIndex
type Hit struct {
	Position int
	Score    float64
}

// FlatIndex is an exhaustive inner-product index over vectors kept in
// position order. Retrieval runs on a comet flat cosine index; candidates are
// rescored with the exact inner product, so with unit vectors the score is
// cosine similarity. Zero vectors are not handed to comet and score 0.
type FlatIndex[V Vector[V]] struct {
	vectors []V
	dim     int
	zeros   []int // positions of zero vectors, ascending

	comet   *comet.FlatIndex
	indexed int
}

// NewFlatIndex creates an index over the given vectors in position order
func NewFlatIndex[V Vector[V]](vectors []V) *FlatIndex[V] {
	f := &FlatIndex[V]{vectors: slices.Clone(vectors)}
	f.rebuild()
	return f
}

// Add appends vectors at the next positions
func (f *FlatIndex[V]) Add(vectors ...V) {
	f.vectors = append(f.vectors, vectors...)
	f.rebuild()
}

// rebuild recreates the comet index. On any comet error the index stays
// unset and Search scans the vectors directly.
func (f *FlatIndex[V]) rebuild() {
	f.comet, f.indexed, f.zeros, f.dim = nil, 0, nil, 0
	for _, v := range f.vectors {
		f.dim = max(f.dim, v.Dim())
	}

	for i, v := range f.vectors {
		if v.Norm() == 0 {
			f.zeros = append(f.zeros, i)
		}
	}
	if f.dim == 0 || len(f.zeros) == len(f.vectors) {
		return
	}

	idx, err := comet.NewFlatIndex(f.dim, comet.Cosine)
	if err != nil {
		return
	}
	for i, v := range f.vectors {
		if v.Norm() == 0 {
			continue
		}
		node := comet.NewVectorNodeWithID(uint32(i), v.Floats(f.dim))
		if err := idx.Add(*node); err != nil {
			return
		}
		f.indexed++
	}
	f.comet = idx
}

// Len returns the number of indexed vectors
func (f *FlatIndex[V]) Len() int {
	return len(f.vectors)
}

// At returns the vector stored at position i
func (f *FlatIndex[V]) At(i int) V {
	return f.vectors[i]
}

// Search returns the k best positions by inner product, highest first.
// Ties keep the lower position first.
func (f *FlatIndex[V]) Search(query V, k int) []Hit {
	if k <= 0 || len(f.vectors) == 0 {
		return []Hit{}
	}
	k = min(k, len(f.vectors))

	q := query.Floats(f.dim)
	if f.comet == nil || Dense(q).Norm() == 0 {
		return f.scan(query, k)
	}

	fetch := min(f.indexed, k*tieMargin)
	results, err := f.comet.NewSearch().
		WithQuery(q).
		WithK(fetch).
		Execute()
	if err != nil {
		return f.scan(query, k)
	}

	hits := make([]Hit, 0, len(results)+min(k, len(f.zeros)))
	for _, r := range results {
		pos := int(r.GetId())
		if pos < 0 || pos >= len(f.vectors) {
			return f.scan(query, k)
		}
		hits = append(hits, Hit{Position: pos, Score: f.vectors[pos].Dot(query)})
	}
	for _, pos := range f.zeros[:min(k, len(f.zeros))] {
		hits = append(hits, Hit{Position: pos})
	}
	sortHits(hits)

	// A tie running through the last fetched candidate may continue past it.
	if len(results) < f.indexed && len(hits) >= k && len(results) > 0 {
		last := f.vectors[int(results[len(results)-1].GetId())].Dot(query)
		if last >= hits[k-1].Score {
			return f.scan(query, k)
		}
	}

	return hits[:min(k, len(hits))]
}

// scan scores every vector
func (f *FlatIndex[V]) scan(query V, k int) []Hit {
	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Position: i, Score: v.Dot(query)}
	}
	sortHits(hits)
	return hits[:k]
}

func sortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
}
