package sparse

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/dshills/skillindex/internal/vector"
)

const (
	// DefaultMaxFeatures caps the vocabulary size
	DefaultMaxFeatures = 4096
	// DefaultMaxNGram is the longest word n-gram counted
	DefaultMaxNGram = 2

	// Format identifies the serialized vectorizer layout
	Format = "tfidf/v1"
)

// ErrCorrupt is returned when serialized vectorizer state is inconsistent
var ErrCorrupt = errors.New("corrupt vectorizer state")

// tokens are runs of two or more letters, digits or underscores
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Options controls vectorizer fitting
type Options struct {
	MaxFeatures int
	MaxNGram    int
}

// DefaultOptions returns the fitting options used for every index build
func DefaultOptions() Options {
	return Options{MaxFeatures: DefaultMaxFeatures, MaxNGram: DefaultMaxNGram}
}

// Vectorizer is a fitted TF-IDF model. Once fitted it never changes; all
// stored vectors of an index are expressed in its vocabulary.
type Vectorizer struct {
	Format     string           `json:"format"`
	MaxNGram   int              `json:"max_ngram"`
	Vocabulary map[string]int32 `json:"vocabulary"`
	IDF        []float64        `json:"idf"`
}

// Tokenize lower-cases text and splits it into word tokens
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// terms expands tokens into word n-grams of length 1..maxN
func terms(tokens []string, maxN int) []string {
	out := make([]string, 0, len(tokens)*maxN)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// Fit learns the vocabulary and inverse document frequencies of texts.
//
// The vocabulary keeps the MaxFeatures terms with the highest corpus term
// frequency (ties by term order) and indexes them alphabetically. IDF is
// smoothed: ln((1+n)/(1+df)) + 1.
func Fit(texts []string, opts Options) *Vectorizer {
	if opts.MaxNGram <= 0 {
		opts.MaxNGram = DefaultMaxNGram
	}

	termFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, term := range terms(Tokenize(text), opts.MaxNGram) {
			termFreq[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				docFreq[term]++
			}
		}
	}

	kept := make([]string, 0, len(termFreq))
	for term := range termFreq {
		kept = append(kept, term)
	}
	if opts.MaxFeatures > 0 && len(kept) > opts.MaxFeatures {
		slices.SortFunc(kept, func(a, b string) int {
			if c := cmp.Compare(termFreq[b], termFreq[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		kept = kept[:opts.MaxFeatures]
	}
	slices.Sort(kept)

	n := float64(len(texts))
	v := &Vectorizer{
		Format:     Format,
		MaxNGram:   opts.MaxNGram,
		Vocabulary: make(map[string]int32, len(kept)),
		IDF:        make([]float64, len(kept)),
	}
	for i, term := range kept {
		v.Vocabulary[term] = int32(i)
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return v
}

// Size returns the vocabulary size
func (v *Vectorizer) Size() int {
	return len(v.IDF)
}

// Transform encodes text as an L2-normalized TF-IDF vector.
// Text without known terms yields an empty vector.
func (v *Vectorizer) Transform(text string) vector.Sparse {
	counts := make(map[int32]float64)
	for _, term := range terms(Tokenize(text), v.MaxNGram) {
		if idx, ok := v.Vocabulary[term]; ok {
			counts[idx]++
		}
	}
	for idx, tf := range counts {
		counts[idx] = tf * v.IDF[idx]
	}
	return vector.NewSparse(counts).Normalized()
}

// TransformAll encodes every text in order
func (v *Vectorizer) TransformAll(texts []string) []vector.Sparse {
	out := make([]vector.Sparse, len(texts))
	for i, text := range texts {
		out[i] = v.Transform(text)
	}
	return out
}

// Marshal serializes the fitted state
func (v *Vectorizer) Marshal() ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal restores a vectorizer written by Marshal
func Unmarshal(data []byte) (*Vectorizer, error) {
	var v Vectorizer
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode vectorizer: %w", err)
	}
	if v.Format != Format {
		return nil, fmt.Errorf("unsupported vectorizer format %q", v.Format)
	}
	if len(v.Vocabulary) != len(v.IDF) {
		return nil, fmt.Errorf("%w: %d terms, %d idf values", ErrCorrupt, len(v.Vocabulary), len(v.IDF))
	}
	for term, idx := range v.Vocabulary {
		if idx < 0 || int(idx) >= len(v.IDF) {
			return nil, fmt.Errorf("%w: term %q has index %d", ErrCorrupt, term, idx)
		}
	}
	if v.Vocabulary == nil {
		v.Vocabulary = map[string]int32{}
	}
	if v.MaxNGram <= 0 {
		v.MaxNGram = DefaultMaxNGram
	}
	return &v, nil
}
