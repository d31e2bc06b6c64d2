package searcher

import (
	"strings"
)

// Adaptive blend bounds. Short queries lean on lexical evidence, long ones
// on semantic evidence.
const (
	AlphaShortQuery = 0.55
	AlphaLongQuery  = 0.75
	shortQueryLen   = 2
	longQueryLen    = 5
)

// Alpha returns the adaptive blend factor for a query: AlphaShortQuery up to
// two tokens, AlphaLongQuery from five, linear in between.
func Alpha(query string) float64 {
	n := len(strings.Fields(query))
	switch {
	case n <= shortQueryLen:
		return AlphaShortQuery
	case n >= longQueryLen:
		return AlphaLongQuery
	}
	step := (AlphaLongQuery - AlphaShortQuery) / float64(longQueryLen-shortQueryLen)
	return AlphaShortQuery + float64(n-shortQueryLen)*step
}

// EffectiveWeight averages the caller's dense share with the adaptive factor
func EffectiveWeight(hybridWeight float64, query string) float64 {
	return (hybridWeight + Alpha(query)) / 2
}

// minMax rescales values to [0,1]. All-equal input maps to all zeros.
func minMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// candidateCount is how many hits to pull per engine before filtering
func candidateCount(k, factor, n int) int {
	return min(n, max(k, k*factor))
}
