package searcher

import (
	"github.com/dshills/skillindex/internal/corpus"
	"github.com/dshills/skillindex/internal/index"
	"github.com/dshills/skillindex/pkg/types"
)

// fieldEvidence scores the query against each stored field vector of the
// document at pos. Dense field vectors are used when a dense engine produced
// the score, then sparse field vectors, then the field text re-encoded with
// the vectorizer.
func fieldEvidence(snap *index.Snapshot, q *query, pos int) []types.FieldScore {
	var scores []types.FieldScore

	switch {
	case (q.engine == EngineDense || q.engine == EngineHybrid) && q.dense != nil && len(snap.DenseFields) > 0:
		for _, field := range types.Fields {
			if vecs, ok := snap.DenseFields[field]; ok {
				scores = append(scores, types.FieldScore{Field: field, Score: q.dense.Dot(vecs[pos])})
			}
		}

	case q.hasSparse && len(snap.SparseFields) > 0:
		for _, field := range types.Fields {
			if vecs, ok := snap.SparseFields[field]; ok {
				scores = append(scores, types.FieldScore{Field: field, Score: q.sparse.Dot(vecs[pos])})
			}
		}

	case q.hasSparse:
		prepared := corpus.Prepare(snap.Documents[pos])
		for _, field := range types.Fields {
			v := snap.Vectorizer.Transform(prepared.Field(field))
			scores = append(scores, types.FieldScore{Field: field, Score: q.sparse.Dot(v)})
		}
	}
	return scores
}

// fieldBonus is FieldBonusScale times the weighted mean of the field scores
func fieldBonus(scores []types.FieldScore, weights map[string]float64) float64 {
	var sum, total float64
	for _, fs := range scores {
		w := weights[fs.Field]
		sum += fs.Score * w
		total += w
	}
	if total <= 0 {
		return 0
	}
	return FieldBonusScale * sum / total
}

// snippet picks the highest scoring field and the leading text of that raw
// document field. Without evidence the description is shown.
func snippet(doc *types.Document, scores []types.FieldScore) (string, string) {
	if len(scores) == 0 {
		return "", truncate(doc.Description, SnippetLength)
	}

	top := scores[0]
	for _, fs := range scores[1:] {
		if fs.Score > top.Score {
			top = fs
		}
	}
	return top.Field, truncate(doc.Field(top.Field), SnippetLength)
}

// truncate keeps the first n characters of s
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
