// Package reranker rescores search results by how many query terms their
// text contains. It plugs into vectorindex.Rerank.
package reranker

import (
	"math"

	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// DefaultWeight gives term overlap and the original score equal say.
const DefaultWeight = 0.5

// TermOverlap combines a result's search score with its term overlap:
// weight*overlap + (1-weight)*score. Overlap is the fraction of distinct
// query terms found in the text, in [0, 1].
type TermOverlap struct {
	query  string
	weight float64
}

// NewTermOverlap returns a scorer for query. weight must be in [0, 1].
func NewTermOverlap(query string, weight float64) (*TermOverlap, error) {
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return nil, vecerr.Invalid("rerank_weight", "must be between 0 and 1, got %g", weight)
	}
	return &TermOverlap{query: query, weight: weight}, nil
}

// Overlap returns the share of query terms present in text. A query with
// no usable terms overlaps nothing.
func (r *TermOverlap) Overlap(text string) float64 {
	return similarity.Lexical(text, r.query)
}

// Score blends original with the overlap of text.
func (r *TermOverlap) Score(original float64, text string) float64 {
	return similarity.Hybrid(r.Overlap(text), original, r.weight)
}

// Scorer adapts r to vectorindex.Rerank, reading each result's text with
// text.
func Scorer[T any](r *TermOverlap, text func(T) string) func(vectorindex.Result[T]) float64 {
	return func(res vectorindex.Result[T]) float64 {
		return r.Score(res.Score, text(res.Payload))
	}
}

// MetadataScorer scores decoded JSON payloads by all of their string
// values.
func MetadataScorer(r *TermOverlap) func(vectorindex.Result[map[string]any]) float64 {
	return Scorer(r, func(m map[string]any) string {
		return similarity.MetadataText(m)
	})
}

// Rerank rescores results and keeps the best topK. topK <= 0 keeps all.
func Rerank[T any](r *TermOverlap, results []vectorindex.Result[T], text func(T) string, topK int) []vectorindex.Result[T] {
	out := vectorindex.Rerank(results, Scorer(r, text))
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
