package vectorindex

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/vectorindex/internal/filter"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Result is one search hit with its decoded payload.
type Result[T any] struct {
	Score   float64 `json:"score"`
	ID      string  `json:"id"`
	Payload T       `json:"payload"`
}

// IDResult is one search hit without payload.
type IDResult struct {
	Score float64 `json:"score"`
	ID    string  `json:"id"`
}

// TopN returns the n records of table most similar to query, decoding
// each record's metadata into T. Any payload that does not decode fails
// the whole call.
func TopN[T any](ctx context.Context, ix *Index, query string, n int, table string, params SearchParams) ([]Result[T], error) {
	var out []Result[T]
	err := ix.run(ctx, OpTopN, table, func(ctx context.Context) error {
		hits, err := ix.search(ctx, OpTopN, query, n, table, params, false, true)
		if err != nil {
			return err
		}
		out, err = decodeHits[T](hits)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TopNIDs is TopN without payload decoding. For the same arguments it
// returns the same ids in the same order.
func (ix *Index) TopNIDs(ctx context.Context, query string, n int, table string, params SearchParams) ([]IDResult, error) {
	var out []IDResult
	err := ix.run(ctx, OpTopNIDs, table, func(ctx context.Context) error {
		hits, err := ix.search(ctx, OpTopNIDs, query, n, table, params, false, false)
		if err != nil {
			return err
		}
		out = make([]IDResult, len(hits))
		for i, h := range hits {
			out[i] = IDResult{Score: h.Score, ID: h.ID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HybridSearch ranks records by a blend of lexical and vector similarity.
// Only records whose metadata text shares at least one token with query
// qualify. The score is w*lexical + (1-w)*vector where w is the configured
// hybrid weight, or the "hybrid_weight" param when given. An empty query
// or table is a validation error; n == 0 returns an empty result.
func HybridSearch[T any](ctx context.Context, ix *Index, query string, n int, table string, params SearchParams) ([]Result[T], error) {
	var out []Result[T]
	err := ix.run(ctx, OpHybridSearch, table, func(ctx context.Context) error {
		hits, err := ix.search(ctx, OpHybridSearch, query, n, table, params, true, true)
		if err != nil {
			return err
		}
		out, err = decodeHits[T](hits)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rerank rescores results with score and returns them in descending score
// order. Equal scores keep their input order. results is not modified.
func Rerank[T any](results []Result[T], score func(Result[T]) float64) []Result[T] {
	out := make([]Result[T], len(results))
	for i, r := range results {
		r.Score = score(r)
		out[i] = r
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a > b
	})
	return out
}

// search runs the shared query path: validate, embed, query with the
// pre-filter, post-filter and order.
func (ix *Index) search(ctx context.Context, op Operation, text string, n int, table string, params SearchParams, hybrid, withMetadata bool) ([]store.Hit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, vecerr.Invalid("query", "must not be empty")
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}
	pl, err := params.plan(n, ix.cfg)
	if err != nil {
		return nil, err
	}
	if pl.limit == 0 {
		return []store.Hit{}, nil
	}

	vec, err := ix.embed(ctx, op, text)
	if err != nil {
		return nil, err
	}

	q := store.Query{
		Table:        table,
		Field:        ix.cfg.EmbeddingProperty,
		Vector:       vec,
		Metric:       ix.cfg.SimilarityFunction,
		Mode:         pl.mode,
		IndexType:    pl.indexType,
		Filter:       params.PreFilter,
		Limit:        pl.limit,
		WithMetadata: withMetadata || params.PostFilter != nil,
	}
	if hybrid {
		q.LexicalQuery = text
		q.LexicalWeight = pl.weight
	}

	var hits []store.Hit
	err = ix.retry(ctx, op, func(ctx context.Context) error {
		return ix.withConn(ctx, func(c store.Conn) error {
			var err error
			hits, err = c.Search(ctx, q)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if params.PostFilter != nil {
		if hits, err = postFilter(hits, params.PostFilter); err != nil {
			return nil, err
		}
	}
	sortHits(hits)
	if len(hits) > pl.limit {
		hits = hits[:pl.limit]
	}
	if !withMetadata {
		for i := range hits {
			hits[i].Metadata = nil
		}
	}
	if hits == nil {
		hits = []store.Hit{}
	}
	return hits, nil
}

// postFilter keeps the hits whose metadata matches expr.
func postFilter(hits []store.Hit, expr *filter.Expression) ([]store.Hit, error) {
	kept := hits[:0]
	for _, h := range hits {
		meta, err := decodeMetadata(h)
		if err != nil {
			return nil, err
		}
		if expr.Match(h.ID, meta) {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

func decodeMetadata(h store.Hit) (map[string]any, error) {
	if len(h.Metadata) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(h.Metadata, &meta); err != nil {
		return nil, &vecerr.SerializationError{ID: h.ID, Err: err}
	}
	return meta, nil
}

// sortHits orders hits by score descending, then id ascending.
func sortHits(hits []store.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

func decodeHits[T any](hits []store.Hit) ([]Result[T], error) {
	out := make([]Result[T], len(hits))
	for i, h := range hits {
		out[i] = Result[T]{Score: h.Score, ID: h.ID}
		if len(h.Metadata) == 0 {
			continue
		}
		if err := json.Unmarshal(h.Metadata, &out[i].Payload); err != nil {
			return nil, &vecerr.SerializationError{ID: h.ID, Err: err}
		}
	}
	return out, nil
}
