package vectorindex

import (
	"fmt"
	"math"
	"strings"

	"github.com/fyrsmithlabs/vectorindex/internal/filter"
	"github.com/fyrsmithlabs/vectorindex/internal/indexconfig"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// SearchType selects how a query trades recall for speed.
type SearchType string

const (
	// SearchSimilarity lets the backend choose: index-accelerated when the
	// index type is approximate, a full scan otherwise.
	SearchSimilarity SearchType = ""
	// SearchExact scans every candidate with exact distances.
	SearchExact SearchType = "exact"
	// SearchApproximate uses the index structure, e.g. an HNSW traversal.
	SearchApproximate SearchType = "approximate"
)

// UnmarshalText accepts "exact", "approximate", "similarity" or "".
func (t *SearchType) UnmarshalText(text []byte) error {
	switch s := strings.ToLower(strings.TrimSpace(string(text))); s {
	case "", "similarity":
		*t = SearchSimilarity
	case string(SearchExact), string(SearchApproximate):
		*t = SearchType(s)
	default:
		return vecerr.Invalid("search_type", "unknown search type %q", s)
	}
	return nil
}

// Recognised SearchParams.Params keys.
const (
	// ParamEfSearch overrides the HNSW query-time candidate list size.
	ParamEfSearch = "ef_search"
	// ParamHybridWeight overrides the lexical share of hybrid scores.
	ParamHybridWeight = "hybrid_weight"
)

// SearchParams controls a single search call. The zero value searches
// with the backend default strategy and no filters.
type SearchParams struct {
	// PreFilter restricts candidates before ranking. It is evaluated by the
	// store, so the top n are chosen among matching rows only.
	PreFilter *filter.Expression `json:"-"`

	// PostFilter is applied to the already ranked top n. A search can
	// return fewer than n results even when more rows match the filter;
	// use PreFilter when that matters.
	PostFilter *filter.Expression `json:"-"`

	// Params holds per-call overrides: "ef_search" (positive integer) and
	// "hybrid_weight" (number in [0, 1]). Other keys are rejected.
	Params map[string]any `json:"params,omitempty"`

	// Limit caps n when positive. Zero means no cap; negative is invalid.
	Limit int `json:"limit"`

	SearchType SearchType `json:"search_type"`
}

// plan is a validated search request.
type plan struct {
	limit     int
	mode      store.SearchMode
	indexType indexconfig.IndexType
	weight    float64
}

func (p SearchParams) plan(n int, cfg indexconfig.Config) (plan, error) {
	if n < 0 {
		return plan{}, vecerr.Invalid("n", "must not be negative, got %d", n)
	}
	if p.Limit < 0 {
		return plan{}, vecerr.Invalid("limit", "must not be negative, got %d", p.Limit)
	}
	out := plan{
		limit:     n,
		indexType: cfg.EffectiveIndexType(),
		weight:    cfg.HybridWeight,
	}
	if p.Limit > 0 && p.Limit < n {
		out.limit = p.Limit
	}

	switch p.SearchType {
	case SearchExact:
		out.mode = store.ModeExact
	case SearchApproximate, SearchSimilarity:
		out.mode = store.ModeApproximate
	default:
		return plan{}, vecerr.Invalid("search_type", "unknown search type %q", p.SearchType)
	}

	for key, raw := range p.Params {
		switch key {
		case ParamEfSearch:
			ef, ok := toInt(raw)
			if !ok || ef <= 0 {
				return plan{}, vecerr.Invalid("params.ef_search", "must be a positive integer, got %v", raw)
			}
			if out.indexType.Kind == indexconfig.KindHNSW {
				hp := out.indexType.HNSWParams()
				hp.EfSearch = ef
				out.indexType.HNSW = &hp
			}
		case ParamHybridWeight:
			w, ok := toFloat(raw)
			if !ok || w < 0 || w > 1 || math.IsNaN(w) {
				return plan{}, vecerr.Invalid("params.hybrid_weight", "must be a number in [0, 1], got %v", raw)
			}
			out.weight = w
		default:
			return plan{}, vecerr.Invalid("params", "unknown parameter %q", key)
		}
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// String renders the params for logs.
func (p SearchParams) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "limit=%d type=%s", p.Limit, p.SearchType)
	if p.PreFilter != nil {
		fmt.Fprintf(&b, " pre=%s", p.PreFilter)
	}
	if p.PostFilter != nil {
		fmt.Fprintf(&b, " post=%s", p.PostFilter)
	}
	return b.String()
}
