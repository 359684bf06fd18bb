package qdrant

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/vectorindex/internal/filter"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Payload layout. Metadata is nested under its own key so user fields
// can never collide with the record id.
const (
	payloadIDKey       = "record_id"
	payloadMetadataKey = "metadata"
)

// convertFilter translates an expression into a Qdrant filter evaluated by
// the server before ranking.
//
// Qdrant cannot tell a missing field from an empty array, and it has no
// range conditions for strings; such comparisons are rejected rather than
// silently approximated.
func convertFilter(e *filter.Expression) (*qdrant.Filter, error) {
	if e == nil {
		return nil, nil
	}
	cond, err := convertCondition(e)
	if err != nil {
		return nil, err
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{cond}}, nil
}

func convertCondition(e *filter.Expression) (*qdrant.Condition, error) {
	switch e.Kind() {
	case filter.NodeAnd, filter.NodeOr:
		children := e.Children()
		conds := make([]*qdrant.Condition, 0, len(children))
		for _, c := range children {
			cond, err := convertCondition(c)
			if err != nil {
				return nil, err
			}
			conds = append(conds, cond)
		}
		if e.Kind() == filter.NodeAnd {
			return qdrant.NewFilterAsCondition(&qdrant.Filter{Must: conds}), nil
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: conds}), nil
	case filter.NodeNot:
		inner, err := convertCondition(e.Children()[0])
		if err != nil {
			return nil, err
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{MustNot: []*qdrant.Condition{inner}}), nil
	}
	return convertLeaf(e)
}

func payloadKey(field string) string {
	if field == filter.IDField {
		return payloadIDKey
	}
	return payloadMetadataKey + "." + field
}

func convertLeaf(e *filter.Expression) (*qdrant.Condition, error) {
	key := payloadKey(e.Field())
	lit := e.Value()

	if lit.IsNull() {
		isNull := qdrant.NewFilterAsCondition(&qdrant.Filter{
			Should: []*qdrant.Condition{qdrant.NewIsNull(key), qdrant.NewIsEmpty(key)},
		})
		if e.Operator() == filter.OpEq {
			return isNull, nil
		}
		return not(isNull), nil
	}

	switch e.Operator() {
	case filter.OpEq:
		return equals(key, lit), nil
	case filter.OpNe:
		// A missing field never satisfies a comparison.
		return qdrant.NewFilterAsCondition(&qdrant.Filter{
			MustNot: []*qdrant.Condition{qdrant.NewIsEmpty(key), equals(key, lit)},
		}), nil
	case filter.OpContains:
		if lit.Kind() == filter.LiteralString {
			// MatchText is a substring match on unindexed string fields;
			// the keyword match covers array elements.
			return qdrant.NewFilterAsCondition(&qdrant.Filter{
				Should: []*qdrant.Condition{
					qdrant.NewMatchText(key, lit.Str()),
					qdrant.NewMatchKeyword(key, lit.Str()),
				},
			}), nil
		}
		return equals(key, lit), nil
	case filter.OpLt, filter.OpLe, filter.OpGt, filter.OpGe:
		if lit.Kind() != filter.LiteralNumber {
			return nil, vecerr.Config("filter", "%s %s %s: qdrant only supports numeric ranges",
				e.Field(), e.Operator(), lit)
		}
		n := lit.Num()
		r := &qdrant.Range{}
		switch e.Operator() {
		case filter.OpLt:
			r.Lt = &n
		case filter.OpLe:
			r.Lte = &n
		case filter.OpGt:
			r.Gt = &n
		case filter.OpGe:
			r.Gte = &n
		}
		return qdrant.NewRange(key, r), nil
	}
	return nil, vecerr.Config("filter", "unsupported operator %q", e.Operator())
}

func equals(key string, lit filter.Literal) *qdrant.Condition {
	switch lit.Kind() {
	case filter.LiteralBool:
		return qdrant.NewMatchBool(key, lit.Bool())
	case filter.LiteralNumber:
		n := lit.Num()
		return qdrant.NewRange(key, &qdrant.Range{Gte: &n, Lte: &n})
	}
	return qdrant.NewMatchKeyword(key, lit.Str())
}

func not(c *qdrant.Condition) *qdrant.Condition {
	return qdrant.NewFilterAsCondition(&qdrant.Filter{MustNot: []*qdrant.Condition{c}})
}
