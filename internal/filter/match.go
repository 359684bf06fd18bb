package filter

import (
	"encoding/json"
	"strings"
)

// Match evaluates e against a record held client-side. A nil expression
// matches everything. Missing fields compare equal only to null; ordering
// comparisons between different types are false.
func (e *Expression) Match(id string, metadata map[string]any) bool {
	if e == nil {
		return true
	}
	switch e.kind {
	case NodeAnd:
		for _, c := range e.children {
			if !c.Match(id, metadata) {
				return false
			}
		}
		return true
	case NodeOr:
		for _, c := range e.children {
			if c.Match(id, metadata) {
				return true
			}
		}
		return false
	case NodeNot:
		return !e.children[0].Match(id, metadata)
	}

	var v any
	found := true
	if e.field == IDField {
		v = id
	} else {
		v, found = lookup(metadata, e.field)
	}
	return compare(v, found, e.op, e.value)
}

func lookup(metadata map[string]any, path string) (any, bool) {
	var cur any = metadata
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compare(v any, found bool, op Operator, lit Literal) bool {
	if lit.IsNull() {
		isNull := !found || v == nil
		if op == OpEq {
			return isNull
		}
		return !isNull
	}
	if !found || v == nil {
		return false
	}

	if op == OpContains {
		switch x := v.(type) {
		case string:
			return lit.kind == LiteralString && strings.Contains(x, lit.str)
		case []any:
			for _, el := range x {
				if c, ok := cmp(normalize(el), lit); ok && c == 0 {
					return true
				}
			}
		}
		return false
	}

	c, ok := cmp(normalize(v), lit)
	if !ok {
		return false
	}
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

// normalize maps decoded JSON and native Go values onto string, float64
// and bool.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	}
	return v
}

// cmp orders v against lit. ok is false when the types differ.
func cmp(v any, lit Literal) (int, bool) {
	switch x := v.(type) {
	case string:
		if lit.kind != LiteralString {
			return 0, false
		}
		return strings.Compare(x, lit.str), true
	case float64:
		if lit.kind != LiteralNumber {
			return 0, false
		}
		switch {
		case x < lit.num:
			return -1, true
		case x > lit.num:
			return 1, true
		}
		return 0, true
	case bool:
		if lit.kind != LiteralBool {
			return 0, false
		}
		switch {
		case x == lit.b:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}
