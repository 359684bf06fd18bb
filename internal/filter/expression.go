// Package filter builds predicate expressions over record fields.
//
// A leaf compares one field against a literal:
//
//	expr, err := filter.NewBuilder().
//	    Field("category").
//	    Operator("=").
//	    Value("'children'").
//	    Build()
//
// Leaves compose with And, Or and Not. Expressions are immutable once built.
// The same expression can be pushed down to a store (CompileSQL, or a
// backend translating it through the accessors) or evaluated client-side
// with Match.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq       Operator = "="
	OpNe       Operator = "!="
	OpLt       Operator = "<"
	OpLe       Operator = "<="
	OpGt       Operator = ">"
	OpGe       Operator = ">="
	OpContains Operator = "CONTAINS"
)

// ParseOperator resolves an operator token. "==" is accepted for "=" and
// "<>" for "!=". CONTAINS is case-insensitive.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "=", "==":
		return OpEq, nil
	case "!=", "<>":
		return OpNe, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLe, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGe, nil
	case "CONTAINS":
		return OpContains, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// IDField addresses the record id rather than a metadata property.
const IDField = "id"

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidField reports whether name is a usable field path: dot-separated
// identifiers.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// NodeKind distinguishes leaves from composites.
type NodeKind int

const (
	NodeCompare NodeKind = iota
	NodeAnd
	NodeOr
	NodeNot
)

// Expression is an immutable filter predicate.
type Expression struct {
	kind     NodeKind
	field    string
	op       Operator
	value    Literal
	children []*Expression
}

// Compare builds a leaf without going through the Builder.
func Compare(field string, op Operator, value Literal) (*Expression, error) {
	if !ValidField(field) {
		return nil, fmt.Errorf("invalid field %q", field)
	}
	if _, err := ParseOperator(string(op)); err != nil {
		return nil, err
	}
	if value.IsNull() && op != OpEq && op != OpNe {
		return nil, fmt.Errorf("null only supports = and !=")
	}
	return &Expression{kind: NodeCompare, field: field, op: op, value: value}, nil
}

// And matches when every operand matches. Nil operands are skipped; with a
// single operand that operand is returned.
func And(exprs ...*Expression) *Expression { return group(NodeAnd, exprs) }

// Or matches when any operand matches. Nil operands are skipped.
func Or(exprs ...*Expression) *Expression { return group(NodeOr, exprs) }

// Not negates e. Not(nil) is nil.
func Not(e *Expression) *Expression {
	if e == nil {
		return nil
	}
	return &Expression{kind: NodeNot, children: []*Expression{e}}
}

func group(kind NodeKind, exprs []*Expression) *Expression {
	kept := make([]*Expression, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Expression{kind: kind, children: kept}
}

// Kind returns the node type.
func (e *Expression) Kind() NodeKind { return e.kind }

// Field returns the compared field of a leaf.
func (e *Expression) Field() string { return e.field }

// Operator returns the operator of a leaf.
func (e *Expression) Operator() Operator { return e.op }

// Value returns the literal of a leaf.
func (e *Expression) Value() Literal { return e.value }

// Children returns a copy of the operands of a composite.
func (e *Expression) Children() []*Expression {
	out := make([]*Expression, len(e.children))
	copy(out, e.children)
	return out
}

// String renders e in filter syntax; Parse(e.String()) yields an equivalent
// expression.
func (e *Expression) String() string {
	if e == nil {
		return ""
	}
	switch e.kind {
	case NodeCompare:
		return e.field + " " + string(e.op) + " " + e.value.String()
	case NodeNot:
		return "NOT (" + e.children[0].String() + ")"
	}
	sep := " AND "
	if e.kind == NodeOr {
		sep = " OR "
	}
	parts := make([]string, len(e.children))
	for i, c := range e.children {
		if c.kind == NodeAnd || c.kind == NodeOr {
			parts[i] = "(" + c.String() + ")"
		} else {
			parts[i] = c.String()
		}
	}
	return strings.Join(parts, sep)
}

// Fields returns every field referenced by e, in first-seen order.
func (e *Expression) Fields() []string {
	var out []string
	seen := map[string]bool{}
	var walk func(*Expression)
	walk = func(n *Expression) {
		if n.kind == NodeCompare {
			if !seen[n.field] {
				seen[n.field] = true
				out = append(out, n.field)
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	if e != nil {
		walk(e)
	}
	return out
}
