package filter

import (
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Builder assembles a single comparison. It is not safe for concurrent use;
// the Expression it builds is.
type Builder struct {
	field    string
	operator string
	raw      string
	value    *Literal
	hasValue bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Field sets the field path, either "id" or a dotted metadata path.
func (b *Builder) Field(name string) *Builder {
	b.field = name
	return b
}

// Operator sets the comparison operator token.
func (b *Builder) Operator(op string) *Builder {
	b.operator = op
	return b
}

// Value sets the literal in filter syntax, e.g. "'children'", "42", "true".
func (b *Builder) Value(literal string) *Builder {
	b.raw = literal
	b.value = nil
	b.hasValue = true
	return b
}

// ValueOf sets the literal from a Go value. See LiteralOf.
func (b *Builder) ValueOf(v any) *Builder {
	lit, err := LiteralOf(v)
	b.hasValue = true
	if err != nil {
		b.value = nil
		b.raw = ""
		return b
	}
	b.value = &lit
	return b
}

// Build validates the parts and returns the expression. Missing parts,
// invalid fields, unknown operators and unparsable literals are
// configuration errors.
func (b *Builder) Build() (*Expression, error) {
	if b.field == "" {
		return nil, vecerr.Config("filter.field", "field is required")
	}
	if !ValidField(b.field) {
		return nil, vecerr.Config("filter.field", "invalid field %q", b.field)
	}
	if b.operator == "" {
		return nil, vecerr.Config("filter.operator", "operator is required")
	}
	op, err := ParseOperator(b.operator)
	if err != nil {
		return nil, vecerr.Config("filter.operator", "%v", err)
	}
	if !b.hasValue {
		return nil, vecerr.Config("filter.value", "value is required")
	}

	var lit Literal
	switch {
	case b.value != nil:
		lit = *b.value
	case b.raw != "":
		lit, err = ParseLiteral(b.raw)
		if err != nil {
			return nil, vecerr.Config("filter.value", "%v", err)
		}
	default:
		return nil, vecerr.Config("filter.value", "value is empty or unsupported")
	}

	expr, err := Compare(b.field, op, lit)
	if err != nil {
		return nil, vecerr.Config("filter", "%v", err)
	}
	return expr, nil
}
