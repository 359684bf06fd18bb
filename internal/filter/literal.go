package filter

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// LiteralKind is the type of a literal value.
type LiteralKind int

const (
	LiteralNull LiteralKind = iota
	LiteralString
	LiteralNumber
	LiteralBool
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralString:
		return "string"
	case LiteralNumber:
		return "number"
	case LiteralBool:
		return "bool"
	}
	return "null"
}

var numberPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Literal is a parsed filter value.
type Literal struct {
	kind LiteralKind
	str  string
	num  float64
	b    bool
}

// String returns a string literal.
func String(s string) Literal { return Literal{kind: LiteralString, str: s} }

// Number returns a numeric literal.
func Number(f float64) Literal { return Literal{kind: LiteralNumber, num: f} }

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{kind: LiteralBool, b: b} }

// Null returns the null literal.
func Null() Literal { return Literal{} }

// ParseLiteral parses a literal in filter syntax: a single- or double-quoted
// string (the quote character doubled inside escapes itself), a decimal
// number, true, false or null. Bare words are rejected.
func ParseLiteral(raw string) (Literal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Literal{}, fmt.Errorf("empty literal")
	}
	switch q := s[0]; q {
	case '\'', '"':
		str, rest, err := readQuoted(s)
		if err != nil {
			return Literal{}, err
		}
		if rest != "" {
			return Literal{}, fmt.Errorf("unexpected text after string literal: %q", rest)
		}
		return String(str), nil
	}
	switch strings.ToLower(s) {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "null", "none":
		return Null(), nil
	}
	if numberPattern.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return Literal{}, fmt.Errorf("number out of range: %q", s)
		}
		return Number(f), nil
	}
	return Literal{}, fmt.Errorf("unparsable literal %q: strings must be quoted", s)
}

// LiteralOf converts a Go value into a literal. Supported: nil, string,
// bool, and all integer and float types.
func LiteralOf(v any) (Literal, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Literal:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case float32:
		return checkFinite(float64(x))
	case float64:
		return checkFinite(x)
	}
	return Literal{}, fmt.Errorf("unsupported literal type %T", v)
}

func checkFinite(f float64) (Literal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Literal{}, fmt.Errorf("non-finite number %v", f)
	}
	return Number(f), nil
}

// readQuoted consumes a quoted string at the start of s and returns its
// unescaped contents and the remaining input.
func readQuoted(s string) (string, string, error) {
	q := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != q {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			b.WriteByte(q)
			i++
			continue
		}
		return b.String(), strings.TrimSpace(s[i+1:]), nil
	}
	return "", "", fmt.Errorf("unterminated string literal %s", s)
}

// Kind returns the literal type.
func (l Literal) Kind() LiteralKind { return l.kind }

// Str returns the string value of a string literal.
func (l Literal) Str() string { return l.str }

// Num returns the value of a numeric literal.
func (l Literal) Num() float64 { return l.num }

// Bool returns the value of a boolean literal.
func (l Literal) Bool() bool { return l.b }

// IsNull reports whether l is the null literal.
func (l Literal) IsNull() bool { return l.kind == LiteralNull }

// Value returns the literal as a plain Go value: string, float64, bool or nil.
func (l Literal) Value() any {
	switch l.kind {
	case LiteralString:
		return l.str
	case LiteralNumber:
		return l.num
	case LiteralBool:
		return l.b
	}
	return nil
}

// String renders l in canonical filter syntax. Strings use single quotes.
func (l Literal) String() string {
	switch l.kind {
	case LiteralString:
		return "'" + strings.ReplaceAll(l.str, "'", "''") + "'"
	case LiteralNumber:
		return strconv.FormatFloat(l.num, 'g', -1, 64)
	case LiteralBool:
		return strconv.FormatBool(l.b)
	}
	return "null"
}
