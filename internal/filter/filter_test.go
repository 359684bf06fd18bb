package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

func TestBuilderRoundTrip(t *testing.T) {
	tests := []struct {
		field, op, value string
		want             string
	}{
		{"category", "=", "'children'", "category = 'children'"},
		{"category", "==", `"children"`, "category = 'children'"},
		{"year", ">=", "2000", "year >= 2000"},
		{"rating", "<", "4.5", "rating < 4.5"},
		{"active", "!=", "false", "active != false"},
		{"owner", "<>", "null", "owner != null"},
		{"tags", "contains", "'kids'", "tags CONTAINS 'kids'"},
		{"meta.author", "=", "'O''Brien'", "meta.author = 'O''Brien'"},
		{"id", "=", "'doc-1'", "id = 'doc-1'"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			expr, err := NewBuilder().Field(tt.field).Operator(tt.op).Value(tt.value).Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.String())
			assert.Equal(t, tt.field, expr.Field())

			reparsed, err := Parse(expr.String())
			require.NoError(t, err)
			assert.Equal(t, expr.String(), reparsed.String())
		})
	}
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build *Builder
		field string
	}{
		{"missing field", NewBuilder().Operator("=").Value("1"), "filter.field"},
		{"bad field", NewBuilder().Field("a-b").Operator("=").Value("1"), "filter.field"},
		{"missing operator", NewBuilder().Field("a").Value("1"), "filter.operator"},
		{"unknown operator", NewBuilder().Field("a").Operator("LIKE").Value("1"), "filter.operator"},
		{"missing value", NewBuilder().Field("a").Operator("="), "filter.value"},
		{"bareword", NewBuilder().Field("a").Operator("=").Value("children"), "filter.value"},
		{"unterminated", NewBuilder().Field("a").Operator("=").Value("'children"), "filter.value"},
		{"trailing", NewBuilder().Field("a").Operator("=").Value("'a' OR 1=1"), "filter.value"},
		{"unsupported go value", NewBuilder().Field("a").Operator("=").ValueOf(struct{}{}), "filter.value"},
		{"null ordering", NewBuilder().Field("a").Operator("<").Value("null"), "filter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build.Build()
			require.Error(t, err)
			assert.ErrorIs(t, err, vecerr.ErrConfiguration)
			var fe *vecerr.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestBuilderValueOf(t *testing.T) {
	expr, err := NewBuilder().Field("n").Operator(">").ValueOf(3).Build()
	require.NoError(t, err)
	assert.Equal(t, "n > 3", expr.String())

	expr, err = NewBuilder().Field("s").Operator("=").ValueOf("it's").Build()
	require.NoError(t, err)
	assert.Equal(t, "s = 'it''s'", expr.String())
}

func TestParseLiteral(t *testing.T) {
	lit, err := ParseLiteral("'a''b'")
	require.NoError(t, err)
	assert.Equal(t, "a'b", lit.Str())

	lit, err = ParseLiteral(`"x"`)
	require.NoError(t, err)
	assert.Equal(t, LiteralString, lit.Kind())

	lit, err = ParseLiteral("-1.5e3")
	require.NoError(t, err)
	assert.Equal(t, -1500.0, lit.Num())

	lit, err = ParseLiteral("TRUE")
	require.NoError(t, err)
	assert.True(t, lit.Bool())

	lit, err = ParseLiteral("null")
	require.NoError(t, err)
	assert.True(t, lit.IsNull())

	for _, bad := range []string{"", "abc", "NaN", "inf", "0x10", "'open", "1e999"} {
		_, err := ParseLiteral(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseComposite(t *testing.T) {
	expr, err := Parse("category = 'children' AND (year >= 2000 OR NOT (tags CONTAINS 'old'))")
	require.NoError(t, err)
	assert.Equal(t, NodeAnd, expr.Kind())
	assert.Equal(t, "category = 'children' AND (year >= 2000 OR NOT (tags CONTAINS 'old'))", expr.String())
	assert.Equal(t, []string{"category", "year", "tags"}, expr.Fields())

	expr, err = Parse("a = 1 OR b = 2 AND c = 3")
	require.NoError(t, err)
	assert.Equal(t, NodeOr, expr.Kind())
	assert.Len(t, expr.Children(), 2)

	expr, err = Parse("  ")
	require.NoError(t, err)
	assert.Nil(t, expr)

	for _, bad := range []string{"a =", "a = 1 AND", "(a = 1", "a 1", "= 1", "a = 1 b", "a = 'x"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, vecerr.ErrConfiguration, bad)
	}
}

func TestComposeSkipsNil(t *testing.T) {
	a, _ := Parse("a = 1")
	assert.Nil(t, And())
	assert.Same(t, a, And(nil, a))
	assert.Nil(t, Not(nil))
	assert.Equal(t, "NOT (a = 1)", Not(a).String())
}

func TestMatch(t *testing.T) {
	meta := map[string]any{
		"category": "children",
		"year":     float64(2005),
		"active":   true,
		"tags":     []any{"kids", "animals"},
		"author":   map[string]any{"name": "Ann"},
		"owner":    nil,
	}
	tests := []struct {
		filter string
		want   bool
	}{
		{"category = 'children'", true},
		{"category = 'adult'", false},
		{"category != 'adult'", true},
		{"year > 2000", true},
		{"year <= 2000", false},
		{"year = 2005", true},
		{"year = '2005'", false},
		{"active = true", true},
		{"tags CONTAINS 'kids'", true},
		{"tags CONTAINS 'cars'", false},
		{"category CONTAINS 'child'", true},
		{"author.name = 'Ann'", true},
		{"author.missing = 'Ann'", false},
		{"owner = null", true},
		{"missing = null", true},
		{"category != null", true},
		{"missing != 'x'", false},
		{"NOT (missing = 'x')", true},
		{"id = 'r1'", true},
		{"id CONTAINS 'r'", true},
		{"category = 'children' AND year < 2000", false},
		{"category = 'children' OR year < 2000", true},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			expr, err := Parse(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Match("r1", meta))
		})
	}

	var nilExpr *Expression
	assert.True(t, nilExpr.Match("x", nil))
}

func TestCompileSQL(t *testing.T) {
	cols := Columns{ID: `"id"`, Metadata: `"metadata"`}

	sql, args, err := CompileSQL(nil, cols)
	require.NoError(t, err)
	assert.Equal(t, "1", sql)
	assert.Empty(t, args)

	expr, _ := Parse("category = 'children'")
	sql, args, err = CompileSQL(expr, cols)
	require.NoError(t, err)
	assert.Equal(t, `COALESCE((json_type("metadata", '$.category') = 'text' AND json_extract("metadata", '$.category') = ?), 0)`, sql)
	assert.Equal(t, []any{"children"}, args)

	expr, _ = Parse("id != 'a' AND NOT (year >= 2000)")
	sql, args, err = CompileSQL(expr, cols)
	require.NoError(t, err)
	assert.Equal(t, `(("id" != ?) AND (NOT COALESCE((json_type("metadata", '$.year') IN ('integer', 'real') AND json_extract("metadata", '$.year') >= ?), 0)))`, sql)
	assert.Equal(t, []any{"a", 2000.0}, args)

	expr, _ = Parse("tags CONTAINS 'kids'")
	sql, args, err = CompileSQL(expr, cols)
	require.NoError(t, err)
	assert.Contains(t, sql, "json_each")
	assert.Contains(t, sql, "instr(")
	assert.Equal(t, []any{"kids", "kids"}, args)

	expr, _ = Parse("owner = null")
	sql, args, err = CompileSQL(expr, cols)
	require.NoError(t, err)
	assert.Contains(t, sql, "IS NULL")
	assert.Empty(t, args)
}
