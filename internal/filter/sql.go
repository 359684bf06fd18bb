package filter

import (
	"fmt"
	"strings"
)

// Columns names the SQL columns a compiled filter reads. Both names must
// already be quoted for the target dialect.
type Columns struct {
	ID       string
	Metadata string
}

// CompileSQL translates e into a SQLite boolean expression with positional
// parameters. Metadata fields are read with json_extract and guarded by
// json_type, so a compiled filter selects exactly the rows Match accepts.
// A nil expression compiles to "1".
func CompileSQL(e *Expression, cols Columns) (string, []any, error) {
	if e == nil {
		return "1", nil, nil
	}
	var b strings.Builder
	var args []any
	if err := compileNode(&b, &args, e, cols); err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func compileNode(b *strings.Builder, args *[]any, e *Expression, cols Columns) error {
	switch e.kind {
	case NodeAnd, NodeOr:
		sep := " AND "
		if e.kind == NodeOr {
			sep = " OR "
		}
		b.WriteByte('(')
		for i, c := range e.children {
			if i > 0 {
				b.WriteString(sep)
			}
			if err := compileNode(b, args, c, cols); err != nil {
				return err
			}
		}
		b.WriteByte(')')
		return nil
	case NodeNot:
		b.WriteString("(NOT ")
		if err := compileNode(b, args, e.children[0], cols); err != nil {
			return err
		}
		b.WriteByte(')')
		return nil
	}
	if !ValidField(e.field) {
		return fmt.Errorf("invalid field %q", e.field)
	}
	if e.field == IDField {
		compileID(b, args, e, cols.ID)
		return nil
	}
	compileMetadata(b, args, e, cols.Metadata)
	return nil
}

func compileID(b *strings.Builder, args *[]any, e *Expression, col string) {
	lit := e.value
	switch {
	case lit.IsNull():
		if e.op == OpEq {
			b.WriteString("0")
		} else {
			b.WriteString("1")
		}
	case lit.kind != LiteralString:
		b.WriteString("0")
	case e.op == OpContains:
		fmt.Fprintf(b, "(instr(%s, ?) > 0)", col)
		*args = append(*args, lit.str)
	default:
		fmt.Fprintf(b, "(%s %s ?)", col, e.op)
		*args = append(*args, lit.str)
	}
}

func compileMetadata(b *strings.Builder, args *[]any, e *Expression, col string) {
	path := "'$." + e.field + "'"
	extract := "json_extract(" + col + ", " + path + ")"
	jtype := "json_type(" + col + ", " + path + ")"
	lit := e.value

	if lit.IsNull() {
		isNull := "(" + jtype + " IS NULL OR " + jtype + " = 'null')"
		if e.op == OpEq {
			b.WriteString(isNull)
		} else {
			b.WriteString("(NOT " + isNull + ")")
		}
		return
	}

	guard := typeGuard(lit.kind)
	if e.op == OpContains {
		b.WriteString("COALESCE(CASE " + jtype)
		if lit.kind == LiteralString {
			b.WriteString(" WHEN 'text' THEN instr(" + extract + ", ?) > 0")
			*args = append(*args, lit.str)
		}
		fmt.Fprintf(b, " WHEN 'array' THEN EXISTS (SELECT 1 FROM json_each(%s, %s) WHERE type %s AND value = ?)", col, path, guard)
		*args = append(*args, lit.Value())
		b.WriteString(" ELSE 0 END, 0)")
		return
	}

	fmt.Fprintf(b, "COALESCE((%s %s AND %s %s ?), 0)", jtype, guard, extract, e.op)
	*args = append(*args, lit.Value())
}

func typeGuard(k LiteralKind) string {
	switch k {
	case LiteralString:
		return "= 'text'"
	case LiteralNumber:
		return "IN ('integer', 'real')"
	case LiteralBool:
		return "IN ('true', 'false')"
	}
	return "= 'null'"
}
