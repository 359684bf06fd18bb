package filter

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Parse reads an expression in filter syntax:
//
//	category = 'children' AND (year >= 2000 OR NOT (tags CONTAINS 'old'))
//
// AND binds tighter than OR. Keywords are case-insensitive. An empty input
// yields a nil expression and no error.
func Parse(input string) (*Expression, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, vecerr.Config("filter", "%v", err)
	}
	if len(toks) == 0 {
		return nil, nil
	}
	p := &parser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, vecerr.Config("filter", "%v", err)
	}
	if !p.done() {
		return nil, vecerr.Config("filter", "unexpected %q", p.peek().text)
	}
	return e, nil
}

type tokType int

const (
	tokWord tokType = iota
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	typ  tokType
	text string
}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			j := i + 1
			for ; j < len(s); j++ {
				if s[j] == c {
					if j+1 < len(s) && s[j+1] == c {
						j++
						continue
					}
					break
				}
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated string literal at offset %d", i)
			}
			toks = append(toks, token{tokString, s[i : j+1]})
			i = j + 1
		case strings.ContainsRune("=!<>", rune(c)):
			j := i + 1
			for j < len(s) && strings.ContainsRune("=!<>", rune(s[j])) {
				j++
			}
			toks = append(toks, token{tokOp, s[i:j]})
			i = j
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t\r\n()'\"=!<>", rune(s[j])) {
				j++
			}
			toks = append(toks, token{tokWord, s[i:j]})
			i = j
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.done() {
		return token{typ: -1}
	}
	return p.toks[p.pos]
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.typ == tokWord && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) or() (*Expression, error) {
	first, err := p.and()
	if err != nil {
		return nil, err
	}
	operands := []*Expression{first}
	for p.keyword("OR") {
		next, err := p.and()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	return Or(operands...), nil
}

func (p *parser) and() (*Expression, error) {
	first, err := p.unary()
	if err != nil {
		return nil, err
	}
	operands := []*Expression{first}
	for p.keyword("AND") {
		next, err := p.unary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	return And(operands...), nil
}

func (p *parser) unary() (*Expression, error) {
	if p.keyword("NOT") {
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		return Not(e), nil
	}
	if p.peek().typ == tokLParen {
		p.pos++
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.peek().typ != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return e, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (*Expression, error) {
	if p.done() {
		return nil, fmt.Errorf("unexpected end of filter")
	}
	field := p.peek()
	if field.typ != tokWord {
		return nil, fmt.Errorf("expected field, got %q", field.text)
	}
	p.pos++

	opTok := p.peek()
	var op Operator
	switch {
	case opTok.typ == tokOp:
		parsed, err := ParseOperator(opTok.text)
		if err != nil {
			return nil, err
		}
		op = parsed
	case opTok.typ == tokWord && strings.EqualFold(opTok.text, "CONTAINS"):
		op = OpContains
	default:
		return nil, fmt.Errorf("expected operator after %q", field.text)
	}
	p.pos++

	valTok := p.peek()
	if valTok.typ != tokWord && valTok.typ != tokString {
		return nil, fmt.Errorf("expected value after %s %s", field.text, op)
	}
	p.pos++
	lit, err := ParseLiteral(valTok.text)
	if err != nil {
		return nil, err
	}
	return Compare(field.text, op, lit)
}
