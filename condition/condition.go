// Package condition evaluates board-position predicates such as
// "row >= 5 && col < 3". The grammar is closed: integer literals, the
// variables row, col and column, comparisons, negation, and/or and
// parentheses.
//
//	expr    = and { ("||" | "or") and }
//	and     = unary { ("&&" | "and") unary }
//	unary   = ("!" | "not") unary | "(" expr ")" | cmp
//	cmp     = operand op operand
//	operand = ["-"] int | ident
package condition

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/zucenko/ustcchess/model"
)

var ErrSyntax = errors.New("condition: syntax error")

// Expr is a parsed condition.
type Expr interface {
	Eval(p model.Position) bool
}

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkInt
	tkIdent
	tkOp
	tkLParen
	tkRParen
)

type token struct {
	kind tokenKind
	text string
}

// Parse compiles src.
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tkEOF {
		return nil, fmt.Errorf("%w: unexpected %q", ErrSyntax, p.peek().text)
	}
	return e, nil
}

// Check parses src and evaluates it at p. Malformed conditions are false.
func Check(src string, p model.Position) bool {
	e, err := Parse(src)
	if err != nil {
		return false
	}
	return e.Eval(p)
}

func lex(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && src[j] >= '0' && src[j] <= '9' {
				j++
			}
			toks = append(toks, token{tkInt, src[i:j]})
			i = j
		case c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z'):
			j := i
			for j < len(src) && (src[j] == '_' || (src[j]|0x20 >= 'a' && src[j]|0x20 <= 'z') || (src[j] >= '0' && src[j] <= '9')) {
				j++
			}
			word := src[i:j]
			switch word {
			case "and":
				toks = append(toks, token{tkOp, "&&"})
			case "or":
				toks = append(toks, token{tkOp, "||"})
			case "not":
				toks = append(toks, token{tkOp, "!"})
			default:
				toks = append(toks, token{tkIdent, word})
			}
			i = j
		case c == '(':
			toks = append(toks, token{tkLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tkRParen, ")"})
			i++
		default:
			op := matchOp(src[i:])
			if op == "" {
				return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
			}
			toks = append(toks, token{tkOp, normalizeOp(op)})
			i += len(op)
		}
	}
	return append(toks, token{kind: tkEOF}), nil
}

var operators = []string{"===", "!==", "==", "!=", "<=", ">=", "&&", "||", "<", ">", "!", "-"}

func matchOp(s string) string {
	for _, op := range operators {
		if len(s) >= len(op) && s[:len(op)] == op {
			return op
		}
	}
	return ""
}

func normalizeOp(op string) string {
	switch op {
	case "===":
		return "=="
	case "!==":
		return "!="
	}
	return op
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *parser) or() (Expr, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tkOp && p.peek().text == "||" {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = orExpr{left, right}
	}
	return left, nil
}

func (p *parser) and() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tkOp && p.peek().text == "&&" {
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = andExpr{left, right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	t := p.peek()
	switch {
	case t.kind == tkOp && t.text == "!":
		p.next()
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notExpr{e}, nil
	case t.kind == tkLParen:
		p.next()
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tkRParen {
			return nil, fmt.Errorf("%w: missing )", ErrSyntax)
		}
		return e, nil
	}
	return p.cmp()
}

func (p *parser) cmp() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	op := p.next()
	switch op.text {
	case "==", "!=", "<", "<=", ">", ">=":
	default:
		return nil, fmt.Errorf("%w: expected comparison, got %q", ErrSyntax, op.text)
	}
	if op.kind != tkOp {
		return nil, fmt.Errorf("%w: expected comparison, got %q", ErrSyntax, op.text)
	}
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return cmpExpr{op: op.text, left: left, right: right}, nil
}

func (p *parser) operand() (operand, error) {
	t := p.next()
	neg := false
	if t.kind == tkOp && t.text == "-" {
		neg = true
		t = p.next()
		if t.kind != tkInt {
			return nil, fmt.Errorf("%w: expected number after -", ErrSyntax)
		}
	}
	switch t.kind {
	case tkInt:
		n, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		if neg {
			n = -n
		}
		return literal(n), nil
	case tkIdent:
		switch t.text {
		case "row":
			return rowVar{}, nil
		case "col", "column":
			return colVar{}, nil
		}
		return nil, fmt.Errorf("%w: unknown variable %q", ErrSyntax, t.text)
	}
	return nil, fmt.Errorf("%w: expected operand, got %q", ErrSyntax, t.text)
}

type operand interface {
	value(p model.Position) int
}

type literal int

func (l literal) value(model.Position) int { return int(l) }

type rowVar struct{}

func (rowVar) value(p model.Position) int { return p.Row() }

type colVar struct{}

func (colVar) value(p model.Position) int { return p.Col() }

type cmpExpr struct {
	op          string
	left, right operand
}

func (c cmpExpr) Eval(p model.Position) bool {
	a, b := c.left.value(p), c.right.value(p)
	switch c.op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

type andExpr struct{ left, right Expr }

func (e andExpr) Eval(p model.Position) bool { return e.left.Eval(p) && e.right.Eval(p) }

type orExpr struct{ left, right Expr }

func (e orExpr) Eval(p model.Position) bool { return e.left.Eval(p) || e.right.Eval(p) }

type notExpr struct{ e Expr }

func (e notExpr) Eval(p model.Position) bool { return !e.e.Eval(p) }
