// Package calc evaluates derived-field formulas over a session's value store.
//
// Formulas are restricted arithmetic: numbers, bare identifiers, the binary
// operators + - * /, unary + -, and parentheses. Nothing else parses, so a
// formula can never reach functions, attributes or any ambient name.
package calc

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrSyntax is returned for formulas outside the supported grammar.
var ErrSyntax = eris.New("calc: syntax error")

// ErrDivideByZero is returned when a formula divides by zero.
var ErrDivideByZero = eris.New("calc: division by zero")

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			seenDot := false
			for i < len(src) && (isDigit(src[i]) || (src[i] == '.' && !seenDot)) {
				if src[i] == '.' {
					seenDot = true
				}
				i++
			}
			if i < len(src) && (isIdentStart(src[i]) || src[i] == '.') {
				return nil, eris.Wrapf(ErrSyntax, "malformed number at offset %d", start)
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '+' || c == '-' || c == '/':
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case c == '*':
			if i+1 < len(src) && src[i+1] == '*' {
				return nil, eris.Wrapf(ErrSyntax, "operator ** not allowed at offset %d", i)
			}
			toks = append(toks, token{kind: tokOp, text: "*", pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			return nil, eris.Wrapf(ErrSyntax, "unexpected character %q at offset %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// node is an arithmetic expression tree.
type node interface {
	eval(env map[string]float64) (float64, error)
}

type numberNode struct{ value float64 }

type identNode struct{ name string }

type unaryNode struct {
	op      byte
	operand node
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n numberNode) eval(map[string]float64) (float64, error) {
	return n.value, nil
}

func (n identNode) eval(env map[string]float64) (float64, error) {
	v, ok := env[n.name]
	if !ok {
		return 0, eris.Errorf("calc: name %q is not defined", n.name)
	}
	return v, nil
}

func (n unaryNode) eval(env map[string]float64) (float64, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -v, nil
	}
	return v, nil
}

func (n binaryNode) eval(env map[string]float64) (float64, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		if r == 0 {
			return 0, ErrDivideByZero
		}
		return l / r, nil
	}
	return 0, eris.Errorf("calc: unknown operator %q", n.op)
}

// Expr is a parsed formula.
type Expr struct {
	src   string
	root  node
	names []string
}

// Parse compiles a formula. It rejects every token outside the grammar,
// including call syntax such as "f(x)" and attribute access such as "a.b".
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, seen: make(map[string]bool)}
	if p.peek().kind == tokEOF {
		return nil, eris.Wrap(ErrSyntax, "empty formula")
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, eris.Wrapf(ErrSyntax, "unexpected %q at offset %d", t.text, t.pos)
	}
	return &Expr{src: src, root: root, names: p.names}, nil
}

// String returns the formula source.
func (e *Expr) String() string {
	return e.src
}

// Names returns the identifiers referenced by the formula in order of first
// appearance.
func (e *Expr) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Eval evaluates the formula with only the given bindings visible.
func (e *Expr) Eval(vars map[string]float64) (float64, error) {
	return e.root.eval(vars)
}

type parser struct {
	toks  []token
	pos   int
	names []string
	seen  map[string]bool
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// expr := term (("+" | "-") term)*
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.text[0], left: left, right: right}
	}
}

// term := unary (("*" | "/") unary)*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.text[0], left: left, right: right}
	}
}

// unary := ("+" | "-") unary | primary
func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "+" || t.text == "-") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: t.text[0], operand: operand}, nil
	}
	return p.parsePrimary()
}

// primary := number | ident | "(" expr ")"
func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, eris.Wrapf(ErrSyntax, "invalid number %q", t.text)
		}
		return numberNode{value: v}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return nil, eris.Wrapf(ErrSyntax, "function call %s(...) not allowed", t.text)
		}
		if !p.seen[t.text] {
			p.seen[t.text] = true
			p.names = append(p.names, t.text)
		}
		return identNode{name: t.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, eris.Wrapf(ErrSyntax, "missing ) at offset %d", closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, eris.Wrap(ErrSyntax, "unexpected end of formula")
	default:
		return nil, eris.Wrapf(ErrSyntax, "unexpected %q at offset %d", strings.TrimSpace(t.text), t.pos)
	}
}
