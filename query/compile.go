package query

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned by Compile for queries outside of the supported dialect.
var ErrUnsupported = errors.New("unsupported query")

type aggFunc int

const (
	noAgg aggFunc = iota
	countAgg
	sumAgg
	minAgg
	maxAgg
	avgAgg
)

var aggFuncs = map[string]aggFunc{
	"COUNT": countAgg,
	"SUM":   sumAgg,
	"MIN":   minAgg,
	"MAX":   maxAgg,
	"AVG":   avgAgg,
}

// scalar is an expression evaluated against a single document.
type scalar struct {
	literal *Number
	path    []string
	length  bool
}

type filter struct {
	path  []string
	value interface{}
}

// Plan is a compiled query. It is immutable and safe for concurrent use.
type Plan struct {
	text   string
	star   bool
	agg    aggFunc
	expr   scalar
	filter *filter
}

// Compile parses a query of the form
//
//	SELECT * | VALUE <expr> FROM <alias> [WHERE <path> = <literal>]
//
// where <expr> is a scalar or one of COUNT, SUM, MIN, MAX and AVG applied to a scalar.
// A scalar is a number, a document path such as c.a.b, or LENGTH(<path>).
func Compile(q string) (*Plan, error) {
	toks, err := tokenize(q)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	plan, err := p.parse()
	if err != nil {
		return nil, errors.Wrapf(err, "compile %q", q)
	}
	plan.text = q
	return plan, nil
}

// IsAggregate reports whether the query folds all documents into a single value.
func (p *Plan) IsAggregate() bool {
	return p.agg != noAgg
}

func (p *Plan) String() string {
	return p.text
}

type tokenKind int

const (
	identToken tokenKind = iota
	numberToken
	stringToken
	punctToken
)

type token struct {
	kind tokenKind
	text string
}

func (t token) is(keyword string) bool {
	return t.kind == identToken && strings.EqualFold(t.text, keyword)
}

func tokenize(q string) (toks []token, err error) {
	rs := []rune(q)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			toks = append(toks, token{identToken, string(rs[start:i])})

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			i++
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			toks = append(toks, token{numberToken, string(rs[start:i])})

		case r == '\'' || r == '"':
			end := i + 1
			for end < len(rs) && rs[end] != r {
				end++
			}
			if end >= len(rs) {
				return nil, errors.Wrap(ErrUnsupported, "unterminated string literal")
			}
			toks = append(toks, token{stringToken, string(rs[i+1 : end])})
			i = end + 1

		case strings.ContainsRune("().=*", r):
			toks = append(toks, token{punctToken, string(r)})
			i++

		default:
			return nil, errors.Wrapf(ErrUnsupported, "unexpected character %q", r)
		}
	}
	return toks, nil
}

type parser struct {
	toks  []token
	pos   int
	alias string
}

func (p *parser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: punctToken}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expectKeyword(kw string) error {
	if t := p.next(); !t.is(kw) {
		return errors.Wrapf(ErrUnsupported, "expected %s, got %q", kw, t.text)
	}
	return nil
}

func (p *parser) expectPunct(s string) error {
	if t := p.next(); t.kind != punctToken || t.text != s {
		return errors.Wrapf(ErrUnsupported, "expected %q, got %q", s, t.text)
	}
	return nil
}

func (p *parser) parse() (*Plan, error) {
	plan := new(Plan)
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}

	// the projection refers to the alias declared later in FROM,
	// so remember where it starts and come back after reading FROM.
	projStart := p.pos
	for p.pos < len(p.toks) && !p.peek().is("FROM") {
		p.pos++
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	alias := p.next()
	if alias.kind != identToken {
		return nil, errors.Wrapf(ErrUnsupported, "expected collection alias, got %q", alias.text)
	}
	p.alias = alias.text
	tail := p.pos

	p.pos = projStart
	if err := p.parseProjection(plan); err != nil {
		return nil, err
	}
	if !p.peek().is("FROM") {
		return nil, errors.Wrapf(ErrUnsupported, "unexpected %q in projection", p.peek().text)
	}

	p.pos = tail
	if p.peek().is("WHERE") {
		p.next()
		f, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		plan.filter = f
	}
	if p.pos < len(p.toks) {
		return nil, errors.Wrapf(ErrUnsupported, "unexpected %q", p.peek().text)
	}
	return plan, nil
}

func (p *parser) parseProjection(plan *Plan) error {
	if t := p.peek(); t.kind == punctToken && t.text == "*" {
		p.next()
		plan.star = true
		return nil
	}
	if err := p.expectKeyword("VALUE"); err != nil {
		return err
	}
	if t := p.peek(); t.kind == identToken {
		if agg, ok := aggFuncs[strings.ToUpper(t.text)]; ok {
			p.next()
			if err := p.expectPunct("("); err != nil {
				return err
			}
			expr, err := p.parseScalar()
			if err != nil {
				return err
			}
			plan.agg, plan.expr = agg, expr
			return p.expectPunct(")")
		}
	}
	expr, err := p.parseScalar()
	if err != nil {
		return err
	}
	plan.expr = expr
	return nil
}

func (p *parser) parseScalar() (scalar, error) {
	t := p.peek()
	switch {
	case t.kind == numberToken:
		p.next()
		n, ok := ParseNumber([]byte(t.text))
		if !ok {
			return scalar{}, errors.Wrapf(ErrUnsupported, "invalid number %q", t.text)
		}
		return scalar{literal: &n}, nil

	case t.is("LENGTH"):
		p.next()
		if err := p.expectPunct("("); err != nil {
			return scalar{}, err
		}
		path, err := p.parsePath()
		if err != nil {
			return scalar{}, err
		}
		return scalar{path: path, length: true}, p.expectPunct(")")

	case t.kind == identToken:
		path, err := p.parsePath()
		return scalar{path: path}, err
	}
	return scalar{}, errors.Wrapf(ErrUnsupported, "unexpected %q in expression", t.text)
}

func (p *parser) parsePath() ([]string, error) {
	root := p.next()
	if !strings.EqualFold(root.text, p.alias) || root.kind != identToken {
		return nil, errors.Wrapf(ErrUnsupported, "path must start with alias %s, got %q", p.alias, root.text)
	}
	var path []string
	for t := p.peek(); t.kind == punctToken && t.text == "."; t = p.peek() {
		p.next()
		field := p.next()
		if field.kind != identToken {
			return nil, errors.Wrapf(ErrUnsupported, "expected field name, got %q", field.text)
		}
		path = append(path, field.text)
	}
	return path, nil
}

func (p *parser) parseFilter() (*filter, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	f := &filter{path: path}
	switch lit := p.next(); {
	case lit.kind == numberToken:
		n, ok := ParseNumber([]byte(lit.text))
		if !ok {
			return nil, errors.Wrapf(ErrUnsupported, "invalid number %q", lit.text)
		}
		f.value = n
	case lit.kind == stringToken:
		f.value = lit.text
	case lit.is("true"), lit.is("false"):
		f.value = strings.EqualFold(lit.text, "true")
	case lit.is("null"):
		f.value = nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "expected literal, got %q", lit.text)
	}
	return f, nil
}
