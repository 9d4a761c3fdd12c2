// Package parser turns query chain text such as
//
//	orders.Where(o => o.amount > 1000).Select(o => new { o.orderId, o.amount })
//
// into a query operation chain. Column references are checked against the
// schema provider and typed from the declared column types.
package parser

import (
	"fmt"
	"sort"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dsl/lexer"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dsl/token"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/query"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
)

const (
	// MaxParserDepth limits recursion depth to prevent stack overflow
	MaxParserDepth = 100
	// MaxExpressionCount limits number of expressions in lists
	MaxExpressionCount = 1000
)

var operations = map[string]query.OpKind{
	"Where":             query.OpWhere,
	"Select":            query.OpSelect,
	"OrderBy":           query.OpOrderBy,
	"OrderByDescending": query.OpOrderByDescending,
	"ThenBy":            query.OpThenBy,
	"ThenByDescending":  query.OpThenByDescending,
	"GroupBy":           query.OpGroupBy,
	"Take":              query.OpTake,
	"Skip":              query.OpSkip,
	"Join":              query.OpJoin,
	"LeftJoin":          query.OpLeftJoin,
	"GroupJoin":         query.OpGroupJoin,
	"Distinct":          query.OpDistinct,
	"Count":             query.OpCount,
	"LongCount":         query.OpLongCount,
	"Any":               query.OpAny,
	"All":               query.OpAll,
	"First":             query.OpFirst,
	"FirstOrDefault":    query.OpFirstOrDefault,
	"Single":            query.OpSingle,
	"SingleOrDefault":   query.OpSingleOrDefault,
	"Sum":               query.OpSum,
	"Average":           query.OpAverage,
	"Min":               query.OpMin,
	"Max":               query.OpMax,
}

// Parser consumes chain tokens and produces a query operation chain.
type Parser struct {
	tokens   []token.Token
	pos      int
	errors   []error
	provider schema.Provider

	curToken  token.Token
	peekToken token.Token

	depth  int
	scopes []map[string]*expr.Parameter
	shapes map[expr.Node]*shape
}

// New returns a parser over the tokens of l. provider may be nil, in which
// case sources and columns are taken on trust.
func New(l *lexer.Lexer, provider schema.Provider) *Parser {
	p := &Parser{provider: provider, shapes: map[expr.Node]*shape{}, pos: -1}
	for {
		tok := l.NextToken()
		p.tokens = append(p.tokens, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	p.nextToken()
	return p
}

// Parse parses one chain.
func Parse(input string, provider schema.Provider) (*query.Operation, error) {
	p := New(lexer.New(input), provider)
	op := p.ParseChain()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errs[0]
	}
	return op, nil
}

// Errors exposes parsing errors encountered so far.
func (p *Parser) Errors() []error {
	return p.errors
}

func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

func (p *Parser) addError(pos token.Position, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, &SyntaxError{Pos: pos, Msg: msg})
}

func (p *Parser) addCause(pos token.Position, err error) {
	p.errors = append(p.errors, &SyntaxError{Pos: pos, Msg: err.Error(), Err: err})
}

func (p *Parser) nextToken() {
	p.pos++
	p.curToken = p.tokenAt(p.pos)
	p.peekToken = p.tokenAt(p.pos + 1)
}

func (p *Parser) tokenAt(i int) token.Token {
	if i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) curTokenIs(t token.Type) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t token.Type) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t token.Type) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(p.peekToken.Pos, "expected %s, got %s", t, describe(p.peekToken))
	return false
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of input"
	case token.ILLEGAL:
		return fmt.Sprintf("illegal token %q", tok.Literal)
	case token.IDENT, token.NUMBER, token.DECIMAL:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	}
	return string(tok.Type)
}

// ParseChain parses source.Op(...).Op(...) up to the end of input.
func (p *Parser) ParseChain() *query.Operation {
	op, _ := p.parseChain()
	if p.failed() {
		return nil
	}
	for p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
	}
	if !p.peekTokenIs(token.EOF) {
		p.addError(p.peekToken.Pos, "unexpected %s after query", describe(p.peekToken))
		return nil
	}
	return op
}

func (p *Parser) parseChain() (*query.Operation, *shape) {
	if !p.curTokenIs(token.IDENT) {
		p.addError(p.curToken.Pos, "expected source name, got %s", describe(p.curToken))
		return nil, nil
	}
	op, row := p.parseSource()
	for !p.failed() && p.peekTokenIs(token.DOT) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return nil, nil
		}
		name := p.curToken
		kind, ok := operations[name.Literal]
		if !ok {
			p.addError(name.Pos, "unknown operation %s%s", name.Literal, suggestion(name.Literal, operationNames()))
			return nil, nil
		}
		if !p.expectPeek(token.LPAREN) {
			return nil, nil
		}
		op, row = p.parseOperation(op, row, kind)
	}
	return op, row
}

func (p *Parser) parseSource() (*query.Operation, *shape) {
	tok := p.curToken
	op := &query.Operation{Kind: query.OpSource, Name: tok.Literal}
	if p.provider == nil {
		return op, nil
	}
	s, err := p.provider.Lookup(tok.Literal)
	if err != nil {
		p.addCause(tok.Pos, err)
		return nil, nil
	}
	op.Name = s.Name
	op.RecordType = s.RecordType
	return op, shapeOfSchema(s)
}

// parseOperation parses the arguments of one chain call. The current token
// is the opening parenthesis; on return it is the closing one.
func (p *Parser) parseOperation(src *query.Operation, row *shape, kind query.OpKind) (*query.Operation, *shape) {
	op := &query.Operation{Kind: kind, Source: src}
	next := row

	switch kind {
	case query.OpJoin, query.OpLeftJoin, query.OpGroupJoin:
		return p.parseJoin(op, row)
	case query.OpTake, query.OpSkip:
		p.nextToken()
		n := p.parseExpression(lowest)
		if n == nil {
			return nil, nil
		}
		op.Args = []expr.Node{n}
	case query.OpDistinct:
	case query.OpWhere, query.OpSelect, query.OpGroupBy, query.OpAll,
		query.OpOrderBy, query.OpOrderByDescending, query.OpThenBy, query.OpThenByDescending:
		p.nextToken()
		fn := p.parseLambda(row)
		if fn == nil {
			return nil, nil
		}
		op.Args = []expr.Node{fn}
		switch kind {
		case query.OpSelect:
			next = projectedShape(fn, row)
		case query.OpGroupBy:
			next = groupedShape(fn, row)
		}
	default:
		if !p.peekTokenIs(token.RPAREN) {
			p.nextToken()
			fn := p.parseLambda(row)
			if fn == nil {
				return nil, nil
			}
			op.Args = []expr.Node{fn}
		}
	}

	if !p.expectPeek(token.RPAREN) {
		return nil, nil
	}
	return op, next
}

// parseJoin parses (inner, outerKey, innerKey[, result]).
func (p *Parser) parseJoin(op *query.Operation, row *shape) (*query.Operation, *shape) {
	p.nextToken()
	inner, innerRow := p.parseChain()
	if inner == nil {
		return nil, nil
	}
	op.Inner = inner

	if !p.expectPeek(token.COMMA) {
		return nil, nil
	}
	p.nextToken()
	outerKey := p.parseLambda(row)
	if outerKey == nil || !p.expectPeek(token.COMMA) {
		return nil, nil
	}
	p.nextToken()
	innerKey := p.parseLambda(innerRow)
	if innerKey == nil {
		return nil, nil
	}
	op.Args = []expr.Node{outerKey, innerKey}

	next := row
	if p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		result := p.parseLambda(row, innerRow)
		if result == nil {
			return nil, nil
		}
		op.Args = append(op.Args, result)
		next = projectedShape(result, row)
	}
	if !p.expectPeek(token.RPAREN) {
		return nil, nil
	}
	return op, next
}

// parseLambda parses `x => body` or `(x, y) => body`, binding one parameter
// per row shape.
func (p *Parser) parseLambda(rows ...*shape) *expr.Lambda {
	start := p.curToken.Pos
	var names []token.Token
	switch {
	case p.curTokenIs(token.IDENT) && p.peekTokenIs(token.ARROW):
		names = append(names, p.curToken)
	case p.curTokenIs(token.LPAREN) && p.lambdaAhead():
		for !p.peekTokenIs(token.RPAREN) {
			p.nextToken()
			names = append(names, p.curToken)
			if p.peekTokenIs(token.COMMA) {
				p.nextToken()
			}
		}
		p.nextToken()
	default:
		p.addError(start, "expected lambda, got %s", describe(p.curToken))
		return nil
	}
	p.nextToken()

	if len(names) != len(rows) {
		p.addError(start, "lambda takes %d parameter(s), got %d", len(rows), len(names))
		return nil
	}

	scope := map[string]*expr.Parameter{}
	params := make([]*expr.Parameter, len(names))
	for i, name := range names {
		if _, dup := scope[name.Literal]; dup {
			p.addError(name.Pos, "duplicate parameter %s", name.Literal)
			return nil
		}
		param := expr.Param(name.Literal, nil)
		if rows[i] != nil {
			param.Type = rows[i].record
			p.shapes[param] = rows[i]
		}
		scope[name.Literal] = param
		params[i] = param
	}

	p.scopes = append(p.scopes, scope)
	defer func() { p.scopes = p.scopes[:len(p.scopes)-1] }()

	p.nextToken()
	body := p.parseExpression(lowest)
	if body == nil {
		return nil
	}
	return expr.Fn(body, params...)
}

// lambdaAhead reports whether the parenthesis at the current token opens a
// lambda parameter list: `(` [ident {, ident}] `)` `=>`.
func (p *Parser) lambdaAhead() bool {
	i := p.pos + 1
	if p.tokenAt(i).Type == token.RPAREN {
		return p.tokenAt(i+1).Type == token.ARROW
	}
	for {
		if p.tokenAt(i).Type != token.IDENT {
			return false
		}
		i++
		switch p.tokenAt(i).Type {
		case token.COMMA:
			i++
		case token.RPAREN:
			return p.tokenAt(i+1).Type == token.ARROW
		default:
			return false
		}
	}
}

func (p *Parser) lookupParam(name string) *expr.Parameter {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if param, ok := p.scopes[i][name]; ok {
			return param
		}
	}
	return nil
}

func (p *Parser) paramNames() []string {
	var names []string
	for _, scope := range p.scopes {
		for name := range scope {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func suggestion(input string, candidates []string) string {
	if s := schema.SuggestFrom(input, candidates, 3); s != "" {
		return " (" + s + ")"
	}
	return ""
}
