package parser

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dsl/token"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
)

const (
	_ int = iota
	lowest
	precedenceTernary
	precedenceCoalesce
	precedenceOr
	precedenceAnd
	precedenceXor
	precedenceEquality
	precedenceComparison
	precedenceSum
	precedenceProduct
	precedencePrefix
	precedenceCall
)

var precedences = map[token.Type]int{
	token.QUESTION: precedenceTernary,
	token.COALESCE: precedenceCoalesce,
	token.OR:       precedenceOr,
	token.AND:      precedenceAnd,
	token.CARET:    precedenceXor,
	token.EQ:       precedenceEquality,
	token.NEQ:      precedenceEquality,
	token.LT:       precedenceComparison,
	token.LTE:      precedenceComparison,
	token.GT:       precedenceComparison,
	token.GTE:      precedenceComparison,
	token.PLUS:     precedenceSum,
	token.MINUS:    precedenceSum,
	token.STAR:     precedenceProduct,
	token.SLASH:    precedenceProduct,
	token.PERCENT:  precedenceProduct,
	token.DOT:      precedenceCall,
	token.LBRACKET: precedenceCall,
}

var binaryOperators = map[token.Type]expr.Operator{
	token.COALESCE: expr.OpCoalesce,
	token.OR:       expr.OpOrElse,
	token.AND:      expr.OpAndAlso,
	token.CARET:    expr.OpExclusiveOr,
	token.EQ:       expr.OpEqual,
	token.NEQ:      expr.OpNotEqual,
	token.LT:       expr.OpLessThan,
	token.LTE:      expr.OpLessThanOrEqual,
	token.GT:       expr.OpGreaterThan,
	token.GTE:      expr.OpGreaterThanOrEqual,
	token.PLUS:     expr.OpAdd,
	token.MINUS:    expr.OpSubtract,
	token.STAR:     expr.OpMultiply,
	token.SLASH:    expr.OpDivide,
	token.PERCENT:  expr.OpModulo,
}

// castTypes are the type names accepted in (T)x casts.
var castTypes = map[string]reflect.Type{
	"short":    reflect.TypeFor[int16](),
	"int":      reflect.TypeFor[int32](),
	"long":     reflect.TypeFor[int64](),
	"float":    reflect.TypeFor[float32](),
	"double":   reflect.TypeFor[float64](),
	"decimal":  reflect.TypeFor[apd.Decimal](),
	"string":   reflect.TypeFor[string](),
	"bool":     reflect.TypeFor[bool](),
	"DateTime": reflect.TypeFor[time.Time](),
}

// convertMethods are the Convert.ToX helpers.
var convertMethods = map[string]reflect.Type{
	"ToInt16":    reflect.TypeFor[int16](),
	"ToInt32":    reflect.TypeFor[int32](),
	"ToInt64":    reflect.TypeFor[int64](),
	"ToSingle":   reflect.TypeFor[float32](),
	"ToDouble":   reflect.TypeFor[float64](),
	"ToDecimal":  reflect.TypeFor[apd.Decimal](),
	"ToString":   reflect.TypeFor[string](),
	"ToBoolean":  reflect.TypeFor[bool](),
	"ToDateTime": reflect.TypeFor[time.Time](),
}

// staticClasses maps class names usable in static calls to their method
// table section. Convert, DateTime and Guid are handled separately.
var staticClasses = map[string]expr.DeclaringType{
	"Math":       expr.DeclMath,
	"string":     expr.DeclString,
	"String":     expr.DeclString,
	"Enumerable": expr.DeclEnumerable,
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var timeType = reflect.TypeFor[time.Time]()

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return lowest
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return lowest
}

func (p *Parser) parseExpression(precedence int) expr.Node {
	if p.failed() {
		return nil
	}
	p.depth++
	if p.depth > MaxParserDepth {
		p.addError(p.curToken.Pos, "expression nesting too deep")
		p.depth--
		return nil
	}
	defer func() { p.depth-- }()

	var left expr.Node

	switch p.curToken.Type {
	case token.IDENT:
		left = p.parseIdentifier()
	case token.NUMBER:
		left = p.parseNumber()
	case token.DECIMAL:
		d, _, err := apd.NewFromString(p.curToken.Literal)
		if err != nil {
			p.addError(p.curToken.Pos, "invalid decimal %s: %v", p.curToken.Literal, err)
			return nil
		}
		left = expr.Const(d)
	case token.STRING:
		left = expr.Const(p.curToken.Literal)
	case token.TRUE:
		left = expr.Const(true)
	case token.FALSE:
		left = expr.Const(false)
	case token.NULL:
		left = expr.Null()
	case token.MINUS:
		p.nextToken()
		left = p.prefix(expr.OpNegate)
	case token.BANG:
		p.nextToken()
		left = p.prefix(expr.OpNot)
	case token.LPAREN:
		left = p.parseParenthesized()
	case token.NEW:
		left = p.parseNew()
	case token.LBRACKET:
		if elems := p.parseList(token.RBRACKET); elems != nil {
			left = expr.Array(elems...)
		}
	default:
		p.addError(p.curToken.Pos, "unexpected %s", describe(p.curToken))
		return nil
	}
	if left == nil {
		return nil
	}

	for !p.failed() && !terminatesExpression(p.peekToken.Type) {
		prec := p.peekPrecedence()
		if precedence >= prec {
			break
		}

		p.nextToken()
		left = p.parseInfixExpression(left)
		if left == nil {
			return nil
		}
	}

	return left
}

func terminatesExpression(t token.Type) bool {
	switch t {
	case token.SEMICOLON, token.COMMA, token.RPAREN, token.RBRACE, token.RBRACKET, token.COLON, token.EOF:
		return true
	default:
		return false
	}
}

func (p *Parser) prefix(op expr.Operator) expr.Node {
	operand := p.parseExpression(precedencePrefix)
	if operand == nil {
		return nil
	}
	return &expr.Unary{Op: op, Operand: operand}
}

func (p *Parser) parseInfixExpression(left expr.Node) expr.Node {
	switch p.curToken.Type {
	case token.QUESTION:
		p.nextToken()
		ifTrue := p.parseExpression(lowest)
		if ifTrue == nil || !p.expectPeek(token.COLON) {
			return nil
		}
		p.nextToken()
		ifFalse := p.parseExpression(precedenceTernary - 1)
		if ifFalse == nil {
			return nil
		}
		return expr.Cond(left, ifTrue, ifFalse)
	case token.DOT:
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		name := p.curToken
		if p.peekTokenIs(token.LPAREN) {
			return p.parseMethodCall(left, name)
		}
		return p.parseMember(left, name)
	case token.LBRACKET:
		p.addError(p.curToken.Pos, "indexers are not supported")
		return nil
	}

	op, ok := binaryOperators[p.curToken.Type]
	if !ok {
		p.addError(p.curToken.Pos, "unexpected %s", describe(p.curToken))
		return nil
	}
	precedence := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	return expr.Bin(op, left, right)
}

// parseIdentifier resolves a lambda parameter, a static call or an inline
// lambda.
func (p *Parser) parseIdentifier() expr.Node {
	tok := p.curToken
	if p.peekTokenIs(token.ARROW) {
		return p.inlineLambda()
	}
	if param := p.lookupParam(tok.Literal); param != nil {
		return param
	}
	if p.peekTokenIs(token.DOT) {
		switch tok.Literal {
		case "Convert", "DateTime", "Guid":
			return p.parseStaticCall(tok)
		}
		if _, ok := staticClasses[tok.Literal]; ok {
			return p.parseStaticCall(tok)
		}
	}
	p.addError(tok.Pos, "unknown identifier %s%s", tok.Literal, suggestion(tok.Literal, p.paramNames()))
	return nil
}

// inlineLambda parses a lambda nested in an expression, whose parameter
// shape is unknown.
func (p *Parser) inlineLambda() expr.Node {
	if fn := p.parseLambda(nil); fn != nil {
		return fn
	}
	return nil
}

func (p *Parser) parseNumber() expr.Node {
	tok := p.curToken
	lit := tok.Literal
	switch suffix := lit[len(lit)-1]; suffix {
	case 'L', 'l':
		n, err := strconv.ParseInt(lit[:len(lit)-1], 10, 64)
		if err != nil {
			p.addError(tok.Pos, "invalid long %s", lit)
			return nil
		}
		return expr.Const(n)
	case 'D', 'd', 'F', 'f':
		lit = lit[:len(lit)-1]
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			p.addError(tok.Pos, "invalid number %s", tok.Literal)
			return nil
		}
		return expr.Const(f)
	}
	if strings.Contains(lit, ".") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			p.addError(tok.Pos, "invalid number %s", lit)
			return nil
		}
		return expr.Const(f)
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		p.addError(tok.Pos, "invalid integer %s", lit)
		return nil
	}
	if n == int64(int32(n)) {
		return expr.Const(int(n))
	}
	return expr.Const(n)
}

// parseParenthesized handles grouping, (T)x casts and parenthesized lambda
// parameter lists.
func (p *Parser) parseParenthesized() expr.Node {
	if p.lambdaAhead() {
		return p.inlineLambda()
	}
	if t, ok := p.castAhead(); ok {
		p.nextToken()
		p.nextToken()
		p.nextToken()
		operand := p.parseExpression(precedencePrefix)
		if operand == nil {
			return nil
		}
		return expr.ConvertTo(t, operand)
	}
	p.nextToken()
	inner := p.parseExpression(lowest)
	if inner == nil || !p.expectPeek(token.RPAREN) {
		return nil
	}
	return inner
}

// castAhead reports whether the current parenthesis starts a (T)x cast.
func (p *Parser) castAhead() (reflect.Type, bool) {
	name := p.tokenAt(p.pos + 1)
	if name.Type != token.IDENT || p.tokenAt(p.pos+2).Type != token.RPAREN {
		return nil, false
	}
	t, ok := castTypes[name.Literal]
	if !ok {
		return nil, false
	}
	switch p.tokenAt(p.pos + 3).Type {
	case token.IDENT, token.NUMBER, token.DECIMAL, token.STRING, token.LPAREN, token.NEW,
		token.TRUE, token.FALSE, token.NULL, token.MINUS, token.BANG:
		return t, true
	}
	return nil, false
}

// parseNew handles `new { a, b = x }` and `new[] { ... }` / `new T[] { ... }`.
func (p *Parser) parseNew() expr.Node {
	switch {
	case p.peekTokenIs(token.LBRACE):
		p.nextToken()
		return p.parseAnonymous()
	case p.peekTokenIs(token.IDENT):
		p.nextToken()
		if !p.peekTokenIs(token.LBRACKET) {
			p.addError(p.curToken.Pos, "only anonymous records and arrays can be constructed")
			return nil
		}
	}
	if !p.expectPeek(token.LBRACKET) || !p.expectPeek(token.RBRACKET) || !p.expectPeek(token.LBRACE) {
		return nil
	}
	elems := p.parseList(token.RBRACE)
	if elems == nil {
		return nil
	}
	return expr.Array(elems...)
}

// parseAnonymous parses the member list of an anonymous record. The current
// token is the opening brace.
func (p *Parser) parseAnonymous() expr.Node {
	var fields []expr.Field
	seen := map[string]bool{}
	for !p.peekTokenIs(token.RBRACE) {
		p.nextToken()
		start := p.curToken
		var field expr.Field
		if start.Type == token.IDENT && p.peekTokenIs(token.ASSIGN) {
			p.nextToken()
			p.nextToken()
			field.Name = start.Literal
		}
		field.Value = p.parseExpression(lowest)
		if field.Value == nil {
			return nil
		}
		if field.Name == "" {
			m, ok := field.Value.(*expr.MemberAccess)
			if !ok {
				p.addError(start.Pos, "anonymous record member needs a name: name = expression")
				return nil
			}
			field.Name = m.Member
		}
		if seen[strings.ToLower(field.Name)] {
			p.addError(start.Pos, "duplicate member %s", field.Name)
			return nil
		}
		seen[strings.ToLower(field.Name)] = true
		fields = append(fields, field)
		if len(fields) > MaxExpressionCount {
			p.addError(start.Pos, "too many members")
			return nil
		}
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(token.RBRACE) {
		return nil
	}
	if len(fields) == 0 {
		p.addError(p.curToken.Pos, "anonymous record has no members")
		return nil
	}
	return expr.Anonymous(fields...)
}

// parseList parses comma-separated expressions up to closing. The current
// token is the opening delimiter. An empty list yields a non-nil slice.
func (p *Parser) parseList(closing token.Type) []expr.Node {
	elems := []expr.Node{}
	if p.peekTokenIs(closing) {
		p.nextToken()
		return elems
	}
	for {
		p.nextToken()
		n := p.parseExpression(lowest)
		if n == nil {
			return nil
		}
		elems = append(elems, n)
		if len(elems) > MaxExpressionCount {
			p.addError(p.curToken.Pos, "too many list elements")
			return nil
		}
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(closing) {
		return nil
	}
	return elems
}

// parseArgs parses call arguments. The current token is the opening
// parenthesis. Lambda arguments range over row.
func (p *Parser) parseArgs(row *shape) []expr.Node {
	args := []expr.Node{}
	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return args
	}
	for {
		p.nextToken()
		var n expr.Node
		if (p.curTokenIs(token.IDENT) && p.peekTokenIs(token.ARROW)) || (p.curTokenIs(token.LPAREN) && p.lambdaAhead()) {
			if fn := p.parseLambda(row); fn != nil {
				n = fn
			}
		} else {
			n = p.parseExpression(lowest)
		}
		if n == nil {
			return nil
		}
		args = append(args, n)
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return args
}

func (p *Parser) parseMember(target expr.Node, name token.Token) expr.Node {
	s := p.shapes[target]
	if s == nil {
		return expr.Member(target, name.Literal)
	}
	if s.grouped {
		if name.Literal != "Key" {
			p.addError(name.Pos, "groupings only expose Key, got %s", name.Literal)
			return nil
		}
		key := &expr.MemberAccess{Target: target, Member: "Key", Type: s.keyType}
		if s.key != nil {
			p.shapes[key] = s.key
		}
		return key
	}
	member, t, ok := s.member(name.Literal)
	if !ok {
		p.addError(name.Pos, "unknown column %s on %s%s", name.Literal, s.name, suggestion(name.Literal, s.members))
		return nil
	}
	return &expr.MemberAccess{Target: target, Member: member, Type: t}
}

// parseMethodCall parses receiver.Name(args). The method table section
// follows from the receiver: groupings and collections are enumerable,
// timestamps are DateTime, everything else is treated as text.
func (p *Parser) parseMethodCall(receiver expr.Node, name token.Token) expr.Node {
	p.nextToken()
	var row *shape
	decl := expr.DeclString
	if s := p.shapes[receiver]; s != nil && s.grouped {
		decl, row = expr.DeclEnumerable, s.elem
	} else if _, ok := receiver.(*expr.ArrayLiteral); ok {
		decl = expr.DeclEnumerable
	} else if t := expr.StaticType(receiver); t != nil {
		switch {
		case t == timeType:
			decl = expr.DeclDateTime
		case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8, t.Kind() == reflect.Array:
			decl = expr.DeclEnumerable
		}
	}
	args := p.parseArgs(row)
	if args == nil {
		return nil
	}
	return expr.Method(decl, name.Literal, receiver, args...)
}

// parseStaticCall parses Class.Method(args). The current token is the class.
func (p *Parser) parseStaticCall(class token.Token) expr.Node {
	p.nextToken()
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	method := p.curToken
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	args := p.parseArgs(nil)
	if args == nil {
		return nil
	}

	switch class.Literal {
	case "Convert":
		t, ok := convertMethods[method.Literal]
		if !ok {
			p.addError(method.Pos, "unsupported conversion Convert.%s", method.Literal)
			return nil
		}
		if len(args) != 1 {
			p.addError(method.Pos, "Convert.%s takes one argument", method.Literal)
			return nil
		}
		return expr.ConvertTo(t, args[0])
	case "DateTime", "Guid":
		return p.parseValue(class, method, args)
	}
	return expr.Static(staticClasses[class.Literal], method.Literal, args...)
}

// parseValue folds DateTime.Parse and Guid.Parse over string constants.
func (p *Parser) parseValue(class, method token.Token, args []expr.Node) expr.Node {
	if method.Literal != "Parse" {
		p.addError(method.Pos, "unsupported method %s.%s", class.Literal, method.Literal)
		return nil
	}
	var text string
	if len(args) == 1 {
		if c, ok := args[0].(*expr.Constant); ok {
			text, _ = c.Value.(string)
		}
	}
	if text == "" {
		p.addError(method.Pos, "%s.Parse takes one string literal", class.Literal)
		return nil
	}
	if class.Literal == "Guid" {
		id, err := uuid.Parse(text)
		if err != nil {
			p.addError(method.Pos, "invalid guid %q: %v", text, err)
			return nil
		}
		return expr.Const(id)
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return expr.Const(ts)
		}
	}
	p.addError(method.Pos, "invalid date %q", text)
	return nil
}
