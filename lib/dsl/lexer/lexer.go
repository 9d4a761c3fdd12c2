// Package lexer splits query chain text into tokens.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dsl/token"
)

// Lexer converts raw query text into a stream of tokens.
type Lexer struct {
	input        string
	position     int
	readPosition int
	ch           rune
	line         int
	column       int
}

// New creates a new Lexer instance.
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readRune()
	return l
}

// NextToken advances and returns the next token from the input.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()
	l.skipComments()
	l.skipWhitespace()

	startPos := token.Position{Line: l.line, Column: l.column}
	tok := token.Token{Type: token.ILLEGAL, Literal: string(l.ch), Pos: startPos}

	switch l.ch {
	case 0:
		tok.Type = token.EOF
		tok.Literal = ""
	case ',':
		tok = l.makeSimple(token.COMMA, startPos)
	case ';':
		tok = l.makeSimple(token.SEMICOLON, startPos)
	case ':':
		tok = l.makeSimple(token.COLON, startPos)
	case '(':
		tok = l.makeSimple(token.LPAREN, startPos)
	case ')':
		tok = l.makeSimple(token.RPAREN, startPos)
	case '[':
		tok = l.makeSimple(token.LBRACKET, startPos)
	case ']':
		tok = l.makeSimple(token.RBRACKET, startPos)
	case '{':
		tok = l.makeSimple(token.LBRACE, startPos)
	case '}':
		tok = l.makeSimple(token.RBRACE, startPos)
	case '.':
		tok = l.makeSimple(token.DOT, startPos)
	case '*':
		tok = l.makeSimple(token.STAR, startPos)
	case '+':
		tok = l.makeSimple(token.PLUS, startPos)
	case '-':
		tok = l.makeSimple(token.MINUS, startPos)
	case '/':
		tok = l.makeSimple(token.SLASH, startPos)
	case '%':
		tok = l.makeSimple(token.PERCENT, startPos)
	case '^':
		tok = l.makeSimple(token.CARET, startPos)
	case '?':
		tok = l.makeTwo('?', token.COALESCE, token.QUESTION, startPos)
	case '!':
		tok = l.makeTwo('=', token.NEQ, token.BANG, startPos)
	case '<':
		tok = l.makeTwo('=', token.LTE, token.LT, startPos)
	case '>':
		tok = l.makeTwo('=', token.GTE, token.GT, startPos)
	case '=':
		switch l.peekRune() {
		case '=':
			l.readRune()
			tok = token.Token{Type: token.EQ, Literal: "==", Pos: startPos}
		case '>':
			l.readRune()
			tok = token.Token{Type: token.ARROW, Literal: "=>", Pos: startPos}
		default:
			tok = l.makeSimple(token.ASSIGN, startPos)
		}
	case '&':
		if l.peekRune() == '&' {
			l.readRune()
			tok = token.Token{Type: token.AND, Literal: "&&", Pos: startPos}
		}
	case '|':
		if l.peekRune() == '|' {
			l.readRune()
			tok = token.Token{Type: token.OR, Literal: "||", Pos: startPos}
		}
	case '\'', '"':
		literal, ok := l.readString(l.ch)
		if !ok {
			return token.Token{Type: token.ILLEGAL, Literal: "unterminated string", Pos: startPos}
		}
		return token.Token{Type: token.STRING, Literal: literal, Pos: startPos}
	default:
		if isIdentStart(l.ch) {
			ident := l.readIdentifier()
			return token.Token{Type: token.Lookup(ident), Literal: ident, Pos: startPos}
		}
		if unicode.IsDigit(l.ch) {
			return l.readNumber(startPos)
		}
	}

	l.readRune()
	return tok
}

func (l *Lexer) makeSimple(t token.Type, pos token.Position) token.Token {
	return token.Token{Type: t, Literal: string(l.ch), Pos: pos}
}

// makeTwo returns double when the next rune is second, single otherwise.
func (l *Lexer) makeTwo(second rune, double, single token.Type, pos token.Position) token.Token {
	if l.peekRune() == second {
		first := l.ch
		l.readRune()
		return token.Token{Type: double, Literal: string([]rune{first, second}), Pos: pos}
	}
	return l.makeSimple(single, pos)
}

func (l *Lexer) readRune() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.position = l.readPosition
	l.readPosition += size
	l.ch = r
	if r == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

func (l *Lexer) peekRune() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) skipWhitespace() {
	for unicode.IsSpace(l.ch) {
		l.readRune()
	}
}

func (l *Lexer) skipComments() {
	if l.ch == '/' && l.peekRune() == '/' {
		l.consumeLine()
		l.skipWhitespace()
		l.skipComments()
	}
	if l.ch == '/' && l.peekRune() == '*' {
		l.readRune()
		l.readRune()
		l.consumeBlockComment()
		l.skipWhitespace()
		l.skipComments()
	}
}

func (l *Lexer) consumeLine() {
	for l.ch != '\n' && l.ch != 0 {
		l.readRune()
	}
	if l.ch == '\n' {
		l.readRune()
	}
}

func (l *Lexer) consumeBlockComment() {
	for {
		if l.ch == 0 {
			return
		}
		if l.ch == '*' && l.peekRune() == '/' {
			l.readRune()
			l.readRune()
			return
		}
		l.readRune()
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.position
	for isIdentPart(l.ch) {
		l.readRune()
	}
	return l.input[start:l.position]
}

// readNumber reads digits with an optional fraction. A trailing m or M
// marks a decimal literal; L, D and F suffixes stay in the literal.
func (l *Lexer) readNumber(pos token.Position) token.Token {
	start := l.position
	for unicode.IsDigit(l.ch) {
		l.readRune()
	}
	if l.ch == '.' && isDigit(l.peekRune()) {
		l.readRune()
		for unicode.IsDigit(l.ch) {
			l.readRune()
		}
	}
	literal := l.input[start:l.position]
	switch l.ch {
	case 'm', 'M':
		l.readRune()
		return token.Token{Type: token.DECIMAL, Literal: literal, Pos: pos}
	case 'L', 'l', 'D', 'd', 'F', 'f':
		literal += string(l.ch)
		l.readRune()
	}
	return token.Token{Type: token.NUMBER, Literal: literal, Pos: pos}
}

// readString reads a quoted string. The quote is escaped by doubling it or
// with a backslash; \n, \t and \\ are also understood.
func (l *Lexer) readString(quote rune) (string, bool) {
	var builder strings.Builder
	for {
		l.readRune()
		switch l.ch {
		case quote:
			if l.peekRune() == quote {
				builder.WriteRune(quote)
				l.readRune()
				continue
			}
			l.readRune()
			return builder.String(), true
		case '\\':
			l.readRune()
			switch l.ch {
			case 'n':
				builder.WriteRune('\n')
			case 't':
				builder.WriteRune('\t')
			case 0:
				return builder.String(), false
			default:
				builder.WriteRune(l.ch)
			}
		case 0:
			return builder.String(), false
		default:
			builder.WriteRune(l.ch)
		}
	}
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
