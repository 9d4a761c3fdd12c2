// Package token defines the lexical tokens of the query chain language.
package token

// Type identifies the lexical class of a token.
type Type string

// Position points to a location in the source text (1-based indices).
type Position struct {
	Line   int
	Column int
}

// Token holds the type, literal representation, and source location.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
}

const (
	ILLEGAL Type = "ILLEGAL"
	EOF     Type = "EOF"

	IDENT   Type = "IDENT"
	NUMBER  Type = "NUMBER"
	DECIMAL Type = "DECIMAL"
	STRING  Type = "STRING"

	COMMA     Type = ","
	SEMICOLON Type = ";"
	COLON     Type = ":"
	QUESTION  Type = "?"
	COALESCE  Type = "??"
	LPAREN    Type = "("
	RPAREN    Type = ")"
	LBRACKET  Type = "["
	RBRACKET  Type = "]"
	LBRACE    Type = "{"
	RBRACE    Type = "}"
	DOT       Type = "."
	ARROW     Type = "=>"
	ASSIGN    Type = "="
	STAR      Type = "*"
	PLUS      Type = "+"
	MINUS     Type = "-"
	SLASH     Type = "/"
	PERCENT   Type = "%"
	CARET     Type = "^"
	BANG      Type = "!"
	EQ        Type = "=="
	NEQ       Type = "!="
	LT        Type = "<"
	LTE       Type = "<="
	GT        Type = ">"
	GTE       Type = ">="
	AND       Type = "&&"
	OR        Type = "||"

	// Keywords
	NEW   Type = "new"
	NULL  Type = "null"
	TRUE  Type = "true"
	FALSE Type = "false"
)

var keywords = map[string]Type{
	"new":   NEW,
	"null":  NULL,
	"true":  TRUE,
	"false": FALSE,
}

// Lookup returns the keyword token if the identifier matches a reserved word.
// Keywords are case-sensitive.
func Lookup(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}
