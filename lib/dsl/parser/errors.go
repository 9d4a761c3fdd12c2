package parser

import (
	"fmt"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dsl/token"
)

// SyntaxError describes a parsing failure with source position context.
// Err carries the underlying cause, such as an unknown source.
type SyntaxError struct {
	Pos token.Position
	Msg string
	Err error
}

func (e *SyntaxError) Error() string {
	if e == nil {
		return ""
	}
	if e.Pos.Line > 0 && e.Pos.Column > 0 {
		return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
	}
	return e.Msg
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
