// Package ksqlerr defines the failure taxonomy shared by every stage of the
// expression-to-KSQL compiler.
package ksqlerr

import (
	"fmt"
	"net/http"
)

// Kind classifies a translation failure.
type Kind string

const (
	UnsupportedExpression   Kind = "unsupported expression"
	UnsupportedOperator     Kind = "unsupported operator"
	UnsupportedMethod       Kind = "unsupported method"
	UnsupportedMemberAccess Kind = "unsupported member access"
	UnsupportedOperation    Kind = "unsupported operation"
	TypeMapping             Kind = "type mapping"
	NonLiteralArgument      Kind = "non-literal argument"
	InvalidQueryShape       Kind = "invalid query shape"
	UnknownSource           Kind = "unknown source"
)

// Sentinels for errors.Is checks. Only the Kind is compared.
var (
	ErrUnsupportedExpression   = &Error{Kind: UnsupportedExpression}
	ErrUnsupportedOperator     = &Error{Kind: UnsupportedOperator}
	ErrUnsupportedMethod       = &Error{Kind: UnsupportedMethod}
	ErrUnsupportedMemberAccess = &Error{Kind: UnsupportedMemberAccess}
	ErrUnsupportedOperation    = &Error{Kind: UnsupportedOperation}
	ErrTypeMapping             = &Error{Kind: TypeMapping}
	ErrNonLiteralArgument      = &Error{Kind: NonLiteralArgument}
	ErrInvalidQueryShape       = &Error{Kind: InvalidQueryShape}
	ErrUnknownSource           = &Error{Kind: UnknownSource}
)

// Error is returned by every compiler stage. Code is the HTTP status an API
// layer should answer with.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Code:    http.StatusBadRequest,
		Message: "translator: " + fmt.Sprintf(format, args...),
	}
}

// Expression reports an AST node kind the translator does not handle.
func Expression(format string, args ...any) *Error {
	return newf(UnsupportedExpression, format, args...)
}

// Operator reports an operator tag missing from the operator table.
func Operator(op string) *Error {
	return newf(UnsupportedOperator, "unsupported operator %s", op)
}

// Method reports a (declaring type, method) pair missing from the method table.
func Method(declaring, method string) *Error {
	return newf(UnsupportedMethod, "unsupported method %s.%s", declaring, method)
}

// MethodArity reports a known method called with an unsupported argument count.
func MethodArity(declaring, method string, n int) *Error {
	return newf(UnsupportedMethod, "unsupported method %s.%s with %d argument(s)", declaring, method, n)
}

// MemberAccess reports a member access shape the translator cannot lower.
func MemberAccess(target, member string) *Error {
	return newf(UnsupportedMemberAccess, "unsupported member access %s on %s", member, target)
}

// Operation reports a query chain operation that has no KSQL equivalent.
func Operation(name string) *Error {
	return newf(UnsupportedOperation, "unsupported operation %s", name)
}

// Mapping reports a runtime type that has no DDL type or literal form.
func Mapping(typeName string) *Error {
	return newf(TypeMapping, "cannot map type %s", typeName)
}

// NonLiteral reports an argument that must be a compile-time constant.
func NonLiteral(operation string) *Error {
	return newf(NonLiteralArgument, "%s requires a constant argument", operation)
}

// Shape reports a structurally invalid query.
func Shape(format string, args ...any) *Error {
	return newf(InvalidQueryShape, format, args...)
}

// Source reports a source name the schema provider does not know.
func Source(name, suggestion string) *Error {
	e := newf(UnknownSource, "unknown source %q", name)
	e.Code = http.StatusNotFound
	if suggestion != "" {
		e.Message += " (" + suggestion + ")"
	}
	return e
}

// Wrap attaches a cause to e and returns it.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	if err != nil {
		e.Message += ": " + err.Error()
	}
	return e
}
