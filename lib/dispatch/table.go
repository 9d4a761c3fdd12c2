// Package dispatch holds the static operator and method tables consulted by
// the expression translator.
package dispatch

import (
	"reflect"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
)

// Arg is one already-translated call argument. The receiver of an instance
// call is always the first Arg.
type Arg struct {
	Text string
	Type reflect.Type

	// Literal is set when the argument is a compile-time constant; Value then
	// holds it.
	Literal bool
	Value   any

	// IsList is set when the argument is a literal collection; List holds the
	// rendered elements in source order.
	IsList bool
	List   []string
}

// RenderFunc renders a call from its translated arguments.
type RenderFunc func(args []Arg) (string, error)

// Method is one entry of the method table. MaxArgs < 0 means variadic.
type Method struct {
	MinArgs int
	MaxArgs int
	Result  func(args []Arg) reflect.Type
	Render  RenderFunc
}

// Key identifies a method by declaring type and name.
type Key struct {
	Declaring expr.DeclaringType
	Name      string
}

// Table is immutable after NewTable returns and safe for concurrent use.
type Table struct {
	operators     map[expr.Operator]string
	textOperators map[expr.Operator]func(l, r string) string
	methods       map[Key]Method
}

// NewTable builds the operator and method catalog.
func NewTable() *Table {
	t := &Table{
		operators:     operatorSymbols(),
		textOperators: textOperatorRenderers(),
		methods:       map[Key]Method{},
	}
	registerStringMethods(t.methods)
	registerDateTimeMethods(t.methods)
	registerMathMethods(t.methods)
	registerEnumerableMethods(t.methods)
	return t
}

// Operator returns the KSQL symbol or keyword for op.
func (t *Table) Operator(op expr.Operator) (string, error) {
	sym, ok := t.operators[op]
	if !ok {
		return "", ksqlerr.Operator(string(op))
	}
	return sym, nil
}

// TextOperator returns the function-call rendering of op when one of its
// operands is textual.
func (t *Table) TextOperator(op expr.Operator) (func(l, r string) string, bool) {
	fn, ok := t.textOperators[op]
	return fn, ok
}

// Lookup returns the method registered for decl.name.
func (t *Table) Lookup(decl expr.DeclaringType, name string) (Method, error) {
	m, ok := t.methods[Key{Declaring: decl, Name: name}]
	if !ok {
		return Method{}, ksqlerr.Method(string(decl), name)
	}
	return m, nil
}

// Has reports whether decl.name is registered.
func (t *Table) Has(decl expr.DeclaringType, name string) bool {
	_, ok := t.methods[Key{Declaring: decl, Name: name}]
	return ok
}

// Call looks up decl.name, checks the argument count and renders it.
func (t *Table) Call(decl expr.DeclaringType, name string, args []Arg) (string, error) {
	m, err := t.Lookup(decl, name)
	if err != nil {
		return "", err
	}
	if len(args) < m.MinArgs || (m.MaxArgs >= 0 && len(args) > m.MaxArgs) {
		return "", ksqlerr.MethodArity(string(decl), name, len(args))
	}
	return m.Render(args)
}

// ResultType is the static type decl.name yields for args, or nil.
func (t *Table) ResultType(decl expr.DeclaringType, name string, args []Arg) reflect.Type {
	m, ok := t.methods[Key{Declaring: decl, Name: name}]
	if !ok || m.Result == nil {
		return nil
	}
	return m.Result(args)
}

func returns[T any]() func([]Arg) reflect.Type {
	rt := reflect.TypeFor[T]()
	return func([]Arg) reflect.Type { return rt }
}

func returnsArg(i int) func([]Arg) reflect.Type {
	return func(args []Arg) reflect.Type {
		if i < len(args) {
			return args[i].Type
		}
		return nil
	}
}

func def(lo, hi int, result func([]Arg) reflect.Type, render RenderFunc) Method {
	return Method{MinArgs: lo, MaxArgs: hi, Result: result, Render: render}
}
