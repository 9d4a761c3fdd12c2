package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Const captures v as a literal with its dynamic type.
func Const(v any) *Constant {
	return &Constant{Value: v, Type: reflect.TypeOf(v)}
}

// Null is the untyped null literal.
func Null() *Constant {
	return &Constant{}
}

// Param declares a lambda parameter of type t.
func Param(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, Type: t}
}

// ParamOf declares a lambda parameter typed after T.
func ParamOf[T any](name string) *Parameter {
	return &Parameter{Name: name, Type: reflect.TypeFor[T]()}
}

// Member reads name from target, inferring the static type from a struct or
// map target when possible.
func Member(target Node, name string) *MemberAccess {
	return &MemberAccess{Target: target, Member: name, Type: memberType(StaticType(target), name)}
}

// Path builds a member chain, e.g. Path(o, "address", "city").
func Path(target Node, names ...string) Node {
	n := target
	for _, name := range names {
		n = Member(n, name)
	}
	return n
}

// Method calls an instance method on receiver.
func Method(decl DeclaringType, name string, receiver Node, args ...Node) *Call {
	return &Call{Declaring: decl, Method: name, Receiver: receiver, Args: args}
}

// Static calls a static method.
func Static(decl DeclaringType, name string, args ...Node) *Call {
	return &Call{Declaring: decl, Method: name, Args: args}
}

func Bin(op Operator, l, r Node) *Binary { return &Binary{Op: op, Left: l, Right: r} }

func Eq(l, r Node) *Binary  { return Bin(OpEqual, l, r) }
func Ne(l, r Node) *Binary  { return Bin(OpNotEqual, l, r) }
func Lt(l, r Node) *Binary  { return Bin(OpLessThan, l, r) }
func Le(l, r Node) *Binary  { return Bin(OpLessThanOrEqual, l, r) }
func Gt(l, r Node) *Binary  { return Bin(OpGreaterThan, l, r) }
func Ge(l, r Node) *Binary  { return Bin(OpGreaterThanOrEqual, l, r) }
func And(l, r Node) *Binary { return Bin(OpAndAlso, l, r) }
func Or(l, r Node) *Binary  { return Bin(OpOrElse, l, r) }
func Add(l, r Node) *Binary { return Bin(OpAdd, l, r) }
func Sub(l, r Node) *Binary { return Bin(OpSubtract, l, r) }
func Mul(l, r Node) *Binary { return Bin(OpMultiply, l, r) }
func Div(l, r Node) *Binary { return Bin(OpDivide, l, r) }

func Not(n Node) *Unary { return &Unary{Op: OpNot, Operand: n} }
func Neg(n Node) *Unary { return &Unary{Op: OpNegate, Operand: n} }

// ConvertTo casts n to t.
func ConvertTo(t reflect.Type, n Node) *Convert {
	return &Convert{Target: t, Operand: n}
}

// Fn builds a lambda.
func Fn(body Node, params ...*Parameter) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// Field is one named member of an anonymous record.
type Field struct {
	Name  string
	Value Node
}

// F pairs a member name with its value.
func F(name string, value Node) Field { return Field{Name: name, Value: value} }

// Anonymous builds an anonymous record from fields in declaration order.
// A MemberAccess value without a name takes the member's name.
func Anonymous(fields ...Field) *New {
	n := &New{Members: make([]string, len(fields)), Args: make([]Node, len(fields))}
	for i, f := range fields {
		name := f.Name
		if name == "" {
			if m, ok := f.Value.(*MemberAccess); ok {
				name = m.Member
			}
		}
		n.Members[i] = name
		n.Args[i] = f.Value
	}
	return n
}

// Cond builds the ternary operator.
func Cond(test, ifTrue, ifFalse Node) *Conditional {
	return &Conditional{Test: test, IfTrue: ifTrue, IfFalse: ifFalse}
}

// Array builds an inline collection.
func Array(elems ...Node) *ArrayLiteral {
	return &ArrayLiteral{Elements: elems}
}

// StaticType returns the statically known type of n, or nil. Call nodes are
// typed by the dispatch table, not here.
func StaticType(n Node) reflect.Type {
	switch e := n.(type) {
	case *Constant:
		return e.Type
	case *Parameter:
		return e.Type
	case *MemberAccess:
		if e.Type != nil {
			return e.Type
		}
		return memberType(StaticType(e.Target), e.Member)
	case *Convert:
		return e.Target
	case *Binary:
		if e.Op.IsComparison() || e.Op.IsLogical() {
			return reflect.TypeFor[bool]()
		}
		if t := StaticType(e.Left); t != nil {
			return t
		}
		return StaticType(e.Right)
	case *Unary:
		if e.Op == OpNot {
			return reflect.TypeFor[bool]()
		}
		return StaticType(e.Operand)
	case *Lambda:
		return StaticType(e.Body)
	case *New:
		return e.Type
	case *Conditional:
		if t := StaticType(e.IfTrue); t != nil {
			return t
		}
		return StaticType(e.IfFalse)
	}
	return nil
}

func memberType(t reflect.Type, name string) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return nil
	}
	switch t.Kind() {
	case reflect.Struct:
		if f, ok := fieldByName(t, name); ok {
			return f.Type
		}
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return t.Elem()
		}
	}
	return nil
}

// fieldByName matches exactly first, then case-insensitively, so a column
// written as "amount" still finds the exported field Amount.
func fieldByName(t reflect.Type, name string) (reflect.StructField, bool) {
	if f, ok := t.FieldByName(name); ok && f.IsExported() {
		return f, true
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag := f.Tag.Get("ksql"); tag == name {
			return f, true
		}
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// Value evaluates n when it is a constant or a member chain rooted at one,
// which is how closures over captured variables reach the tree.
func Value(n Node) (any, bool, error) {
	switch e := n.(type) {
	case *Constant:
		return e.Value, true, nil
	case *MemberAccess:
		target, ok, err := Value(e.Target)
		if err != nil || !ok {
			return nil, ok, err
		}
		v, err := readMember(target, e.Member)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}
	return nil, false, nil
}

func readMember(target any, name string) (any, error) {
	v := reflect.ValueOf(target)
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return nil, fmt.Errorf("member %s read through nil %s", name, v.Type())
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, fmt.Errorf("member %s read on nil value", name)
	}
	switch v.Kind() {
	case reflect.Struct:
		f, ok := fieldByName(v.Type(), name)
		if !ok {
			return nil, fmt.Errorf("%s has no exported field %s", v.Type(), name)
		}
		return v.FieldByIndex(f.Index).Interface(), nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%s is not keyed by string", v.Type())
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil, fmt.Errorf("%s has no key %q", v.Type(), name)
		}
		return mv.Interface(), nil
	}
	return nil, fmt.Errorf("cannot read member %s of %s", name, v.Type())
}
