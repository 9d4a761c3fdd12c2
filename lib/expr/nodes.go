package expr

import (
	"reflect"
)

// Node is one element of a query expression tree. Nodes are immutable once
// built and compared by pointer identity.
type Node interface {
	Accept(Visitor)
	Kind() NodeKind
	exprNode()
}

// NodeKind names the variant of a Node.
type NodeKind string

const (
	KindConstant     NodeKind = "Constant"
	KindParameter    NodeKind = "Parameter"
	KindMemberAccess NodeKind = "MemberAccess"
	KindCall         NodeKind = "Call"
	KindBinary       NodeKind = "Binary"
	KindUnary        NodeKind = "Unary"
	KindConvert      NodeKind = "Convert"
	KindLambda       NodeKind = "Lambda"
	KindNew          NodeKind = "New"
	KindConditional  NodeKind = "Conditional"
	KindArrayLiteral NodeKind = "ArrayLiteral"
)

// Operator tags binary and unary nodes.
type Operator string

const (
	OpAdd                Operator = "Add"
	OpSubtract           Operator = "Subtract"
	OpMultiply           Operator = "Multiply"
	OpDivide             Operator = "Divide"
	OpModulo             Operator = "Modulo"
	OpEqual              Operator = "Equal"
	OpNotEqual           Operator = "NotEqual"
	OpLessThan           Operator = "LessThan"
	OpLessThanOrEqual    Operator = "LessThanOrEqual"
	OpGreaterThan        Operator = "GreaterThan"
	OpGreaterThanOrEqual Operator = "GreaterThanOrEqual"
	OpAndAlso            Operator = "AndAlso"
	OpOrElse             Operator = "OrElse"
	OpNot                Operator = "Not"
	OpNegate             Operator = "Negate"
	OpCoalesce           Operator = "Coalesce"
	OpExclusiveOr        Operator = "ExclusiveOr"
)

// IsComparison reports whether op yields a boolean from two operands.
func (op Operator) IsComparison() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		return true
	}
	return false
}

// IsLogical reports whether op is a boolean connective.
func (op Operator) IsLogical() bool {
	return op == OpAndAlso || op == OpOrElse || op == OpNot
}

// DeclaringType groups the methods of the dispatch table.
type DeclaringType string

const (
	DeclString     DeclaringType = "String"
	DeclDateTime   DeclaringType = "DateTime"
	DeclMath       DeclaringType = "Math"
	DeclEnumerable DeclaringType = "Enumerable"
)

// Constant is a literal value captured in the tree.
type Constant struct {
	Value any
	Type  reflect.Type
}

// Parameter is a lambda parameter, usually the row being filtered.
type Parameter struct {
	Name string
	Type reflect.Type
}

// MemberAccess reads Member from Target. Type is the static member type when
// known.
type MemberAccess struct {
	Target Node
	Member string
	Type   reflect.Type
}

// Call invokes Method declared on Declaring. Receiver is nil for static calls.
type Call struct {
	Declaring DeclaringType
	Method    string
	Receiver  Node
	Args      []Node
}

// Binary models infix operations.
type Binary struct {
	Op    Operator
	Left  Node
	Right Node
}

// Unary models prefix operations.
type Unary struct {
	Op      Operator
	Operand Node
}

// Convert casts Operand to Target.
type Convert struct {
	Target  reflect.Type
	Operand Node
}

// Lambda is an anonymous function; only its body is ever rendered.
type Lambda struct {
	Params []*Parameter
	Body   Node
}

// New builds an anonymous record. Members and Args are parallel.
type New struct {
	Type    reflect.Type
	Members []string
	Args    []Node
}

// Conditional is the ternary operator.
type Conditional struct {
	Test    Node
	IfTrue  Node
	IfFalse Node
}

// ArrayLiteral is an inline collection.
type ArrayLiteral struct {
	Elements []Node
}

func (*Constant) exprNode()     {}
func (*Parameter) exprNode()    {}
func (*MemberAccess) exprNode() {}
func (*Call) exprNode()         {}
func (*Binary) exprNode()       {}
func (*Unary) exprNode()        {}
func (*Convert) exprNode()      {}
func (*Lambda) exprNode()       {}
func (*New) exprNode()          {}
func (*Conditional) exprNode()  {}
func (*ArrayLiteral) exprNode() {}

func (*Constant) Kind() NodeKind     { return KindConstant }
func (*Parameter) Kind() NodeKind    { return KindParameter }
func (*MemberAccess) Kind() NodeKind { return KindMemberAccess }
func (*Call) Kind() NodeKind         { return KindCall }
func (*Binary) Kind() NodeKind       { return KindBinary }
func (*Unary) Kind() NodeKind        { return KindUnary }
func (*Convert) Kind() NodeKind      { return KindConvert }
func (*Lambda) Kind() NodeKind       { return KindLambda }
func (*New) Kind() NodeKind          { return KindNew }
func (*Conditional) Kind() NodeKind  { return KindConditional }
func (*ArrayLiteral) Kind() NodeKind { return KindArrayLiteral }

// Param returns the first lambda parameter or nil.
func (l *Lambda) Param() *Parameter {
	if l == nil || len(l.Params) == 0 {
		return nil
	}
	return l.Params[0]
}

// IsNull reports whether the constant is the null literal.
func (c *Constant) IsNull() bool {
	if c.Value == nil {
		return true
	}
	v := reflect.ValueOf(c.Value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
