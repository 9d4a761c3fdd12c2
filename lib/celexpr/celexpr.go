// Package celexpr lowers CEL predicates such as
//
//	amount > 1000.0 && region in ['EU', 'US']
//
// into expression trees the translator understands. Bare identifiers name
// columns of the row; the row variable itself may also be used explicitly
// (row.amount).
package celexpr

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/overloads"
	"github.com/google/cel-go/common/types"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

var binaryOperators = map[string]expr.Operator{
	operators.Equals:        expr.OpEqual,
	operators.NotEquals:     expr.OpNotEqual,
	operators.Less:          expr.OpLessThan,
	operators.LessEquals:    expr.OpLessThanOrEqual,
	operators.Greater:       expr.OpGreaterThan,
	operators.GreaterEquals: expr.OpGreaterThanOrEqual,
	operators.LogicalAnd:    expr.OpAndAlso,
	operators.LogicalOr:     expr.OpOrElse,
	operators.Add:           expr.OpAdd,
	operators.Subtract:      expr.OpSubtract,
	operators.Multiply:      expr.OpMultiply,
	operators.Divide:        expr.OpDivide,
	operators.Modulo:        expr.OpModulo,
}

var stringMethods = map[string]string{
	overloads.StartsWith: "StartsWith",
	overloads.EndsWith:   "EndsWith",
	overloads.Contains:   "Contains",
	"lowerAscii":         "ToLower",
	"upperAscii":         "ToUpper",
	"trim":               "Trim",
}

var conversions = map[string]reflect.Type{
	overloads.TypeConvertInt:    reflect.TypeFor[int64](),
	overloads.TypeConvertDouble: reflect.TypeFor[float64](),
	overloads.TypeConvertString: reflect.TypeFor[string](),
	overloads.TypeConvertBool:   reflect.TypeFor[bool](),
}

var textType = reflect.TypeFor[string]()

// Option configures Predicate.
type Option func(*converter)

// WithSchema validates column references against s and types them from the
// declared column types.
func WithSchema(s *schema.EntitySchema) Option {
	return func(c *converter) {
		c.schema = s
	}
}

type converter struct {
	row    *expr.Parameter
	schema *schema.EntitySchema
}

// Predicate parses text as a CEL expression over param and returns the
// equivalent lambda.
func Predicate(text string, param *expr.Parameter, opts ...Option) (*expr.Lambda, error) {
	if param == nil {
		return nil, fmt.Errorf("celexpr: row parameter is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, ksqlerr.Expression("empty filter")
	}
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("celexpr: creating environment: %w", err)
	}
	ast, iss := env.Parse(text)
	if iss != nil && iss.Err() != nil {
		return nil, ksqlerr.Expression("invalid filter").Wrap(iss.Err())
	}

	con := &converter{row: param}
	for _, opt := range opts {
		opt(con)
	}
	body, err := con.visit(ast.NativeRep().Expr())
	if err != nil {
		return nil, err
	}
	return expr.Fn(body, param), nil
}

func (con *converter) visit(e celast.Expr) (expr.Node, error) {
	switch e.Kind() {
	case celast.CallKind:
		return con.visitCall(e.AsCall())
	case celast.IdentKind:
		return con.visitIdent(e.AsIdent())
	case celast.LiteralKind:
		return visitLiteral(e.AsLiteral())
	case celast.ListKind:
		elems, err := con.visitAll(e.AsList().Elements())
		if err != nil {
			return nil, err
		}
		return expr.Array(elems...), nil
	case celast.SelectKind:
		return con.visitSelect(e.AsSelect())
	}
	return nil, ksqlerr.Expression("unsupported filter expression kind %d", e.Kind())
}

func (con *converter) visitAll(exprs []celast.Expr) ([]expr.Node, error) {
	out := make([]expr.Node, len(exprs))
	for i, e := range exprs {
		n, err := con.visit(e)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (con *converter) visitIdent(name string) (expr.Node, error) {
	if name == con.row.Name {
		return con.row, nil
	}
	return con.column(name)
}

func (con *converter) visitSelect(sel celast.SelectExpr) (expr.Node, error) {
	if sel.IsTestOnly() {
		return nil, ksqlerr.Expression("has() is not supported")
	}
	operand := sel.Operand()
	if operand.Kind() == celast.IdentKind && operand.AsIdent() == con.row.Name {
		return con.column(sel.FieldName())
	}
	target, err := con.visit(operand)
	if err != nil {
		return nil, err
	}
	return expr.Member(target, sel.FieldName()), nil
}

// column reads name from the row, resolved against the schema when one is
// set.
func (con *converter) column(name string) (expr.Node, error) {
	if con.schema == nil {
		return expr.Member(con.row, name), nil
	}
	c, ok := con.schema.Column(name)
	if !ok {
		msg := fmt.Sprintf("unknown column %s on %s", name, con.schema.Name)
		if s := schema.SuggestFrom(name, con.schema.ColumnNames(), 3); s != "" {
			msg += " (" + s + ")"
		}
		return nil, ksqlerr.Expression("%s", msg)
	}
	return &expr.MemberAccess{
		Target: con.row,
		Member: c.Name,
		Type:   typemap.GoType(con.schema.ColumnType(c)),
	}, nil
}

func visitLiteral(v any) (expr.Node, error) {
	switch val := v.(type) {
	case types.Null:
		return expr.Null(), nil
	case types.Bool:
		return expr.Const(bool(val)), nil
	case types.Int:
		return expr.Const(int64(val)), nil
	case types.Uint:
		return expr.Const(uint64(val)), nil
	case types.Double:
		return expr.Const(float64(val)), nil
	case types.String:
		return expr.Const(string(val)), nil
	}
	return nil, ksqlerr.Expression("unsupported literal %T", v)
}

func (con *converter) visitCall(call celast.CallExpr) (expr.Node, error) {
	fun := call.FunctionName()

	if call.IsMemberFunction() {
		target, err := con.visit(call.Target())
		if err != nil {
			return nil, err
		}
		args, err := con.visitAll(call.Args())
		if err != nil {
			return nil, err
		}
		if fun == overloads.Size && len(args) == 0 {
			return length(target)
		}
		method, ok := stringMethods[fun]
		if !ok {
			return nil, ksqlerr.Method("string", fun)
		}
		return expr.Method(expr.DeclString, method, target, args...), nil
	}

	args, err := con.visitAll(call.Args())
	if err != nil {
		return nil, err
	}

	if op, ok := binaryOperators[fun]; ok && len(args) == 2 {
		return expr.Bin(op, args[0], args[1]), nil
	}

	switch fun {
	case operators.LogicalNot:
		return expr.Not(args[0]), nil
	case operators.Negate:
		return expr.Neg(args[0]), nil
	case operators.Conditional:
		return expr.Cond(args[0], args[1], args[2]), nil
	case operators.In:
		if _, ok := args[1].(*expr.ArrayLiteral); !ok {
			return nil, ksqlerr.Expression("the right side of in must be a list")
		}
		return expr.Static(expr.DeclEnumerable, "Contains", args[1], args[0]), nil
	case overloads.Size:
		if len(args) == 1 {
			return length(args[0])
		}
	case overloads.TypeConvertTimestamp:
		return timestamp(args)
	}
	if t, ok := conversions[fun]; ok && len(args) == 1 {
		return expr.ConvertTo(t, args[0]), nil
	}
	return nil, ksqlerr.Operator(fun)
}

// length renders size(x) over text.
func length(n expr.Node) (expr.Node, error) {
	m, ok := n.(*expr.MemberAccess)
	if !ok {
		return nil, ksqlerr.Expression("size() needs a column")
	}
	if t := expr.StaticType(m); t != nil && !typemap.IsText(t) {
		return nil, ksqlerr.Expression("size() needs a string column, %s is %s", m.Member, t)
	}
	if m.Type == nil {
		typed := *m
		typed.Type = textType
		m = &typed
	}
	return expr.Member(m, "Length"), nil
}

func timestamp(args []expr.Node) (expr.Node, error) {
	if len(args) == 1 {
		if c, ok := args[0].(*expr.Constant); ok {
			if s, ok := c.Value.(string); ok {
				ts, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return nil, ksqlerr.Expression("invalid timestamp %q", s).Wrap(err)
				}
				return expr.Const(ts.UTC()), nil
			}
		}
	}
	return nil, ksqlerr.NonLiteral("timestamp()")
}
