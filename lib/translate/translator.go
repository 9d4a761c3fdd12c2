// Package translate lowers expression trees into KSQL fragments.
package translate

import (
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dispatch"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/statement"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

// unnamedParameter renders a parameter that has neither a name nor an alias.
const unnamedParameter = "row"

var castTargets = map[reflect.Type]string{
	reflect.TypeFor[string]():      "VARCHAR",
	reflect.TypeFor[int32]():       "INTEGER",
	reflect.TypeFor[int64]():       "BIGINT",
	reflect.TypeFor[int]():         "BIGINT",
	reflect.TypeFor[float64]():     "DOUBLE",
	reflect.TypeFor[apd.Decimal](): typemap.Decimal(nil),
	reflect.TypeFor[time.Time]():   "TIMESTAMP",
	reflect.TypeFor[bool]():        "BOOLEAN",
}

// Translator renders expression nodes. One Translator serves one
// translation call: it memoizes by node identity and carries the parameter
// bindings of that call.
type Translator struct {
	table   *dispatch.Table
	memo    map[expr.Node]string
	aliases map[*expr.Parameter]string
	groups  map[*expr.Parameter]*expr.Lambda
}

// New returns a Translator over table.
func New(table *dispatch.Table) *Translator {
	return &Translator{
		table:   table,
		memo:    map[expr.Node]string{},
		aliases: map[*expr.Parameter]string{},
		groups:  map[*expr.Parameter]*expr.Lambda{},
	}
}

// Bind makes member reads on p render as alias.member.
func (t *Translator) Bind(p *expr.Parameter, alias string) {
	if p == nil {
		return
	}
	t.aliases[p] = alias
	clear(t.memo)
}

// BindGroup makes p.Key render as the grouping key of key.
func (t *Translator) BindGroup(p *expr.Parameter, key *expr.Lambda) {
	if p == nil {
		return
	}
	t.groups[p] = key
	clear(t.memo)
}

// Visit renders n.
func (t *Translator) Visit(n expr.Node) (string, error) {
	if n == nil {
		return "", ksqlerr.Expression("unsupported expression <nil>")
	}
	if s, ok := t.memo[n]; ok {
		return s, nil
	}
	s, err := t.visit(n)
	if err != nil {
		return "", err
	}
	t.memo[n] = s
	return s, nil
}

func (t *Translator) visit(n expr.Node) (string, error) {
	switch e := n.(type) {
	case *expr.Constant:
		return typemap.Literal(e.Value)
	case *expr.Parameter:
		return t.parameter(e), nil
	case *expr.MemberAccess:
		return t.memberAccess(e)
	case *expr.Call:
		return t.call(e)
	case *expr.Binary:
		return t.binary(e)
	case *expr.Unary:
		return t.unary(e)
	case *expr.Convert:
		return t.convert(e)
	case *expr.Lambda:
		return t.Visit(e.Body)
	case *expr.New:
		return t.newRecord(e)
	case *expr.Conditional:
		return t.conditional(e)
	case *expr.ArrayLiteral:
		items, err := t.visitAll(e.Elements)
		if err != nil {
			return "", err
		}
		return "ARRAY[" + strings.Join(items, ", ") + "]", nil
	default:
		return "", ksqlerr.Expression("unsupported expression %T", n)
	}
}

func (t *Translator) visitAll(nodes []expr.Node) ([]string, error) {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		s, err := t.Visit(n)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (t *Translator) parameter(p *expr.Parameter) string {
	if alias, ok := t.aliases[p]; ok {
		return alias
	}
	if p.Name != "" {
		return p.Name
	}
	return unnamedParameter
}

func (t *Translator) memberAccess(e *expr.MemberAccess) (string, error) {
	if v, ok, err := expr.Value(e); err != nil {
		return "", ksqlerr.MemberAccess("captured value", e.Member).Wrap(err)
	} else if ok {
		return typemap.Literal(v)
	}

	if key := t.groupKey(e); key != nil {
		return keyList(t, key)
	}
	if key := t.groupKey(e.Target); key != nil {
		return t.groupKeyMember(key, e.Member)
	}

	if e.Member == "Length" && typemap.IsText(t.TypeOf(e.Target)) {
		target, err := t.Visit(e.Target)
		if err != nil {
			return "", err
		}
		return t.table.Call(expr.DeclString, "Length", []dispatch.Arg{{Text: target}})
	}

	switch target := e.Target.(type) {
	case *expr.Parameter:
		if alias, ok := t.aliases[target]; ok {
			return alias + "." + e.Member, nil
		}
		return e.Member, nil
	case *expr.MemberAccess:
		parent, err := t.Visit(target)
		if err != nil {
			return "", err
		}
		return parent + "." + e.Member, nil
	case nil:
		return "", ksqlerr.MemberAccess("<nil>", e.Member)
	default:
		return "", ksqlerr.MemberAccess(string(target.Kind()), e.Member)
	}
}

// groupKey resolves the grouping parameter p reading Key, or nil.
func (t *Translator) groupKey(n expr.Node) *expr.Lambda {
	m, ok := n.(*expr.MemberAccess)
	if !ok || m.Member != "Key" {
		return nil
	}
	p, ok := m.Target.(*expr.Parameter)
	if !ok {
		return nil
	}
	return t.groups[p]
}

// groupKeyMember renders g.Key.member over an anonymous composite key.
func (t *Translator) groupKeyMember(key *expr.Lambda, member string) (string, error) {
	if rec, ok := key.Body.(*expr.New); ok {
		for i, m := range rec.Members {
			if m == member {
				s, err := t.Visit(rec.Args[i])
				if err != nil {
					return "", err
				}
				return statement.TrimOuterParens(s), nil
			}
		}
	}
	return "", ksqlerr.MemberAccess("grouping key", member)
}

func (t *Translator) call(e *expr.Call) (string, error) {
	nodes := e.Args
	if e.Receiver != nil {
		nodes = append([]expr.Node{e.Receiver}, e.Args...)
	}
	if !t.table.Has(e.Declaring, e.Method) {
		return "", ksqlerr.Method(string(e.Declaring), e.Method)
	}
	args := make([]dispatch.Arg, len(nodes))
	for i, n := range nodes {
		a, err := t.arg(n)
		if err != nil {
			return "", err
		}
		args[i] = a
	}
	return t.table.Call(e.Declaring, e.Method, args)
}

func (t *Translator) arg(n expr.Node) (dispatch.Arg, error) {
	text, err := t.Visit(n)
	if err != nil {
		return dispatch.Arg{}, err
	}
	a := dispatch.Arg{Text: text, Type: t.TypeOf(n)}
	if arr, ok := n.(*expr.ArrayLiteral); ok {
		a.IsList = true
		if a.List, err = t.visitAll(arr.Elements); err != nil {
			return dispatch.Arg{}, err
		}
		return a, nil
	}
	v, ok, err := expr.Value(n)
	if err != nil || !ok {
		return a, nil
	}
	a.Literal, a.Value = true, v
	if isCollection(v) {
		a.IsList = true
		if a.List, err = typemap.Elements(v); err != nil {
			return dispatch.Arg{}, err
		}
	}
	return a, nil
}

func isCollection(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case []byte:
		return false
	}
	k := reflect.TypeOf(v).Kind()
	if k == reflect.Array {
		_, isEnum := v.(typemap.Enum)
		return !isEnum && reflect.TypeOf(v).Elem().Kind() != reflect.Uint8
	}
	return k == reflect.Slice
}

func (t *Translator) binary(e *expr.Binary) (string, error) {
	left, err := t.Visit(e.Left)
	if err != nil {
		return "", err
	}
	right, err := t.Visit(e.Right)
	if err != nil {
		return "", err
	}

	if e.Op == expr.OpEqual || e.Op == expr.OpNotEqual {
		suffix := " IS NULL"
		if e.Op == expr.OpNotEqual {
			suffix = " IS NOT NULL"
		}
		switch {
		case right == nullLiteral:
			return "(" + left + suffix + ")", nil
		case left == nullLiteral:
			return "(" + right + suffix + ")", nil
		}
	}

	if render, ok := t.table.TextOperator(e.Op); ok {
		if typemap.IsText(t.TypeOf(e.Left)) || typemap.IsText(t.TypeOf(e.Right)) {
			return render(left, right), nil
		}
	}

	sym, err := t.table.Operator(e.Op)
	if err != nil {
		return "", err
	}
	return "(" + left + " " + sym + " " + right + ")", nil
}

// nullLiteral is what any side that evaluates to nil renders as, whether a
// bare constant or a captured value.
const nullLiteral = "NULL"

func (t *Translator) unary(e *expr.Unary) (string, error) {
	operand, err := t.Visit(e.Operand)
	if err != nil {
		return "", err
	}
	switch e.Op {
	case expr.OpNot:
		return statement.Not(operand), nil
	case expr.OpNegate:
		// "--" starts a line comment.
		if strings.HasPrefix(operand, "-") {
			return "-(" + operand + ")", nil
		}
		return "-" + operand, nil
	}
	return "", ksqlerr.Operator(string(e.Op))
}

func (t *Translator) convert(e *expr.Convert) (string, error) {
	operand, err := t.Visit(e.Operand)
	if err != nil {
		return "", err
	}
	ddl, ok := castTargets[e.Target]
	if !ok {
		return operand, nil
	}
	return "CAST(" + statement.TrimOuterParens(operand) + " AS " + ddl + ")", nil
}

func (t *Translator) newRecord(e *expr.New) (string, error) {
	if len(e.Members) != len(e.Args) {
		return "", ksqlerr.Expression("anonymous record has %d members for %d values", len(e.Members), len(e.Args))
	}
	items := make([]string, len(e.Args))
	for i, arg := range e.Args {
		if e.Members[i] == "" {
			return "", ksqlerr.Expression("anonymous record member %d has no name", i)
		}
		s, err := t.Visit(arg)
		if err != nil {
			return "", err
		}
		s = statement.TrimOuterParens(s)
		if s == e.Members[i] || t.isCompositeKey(arg) {
			items[i] = s
			continue
		}
		items[i] = s + " AS " + e.Members[i]
	}
	return strings.Join(items, ", "), nil
}

// isCompositeKey reports whether n reads g.Key of an anonymous grouping key,
// which expands to the key column list and cannot be aliased.
func (t *Translator) isCompositeKey(n expr.Node) bool {
	key := t.groupKey(n)
	if key == nil {
		return false
	}
	_, ok := key.Body.(*expr.New)
	return ok
}

func (t *Translator) conditional(e *expr.Conditional) (string, error) {
	test, err := t.Visit(e.Test)
	if err != nil {
		return "", err
	}
	ifTrue, err := t.Visit(e.IfTrue)
	if err != nil {
		return "", err
	}
	ifFalse, err := t.Visit(e.IfFalse)
	if err != nil {
		return "", err
	}
	return "CASE WHEN " + statement.TrimOuterParens(test) +
		" THEN " + statement.TrimOuterParens(ifTrue) +
		" ELSE " + statement.TrimOuterParens(ifFalse) + " END", nil
}

// TypeOf is the static type of n, resolving call results through the
// dispatch table.
func (t *Translator) TypeOf(n expr.Node) reflect.Type {
	switch e := n.(type) {
	case *expr.Call:
		nodes := e.Args
		if e.Receiver != nil {
			nodes = append([]expr.Node{e.Receiver}, e.Args...)
		}
		args := make([]dispatch.Arg, len(nodes))
		for i, a := range nodes {
			args[i] = dispatch.Arg{Type: t.TypeOf(a)}
		}
		return t.table.ResultType(e.Declaring, e.Method, args)
	case *expr.Binary:
		if e.Op.IsComparison() || e.Op.IsLogical() {
			return reflect.TypeFor[bool]()
		}
		if lt := t.TypeOf(e.Left); lt != nil {
			return lt
		}
		return t.TypeOf(e.Right)
	case *expr.Unary:
		if e.Op == expr.OpNot {
			return reflect.TypeFor[bool]()
		}
		return t.TypeOf(e.Operand)
	case *expr.Lambda:
		return t.TypeOf(e.Body)
	case *expr.Conditional:
		if tt := t.TypeOf(e.IfTrue); tt != nil {
			return tt
		}
		return t.TypeOf(e.IfFalse)
	case *expr.MemberAccess:
		if e.Type == nil && e.Member == "Length" && typemap.IsText(t.TypeOf(e.Target)) {
			return reflect.TypeFor[int]()
		}
	}
	return expr.StaticType(n)
}

// keyList renders a grouping key: a single expression, or the comma list
// of an anonymous record's values.
func keyList(t *Translator, key *expr.Lambda) (string, error) {
	if key == nil {
		return "", ksqlerr.Shape("grouping has no key selector")
	}
	switch body := key.Body.(type) {
	case *expr.New:
		items, err := t.visitAll(body.Args)
		if err != nil {
			return "", err
		}
		for i := range items {
			items[i] = statement.TrimOuterParens(items[i])
		}
		return strings.Join(items, ", "), nil
	case *expr.MemberAccess:
		s, err := t.Visit(body)
		if err != nil {
			return "", err
		}
		return statement.TrimOuterParens(s), nil
	}
	return "", ksqlerr.Shape("grouping key must be a member or an anonymous record, got %s", kindOf(key.Body))
}

func kindOf(n expr.Node) string {
	if n == nil {
		return "<nil>"
	}
	return string(n.Kind())
}
