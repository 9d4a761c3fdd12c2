package translate_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dispatch"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/translate"
)

type Address struct {
	City string
	Zip  string
}

type Order struct {
	OrderID    string `ksql:"orderId"`
	CustomerID string `ksql:"customerId"`
	Amount     float64
	Region     *string
	Quantity   int32
	CreatedAt  time.Time
	Shipping   Address
}

var table = dispatch.NewTable()

func newTranslator() *translate.Translator {
	return translate.New(table)
}

func mustVisit(t *testing.T, tr *translate.Translator, n expr.Node) string {
	t.Helper()
	s, err := tr.Visit(n)
	require.NoError(t, err)
	return s
}

func TestVisitBasics(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	amount := expr.Member(o, "amount")

	cases := []struct {
		name string
		node expr.Node
		want string
	}{
		{"constant", expr.Const(1000), "1000"},
		{"string constant", expr.Const("O'Brien"), "'O''Brien'"},
		{"parameter", o, "o"},
		{"unnamed parameter", expr.ParamOf[Order](""), "row"},
		{"member", amount, "amount"},
		{"nested member", expr.Path(o, "shipping", "city"), "shipping.city"},
		{"comparison", expr.Gt(amount, expr.Const(1000)), "(amount > 1000)"},
		{"arithmetic", expr.Mul(amount, expr.Const(2)), "(amount * 2)"},
		{"logical", expr.And(expr.Gt(amount, expr.Const(1)), expr.Lt(amount, expr.Const(5))), "((amount > 1) AND (amount < 5))"},
		{"not", expr.Not(expr.Gt(amount, expr.Const(1))), "NOT (amount > 1)"},
		{"negate", expr.Neg(amount), "-amount"},
		{"negate negative constant", expr.Neg(expr.Const(-5)), "-(-5)"},
		{"double negate", expr.Neg(expr.Neg(amount)), "-(-amount)"},
		{"lambda", expr.Fn(amount, o), "amount"},
		{"conditional", expr.Cond(expr.Gt(amount, expr.Const(100)), expr.Const("big"), expr.Const("small")), "CASE WHEN amount > 100 THEN 'big' ELSE 'small' END"},
		{"array", expr.Array(expr.Const(1), expr.Const(2)), "ARRAY[1, 2]"},
		{"string concat", expr.Add(expr.Member(o, "orderId"), expr.Const("-x")), "CONCAT(orderId, '-x')"},
		{"length", expr.Member(expr.Member(o, "orderId"), "Length"), "LEN(orderId)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mustVisit(t, newTranslator(), tc.node))
		})
	}
}

func TestNullComparisonSymmetry(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	region := expr.Member(o, "region")
	tr := newTranslator()

	assert.Equal(t, "(region IS NULL)", mustVisit(t, tr, expr.Eq(region, expr.Null())))
	assert.Equal(t, "(region IS NULL)", mustVisit(t, tr, expr.Eq(expr.Null(), region)))
	assert.Equal(t, "(region IS NOT NULL)", mustVisit(t, tr, expr.Ne(region, expr.Null())))
	assert.Equal(t, "(region IS NOT NULL)", mustVisit(t, tr, expr.Ne(expr.Null(), region)))

	var nilRegion *string
	assert.Equal(t, "(region IS NULL)", mustVisit(t, tr, expr.Eq(region, expr.Const(nilRegion))))

	closure := expr.Const(struct{ Region *string }{})
	captured := expr.Member(closure, "Region")
	assert.Equal(t, "(region IS NULL)", mustVisit(t, tr, expr.Eq(region, captured)))
	assert.Equal(t, "(region IS NOT NULL)", mustVisit(t, tr, expr.Ne(captured, region)))
}

func TestConvert(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	amount := expr.Member(o, "amount")
	tr := newTranslator()

	for typ, want := range map[reflect.Type]string{
		reflect.TypeFor[float64]():     "CAST(amount AS DOUBLE)",
		reflect.TypeFor[string]():      "CAST(amount AS VARCHAR)",
		reflect.TypeFor[int32]():       "CAST(amount AS INTEGER)",
		reflect.TypeFor[int64]():       "CAST(amount AS BIGINT)",
		reflect.TypeFor[apd.Decimal](): "CAST(amount AS DECIMAL(18, 2))",
		reflect.TypeFor[bool]():        "CAST(amount AS BOOLEAN)",
		reflect.TypeFor[time.Time]():   "CAST(amount AS TIMESTAMP)",
	} {
		assert.Equal(t, want, mustVisit(t, tr, expr.ConvertTo(typ, amount)))
	}
	assert.Equal(t, "amount", mustVisit(t, tr, expr.ConvertTo(reflect.TypeFor[uint8](), amount)))
}

func TestCapturedValues(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	captured := struct {
		Threshold float64
		Names     map[string]string
	}{Threshold: 99.5, Names: map[string]string{"eu": "Europe"}}
	closure := expr.Const(captured)

	tr := newTranslator()
	assert.Equal(t, "(amount > 99.5)", mustVisit(t, tr, expr.Gt(expr.Member(o, "amount"), expr.Member(closure, "Threshold"))))
	assert.Equal(t, "'Europe'", mustVisit(t, tr, expr.Path(closure, "Names", "eu")))

	_, err := tr.Visit(expr.Member(closure, "Missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnsupportedMemberAccess))
}

func TestCalls(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	id := expr.Member(o, "orderId")
	tr := newTranslator()

	assert.Equal(t, "UCASE(orderId)", mustVisit(t, tr, expr.Method(expr.DeclString, "ToUpper", id)))
	assert.Equal(t, "orderId LIKE 'A%'", mustVisit(t, tr, expr.Method(expr.DeclString, "StartsWith", id, expr.Const("A"))))
	assert.Equal(t, "SUBSTRING(orderId, 1, 3)", mustVisit(t, tr, expr.Method(expr.DeclString, "Substring", id, expr.Const(0), expr.Const(3))))
	assert.Equal(t, "(orderId IS NULL OR orderId = '')", mustVisit(t, tr, expr.Static(expr.DeclString, "IsNullOrEmpty", id)))
	assert.Equal(t, "TIMESTAMPADD(DAYS, 1, createdAt)", mustVisit(t, tr, expr.Method(expr.DeclDateTime, "AddDays", expr.Member(o, "createdAt"), expr.Const(1))))
	assert.Equal(t, "ROUND(amount, 2)", mustVisit(t, tr, expr.Static(expr.DeclMath, "Round", expr.Member(o, "amount"), expr.Const(2))))

	in := expr.Static(expr.DeclEnumerable, "Contains", expr.Const([]string{"B", "A", "B"}), expr.Member(o, "customerId"))
	assert.Equal(t, "customerId IN ('B', 'A', 'B')", mustVisit(t, tr, in))

	inline := expr.Static(expr.DeclEnumerable, "Contains", expr.Array(expr.Const(1), expr.Const(2)), expr.Member(o, "quantity"))
	assert.Equal(t, "quantity IN (1, 2)", mustVisit(t, tr, inline))

	// a call result typed as text turns + into CONCAT
	upper := expr.Method(expr.DeclString, "ToUpper", id)
	assert.Equal(t, "CONCAT(UCASE(orderId), '!')", mustVisit(t, tr, expr.Add(upper, expr.Const("!"))))
}

func TestUnsupported(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	tr := newTranslator()

	_, err := tr.Visit(expr.Method(expr.DeclString, "PadLeft", expr.Member(o, "orderId"), expr.Const(3)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnsupportedMethod))
	assert.Contains(t, err.Error(), "String.PadLeft")

	_, err = tr.Visit(expr.Bin(expr.OpCoalesce, expr.Member(o, "region"), expr.Const("n/a")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnsupportedOperator))

	_, err = tr.Visit(expr.Member(expr.Method(expr.DeclString, "Trim", expr.Member(o, "orderId")), "Chars"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnsupportedMemberAccess))

	_, err = tr.Visit(&expr.New{Members: []string{""}, Args: []expr.Node{expr.Const(1)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnsupportedExpression))

	_, err = tr.Visit(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnsupportedExpression))
}

func TestAliasBinding(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	tr := newTranslator()
	member := expr.Member(o, "customerId")

	assert.Equal(t, "customerId", mustVisit(t, tr, member))
	tr.Bind(o, "t0")
	assert.Equal(t, "t0.customerId", mustVisit(t, tr, member))
	assert.Equal(t, "t0", mustVisit(t, tr, o))
}

func TestDeterministicOutput(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	node := expr.Or(
		expr.And(expr.Gt(expr.Member(o, "amount"), expr.Const(10)), expr.Eq(expr.Member(o, "region"), expr.Const("EU"))),
		expr.Eq(expr.Member(o, "region"), expr.Null()),
	)
	first := mustVisit(t, newTranslator(), node)
	second := mustVisit(t, newTranslator(), node)
	assert.Equal(t, first, second)

	tr := newTranslator()
	assert.Equal(t, mustVisit(t, tr, node), mustVisit(t, tr, node))
}

func TestGroupKeys(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	g := expr.Param("g", nil)
	tr := newTranslator()
	tr.BindGroup(g, expr.Fn(expr.Anonymous(expr.F("", expr.Member(o, "customerId")), expr.F("zone", expr.Member(o, "region"))), o))

	assert.Equal(t, "customerId, region", mustVisit(t, tr, expr.Member(g, "Key")))
	assert.Equal(t, "region", mustVisit(t, tr, expr.Path(g, "Key", "zone")))

	proj := expr.Anonymous(
		expr.F("Key", expr.Member(g, "Key")),
		expr.F("total", expr.Method(expr.DeclEnumerable, "Sum", g, expr.Fn(expr.Member(o, "amount"), o))),
	)
	assert.Equal(t, "customerId, region, SUM(amount) AS total", mustVisit(t, tr, proj))
}

func TestTypeOf(t *testing.T) {
	o := expr.ParamOf[Order]("o")
	tr := newTranslator()
	assert.Equal(t, reflect.TypeFor[float64](), tr.TypeOf(expr.Member(o, "amount")))
	assert.Equal(t, reflect.TypeFor[string](), tr.TypeOf(expr.Method(expr.DeclString, "ToLower", expr.Member(o, "orderId"))))
	assert.Equal(t, reflect.TypeFor[bool](), tr.TypeOf(expr.Gt(expr.Member(o, "amount"), expr.Const(1))))
	assert.Equal(t, reflect.TypeFor[int](), tr.TypeOf(expr.Member(expr.Member(o, "orderId"), "Length")))
}
