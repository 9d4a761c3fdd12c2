package ksql_test

import (
	"bytes"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksql"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/query"
)

func scenarios() []struct {
	name string
	op   *query.Operation
	want string
} {
	o := orderParam("o")
	amount := expr.Member(o, "amount")
	g := expr.Param("g", nil)
	x := orderParam("x")

	return []struct {
		name string
		op   *query.Operation
		want string
	}{
		{
			name: "filter",
			op:   orders().Where(expr.Fn(expr.Gt(amount, expr.Const(1000)), o)).Operation(),
			want: "SELECT * FROM orders WHERE amount > 1000;",
		},
		{
			name: "projection",
			op: orders().
				Where(expr.Fn(expr.Gt(amount, expr.Const(1000)), o)).
				Select(expr.Fn(expr.Anonymous(
					expr.F("", expr.Member(o, "orderId")),
					expr.F("", amount),
				), o)).
				Operation(),
			want: "SELECT orderId, amount FROM orders WHERE amount > 1000;",
		},
		{
			name: "group_by",
			op: orders().
				GroupBy(expr.Fn(expr.Member(o, "customerId"), o)).
				Select(expr.Fn(expr.Anonymous(
					expr.F("customerId", expr.Member(g, "Key")),
					expr.F("total", expr.Method(expr.DeclEnumerable, "Sum", g, expr.Fn(expr.Member(x, "amount"), x))),
					expr.F("count", expr.Method(expr.DeclEnumerable, "Count", g)),
				), g)).
				Operation(),
			want: "SELECT customerId, SUM(amount) AS total, COUNT(*) AS count FROM orders GROUP BY customerId;",
		},
		{
			name: "order_take",
			op: orders().
				Where(expr.Fn(expr.Gt(amount, expr.Const(1000)), o)).
				OrderByDescending(expr.Fn(amount, o)).
				Take(5).
				Operation(),
			want: "SELECT * FROM orders WHERE amount > 1000 ORDER BY amount DESC LIMIT 5;",
		},
		{
			name: "null_check",
			op:   orders().Where(expr.Fn(expr.Eq(expr.Member(o, "region"), expr.Null()), o)).Operation(),
			want: "SELECT * FROM orders WHERE region IS NULL;",
		},
		{
			name: "in_list",
			op: orders().
				Where(expr.Fn(expr.Static(expr.DeclEnumerable, "Contains",
					expr.Const([]string{"A", "B"}), expr.Member(o, "customerId")), o)).
				Operation(),
			want: "SELECT * FROM orders WHERE customerId IN ('A', 'B');",
		},
		{
			name: "distinct",
			op:   orders().Select(expr.Fn(expr.Member(o, "customerId"), o)).Distinct().Operation(),
			want: "SELECT DISTINCT customerId FROM orders;",
		},
		{
			name: "cast",
			op:   orders().Select(expr.Fn(expr.ConvertTo(reflect.TypeFor[float64](), amount), o)).Operation(),
			want: "SELECT CAST(amount AS DOUBLE) FROM orders;",
		},
	}
}

func TestScenarios(t *testing.T) {
	tr := newTranslator(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tc := range scenarios() {
		t.Run(tc.name, func(t *testing.T) {
			out := mustTranslate(t, tr, tc.op)
			assert.Equal(t, tc.want, out)
			g.Assert(t, tc.name, []byte(out+"\n"))
		})
	}
}

func TestDeterministic(t *testing.T) {
	tr := newTranslator(t)
	for _, tc := range scenarios() {
		first := mustTranslate(t, tr, tc.op)
		second := mustTranslate(t, tr, tc.op)
		assert.Equal(t, first, second, tc.name)
	}
}

func TestConcurrentTranslate(t *testing.T) {
	tr := newTranslator(t)
	cases := scenarios()
	var wg sync.WaitGroup
	results := make([]string, len(cases)*4)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = tr.Translate(cases[i%len(cases)].op)
		}(i)
	}
	wg.Wait()
	for i, out := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, cases[i%len(cases)].want, out)
	}
}

func TestFilterFolding(t *testing.T) {
	o := orderParam("o")
	region := expr.Member(o, "region")
	op := orders().
		Where(expr.Fn(expr.Gt(expr.Member(o, "quantity"), expr.Const(1)), o)).
		Where(expr.Fn(expr.Or(expr.Eq(region, expr.Const("EU")), expr.Eq(region, expr.Const("US"))), o)).
		Skip(10).
		Operation()
	assert.Equal(t,
		"SELECT * FROM orders WHERE quantity > 1 AND ((region = 'EU') OR (region = 'US')) OFFSET 10;",
		mustTranslate(t, newTranslator(t), op))
}

func TestSortKeys(t *testing.T) {
	o := orderParam("o")
	op := orders().
		OrderBy(expr.Fn(expr.Member(o, "customerId"), o)).
		ThenByDescending(expr.Fn(expr.Member(o, "amount"), o)).
		Operation()
	assert.Equal(t, "SELECT * FROM orders ORDER BY customerId, amount DESC;", mustTranslate(t, newTranslator(t), op))

	_, err := newTranslator(t).Translate(orders().ThenBy(expr.Fn(expr.Member(o, "amount"), o)).Operation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape))
}

func TestTakeArguments(t *testing.T) {
	tr := newTranslator(t)
	captured := expr.Member(expr.Const(struct{ Limit int }{Limit: 7}), "Limit")
	assert.Equal(t, "SELECT * FROM orders LIMIT 7;", mustTranslate(t, tr, orders().TakeExpr(captured).Operation()))

	_, err := tr.Translate(orders().TakeExpr(expr.Param("n", reflect.TypeFor[int]())).Operation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrNonLiteralArgument))

	_, err = tr.Translate(orders().TakeExpr(expr.Const("five")).Operation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape))

	_, err = tr.Translate(orders().Take(0).Operation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape))
}

func TestGrouping(t *testing.T) {
	tr := newTranslator(t)
	o := orderParam("o")
	g := expr.Param("g", nil)
	count := expr.Method(expr.DeclEnumerable, "Count", g)

	having := orders().
		GroupBy(expr.Fn(expr.Member(o, "customerId"), o)).
		Where(expr.Fn(expr.Gt(count, expr.Const(5)), g)).
		Select(expr.Fn(expr.Anonymous(
			expr.F("customerId", expr.Member(g, "Key")),
			expr.F("count", count),
		), g)).
		Operation()
	assert.Equal(t,
		"SELECT customerId, COUNT(*) AS count FROM orders GROUP BY customerId HAVING COUNT(*) > 5;",
		mustTranslate(t, tr, having))

	composite := orders().GroupBy(expr.Fn(expr.Anonymous(
		expr.F("", expr.Member(o, "customerId")),
		expr.F("", expr.Member(o, "region")),
	), o))
	assert.Equal(t,
		"SELECT customerId, region FROM orders GROUP BY customerId, region;",
		mustTranslate(t, tr, composite.Operation()))

	byMember := composite.Select(expr.Fn(expr.Anonymous(
		expr.F("customerId", expr.Path(g, "Key", "customerId")),
		expr.F("n", count),
	), g))
	assert.Equal(t,
		"SELECT customerId, COUNT(*) AS n FROM orders GROUP BY customerId, region;",
		mustTranslate(t, tr, byMember.Operation()))

	_, err := tr.Translate(orders().GroupBy(expr.Fn(expr.Const(1), o)).Operation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape))
}

func TestJoins(t *testing.T) {
	tr := newTranslator(t)
	o := orderParam("o")
	c := customerParam("c")
	customers := query.FromType[Customer]("customers")

	joined := orders().Join(customers,
		expr.Fn(expr.Member(o, "customerId"), o),
		expr.Fn(expr.Member(c, "id"), c),
		expr.Fn(expr.Anonymous(
			expr.F("", expr.Member(o, "orderId")),
			expr.F("", expr.Member(c, "name")),
		), o, c),
	)
	assert.Equal(t,
		"SELECT t0.orderId AS orderId, t1.name AS name FROM orders t0 JOIN customers t1 ON t0.customerId = t1.id;",
		mustTranslate(t, tr, joined.Operation()))

	left := orders().
		Where(expr.Fn(expr.Gt(expr.Member(o, "amount"), expr.Const(10)), o)).
		LeftJoin(customers,
			expr.Fn(expr.Member(o, "customerId"), o),
			expr.Fn(expr.Member(c, "id"), c),
			nil)
	assert.Equal(t,
		"SELECT * FROM orders t0 LEFT JOIN customers t1 ON t0.customerId = t1.id WHERE t0.amount > 10;",
		mustTranslate(t, tr, left.Operation()))

	composite := orders().Join(customers,
		expr.Fn(expr.Anonymous(expr.F("", expr.Member(o, "customerId")), expr.F("", expr.Member(o, "region"))), o),
		expr.Fn(expr.Anonymous(expr.F("", expr.Member(c, "id")), expr.F("", expr.Member(c, "tier"))), c),
		nil)
	assert.Equal(t,
		"SELECT * FROM orders t0 JOIN customers t1 ON t0.customerId = t1.id AND t0.region = t1.tier;",
		mustTranslate(t, tr, composite.Operation()))
}

func TestJoinErrors(t *testing.T) {
	tr := newTranslator(t)
	o := orderParam("o")
	c := customerParam("c")
	outerKey := expr.Fn(expr.Member(o, "customerId"), o)
	innerKey := expr.Fn(expr.Member(c, "id"), c)

	cases := map[string]*query.Operation{
		"filtered inner": orders().Join(
			query.FromType[Customer]("customers").Where(expr.Fn(expr.Eq(expr.Member(c, "tier"), expr.Const("gold")), c)),
			outerKey, innerKey, nil).Operation(),
		"self join": orders().Join(orders(), outerKey, expr.Fn(expr.Member(o, "orderId"), o), nil).Operation(),
		"key count": orders().Join(query.FromType[Customer]("customers"),
			expr.Fn(expr.Anonymous(expr.F("", expr.Member(o, "customerId")), expr.F("", expr.Member(o, "region"))), o),
			expr.Fn(expr.Anonymous(expr.F("", expr.Member(c, "id"))), c),
			nil).Operation(),
		"key shape": orders().Join(query.FromType[Customer]("customers"),
			expr.Fn(expr.Anonymous(expr.F("", expr.Member(o, "customerId"))), o),
			innerKey, nil).Operation(),
	}
	for name, op := range cases {
		_, err := tr.Translate(op)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape), name)
	}

	_, err := tr.Translate(orders().Join(query.From("custmers"), outerKey, innerKey, nil).Operation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnknownSource))
	assert.Contains(t, err.Error(), "did you mean 'customers'?")
}

func TestTerminals(t *testing.T) {
	tr := newTranslator(t)
	o := orderParam("o")
	amount := expr.Member(o, "amount")
	big := expr.Fn(expr.Gt(amount, expr.Const(1000)), o)

	cases := []struct {
		name string
		op   *query.Operation
		want string
	}{
		{"count", orders().Count(), "SELECT COUNT(*) FROM orders;"},
		{"long count", orders().LongCount(big), "SELECT COUNT(*) FROM orders WHERE amount > 1000;"},
		{"any", orders().Any(big), "SELECT CASE WHEN COUNT(*) > 0 THEN TRUE ELSE FALSE END FROM orders WHERE amount > 1000;"},
		{"all", orders().All(expr.Fn(expr.Gt(amount, expr.Const(0)), o)), "SELECT CASE WHEN COUNT(*) = 0 THEN TRUE ELSE FALSE END FROM orders WHERE NOT (amount > 0);"},
		{"first", orders().First(), "SELECT * FROM orders LIMIT 1;"},
		{"single or default", orders().SingleOrDefault(expr.Fn(expr.Ne(expr.Member(o, "region"), expr.Null()), o)), "SELECT * FROM orders WHERE region IS NOT NULL LIMIT 1;"},
		{"sum", orders().Sum(expr.Fn(amount, o)), "SELECT SUM(amount) FROM orders;"},
		{"max of projection", orders().Select(expr.Fn(amount, o)).Max(), "SELECT MAX(amount) FROM orders;"},
		{"average of aliased projection", orders().Select(expr.Fn(expr.Anonymous(expr.F("total", amount)), o)).Average(), "SELECT AVG(amount) FROM orders;"},
		{"min filtered", orders().Where(big).Min(expr.Fn(expr.Member(o, "quantity"), o)), "SELECT MIN(quantity) FROM orders WHERE amount > 1000;"},
		{"sum of computed projection", orders().Select(expr.Fn(expr.Mul(amount, expr.Const(2)), o)).Sum(), "SELECT SUM(amount * 2) FROM orders;"},
		{"max of quoted projection", orders().Select(expr.Fn(expr.Anonymous(expr.F("tag", expr.Const("a AS b"))), o)).Max(), "SELECT MAX('a AS b') FROM orders;"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mustTranslate(t, tr, tc.op))
		})
	}
}

func TestTerminalErrors(t *testing.T) {
	tr := newTranslator(t)

	_, err := tr.Translate(orders().Sum())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape))

	after := &query.Operation{Kind: query.OpTake, Source: orders().Count(), Args: []expr.Node{expr.Const(1)}}
	_, err = tr.Translate(after)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape))

	o := orderParam("o")
	wide := expr.Fn(expr.Anonymous(expr.F("a", expr.Member(o, "amount")), expr.F("q", expr.Member(o, "quantity"))), o)
	for name, op := range map[string]*query.Operation{
		"distinct count":  orders().Select(expr.Fn(expr.Member(o, "region"), o)).Distinct().Count(),
		"take count":      orders().Take(5).Count(),
		"skip sum":        orders().Skip(2).Sum(expr.Fn(expr.Member(o, "amount"), o)),
		"take any":        orders().Take(3).Any(),
		"wide projection": orders().Select(wide).Max(),
	} {
		_, err = tr.Translate(op)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape), name)
	}

	_, err = tr.Translate(orders().Then(query.OpGroupJoin).Operation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnsupportedOperation))

	_, err = tr.Translate(&query.Operation{Kind: query.OpWhere})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrInvalidQueryShape))
}

func TestSourceResolution(t *testing.T) {
	tr := newTranslator(t)

	byType := query.Of(&query.Operation{Kind: query.OpSource, RecordType: reflect.TypeFor[Customer]()})
	assert.Equal(t, "SELECT * FROM customers;", mustTranslate(t, tr, byType.Operation()))

	assert.Equal(t, "SELECT * FROM orders;", mustTranslate(t, tr, query.From("ORDERS").Operation()))

	_, err := tr.Translate(query.From("ordrs").Operation())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnknownSource))

	open := ksql.New(nil)
	assert.Equal(t, "SELECT * FROM anything;", mustTranslate(t, open, query.From("anything").Operation()))
}

func TestUnsupportedExpressionAborts(t *testing.T) {
	o := orderParam("o")
	op := orders().
		Where(expr.Fn(expr.Method(expr.DeclString, "PadLeft", expr.Member(o, "customerId"), expr.Const(4)), o)).
		Operation()
	out, err := newTranslator(t).Translate(op)
	require.Error(t, err)
	assert.Empty(t, out)
	assert.True(t, errors.Is(err, ksqlerr.ErrUnsupportedMethod))
	assert.Contains(t, err.Error(), "PadLeft")
}

func TestOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	tr := newTranslator(t, ksql.WithEmitChanges(), ksql.WithLogger(logger))

	assert.Equal(t, "SELECT * FROM orders EMIT CHANGES;", mustTranslate(t, tr, orders().Operation()))
	assert.Contains(t, buf.String(), "translated query")
	assert.Contains(t, buf.String(), `"chain":"orders"`)
}
