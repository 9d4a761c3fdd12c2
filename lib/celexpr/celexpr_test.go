package celexpr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/celexpr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksql"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/query"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
)

var orders = &schema.EntitySchema{
	Name: "orders",
	Kind: schema.Stream,
	Columns: []schema.Column{
		{Name: "orderId", Type: "VARCHAR", Key: true},
		{Name: "customerId", Type: "VARCHAR"},
		{Name: "amount", Type: "DOUBLE"},
		{Name: "region", Type: "VARCHAR"},
		{Name: "quantity", Type: "INTEGER"},
		{Name: "createdAt", Type: "TIMESTAMP"},
	},
}

func translate(t *testing.T, filter string) (string, error) {
	t.Helper()
	row := expr.Param("row", nil)
	fn, err := celexpr.Predicate(filter, row, celexpr.WithSchema(orders))
	if err != nil {
		return "", err
	}
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(orders))
	return ksql.New(reg).Translate(query.From("orders").Where(fn).Operation())
}

func TestPredicate(t *testing.T) {
	cases := []struct {
		filter string
		want   string
	}{
		{
			filter: `amount > 1000.0 && region in ['EU', 'US']`,
			want:   "SELECT * FROM orders WHERE (amount > 1000) AND region IN ('EU', 'US');",
		},
		{
			filter: `region.startsWith('EU') || size(customerId) > 3`,
			want:   "SELECT * FROM orders WHERE region LIKE 'EU%' OR (LEN(customerId) > 3);",
		},
		{
			filter: `row.region == null`,
			want:   "SELECT * FROM orders WHERE region IS NULL;",
		},
		{
			filter: `!(quantity < 2)`,
			want:   "SELECT * FROM orders WHERE NOT (quantity < 2);",
		},
		{
			filter: `double(quantity) / 2.0 > 1.5`,
			want:   "SELECT * FROM orders WHERE (CAST(quantity AS DOUBLE) / 2) > 1.5;",
		},
		{
			filter: `createdAt >= timestamp('2024-01-02T03:04:05Z')`,
			want:   "SELECT * FROM orders WHERE createdAt >= '2024-01-02T03:04:05.000';",
		},
		{
			filter: `REGION.endsWith('U') && customerId != 'c-1'`,
			want:   "SELECT * FROM orders WHERE region LIKE '%U' AND (customerId <> 'c-1');",
		},
	}
	for _, tc := range cases {
		t.Run(tc.filter, func(t *testing.T) {
			out, err := translate(t, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestPredicateWithoutSchema(t *testing.T) {
	row := expr.Param("r", nil)
	fn, err := celexpr.Predicate(`status == 'open'`, row)
	require.NoError(t, err)
	assert.Same(t, row, fn.Param())

	eq, ok := fn.Body.(*expr.Binary)
	require.True(t, ok)
	assert.Equal(t, expr.OpEqual, eq.Op)
	m, ok := eq.Left.(*expr.MemberAccess)
	require.True(t, ok)
	assert.Equal(t, "status", m.Member)
	assert.Same(t, row, m.Target)
}

func TestPredicateErrors(t *testing.T) {
	cases := []struct {
		filter string
		want   string
	}{
		{`amout > 1.0`, "unknown column amout on orders (did you mean 'amount'?)"},
		{`amount >`, "invalid filter"},
		{`has(row.region)`, "has() is not supported"},
		{`region in customerId`, "the right side of in must be a list"},
		{`region.matches('E.*')`, "unsupported method string.matches"},
		{`size(amount) > 1`, "size() needs a string column"},
		{`createdAt > timestamp(region)`, "timestamp() requires a constant argument"},
		{``, "empty filter"},
	}
	for _, tc := range cases {
		t.Run(tc.filter, func(t *testing.T) {
			_, err := translate(t, tc.filter)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)

			var kerr *ksqlerr.Error
			assert.True(t, errors.As(err, &kerr), "got %T", err)
		})
	}
}

func TestPredicateRequiresParameter(t *testing.T) {
	_, err := celexpr.Predicate("true", nil)
	require.Error(t, err)
}
