package ksql_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksql"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/query"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
)

type Order struct {
	OrderID    string    `ksql:"orderId,key"`
	CustomerID string    `ksql:"customerId"`
	Amount     float64   `ksql:"amount"`
	Region     *string   `ksql:"region"`
	Quantity   int32     `ksql:"quantity"`
	CreatedAt  time.Time `ksql:"createdAt,timestamp"`
}

type Customer struct {
	ID   string `ksql:"id,key"`
	Name string `ksql:"name"`
	Tier string `ksql:"tier"`
}

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	orders, err := schema.FromStruct[Order]("orders", schema.Stream)
	require.NoError(t, err)
	customers, err := schema.FromStruct[Customer]("customers", schema.Table)
	require.NoError(t, err)
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(orders, customers))
	return reg
}

func newTranslator(t *testing.T, opts ...ksql.Option) *ksql.Translator {
	t.Helper()
	return ksql.New(newRegistry(t), opts...)
}

func mustTranslate(t *testing.T, tr *ksql.Translator, op *query.Operation) string {
	t.Helper()
	out, err := tr.Translate(op)
	require.NoError(t, err)
	return out
}

func orderParam(name string) *expr.Parameter {
	return expr.ParamOf[Order](name)
}

func customerParam(name string) *expr.Parameter {
	return expr.ParamOf[Customer](name)
}

func orders() *query.Query {
	return query.FromType[Order]("orders")
}
