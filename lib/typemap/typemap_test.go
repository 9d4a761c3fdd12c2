package typemap_test

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

type status int

func (s status) EnumName() string {
	switch s {
	case 1:
		return "Shipped"
	default:
		return "Pending"
	}
}

type address struct {
	Street string
	Zip    int32 `ksql:"zip_code"`
	hidden bool
}

type node struct {
	Name string
	Next *node
}

func TestDDLType(t *testing.T) {
	cases := []struct {
		typ  reflect.Type
		want string
	}{
		{reflect.TypeFor[bool](), "BOOLEAN"},
		{reflect.TypeFor[int8](), "SMALLINT"},
		{reflect.TypeFor[int16](), "SMALLINT"},
		{reflect.TypeFor[uint8](), "SMALLINT"},
		{reflect.TypeFor[int32](), "INTEGER"},
		{reflect.TypeFor[uint16](), "INTEGER"},
		{reflect.TypeFor[int](), "BIGINT"},
		{reflect.TypeFor[int64](), "BIGINT"},
		{reflect.TypeFor[uint64](), "BIGINT"},
		{reflect.TypeFor[float32](), "REAL"},
		{reflect.TypeFor[float64](), "DOUBLE"},
		{reflect.TypeFor[apd.Decimal](), "DECIMAL(18, 2)"},
		{reflect.TypeFor[string](), "VARCHAR"},
		{reflect.TypeFor[uuid.UUID](), "VARCHAR"},
		{reflect.TypeFor[time.Time](), "TIMESTAMP"},
		{reflect.TypeFor[time.Duration](), "TIME"},
		{reflect.TypeFor[[]byte](), "BYTES"},
		{reflect.TypeFor[[]string](), "ARRAY<VARCHAR>"},
		{reflect.TypeFor[map[string]float64](), "MAP<VARCHAR, DOUBLE>"},
		{reflect.TypeFor[status](), "VARCHAR"},
		{reflect.TypeFor[*int32](), "INTEGER"},
		{reflect.TypeFor[address](), "STRUCT<Street VARCHAR, zip_code INTEGER>"},
	}
	for _, tc := range cases {
		got, err := typemap.DDLType(tc.typ)
		require.NoError(t, err, tc.typ.String())
		assert.Equal(t, tc.want, got, tc.typ.String())
	}
}

func TestDDLTypePrecisionOverride(t *testing.T) {
	got, err := typemap.DDLTypeWithPrecision(reflect.TypeFor[apd.Decimal](), &typemap.Precision{Precision: 10, Scale: 4})
	require.NoError(t, err)
	assert.Equal(t, "DECIMAL(10, 4)", got)
	assert.Equal(t, "DECIMAL(18, 2)", typemap.Decimal(nil))
}

func TestDDLTypeFailures(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeFor[chan int](),
		reflect.TypeFor[func()](),
		reflect.TypeFor[map[int]string](),
		reflect.TypeFor[node](),
	} {
		_, err := typemap.DDLType(typ)
		require.Error(t, err, typ.String())
		assert.True(t, errors.Is(err, ksqlerr.ErrTypeMapping), typ.String())
	}
}

func TestLiteral(t *testing.T) {
	var nilPtr *int
	var nilStatus *status
	var nilDecimal *apd.Decimal
	dec, _, err := apd.NewFromString("1234.50")
	require.NoError(t, err)
	id := uuid.MustParse("6f1c2f64-62b0-4a6e-9c55-2bb1b2a0f4c1")

	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "NULL"},
		{"nil pointer", nilPtr, "NULL"},
		{"true", true, "TRUE"},
		{"false", false, "FALSE"},
		{"int", 1000, "1000"},
		{"negative", int64(-7), "-7"},
		{"uint", uint16(7), "7"},
		{"float", 12.5, "12.5"},
		{"decimal", *dec, "1234.50"},
		{"decimal pointer", dec, "1234.50"},
		{"string", "A", "'A'"},
		{"quoted string", "O'Brien", "'O''Brien'"},
		{"uuid", id, "'6f1c2f64-62b0-4a6e-9c55-2bb1b2a0f4c1'"},
		{"time", time.Date(2024, 3, 1, 10, 30, 0, 5e6, time.UTC), "'2024-03-01T10:30:00.005'"},
		{"duration", 90*time.Minute + 1500*time.Millisecond, "'01:30:01.500'"},
		{"enum", status(1), "'Shipped'"},
		{"nil enum pointer", nilStatus, "NULL"},
		{"nil decimal pointer", nilDecimal, "NULL"},
		{"array", []string{"A", "B"}, "ARRAY['A', 'B']"},
		{"pointer", &id, "'6f1c2f64-62b0-4a6e-9c55-2bb1b2a0f4c1'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := typemap.Literal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLiteralEscapingLeavesNoBareQuote(t *testing.T) {
	for _, s := range []string{"'", "''", "a'b'c", "it's", "'leading", "trailing'"} {
		got, err := typemap.Literal(s)
		require.NoError(t, err)
		inner := got[1 : len(got)-1]
		assert.Equal(t, s, strings.ReplaceAll(inner, "''", "'"))
		assert.NotContains(t, strings.ReplaceAll(inner, "''", ""), "'")
	}
}

func TestLiteralFailures(t *testing.T) {
	for _, v := range []any{math.NaN(), math.Inf(1), struct{ A int }{1}, make(chan int), []byte("x")} {
		_, err := typemap.Literal(v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ksqlerr.ErrTypeMapping))
	}
}

func TestGoType(t *testing.T) {
	assert.Equal(t, reflect.TypeFor[int64](), typemap.GoType("BIGINT"))
	assert.Equal(t, reflect.TypeFor[string](), typemap.GoType("varchar"))
	assert.Equal(t, reflect.TypeFor[apd.Decimal](), typemap.GoType("DECIMAL(10, 2)"))
	assert.Equal(t, reflect.TypeFor[[]int32](), typemap.GoType("ARRAY<INTEGER>"))
	assert.Equal(t, reflect.TypeFor[map[string]float64](), typemap.GoType("MAP<VARCHAR, DOUBLE>"))
	assert.Nil(t, typemap.GoType("STRUCT<a INT>"))
}

func TestIsText(t *testing.T) {
	assert.True(t, typemap.IsText(reflect.TypeFor[string]()))
	assert.True(t, typemap.IsText(reflect.TypeFor[*string]()))
	assert.True(t, typemap.IsText(reflect.TypeFor[uuid.UUID]()))
	assert.False(t, typemap.IsText(reflect.TypeFor[int]()))
	assert.False(t, typemap.IsText(nil))
}
