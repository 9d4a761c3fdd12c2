// Package typemap maps Go types to KSQL DDL type names and Go values to KSQL
// literals.
package typemap

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
)

// Enum is implemented by enumerations that render by name rather than ordinal.
type Enum interface {
	EnumName() string
}

// Precision overrides the default DECIMAL(18,2) of a column.
type Precision struct {
	Precision int `yaml:"precision" json:"precision"`
	Scale     int `yaml:"scale" json:"scale"`
}

// DefaultPrecision is used when a decimal column carries no override.
var DefaultPrecision = Precision{Precision: 18, Scale: 2}

const timestampLayout = "2006-01-02T15:04:05.000"

var (
	enumType     = reflect.TypeFor[Enum]()
	decimalType  = reflect.TypeFor[apd.Decimal]()
	uuidType     = reflect.TypeFor[uuid.UUID]()
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
)

// Decimal renders the DECIMAL type for p, or the default when p is nil.
func Decimal(p *Precision) string {
	if p == nil {
		p = &DefaultPrecision
	}
	return fmt.Sprintf("DECIMAL(%d, %d)", p.Precision, p.Scale)
}

// DDLType maps t to its KSQL column type.
func DDLType(t reflect.Type) (string, error) {
	return DDLTypeWithPrecision(t, nil)
}

// DDLTypeWithPrecision is DDLType with a decimal override for the top-level
// type.
func DDLTypeWithPrecision(t reflect.Type, p *Precision) (string, error) {
	return ddlType(t, p, map[reflect.Type]bool{})
}

func ddlType(t reflect.Type, p *Precision, seen map[reflect.Type]bool) (string, error) {
	if t == nil {
		return "", ksqlerr.Mapping("<nil>")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case decimalType:
		return Decimal(p), nil
	case uuidType:
		return "VARCHAR", nil
	case timeType:
		return "TIMESTAMP", nil
	case durationType:
		return "TIME", nil
	}
	if t.Implements(enumType) || reflect.PointerTo(t).Implements(enumType) {
		return "VARCHAR", nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return "BOOLEAN", nil
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return "SMALLINT", nil
	case reflect.Int32, reflect.Uint16:
		return "INTEGER", nil
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return "BIGINT", nil
	case reflect.Float32:
		return "REAL", nil
	case reflect.Float64:
		return "DOUBLE", nil
	case reflect.String:
		return "VARCHAR", nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return "BYTES", nil
		}
		elem, err := ddlType(t.Elem(), nil, seen)
		if err != nil {
			return "", err
		}
		return "ARRAY<" + elem + ">", nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return "", ksqlerr.Mapping(t.String())
		}
		elem, err := ddlType(t.Elem(), nil, seen)
		if err != nil {
			return "", err
		}
		return "MAP<VARCHAR, " + elem + ">", nil
	case reflect.Struct:
		return structType(t, seen)
	}
	return "", ksqlerr.Mapping(t.String())
}

func structType(t reflect.Type, seen map[reflect.Type]bool) (string, error) {
	if seen[t] {
		return "", ksqlerr.Mapping("recursive " + t.String())
	}
	seen[t] = true
	defer delete(seen, t)

	var fields []string
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := ColumnName(f)
		if name == "-" {
			continue
		}
		ddl, err := ddlType(f.Type, nil, seen)
		if err != nil {
			return "", err
		}
		fields = append(fields, name+" "+ddl)
	}
	if len(fields) == 0 {
		return "", ksqlerr.Mapping(t.String())
	}
	return "STRUCT<" + strings.Join(fields, ", ") + ">", nil
}

// ColumnName is the KSQL name of a struct field: its ksql tag when present,
// the field name otherwise.
func ColumnName(f reflect.StructField) string {
	tag := f.Tag.Get("ksql")
	if i := strings.IndexByte(tag, ','); i >= 0 {
		tag = tag[:i]
	}
	if tag != "" {
		return tag
	}
	return f.Name
}

// Literal renders v as a KSQL literal.
func Literal(v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return "NULL", nil
	}
	switch x := v.(type) {
	case Enum:
		return Quote(x.EnumName()), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return Quote(x), nil
	case uuid.UUID:
		return Quote(x.String()), nil
	case apd.Decimal:
		return x.Text('f'), nil
	case *apd.Decimal:
		return x.Text('f'), nil
	case time.Time:
		return Quote(x.UTC().Format(timestampLayout)), nil
	case time.Duration:
		return Quote(formatDuration(x)), nil
	case []byte:
		return "", ksqlerr.Mapping("[]uint8")
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", ksqlerr.Mapping(fmt.Sprintf("%s(%v)", rv.Type(), f))
		}
		bits := 64
		if rv.Kind() == reflect.Float32 {
			bits = 32
		}
		return strconv.FormatFloat(f, 'f', -1, bits), nil
	case reflect.String:
		return Quote(rv.String()), nil
	case reflect.Bool:
		return Literal(rv.Bool())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "NULL", nil
		}
		return Literal(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "NULL", nil
		}
		items, err := Elements(v)
		if err != nil {
			return "", err
		}
		return "ARRAY[" + strings.Join(items, ", ") + "]", nil
	}
	return "", ksqlerr.Mapping(rv.Type().String())
}

// Elements renders each element of a slice or array as a literal, in order.
func Elements(v any) ([]string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, ksqlerr.Mapping(fmt.Sprintf("%T", v))
	}
	out := make([]string, rv.Len())
	for i := range out {
		lit, err := Literal(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = lit
	}
	return out, nil
}

// Quote wraps s in single quotes, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatDuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	out := fmt.Sprintf("%02d:%02d:%02d", int64(h), int64(m), int64(s))
	if ms := d / time.Millisecond; ms > 0 {
		out += fmt.Sprintf(".%03d", int64(ms))
	}
	if neg {
		out = "-" + out
	}
	return out
}

// IsText reports whether t renders as VARCHAR.
func IsText(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == uuidType {
		return true
	}
	if t.Implements(enumType) {
		return false
	}
	return t.Kind() == reflect.String
}

var ddlGoTypes = map[string]reflect.Type{
	"BOOLEAN":   reflect.TypeFor[bool](),
	"SMALLINT":  reflect.TypeFor[int16](),
	"INTEGER":   reflect.TypeFor[int32](),
	"INT":       reflect.TypeFor[int32](),
	"BIGINT":    reflect.TypeFor[int64](),
	"REAL":      reflect.TypeFor[float32](),
	"DOUBLE":    reflect.TypeFor[float64](),
	"VARCHAR":   reflect.TypeFor[string](),
	"STRING":    reflect.TypeFor[string](),
	"TIMESTAMP": timeType,
	"TIME":      durationType,
	"DATE":      timeType,
	"BYTES":     reflect.TypeFor[[]byte](),
}

// GoType is the inverse of DDLType for scalar, DECIMAL, ARRAY and MAP types.
// It returns nil for anything it cannot resolve, STRUCT included.
func GoType(ddl string) reflect.Type {
	ddl = strings.ToUpper(strings.TrimSpace(ddl))
	if t, ok := ddlGoTypes[ddl]; ok {
		return t
	}
	switch {
	case strings.HasPrefix(ddl, "DECIMAL"):
		return decimalType
	case strings.HasPrefix(ddl, "ARRAY<") && strings.HasSuffix(ddl, ">"):
		if elem := GoType(ddl[len("ARRAY<") : len(ddl)-1]); elem != nil {
			return reflect.SliceOf(elem)
		}
	case strings.HasPrefix(ddl, "MAP<") && strings.HasSuffix(ddl, ">"):
		inner := ddl[len("MAP<") : len(ddl)-1]
		if i := strings.IndexByte(inner, ','); i > 0 {
			if elem := GoType(inner[i+1:]); elem != nil {
				return reflect.MapOf(reflect.TypeFor[string](), elem)
			}
		}
	}
	return nil
}
