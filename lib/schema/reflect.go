package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

// FromStruct derives a schema from the exported fields of T. Field options
// follow the column name in the ksql tag:
//
//	OrderID string          `ksql:"orderId,key"`
//	Amount  apd.Decimal     `ksql:"amount,decimal=10:2"`
//	At      time.Time       `ksql:"createdAt,timestamp"`
//	Secret  string          `ksql:"-"`
func FromStruct[T any](name string, kind Kind) (*EntitySchema, error) {
	return FromType(reflect.TypeFor[T](), name, kind)
}

// FromType is FromStruct for a runtime type.
func FromType(t reflect.Type, name string, kind Kind) (*EntitySchema, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %v is not a struct", t)
	}
	s := &EntitySchema{Name: name, Kind: kind, RecordType: t}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		col := typemap.ColumnName(f)
		if col == "-" {
			continue
		}
		var prec *typemap.Precision
		opts := tagOptions(f.Tag.Get("ksql"))
		if v, ok := opts["decimal"]; ok {
			p, err := parsePrecision(v)
			if err != nil {
				return nil, fmt.Errorf("schema: field %s.%s: %w", t.Name(), f.Name, err)
			}
			prec = &p
			if s.Decimals == nil {
				s.Decimals = map[string]typemap.Precision{}
			}
			s.Decimals[col] = p
		}
		ddl, err := typemap.DDLTypeWithPrecision(f.Type, prec)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s.%s: %w", t.Name(), f.Name, err)
		}
		_, key := opts["key"]
		s.Columns = append(s.Columns, Column{Name: col, Type: ddl, Key: key})
		if _, ok := opts["timestamp"]; ok {
			s.Timestamp = &Timestamp{Column: col}
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func tagOptions(tag string) map[string]string {
	opts := map[string]string{}
	parts := strings.Split(tag, ",")
	for _, p := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(p), "=")
		if k != "" {
			opts[k] = v
		}
	}
	return opts
}

func parsePrecision(v string) (typemap.Precision, error) {
	var p typemap.Precision
	if _, err := fmt.Sscanf(v, "%d:%d", &p.Precision, &p.Scale); err != nil {
		return p, fmt.Errorf("invalid decimal precision %q, want p:s", v)
	}
	if p.Precision <= 0 || p.Scale < 0 || p.Scale > p.Precision {
		return p, fmt.Errorf("invalid decimal precision %q", v)
	}
	return p, nil
}
