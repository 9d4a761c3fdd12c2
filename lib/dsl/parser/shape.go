package parser

import (
	"reflect"
	"strings"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

// shape describes what a lambda parameter ranges over: the columns of a
// source or projection, or groupings of such rows. A nil shape accepts any
// member.
type shape struct {
	name    string
	record  reflect.Type
	members []string
	types   map[string]reflect.Type
	canon   map[string]string

	// grouped rows expose Key, described by key, and aggregate over elem.
	grouped bool
	elem    *shape
	key     *shape
	keyType reflect.Type
}

func newShape(name string) *shape {
	return &shape{name: name, types: map[string]reflect.Type{}, canon: map[string]string{}}
}

func (s *shape) add(member string, t reflect.Type) {
	lower := strings.ToLower(member)
	if _, ok := s.canon[lower]; ok {
		return
	}
	s.members = append(s.members, member)
	s.canon[lower] = member
	s.types[lower] = t
}

// member resolves name case-insensitively to its declared spelling.
func (s *shape) member(name string) (string, reflect.Type, bool) {
	lower := strings.ToLower(name)
	canon, ok := s.canon[lower]
	if !ok {
		return "", nil, false
	}
	return canon, s.types[lower], true
}

func shapeOfSchema(sch *schema.EntitySchema) *shape {
	s := newShape(sch.Name)
	s.record = sch.RecordType
	for _, c := range sch.Columns {
		s.add(c.Name, typemap.GoType(sch.ColumnType(c)))
	}
	return s
}

// shapeOfRecord describes an anonymous projection, or nil for any other
// expression.
func shapeOfRecord(name string, n expr.Node) *shape {
	rec, ok := n.(*expr.New)
	if !ok {
		return nil
	}
	s := newShape(name)
	for i, m := range rec.Members {
		s.add(m, expr.StaticType(rec.Args[i]))
	}
	return s
}

// projectedShape is the row shape after a Select or join result selector.
// Projecting the parameter itself keeps the row.
func projectedShape(fn *expr.Lambda, row *shape) *shape {
	if p, ok := fn.Body.(*expr.Parameter); ok && p == fn.Param() {
		return row
	}
	return shapeOfRecord("projection", fn.Body)
}

func groupedShape(key *expr.Lambda, row *shape) *shape {
	return &shape{
		name:    "grouping",
		grouped: true,
		elem:    row,
		key:     shapeOfRecord("grouping key", key.Body),
		keyType: expr.StaticType(key.Body),
	}
}
