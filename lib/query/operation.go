// Package query models the chained query operations a caller composes over a
// registered source, and a fluent builder for them.
package query

import (
	"reflect"
	"strings"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
)

// OpKind names a chain operation.
type OpKind string

const (
	OpSource            OpKind = "Source"
	OpWhere             OpKind = "Where"
	OpSelect            OpKind = "Select"
	OpOrderBy           OpKind = "OrderBy"
	OpOrderByDescending OpKind = "OrderByDescending"
	OpThenBy            OpKind = "ThenBy"
	OpThenByDescending  OpKind = "ThenByDescending"
	OpGroupBy           OpKind = "GroupBy"
	OpTake              OpKind = "Take"
	OpSkip              OpKind = "Skip"
	OpJoin              OpKind = "Join"
	OpLeftJoin          OpKind = "LeftJoin"
	OpGroupJoin         OpKind = "GroupJoin"
	OpDistinct          OpKind = "Distinct"
	OpCount             OpKind = "Count"
	OpLongCount         OpKind = "LongCount"
	OpAny               OpKind = "Any"
	OpAll               OpKind = "All"
	OpFirst             OpKind = "First"
	OpFirstOrDefault    OpKind = "FirstOrDefault"
	OpSingle            OpKind = "Single"
	OpSingleOrDefault   OpKind = "SingleOrDefault"
	OpSum               OpKind = "Sum"
	OpAverage           OpKind = "Average"
	OpMin               OpKind = "Min"
	OpMax               OpKind = "Max"
)

// Operation is one link of a query chain. Source points at the previous
// link and is nil only for OpSource, which names the stream or table.
//
// Join and LeftJoin carry the inner chain in Inner and their lambdas in Args
// as outer key, inner key and an optional result selector.
type Operation struct {
	Kind       OpKind
	Source     *Operation
	Inner      *Operation
	Name       string
	RecordType reflect.Type
	Args       []expr.Node
}

// Root walks Source links back to the OpSource operation.
func (op *Operation) Root() *Operation {
	for op != nil && op.Source != nil {
		op = op.Source
	}
	return op
}

// Len is the number of operations in the chain.
func (op *Operation) Len() int {
	n := 0
	for ; op != nil; op = op.Source {
		n++
	}
	return n
}

// Lambda returns Args[i] as a lambda, or nil.
func (op *Operation) Lambda(i int) *expr.Lambda {
	if i >= len(op.Args) {
		return nil
	}
	fn, _ := op.Args[i].(*expr.Lambda)
	return fn
}

// String renders the chain as source.Op1.Op2, for logs.
func (op *Operation) String() string {
	if op == nil {
		return "<nil>"
	}
	var parts []string
	for cur := op; cur != nil; cur = cur.Source {
		if cur.Kind == OpSource {
			parts = append(parts, cur.Name)
			continue
		}
		parts = append(parts, string(cur.Kind))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}
