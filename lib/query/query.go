package query

import (
	"reflect"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
)

// Query is an immutable fluent handle on an operation chain. Every method
// returns a new Query; the receiver is left unchanged.
type Query struct {
	op *Operation
}

// From starts a chain over the named source.
func From(name string) *Query {
	return &Query{op: &Operation{Kind: OpSource, Name: name}}
}

// FromType starts a chain over the named source whose rows are T.
func FromType[T any](name string) *Query {
	return &Query{op: &Operation{Kind: OpSource, Name: name, RecordType: reflect.TypeFor[T]()}}
}

// Of wraps an existing chain.
func Of(op *Operation) *Query {
	return &Query{op: op}
}

// Operation returns the chain built so far.
func (q *Query) Operation() *Operation {
	return q.op
}

// Then appends an arbitrary operation.
func (q *Query) Then(kind OpKind, args ...expr.Node) *Query {
	return &Query{op: &Operation{Kind: kind, Source: q.op, Args: args}}
}

func (q *Query) Where(predicate *expr.Lambda) *Query     { return q.Then(OpWhere, predicate) }
func (q *Query) Select(projection *expr.Lambda) *Query   { return q.Then(OpSelect, projection) }
func (q *Query) GroupBy(key *expr.Lambda) *Query         { return q.Then(OpGroupBy, key) }
func (q *Query) OrderBy(key *expr.Lambda) *Query         { return q.Then(OpOrderBy, key) }
func (q *Query) ThenBy(key *expr.Lambda) *Query          { return q.Then(OpThenBy, key) }
func (q *Query) Distinct() *Query                        { return q.Then(OpDistinct) }
func (q *Query) TakeExpr(n expr.Node) *Query             { return q.Then(OpTake, n) }
func (q *Query) SkipExpr(n expr.Node) *Query             { return q.Then(OpSkip, n) }
func (q *Query) Take(n int) *Query                       { return q.TakeExpr(expr.Const(n)) }
func (q *Query) Skip(n int) *Query                       { return q.SkipExpr(expr.Const(n)) }
func (q *Query) OrderByDescending(k *expr.Lambda) *Query { return q.Then(OpOrderByDescending, k) }
func (q *Query) ThenByDescending(k *expr.Lambda) *Query  { return q.Then(OpThenByDescending, k) }

// Join equi-joins inner on outerKey = innerKey. result may be nil.
func (q *Query) Join(inner *Query, outerKey, innerKey, result *expr.Lambda) *Query {
	return q.join(OpJoin, inner, outerKey, innerKey, result)
}

// LeftJoin is Join keeping unmatched outer rows.
func (q *Query) LeftJoin(inner *Query, outerKey, innerKey, result *expr.Lambda) *Query {
	return q.join(OpLeftJoin, inner, outerKey, innerKey, result)
}

func (q *Query) join(kind OpKind, inner *Query, outerKey, innerKey, result *expr.Lambda) *Query {
	args := []expr.Node{outerKey, innerKey}
	if result != nil {
		args = append(args, result)
	}
	op := &Operation{Kind: kind, Source: q.op, Args: args}
	if inner != nil {
		op.Inner = inner.op
	}
	return &Query{op: op}
}

// Terminal operations end the chain and return it.

func (q *Query) Count(predicate ...*expr.Lambda) *Operation {
	return q.terminal(OpCount, predicate)
}

func (q *Query) LongCount(predicate ...*expr.Lambda) *Operation {
	return q.terminal(OpLongCount, predicate)
}

func (q *Query) Any(predicate ...*expr.Lambda) *Operation {
	return q.terminal(OpAny, predicate)
}

func (q *Query) All(predicate *expr.Lambda) *Operation {
	return q.Then(OpAll, predicate).op
}

func (q *Query) First(predicate ...*expr.Lambda) *Operation {
	return q.terminal(OpFirst, predicate)
}

func (q *Query) FirstOrDefault(predicate ...*expr.Lambda) *Operation {
	return q.terminal(OpFirstOrDefault, predicate)
}

func (q *Query) Single(predicate ...*expr.Lambda) *Operation {
	return q.terminal(OpSingle, predicate)
}

func (q *Query) SingleOrDefault(predicate ...*expr.Lambda) *Operation {
	return q.terminal(OpSingleOrDefault, predicate)
}

func (q *Query) Sum(selector ...*expr.Lambda) *Operation {
	return q.terminal(OpSum, selector)
}

func (q *Query) Average(selector ...*expr.Lambda) *Operation {
	return q.terminal(OpAverage, selector)
}

func (q *Query) Min(selector ...*expr.Lambda) *Operation {
	return q.terminal(OpMin, selector)
}

func (q *Query) Max(selector ...*expr.Lambda) *Operation {
	return q.terminal(OpMax, selector)
}

func (q *Query) terminal(kind OpKind, fns []*expr.Lambda) *Operation {
	args := make([]expr.Node, 0, len(fns))
	for _, fn := range fns {
		if fn != nil {
			args = append(args, fn)
		}
	}
	return q.Then(kind, args...).op
}
