// Package ksql compiles query operation chains into ksqlDB statements.
package ksql

import (
	"reflect"

	"github.com/rs/zerolog"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dispatch"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/query"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/statement"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/translate"
)

const (
	anyProjection = "CASE WHEN COUNT(*) > 0 THEN TRUE ELSE FALSE END"
	allProjection = "CASE WHEN COUNT(*) = 0 THEN TRUE ELSE FALSE END"
)

// Translator turns operation chains into statements. It holds no per-call
// state and is safe for concurrent use.
type Translator struct {
	provider    schema.Provider
	table       *dispatch.Table
	logger      zerolog.Logger
	emitChanges bool
}

// typeProvider is implemented by providers that can resolve a source from
// its Go record type.
type typeProvider interface {
	LookupType(t reflect.Type) (*schema.EntitySchema, error)
}

// New returns a Translator resolving sources through provider. A nil
// provider accepts every source name verbatim.
func New(provider schema.Provider, opts ...Option) *Translator {
	t := &Translator{
		provider: provider,
		table:    dispatch.NewTable(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate compiles the chain ending at op into one statement.
func (t *Translator) Translate(op *query.Operation) (string, error) {
	if op == nil {
		return "", ksqlerr.Shape("nil operation chain")
	}
	s := t.newSession(op)
	if err := s.apply(op); err != nil {
		t.logger.Debug().Err(err).Str("chain", op.String()).Msg("translation failed")
		return "", err
	}
	if t.emitChanges {
		s.b.EmitChanges()
	}
	out, err := s.b.Build()
	if err != nil {
		return "", err
	}
	t.logger.Debug().
		Str("chain", op.String()).
		Int("operations", op.Len()).
		Int("length", len(out)).
		Msg("translated query")
	return out, nil
}

// session is the state of one Translate call.
type session struct {
	t       *Translator
	exprs   *translate.Translator
	preds   *translate.Predicates
	sels    *translate.Selectors
	b       *statement.Builder
	aliases *aliasRegistry

	root       string
	joined     bool
	renamed    bool
	groupKey   *expr.Lambda
	projection expr.Node
	terminal   query.OpKind
}

func (t *Translator) newSession(op *query.Operation) *session {
	exprs := translate.New(t.table)
	s := &session{
		t:       t,
		exprs:   exprs,
		preds:   translate.NewPredicates(exprs),
		sels:    translate.NewSelectors(exprs),
		b:       statement.New(),
		aliases: newAliasRegistry(),
	}
	for cur := op; cur != nil; cur = cur.Source {
		if cur.Kind == query.OpJoin || cur.Kind == query.OpLeftJoin {
			s.joined = true
		}
	}
	return s
}

func (s *session) apply(op *query.Operation) error {
	if op.Source != nil {
		if err := s.apply(op.Source); err != nil {
			return err
		}
	} else if op.Kind != query.OpSource {
		return ksqlerr.Shape("chain starts with %s instead of a source", op.Kind)
	}
	if s.terminal != "" {
		return ksqlerr.Shape("%s after terminal %s", op.Kind, s.terminal)
	}

	switch op.Kind {
	case query.OpSource:
		return s.source(op)
	case query.OpWhere:
		fn, err := lambdaArg(op, 0)
		if err != nil {
			return err
		}
		return s.filter(fn)
	case query.OpSelect:
		return s.project(op)
	case query.OpOrderBy, query.OpOrderByDescending:
		term, err := s.sortTerm(op)
		if err != nil {
			return err
		}
		s.b.OrderBy(term)
		return nil
	case query.OpThenBy, query.OpThenByDescending:
		term, err := s.sortTerm(op)
		if err != nil {
			return err
		}
		return s.b.ThenBy(term)
	case query.OpGroupBy:
		return s.groupBy(op)
	case query.OpTake:
		n, err := intArg(op)
		if err != nil {
			return err
		}
		return s.b.SetLimit(n)
	case query.OpSkip:
		n, err := intArg(op)
		if err != nil {
			return err
		}
		return s.b.SetOffset(n)
	case query.OpJoin, query.OpLeftJoin:
		return s.join(op)
	case query.OpDistinct:
		s.b.Distinct()
		return nil
	case query.OpCount, query.OpLongCount:
		return s.count(op)
	case query.OpAny, query.OpAll:
		return s.quantifier(op)
	case query.OpFirst, query.OpFirstOrDefault, query.OpSingle, query.OpSingleOrDefault:
		return s.first(op)
	case query.OpSum, query.OpAverage, query.OpMin, query.OpMax:
		return s.aggregate(op)
	default:
		return ksqlerr.Operation(string(op.Kind))
	}
}

// resolve returns the canonical name of a source operation.
func (s *session) resolve(op *query.Operation) (string, error) {
	if s.t.provider == nil {
		if op.Name == "" {
			return "", ksqlerr.Shape("source has no name")
		}
		return op.Name, nil
	}
	if op.Name == "" && op.RecordType != nil {
		if tp, ok := s.t.provider.(typeProvider); ok {
			sch, err := tp.LookupType(op.RecordType)
			if err != nil {
				return "", err
			}
			return sch.Name, nil
		}
	}
	sch, err := s.t.provider.Lookup(op.Name)
	if err != nil {
		return "", err
	}
	return sch.Name, nil
}

func (s *session) source(op *query.Operation) error {
	name, err := s.resolve(op)
	if err != nil {
		return err
	}
	s.root = s.aliases.alias(name)
	s.b.From(name, s.root).Select("*")
	return nil
}

// bind points the row parameter of fn at what it ranges over: the grouping
// once grouped, the root alias while a join is in play.
func (s *session) bind(fn *expr.Lambda) {
	p := fn.Param()
	if p == nil {
		return
	}
	switch {
	case s.groupKey != nil:
		s.exprs.BindGroup(p, s.groupKey)
	case s.joined && !s.renamed:
		s.exprs.Bind(p, s.root)
	}
}

func (s *session) filter(fn *expr.Lambda) error {
	s.bind(fn)
	p, err := s.preds.Build(fn)
	if err != nil {
		return err
	}
	if s.groupKey != nil {
		s.b.AppendHaving(p)
	} else {
		s.b.AppendWhere(p)
	}
	return nil
}

func (s *session) project(op *query.Operation) error {
	fn, err := lambdaArg(op, 0)
	if err != nil {
		return err
	}
	s.bind(fn)
	sel, err := s.sels.Build(fn)
	if err != nil {
		return err
	}
	s.b.Select(sel)
	s.renamed = true
	s.projection = fn.Body
	return nil
}

func (s *session) sortTerm(op *query.Operation) (statement.Term, error) {
	fn, err := lambdaArg(op, 0)
	if err != nil {
		return statement.Term{}, err
	}
	s.bind(fn)
	key, err := s.exprs.Visit(fn.Body)
	if err != nil {
		return statement.Term{}, err
	}
	desc := op.Kind == query.OpOrderByDescending || op.Kind == query.OpThenByDescending
	return statement.Term{Expr: statement.TrimOuterParens(key), Desc: desc}, nil
}

func (s *session) groupBy(op *query.Operation) error {
	if s.groupKey != nil {
		return ksqlerr.Shape("GroupBy applied to an already grouped query")
	}
	fn, err := lambdaArg(op, 0)
	if err != nil {
		return err
	}
	s.bind(fn)
	key, err := s.sels.BuildGroup(fn)
	if err != nil {
		return err
	}
	s.b.GroupBy(key).Select(key)
	s.groupKey = fn
	return nil
}

func (s *session) join(op *query.Operation) error {
	inner := op.Inner
	if inner == nil || inner.Kind != query.OpSource || inner.Source != nil {
		return ksqlerr.Shape("%s needs a plain source on its inner side", op.Kind)
	}
	if s.groupKey != nil {
		return ksqlerr.Shape("%s after GroupBy", op.Kind)
	}
	name, err := s.resolve(inner)
	if err != nil {
		return err
	}
	if s.aliases.has(name) {
		return ksqlerr.Shape("self-join of %s", name)
	}
	right := s.aliases.alias(name)

	outerKey, innerKey := op.Lambda(0), op.Lambda(1)
	if outerKey == nil || innerKey == nil {
		return ksqlerr.Shape("%s needs outer and inner key selectors", op.Kind)
	}
	if !s.renamed {
		s.exprs.Bind(outerKey.Param(), s.root)
	}
	s.exprs.Bind(innerKey.Param(), right)
	on, err := s.joinCondition(outerKey.Body, innerKey.Body)
	if err != nil {
		return err
	}

	kind := statement.InnerJoin
	if op.Kind == query.OpLeftJoin {
		kind = statement.LeftJoin
	}
	s.b.Join(statement.Join{Kind: kind, Source: name, Alias: right, On: on})

	result := op.Lambda(2)
	if result == nil {
		return nil
	}
	if len(result.Params) != 2 {
		return ksqlerr.Shape("join result selector takes 2 parameters, got %d", len(result.Params))
	}
	s.exprs.Bind(result.Params[0], s.root)
	s.exprs.Bind(result.Params[1], right)
	sel, err := s.sels.Build(result)
	if err != nil {
		return err
	}
	s.b.Select(sel)
	s.renamed = true
	s.projection = result.Body
	return nil
}

// joinCondition pairs outer and inner keys. Anonymous composite keys are
// matched member by member and AND-joined.
func (s *session) joinCondition(outer, inner expr.Node) (string, error) {
	lk, lok := outer.(*expr.New)
	rk, rok := inner.(*expr.New)
	if lok != rok {
		return "", ksqlerr.Shape("join keys differ in shape: %s and %s", outer.Kind(), inner.Kind())
	}
	if !lok {
		return s.equality(outer, inner)
	}
	if len(lk.Args) != len(rk.Args) {
		return "", ksqlerr.Shape("composite join keys have %d and %d members", len(lk.Args), len(rk.Args))
	}
	on := ""
	for i := range lk.Args {
		eq, err := s.equality(lk.Args[i], rk.Args[i])
		if err != nil {
			return "", err
		}
		on = statement.And(on, eq)
	}
	return on, nil
}

func (s *session) equality(l, r expr.Node) (string, error) {
	left, err := s.exprs.Visit(l)
	if err != nil {
		return "", err
	}
	right, err := s.exprs.Visit(r)
	if err != nil {
		return "", err
	}
	return statement.TrimOuterParens(left) + " = " + statement.TrimOuterParens(right), nil
}

// optionalFilter folds the predicate of a terminal operation, if any.
func (s *session) optionalFilter(op *query.Operation) error {
	fn := op.Lambda(0)
	if fn == nil {
		if len(op.Args) > 0 {
			return ksqlerr.Shape("%s predicate must be a lambda", op.Kind)
		}
		return nil
	}
	return s.filter(fn)
}

func (s *session) count(op *query.Operation) error {
	if err := s.checkReducible(op); err != nil {
		return err
	}
	if err := s.optionalFilter(op); err != nil {
		return err
	}
	count, err := s.t.table.Call(expr.DeclEnumerable, string(op.Kind), []dispatch.Arg{{Text: "*"}})
	if err != nil {
		return err
	}
	s.b.Select(count)
	s.terminal = op.Kind
	return nil
}

// quantifier renders Any and All as a boolean over the matching row count.
func (s *session) quantifier(op *query.Operation) error {
	if err := s.checkReducible(op); err != nil {
		return err
	}
	if op.Kind == query.OpAny {
		if err := s.optionalFilter(op); err != nil {
			return err
		}
		s.b.Select(anyProjection)
		s.terminal = op.Kind
		return nil
	}

	fn, err := lambdaArg(op, 0)
	if err != nil {
		return err
	}
	s.bind(fn)
	p, err := s.preds.Build(fn)
	if err != nil {
		return err
	}
	s.b.AppendWhere(statement.Not(p))
	s.b.Select(allProjection)
	s.terminal = op.Kind
	return nil
}

func (s *session) first(op *query.Operation) error {
	if err := s.optionalFilter(op); err != nil {
		return err
	}
	if err := s.b.SetLimit(1); err != nil {
		return err
	}
	s.terminal = op.Kind
	return nil
}

// aggregate renders Sum, Average, Min and Max over the selector, or over
// the current single-column projection when there is none.
func (s *session) aggregate(op *query.Operation) error {
	if err := s.checkReducible(op); err != nil {
		return err
	}
	var operand string
	if fn := op.Lambda(0); fn != nil {
		s.bind(fn)
		text, err := s.exprs.Visit(fn.Body)
		if err != nil {
			return err
		}
		operand = statement.TrimOuterParens(text)
	} else {
		value, err := s.projectedValue(op)
		if err != nil {
			return err
		}
		text, err := s.exprs.Visit(value)
		if err != nil {
			return err
		}
		operand = statement.TrimOuterParens(text)
	}
	agg, err := s.t.table.Call(expr.DeclEnumerable, string(op.Kind), []dispatch.Arg{{Text: "*"}, {Text: operand}})
	if err != nil {
		return err
	}
	s.b.Select(agg)
	s.terminal = op.Kind
	return nil
}

// checkReducible rejects reducing grouped rows, and reducing after DISTINCT
// or a row window, which a single aggregate SELECT cannot express.
func (s *session) checkReducible(op *query.Operation) error {
	if s.groupKey != nil {
		return ksqlerr.Shape("%s over grouped rows", op.Kind)
	}
	if s.b.Narrowed() {
		return ksqlerr.Shape("%s after Distinct, Take or Skip", op.Kind)
	}
	return nil
}

// projectedValue is the single value of the current projection, unwrapping
// a one-member anonymous record.
func (s *session) projectedValue(op *query.Operation) (expr.Node, error) {
	value := s.projection
	if rec, ok := value.(*expr.New); ok && len(rec.Args) == 1 {
		value = rec.Args[0]
	}
	switch value.(type) {
	case nil, *expr.Parameter, *expr.New:
		return nil, ksqlerr.Shape("%s needs a selector or a single-column projection", op.Kind)
	}
	return value, nil
}

func lambdaArg(op *query.Operation, i int) (*expr.Lambda, error) {
	fn := op.Lambda(i)
	if fn == nil {
		return nil, ksqlerr.Shape("%s needs a lambda argument", op.Kind)
	}
	return fn, nil
}

// intArg reads the constant integer argument of Take or Skip.
func intArg(op *query.Operation) (int, error) {
	if len(op.Args) != 1 || op.Args[0] == nil {
		return 0, ksqlerr.Shape("%s takes exactly one argument", op.Kind)
	}
	v, ok, err := expr.Value(op.Args[0])
	if err != nil {
		return 0, ksqlerr.NonLiteral(string(op.Kind)).Wrap(err)
	}
	if !ok {
		return 0, ksqlerr.NonLiteral(string(op.Kind))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), nil
	}
	return 0, ksqlerr.Shape("%s count must be an integer, got %T", op.Kind, v)
}
