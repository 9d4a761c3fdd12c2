package translate

import (
	"strings"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/statement"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

// Predicates composes translator output into WHERE and HAVING fragments.
// An empty string is the "no filter" predicate.
type Predicates struct {
	t *Translator
}

// NewPredicates returns a predicate builder backed by t.
func NewPredicates(t *Translator) *Predicates {
	return &Predicates{t: t}
}

// Build renders the body of fn as a predicate.
func (p *Predicates) Build(fn *expr.Lambda) (string, error) {
	if fn == nil {
		return "", ksqlerr.Shape("predicate has no lambda")
	}
	s, err := p.t.Visit(fn.Body)
	if err != nil {
		return "", err
	}
	return statement.TrimOuterParens(s), nil
}

// BuildWithParameter renders fn with its parameter replaced by replacement.
func (p *Predicates) BuildWithParameter(fn *expr.Lambda, replacement expr.Node) (string, error) {
	if fn == nil {
		return "", ksqlerr.Shape("predicate has no lambda")
	}
	param := fn.Param()
	if param == nil {
		return p.Build(fn)
	}
	return p.Build(&expr.Lambda{Params: fn.Params, Body: expr.Replace(fn.Body, param, replacement)})
}

func (p *Predicates) And(l, r string) string { return statement.And(l, r) }
func (p *Predicates) Or(l, r string) string  { return statement.Or(l, r) }
func (p *Predicates) Not(s string) string    { return statement.Not(s) }

// In renders selector IN (values...). No values yields the always-false 1=0.
func (p *Predicates) In(selector *expr.Lambda, values []any) (string, error) {
	if len(values) == 0 {
		return "1=0", nil
	}
	sel, err := p.operand(selector)
	if err != nil {
		return "", err
	}
	items := make([]string, len(values))
	for i, v := range values {
		if items[i], err = typemap.Literal(v); err != nil {
			return "", err
		}
	}
	return sel + " IN (" + strings.Join(items, ", ") + ")", nil
}

// Between renders an inclusive range test.
func (p *Predicates) Between(selector *expr.Lambda, lo, hi any) (string, error) {
	sel, err := p.operand(selector)
	if err != nil {
		return "", err
	}
	l, err := typemap.Literal(lo)
	if err != nil {
		return "", err
	}
	h, err := typemap.Literal(hi)
	if err != nil {
		return "", err
	}
	return sel + " BETWEEN " + l + " AND " + h, nil
}

// Like renders a pattern match; pattern is used verbatim apart from quoting.
func (p *Predicates) Like(selector *expr.Lambda, pattern string) (string, error) {
	sel, err := p.operand(selector)
	if err != nil {
		return "", err
	}
	return sel + " LIKE " + typemap.Quote(pattern), nil
}

func (p *Predicates) IsNull(selector *expr.Lambda) (string, error) {
	sel, err := p.operand(selector)
	if err != nil {
		return "", err
	}
	return sel + " IS NULL", nil
}

func (p *Predicates) IsNotNull(selector *expr.Lambda) (string, error) {
	sel, err := p.operand(selector)
	if err != nil {
		return "", err
	}
	return sel + " IS NOT NULL", nil
}

// Exists always fails: KSQL has no EXISTS subquery.
func (p *Predicates) Exists(any) (string, error) {
	return "", ksqlerr.Operation("Exists")
}

func (p *Predicates) operand(selector *expr.Lambda) (string, error) {
	if selector == nil {
		return "", ksqlerr.Shape("predicate has no selector")
	}
	s, err := p.t.Visit(selector.Body)
	if err != nil {
		return "", err
	}
	return statement.TrimOuterParens(s), nil
}
