package translate

import (
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/statement"
)

// Selectors renders SELECT lists and GROUP BY keys.
type Selectors struct {
	t *Translator
}

// NewSelectors returns a selector builder backed by t.
func NewSelectors(t *Translator) *Selectors {
	return &Selectors{t: t}
}

// Build renders a projection. A bare parameter selects every column.
func (s *Selectors) Build(projection expr.Node) (string, error) {
	body := projection
	if fn, ok := projection.(*expr.Lambda); ok && fn != nil {
		body = fn.Body
	}
	if _, ok := body.(*expr.Parameter); ok {
		return "*", nil
	}
	out, err := s.t.Visit(body)
	if err != nil {
		return "", err
	}
	return statement.TrimOuterParens(out), nil
}

// BuildGroup renders a GROUP BY key: a single member, or the comma list of
// an anonymous record's members.
func (s *Selectors) BuildGroup(key expr.Node) (string, error) {
	fn, ok := key.(*expr.Lambda)
	if !ok || fn == nil {
		fn = &expr.Lambda{Body: key}
	}
	switch fn.Body.(type) {
	case *expr.MemberAccess, *expr.New:
		return keyList(s.t, fn)
	}
	return "", ksqlerr.Shape("grouping key must be a member or an anonymous record, got %s", kindOf(fn.Body))
}
