// Package statement assembles translated fragments into one KSQL SELECT
// statement. It knows nothing about expression trees.
package statement

import (
	"slices"
	"strconv"
	"strings"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
)

// Term is one ORDER BY key.
type Term struct {
	Expr string
	Desc bool
}

// JoinKind selects the JOIN keyword.
type JoinKind string

const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
)

// Join is one JOIN clause.
type Join struct {
	Kind   JoinKind
	Source string
	Alias  string
	On     string
}

// Builder accumulates clauses and renders them in canonical order. It is
// not safe for concurrent use.
type Builder struct {
	selectList  string
	distinct    bool
	from        string
	fromAlias   string
	joins       []Join
	where       string
	groupBy     string
	having      string
	orderBy     []Term
	emitChanges bool
	limit       *int
	offset      *int
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Select replaces the select list.
func (b *Builder) Select(s string) *Builder {
	b.selectList = s
	return b
}

// Narrowed reports whether DISTINCT or a row window (LIMIT, OFFSET) is set.
func (b *Builder) Narrowed() bool {
	return b.distinct || b.limit != nil || b.offset != nil
}

// Distinct marks the statement SELECT DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// From sets the source and its alias. The alias renders only when the
// statement has joins.
func (b *Builder) From(source, alias string) *Builder {
	b.from = source
	b.fromAlias = alias
	return b
}

// Join appends a JOIN clause.
func (b *Builder) Join(j Join) *Builder {
	if j.Kind == "" {
		j.Kind = InnerJoin
	}
	b.joins = append(b.joins, j)
	return b
}

// HasJoins reports whether any JOIN was added.
func (b *Builder) HasJoins() bool {
	return len(b.joins) > 0
}

// AppendWhere AND-folds p into the WHERE clause.
func (b *Builder) AppendWhere(p string) *Builder {
	b.where = And(b.where, TrimOuterParens(p))
	return b
}

// Where returns the current WHERE predicate.
func (b *Builder) Where() string {
	return b.where
}

// GroupBy sets the GROUP BY list.
func (b *Builder) GroupBy(g string) *Builder {
	b.groupBy = g
	return b
}

// Grouped reports whether GROUP BY is set.
func (b *Builder) Grouped() bool {
	return b.groupBy != ""
}

// AppendHaving AND-folds p into the HAVING clause.
func (b *Builder) AppendHaving(p string) *Builder {
	b.having = And(b.having, TrimOuterParens(p))
	return b
}

// OrderBy replaces the sort keys.
func (b *Builder) OrderBy(terms ...Term) *Builder {
	b.orderBy = slices.Clone(terms)
	return b
}

// ThenBy appends a secondary sort key. It fails without a primary key.
func (b *Builder) ThenBy(t Term) error {
	if len(b.orderBy) == 0 {
		return ksqlerr.Shape("ThenBy requires a preceding OrderBy")
	}
	b.orderBy = append(b.orderBy, t)
	return nil
}

// Ordered reports whether ORDER BY is set.
func (b *Builder) Ordered() bool {
	return len(b.orderBy) > 0
}

// SetLimit sets LIMIT. n must be positive.
func (b *Builder) SetLimit(n int) error {
	if n <= 0 {
		return ksqlerr.Shape("limit must be positive, got %d", n)
	}
	b.limit = &n
	return nil
}

// SetOffset sets OFFSET. n must not be negative.
func (b *Builder) SetOffset(n int) error {
	if n < 0 {
		return ksqlerr.Shape("offset must not be negative, got %d", n)
	}
	b.offset = &n
	return nil
}

// EmitChanges turns the statement into a push query.
func (b *Builder) EmitChanges() *Builder {
	b.emitChanges = true
	return b
}

// Clone returns an independent deep copy.
func (b *Builder) Clone() *Builder {
	c := *b
	c.joins = slices.Clone(b.joins)
	c.orderBy = slices.Clone(b.orderBy)
	if b.limit != nil {
		n := *b.limit
		c.limit = &n
	}
	if b.offset != nil {
		n := *b.offset
		c.offset = &n
	}
	return &c
}

// Build renders the statement. SELECT and FROM are mandatory.
func (b *Builder) Build() (string, error) {
	if b.selectList == "" {
		return "", ksqlerr.Shape("statement has no select list")
	}
	if b.from == "" {
		return "", ksqlerr.Shape("statement has no source")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(b.selectList)
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)
	if len(b.joins) > 0 && b.fromAlias != "" {
		sb.WriteString(" " + b.fromAlias)
	}
	for _, j := range b.joins {
		sb.WriteString(" " + string(j.Kind) + " " + j.Source)
		if j.Alias != "" {
			sb.WriteString(" " + j.Alias)
		}
		sb.WriteString(" ON " + j.On)
	}
	if b.where != "" {
		sb.WriteString(" WHERE " + b.where)
	}
	if b.groupBy != "" {
		sb.WriteString(" GROUP BY " + b.groupBy)
	}
	if b.having != "" {
		sb.WriteString(" HAVING " + b.having)
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, t := range b.orderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(t.Expr)
			if t.Desc {
				sb.WriteString(" DESC")
			}
		}
	}
	if b.emitChanges {
		sb.WriteString(" EMIT CHANGES")
	}
	if b.limit != nil {
		sb.WriteString(" LIMIT " + strconv.Itoa(*b.limit))
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET " + strconv.Itoa(*b.offset))
	}
	sb.WriteString(";")
	return sb.String(), nil
}
