package ksql

import "fmt"

// aliasRegistry hands out t0, t1, ... to sources in first-encounter order.
// It lives for one Translate call.
type aliasRegistry struct {
	byName map[string]string
	order  []string
}

func newAliasRegistry() *aliasRegistry {
	return &aliasRegistry{byName: map[string]string{}}
}

// alias returns the alias of name, assigning the next one on first use.
func (r *aliasRegistry) alias(name string) string {
	if a, ok := r.byName[name]; ok {
		return a
	}
	a := fmt.Sprintf("t%d", len(r.order))
	r.byName[name] = a
	r.order = append(r.order, name)
	return a
}

func (r *aliasRegistry) has(name string) bool {
	_, ok := r.byName[name]
	return ok
}
