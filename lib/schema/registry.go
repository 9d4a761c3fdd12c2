package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
)

// Provider resolves a source name to its schema.
type Provider interface {
	Lookup(name string) (*EntitySchema, error)
}

// Registry holds the schemas of every known source. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*EntitySchema
	types   map[reflect.Type]*EntitySchema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]*EntitySchema),
		types:   make(map[reflect.Type]*EntitySchema),
	}
}

// Register validates and adds schemas. Names are unique case-insensitively.
func (r *Registry) Register(schemas ...*EntitySchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(s.Name)
		if _, exists := r.sources[key]; exists {
			return fmt.Errorf("schema: duplicate source name %q", s.Name)
		}
		r.sources[key] = s
		if s.RecordType != nil {
			r.types[s.RecordType] = s
		}
	}
	return nil
}

// Bind associates the Go row type t with a registered source.
func (r *Registry) Bind(t reflect.Type, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[strings.ToLower(name)]
	if !ok {
		return ksqlerr.Source(name, SuggestFrom(name, r.namesLocked(), 3))
	}
	r.types[t] = s
	return nil
}

// Lookup returns the schema named name. Misses carry a "did you mean"
// suggestion.
func (r *Registry) Lookup(name string) (*EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return nil, ksqlerr.Source(name, SuggestFrom(name, r.namesLocked(), 3))
}

// LookupType returns the schema bound to the Go row type t.
func (r *Registry) LookupType(t reflect.Type) (*EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := r.types[t]; ok {
		return s, nil
	}
	return nil, ksqlerr.Source(fmt.Sprint(t), "")
}

// Names returns all registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[lb]
}

// SuggestFrom finds the closest candidate within maxDist edits, compared
// case-insensitively. Returns "" if nothing is close enough.
func SuggestFrom(input string, candidates []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		d := Levenshtein(strings.ToLower(input), strings.ToLower(c))
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist <= maxDist {
		return fmt.Sprintf("did you mean '%s'?", best)
	}
	return ""
}
