// Package schema describes the streams and tables a query can read from.
package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

// Kind distinguishes an append-only stream from a keyed table.
type Kind string

const (
	Stream Kind = "stream"
	Table  Kind = "table"
)

// Column is one column of a source.
type Column struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
	Key  bool   `yaml:"key,omitempty" json:"key,omitempty"`
}

// Timestamp names the column carrying event time.
type Timestamp struct {
	Column string `yaml:"column" json:"column"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// EntitySchema is the resolved column metadata of one source. It is built
// once and treated as read-only afterwards.
type EntitySchema struct {
	Name        string                       `yaml:"name" json:"name"`
	Kind        Kind                         `yaml:"kind" json:"kind"`
	Topic       string                       `yaml:"topic,omitempty" json:"topic,omitempty"`
	ValueFormat string                       `yaml:"valueFormat,omitempty" json:"valueFormat,omitempty"`
	Columns     []Column                     `yaml:"columns" json:"columns"`
	Timestamp   *Timestamp                   `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	Decimals    map[string]typemap.Precision `yaml:"decimals,omitempty" json:"decimals,omitempty"`

	// RecordType is the Go row type bound to this source, if any.
	RecordType reflect.Type `yaml:"-" json:"-"`
}

// KeyColumns returns the key columns in declaration order.
func (s *EntitySchema) KeyColumns() []Column {
	var keys []Column
	for _, c := range s.Columns {
		if c.Key {
			keys = append(keys, c)
		}
	}
	return keys
}

// Column finds a column by name, case-insensitively.
func (s *EntitySchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (s *EntitySchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnType renders the DDL type of c, applying any decimal override.
func (s *EntitySchema) ColumnType(c Column) string {
	p, ok := s.Decimals[c.Name]
	if ok && strings.HasPrefix(strings.ToUpper(c.Type), "DECIMAL") {
		return typemap.Decimal(&p)
	}
	return c.Type
}

// Validate checks that the schema is usable.
func (s *EntitySchema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("schema: source name cannot be empty")
	}
	switch s.Kind {
	case Stream, Table:
	default:
		return fmt.Errorf("schema: source %s has invalid kind %q", s.Name, s.Kind)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema: source %s has no columns", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("schema: source %s has a column without a name", s.Name)
		}
		if strings.TrimSpace(c.Type) == "" {
			return fmt.Errorf("schema: column %s.%s has no type", s.Name, c.Name)
		}
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("schema: duplicate column %s.%s", s.Name, c.Name)
		}
		seen[key] = struct{}{}
	}
	if s.Kind == Table && len(s.KeyColumns()) == 0 {
		return fmt.Errorf("schema: table %s needs a primary key column", s.Name)
	}
	if s.Timestamp != nil {
		if _, ok := s.Column(s.Timestamp.Column); !ok {
			return fmt.Errorf("schema: timestamp column %s.%s does not exist", s.Name, s.Timestamp.Column)
		}
	}
	for name := range s.Decimals {
		if _, ok := s.Column(name); !ok {
			return fmt.Errorf("schema: decimal override for unknown column %s.%s", s.Name, name)
		}
	}
	return nil
}
