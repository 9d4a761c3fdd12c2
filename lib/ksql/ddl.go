package ksql

import (
	"strings"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

const defaultValueFormat = "JSON"

// CreateStatement renders the CREATE STREAM or CREATE TABLE statement that
// declares s. Topic defaults to the source name, value format to JSON.
func CreateStatement(s *schema.EntitySchema) (string, error) {
	if s == nil {
		return "", ksqlerr.Shape("nil schema")
	}
	if err := s.Validate(); err != nil {
		return "", ksqlerr.Shape("invalid schema %s", s.Name).Wrap(err)
	}

	keyword, keyMarker := "STREAM", " KEY"
	if s.Kind == schema.Table {
		keyword, keyMarker = "TABLE", " PRIMARY KEY"
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	sb.WriteString(keyword)
	sb.WriteString(" ")
	sb.WriteString(s.Name)
	sb.WriteString(" (")
	for i, c := range s.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Name)
		sb.WriteString(" ")
		sb.WriteString(s.ColumnType(c))
		if c.Key {
			sb.WriteString(keyMarker)
		}
	}
	sb.WriteString(") WITH (")

	topic := s.Topic
	if topic == "" {
		topic = s.Name
	}
	format := strings.ToUpper(s.ValueFormat)
	if format == "" {
		format = defaultValueFormat
	}
	props := []string{
		"KAFKA_TOPIC=" + typemap.Quote(topic),
		"VALUE_FORMAT=" + typemap.Quote(format),
	}
	if s.Timestamp != nil {
		props = append(props, "TIMESTAMP="+typemap.Quote(s.Timestamp.Column))
		if s.Timestamp.Format != "" {
			props = append(props, "TIMESTAMP_FORMAT="+typemap.Quote(s.Timestamp.Format))
		}
	}
	sb.WriteString(strings.Join(props, ", "))
	sb.WriteString(");")
	return sb.String(), nil
}

// DDL renders the CREATE statement of a source known to the provider.
func (t *Translator) DDL(name string) (string, error) {
	if t.provider == nil {
		return "", ksqlerr.Source(name, "")
	}
	s, err := t.provider.Lookup(name)
	if err != nil {
		return "", err
	}
	return CreateStatement(s)
}
