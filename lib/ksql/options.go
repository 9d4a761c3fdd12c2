package ksql

import (
	"github.com/rs/zerolog"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dispatch"
)

// Option configures a Translator.
type Option func(*Translator)

// WithLogger sets the logger used for per-translation debug events.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Translator) {
		t.logger = logger
	}
}

// WithEmitChanges renders every SELECT as a push query ending in EMIT CHANGES.
func WithEmitChanges() Option {
	return func(t *Translator) {
		t.emitChanges = true
	}
}

// WithTable replaces the default method table.
func WithTable(table *dispatch.Table) Option {
	return func(t *Translator) {
		if table != nil {
			t.table = table
		}
	}
}
