package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/celexpr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/dsl/parser"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksql"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/ksqlerr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/query"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/schema"
)

type Server struct {
	router   chi.Router
	registry *schema.Registry
	compiler *ksql.Translator
	logger   zerolog.Logger
}

// NewServer loads the schema catalog named by cfg and wires the routes.
func NewServer(cfg Config, logger zerolog.Logger) (*Server, error) {
	registry, err := schema.Load(cfg.SchemaDir, cfg.SchemaFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	return NewServerWithRegistry(registry, cfg, logger), nil
}

// NewServerWithRegistry serves translations against an existing registry.
func NewServerWithRegistry(registry *schema.Registry, cfg Config, logger zerolog.Logger) *Server {
	opts := []ksql.Option{ksql.WithLogger(logger)}
	if cfg.EmitChanges {
		opts = append(opts, ksql.WithEmitChanges())
	}
	srv := &Server{
		router:   chi.NewRouter(),
		registry: registry,
		compiler: ksql.New(registry, opts...),
		logger:   logger,
	}

	srv.router.Use(middleware.Recoverer)
	srv.router.Use(withSecurityHeaders)
	srv.router.Get("/healthz", srv.handleHealth)
	srv.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/translate", srv.handleTranslate)
		r.Post("/filter", srv.handleFilter)
		r.Get("/sources", srv.handleSources)
		r.Get("/sources/{name}/ddl", srv.handleDDL)
	})
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// withSecurityHeaders middleware adds security headers to responses
func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

type translateRequest struct {
	Query string `json:"query"`
}

type filterRequest struct {
	Source string `json:"source"`
	Filter string `json:"filter"`
}

type ksqlResponse struct {
	KSQL  string `json:"ksql,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error().Err(err).Msg("failed to decode request")
		writeJSON(w, http.StatusBadRequest, ksqlResponse{Error: "invalid request payload"})
		return
	}
	text := strings.TrimSpace(req.Query)
	if text == "" {
		writeJSON(w, http.StatusBadRequest, ksqlResponse{Error: "query is required"})
		return
	}

	statement, err := Translate(s.compiler, s.registry, text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ksqlResponse{KSQL: statement})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error().Err(err).Msg("failed to decode request")
		writeJSON(w, http.StatusBadRequest, ksqlResponse{Error: "invalid request payload"})
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeJSON(w, http.StatusBadRequest, ksqlResponse{Error: "source is required"})
		return
	}

	statement, err := Filter(s.compiler, s.registry, req.Source, req.Filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ksqlResponse{KSQL: statement})
}

type sourceInfo struct {
	Name    string          `json:"name"`
	Kind    schema.Kind     `json:"kind"`
	Columns []schema.Column `json:"columns"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	out := make([]sourceInfo, 0, len(names))
	for _, name := range names {
		src, err := s.registry.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, sourceInfo{Name: src.Name, Kind: src.Kind, Columns: src.Columns})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Server) handleDDL(w http.ResponseWriter, r *http.Request) {
	statement, err := s.compiler.DDL(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ksqlResponse{KSQL: statement})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError picks the status from the error chain: compiler errors carry
// their own code, syntax errors are client errors.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ke *ksqlerr.Error
	var se *parser.SyntaxError
	switch {
	case errors.As(err, &ke):
		s.logger.Warn().Err(err).Str("kind", string(ke.Kind)).Msg("translation rejected")
		writeJSON(w, ke.Code, ksqlResponse{Error: err.Error()})
	case errors.As(err, &se):
		s.logger.Warn().Err(err).Msg("syntax error")
		writeJSON(w, http.StatusBadRequest, ksqlResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Msg("translation failed")
		writeJSON(w, http.StatusInternalServerError, ksqlResponse{Error: "translation failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Translate parses a query chain and compiles it.
func Translate(compiler *ksql.Translator, provider schema.Provider, text string) (string, error) {
	op, err := parser.Parse(text, provider)
	if err != nil {
		return "", err
	}
	return compiler.Translate(op)
}

// Filter compiles a CEL predicate over source into a filtered select.
func Filter(compiler *ksql.Translator, provider schema.Provider, source, filter string) (string, error) {
	src, err := provider.Lookup(source)
	if err != nil {
		return "", err
	}
	row := expr.Param("row", src.RecordType)
	fn, err := celexpr.Predicate(filter, row, celexpr.WithSchema(src))
	if err != nil {
		return "", err
	}
	return compiler.Translate(query.From(src.Name).Where(fn).Operation())
}
