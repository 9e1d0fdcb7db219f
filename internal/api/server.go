// Package api exposes document analysis over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docjudge/internal/contextrules"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BackendFactory builds the backend named by a client-supplied spec.
type BackendFactory func(spec llm.Spec) (llm.Backend, error)

// Deps are the collaborators the server dispatches to.
type Deps struct {
	Processor    *pipeline.Processor
	Orchestrator *pipeline.Orchestrator // nil disables the async job endpoints
	NewBackend   BackendFactory         // nil rejects backend_spec
	Stats        *llm.Stats             // nil disables /api/stats/llm
	DefaultRules contextrules.Rules     // used when a request carries no context
	Log          *slog.Logger
}

// Options tune request handling.
type Options struct {
	APIKey         string // empty disables bearer auth
	MaxUploadBytes int64
	AllowedOrigins []string
	UseOCR         bool
}

// Server is the HTTP API server for docjudge.
type Server struct {
	router     chi.Router
	deps       Deps
	opts       Options
	log        *slog.Logger
	specSchema *jsonschema.Schema
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	schema, err := compileBackendSpecSchema()
	if err != nil {
		return nil, err
	}
	s := &Server{
		deps:       deps,
		opts:       opts,
		log:        deps.Log,
		specSchema: schema,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Recoverer(s.log))
	r.Use(RequestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errHTTP, "method not allowed")
	})

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints when an API key is configured.
	r.Group(func(r chi.Router) {
		if s.opts.APIKey != "" {
			r.Use(AuthMiddleware(s.opts.APIKey, s.log))
		}

		r.Post("/analyze", s.handleAnalyze)
		r.Post("/api/jobs", s.handleSubmitJob)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.deps.Orchestrator != nil {
		body["queue_depth"] = s.deps.Orchestrator.QueueDepth()
	}
	writeJSON(w, http.StatusOK, body)
}
