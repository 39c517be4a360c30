package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bnema/reelsub/internal/adapter/http/middleware"
	"github.com/bnema/reelsub/internal/adapter/http/ratelimit"
	"github.com/bnema/reelsub/internal/fonts"
)

type Deps struct {
	Jobs      JobReader
	Submitter Submitter
	Streamer  EventStreamer
	Selector  *fonts.Selector
	Objects   ObjectOpener
	Limiter   *ratelimit.SubmitLimiter
}

type Options struct {
	IncomingDir    string
	MaxUploadBytes int64
	APIKeys        []string
	Version        string
}

type Server struct {
	router   chi.Router
	handlers *Handlers
	apiKeys  []string
}

func NewServer(deps Deps, opts Options) *Server {
	s := &Server{
		router: chi.NewRouter(),
		handlers: &Handlers{
			jobs:        deps.Jobs,
			submitter:   deps.Submitter,
			streamer:    deps.Streamer,
			selector:    deps.Selector,
			objects:     deps.Objects,
			limiter:     deps.Limiter,
			incomingDir: opts.IncomingDir,
			maxBytes:    opts.MaxUploadBytes,
			version:     opts.Version,
		},
		apiKeys: opts.APIKeys,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.AccessLog,
		middleware.SecurityHeaders,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	h := s.handlers
	r.Get("/healthz", h.Health())

	// Objects are content addressed and shared by URL, so they stay public.
	r.Get("/objects/{key}", h.Object())

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(s.apiKeys))

		r.Get("/languages", h.Languages())
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.SubmitJob())
			r.Get("/", h.ListJobs())
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetJob())
				r.Post("/cancel", h.CancelJob())
				r.Get("/events", h.JobEvents())
			})
		})
		r.Route("/fonts", func(r chi.Router) {
			r.Get("/select", h.SelectFont())
			r.Get("/validate", h.ValidateFont())
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
