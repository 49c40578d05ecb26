// Package server exposes the HTTP surface of soapscribe: the per-clinician
// session API, the persisted notes API, the websocket audio intake, and the
// SSE change feed, plus health and metrics endpoints.
//
// Identity resolution is best effort: recording, transcription, and note
// generation work without an authenticated identity, while persistence routes
// answer 401. The session controller enforces the same policy internally, so
// the HTTP layer never needs to special-case the anonymous session.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soapscribe/soapscribe/internal/health"
	"github.com/soapscribe/soapscribe/internal/identity"
	"github.com/soapscribe/soapscribe/internal/notes"
	"github.com/soapscribe/soapscribe/internal/observe"
	"github.com/soapscribe/soapscribe/internal/session"
)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithHealth mounts the given health handler at /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithMetrics enables the observability middleware and the /metrics endpoint.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithOpusIntake switches the audio intake to expect Opus packets, decoded to
// PCM before buffering. The default treats incoming frames as raw chunks.
func WithOpusIntake() Option {
	return func(s *Server) {
		s.opusIntake = true
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// Config holds the Server's dependencies.
type Config struct {
	// Sessions hands out per-clinician session controllers.
	Sessions *session.Manager

	// Store is the note record store backing the /api/notes routes. May be
	// nil when persistence is disabled; the routes then answer 401.
	Store notes.Store

	// Identity resolves the clinician identity per request. May be nil for a
	// fully anonymous deployment.
	Identity identity.Provider

	// Broker is the SSE broker backing /api/events. May be nil to disable
	// the feed.
	Broker *Broker
}

// Server holds the HTTP handlers. Construct with [New], mount with [Router].
type Server struct {
	sessions *session.Manager
	store    notes.Store
	ident    identity.Provider
	broker   *Broker

	health     *health.Handler
	metrics    *observe.Metrics
	opusIntake bool
	log        *slog.Logger
}

// New validates cfg and creates a Server.
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("server: session manager must not be nil")
	}
	s := &Server{
		sessions: cfg.Sessions,
		store:    cfg.Store,
		ident:    cfg.Identity,
		broker:   cfg.Broker,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}
	if s.health != nil {
		s.health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/session", s.getSession)
		api.Post("/session/record", s.startRecording)
		api.Delete("/session/record", s.stopRecording)
		api.Get("/session/audio", s.audioIntake)
		api.Put("/session/transcript", s.setTranscript)
		api.Put("/session/template", s.setTemplate)
		api.Post("/session/generate", s.generate)
		api.Put("/session/note", s.editNote)
		api.Post("/session/save", s.save)
		api.Post("/session/open/{id}", s.openExisting)
		api.Post("/session/abandon", s.abandon)

		api.Get("/notes", s.listNotes)
		api.Patch("/notes/{id}", s.patchNote)
		api.Delete("/notes/{id}", s.deleteNote)

		if s.broker != nil {
			api.Get("/events", s.events)
		}
	})

	return r
}

// owner resolves the request identity, best effort. The empty string means an
// unauthenticated local session.
func (s *Server) owner(r *http.Request) string {
	if s.ident == nil {
		return ""
	}
	id, err := s.ident.Identify(r)
	if err != nil {
		return ""
	}
	return id
}

// controller returns the request owner's session controller.
func (s *Server) controller(r *http.Request) *session.Controller {
	return s.sessions.Get(s.owner(r))
}
