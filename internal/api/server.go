// Package api exposes the HTTP surface: content upload and processing,
// artifact serving, session issuance, and the tracking endpoints the
// instrumentation snippet reports to.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/pipeline"
	"github.com/sentinel-secure/awareness-platform/internal/tracking"
)

// Processor runs uploaded content through the processing chain; satisfied
// by *pipeline.Pipeline.
type Processor interface {
	Process(ctx context.Context, content *domain.Content, rawHTML string) (*pipeline.Outcome, error)
}

// ContentStore provides content metadata; satisfied by
// *postgres.ContentRepo.
type ContentStore interface {
	Get(ctx context.Context, id string) (*domain.Content, error)
	Create(ctx context.Context, c *domain.Content) (string, error)
}

// SessionStore issues new tracking sessions; satisfied by
// *postgres.TrackingRepo.
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.TrackingSession) error
}

// ArtifactReader serves processed files; satisfied by *storage.Store.
type ArtifactReader interface {
	ReadArtifact(artifactPath string) ([]byte, error)
}

// Server is the HTTP API server.
type Server struct {
	processor Processor
	contents  ContentStore
	sessions  SessionStore
	artifacts ArtifactReader
	tracker   *tracking.Service
	router    *chi.Mux
	server    *http.Server
	debug     bool
}

// New creates an API server and mounts all routes.
func New(processor Processor, contents ContentStore, sessions SessionStore, artifacts ArtifactReader, tracker *tracking.Service, debug bool) *Server {
	s := &Server{
		processor: processor,
		contents:  contents,
		sessions:  sessions,
		artifacts: artifacts,
		tracker:   tracker,
		debug:     debug,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Tracking beacons fire cross-origin from hosted landing pages.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/content", s.handleUploadContent)
		r.Get("/content/{id}", s.handleGetContent)
		r.Post("/sessions", s.handleCreateSession)
	})

	r.Get("/content/{id}/*", s.handleServeArtifact)

	r.Route("/t", func(r chi.Router) {
		r.Post("/view/{token}", s.handleView)
		r.Get("/open/{token}.gif", s.handleOpenPixel)
		r.Post("/interaction/{token}", s.handleInteraction)
		r.Post("/score/{token}", s.handleScore)
	})

	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       2 * time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
