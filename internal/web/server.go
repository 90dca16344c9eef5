// Package web is the local HTTP host that exposes the screen controllers as
// JSON and streams their changes over a WebSocket.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/blockedby/stagesync/internal/events"
	"github.com/blockedby/stagesync/internal/logger"
)

// Version is reported by /health.
var Version = "dev"

// Config holds server configuration
type Config struct {
	Port        int
	CORSOrigins []string
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *Config
	listener   net.Listener
	hub        *events.Hub
	log        *logger.Logger
}

// NewServer creates a new HTTP server. hub may be nil.
func NewServer(cfg *Config, log *logger.Logger, hub *events.Hub) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		config: cfg,
		hub:    hub,
		log:    log.Component("web"),
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
}

// requestLogger logs each request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(started)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) setupRoutes() {
	// WebSocket
	if s.hub != nil {
		s.router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			events.ServeWs(s.hub, w, r)
		})
	}

	// Health endpoint
	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, `{"status":"ok","version":%q}`, Version); err != nil {
			_ = err // Client disconnected
		}
	})
}

// Listen binds the configured port. Port 0 picks a free one.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = listener
	return nil
}

// Serve serves requests on the bound listener until Stop.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("serve: not listening")
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.listener.Addr().String()).Msg("http host listening")
	return s.httpServer.Serve(s.listener)
}

// Start binds and serves.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// BaseURL returns the server's base URL
func (s *Server) BaseURL() string {
	if s.listener != nil {
		return fmt.Sprintf("http://%s", s.listener.Addr().String())
	}
	return fmt.Sprintf("http://localhost:%d", s.config.Port)
}

// RegisterStagesHandler registers the postings screen handlers
func (s *Server) RegisterStagesHandler(handler interface{}) {
	type stagesHandler interface {
		List(w http.ResponseWriter, r *http.Request)
		Refresh(w http.ResponseWriter, r *http.Request)
		Next(w http.ResponseWriter, r *http.Request)
		Prev(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(stagesHandler); ok {
		s.router.Route("/api/v1/stages", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/refresh", h.Refresh)
			r.Post("/next", h.Next)
			r.Post("/prev", h.Prev)
		})
	}
}

// RegisterFavoritesHandler registers the favorites screen handlers
func (s *Server) RegisterFavoritesHandler(handler interface{}) {
	type favoritesHandler interface {
		List(w http.ResponseWriter, r *http.Request)
		Refresh(w http.ResponseWriter, r *http.Request)
		Add(w http.ResponseWriter, r *http.Request)
		Remove(w http.ResponseWriter, r *http.Request)
		RequestDelete(w http.ResponseWriter, r *http.Request)
		ConfirmDelete(w http.ResponseWriter, r *http.Request)
		CancelDelete(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(favoritesHandler); ok {
		s.router.Route("/api/v1/favorites", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/refresh", h.Refresh)
			r.Post("/delete/confirm", h.ConfirmDelete)
			r.Post("/delete/cancel", h.CancelDelete)
			r.Put("/{id}", h.Add)
			r.Delete("/{id}", h.Remove)
			r.Post("/{id}/delete-request", h.RequestDelete)
		})
	}
}

// RegisterApplicationsHandler registers the applications screen handler
func (s *Server) RegisterApplicationsHandler(handler interface{}) {
	type applicationsHandler interface {
		List(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(applicationsHandler); ok {
		s.router.Get("/api/v1/applications", h.List)
	}
}

// Router returns the underlying Chi router for external route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}
