// Package server provides the HTTP server and routing for aqicast.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/database"
	"github.com/aristath/aqicast/internal/events"
	"github.com/aristath/aqicast/internal/modules/gakelm"
)

// RouteRegistrar is implemented by module handlers
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// ModelSource exposes the published model to the health endpoint
type ModelSource interface {
	Current() *gakelm.TrainedModel
}

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	DB          *database.DB
	Bus         *events.Bus
	Models      ModelSource
	Handlers    []RouteRegistrar
	CORSOrigins []string
	Port        int
	DevMode     bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	db        *database.DB
	bus       *events.Bus
	models    ModelSource
	port      int
	startedAt time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		db:        cfg.DB,
		bus:       cfg.Bus,
		models:    cfg.Models,
		port:      cfg.Port,
		startedAt: time.Now(),
	}

	s.setupMiddleware(origins)
	s.setupRoutes(cfg.Handlers, origins, cfg.DevMode)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Training requests can run for minutes
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the root handler
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(origins []string) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(handlers []RouteRegistrar, origins []string, devMode bool) {
	s.router.Get("/health", s.handleHealth)

	if s.bus != nil {
		stream := NewEventsStreamHandler(s.bus, origins, s.log)
		s.router.Get("/ws/events", stream.ServeHTTP)
	}

	s.router.Route("/api", func(r chi.Router) {
		// Compress responses
		if !devMode {
			r.Use(middleware.Compress(5))
		}
		r.Get("/health", s.handleHealth)
		for _, h := range handlers {
			h.RegisterRoutes(r)
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
