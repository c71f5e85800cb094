// Package server is the HTTP surface: a public status page, an
// authenticated health report, and an authenticated dispatch endpoint
// for external cron.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/budget"
	"github.com/aristath/whisper/internal/database"
	"github.com/aristath/whisper/internal/modules/markethours"
	"github.com/aristath/whisper/internal/scheduler"
)

const serviceName = "whisper"

// Dispatcher is the slice of the scheduler the server exposes.
type Dispatcher interface {
	Dispatch(ctx context.Context, force string) (*scheduler.Outcome, error)
}

// Config holds server dependencies. APIKey empty means the
// authenticated endpoints answer 503 until one is configured.
type Config struct {
	Port    int
	APIKey  string
	DevMode bool

	Clock      *markethours.Clock
	Dispatcher Dispatcher
	JobStatus  *scheduler.StatusRepository
	Budget     *budget.Tracker
	Databases  []*database.DB
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    Config
	log    zerolog.Logger
}

// New creates the HTTP server.
func New(cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		log:    log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/health", s.handleHealth)
		r.Post("/dispatch", s.handleDispatch)
	})
}

// requireAPIKey compares X-API-Key in constant time. No configured key
// means the endpoint is unavailable, not open.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			writeError(w, http.StatusServiceUnavailable, "api key not configured")
			return
		}
		presented := r.Header.Get("X-API-Key")
		if presented == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, http.StatusForbidden, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
