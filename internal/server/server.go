// Package server exposes the price optimizer over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/carlosmorenolosa/corsam-pricing/internal/history"
	"github.com/carlosmorenolosa/corsam-pricing/internal/pricing"
	"github.com/carlosmorenolosa/corsam-pricing/internal/usage"
)

const version = "1.0.0"

// Config holds the HTTP-level settings.
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string

	DefaultTopK       int
	DefaultTargetRate float64
	DefaultMarginPct  float64
	MaxMonthlyUses    int
}

// DefaultConfig returns the stock server settings.
func DefaultConfig() *Config {
	return &Config{
		Port:              8080,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		MaxRequestSize:    1 << 20, // 1MB of line items is plenty
		CORSOrigins:       []string{"*"},
		DefaultTopK:       6,
		DefaultTargetRate: 50,
		DefaultMarginPct:  30,
		MaxMonthlyUses:    20,
	}
}

// Server wires the estimator and its collaborators to HTTP routes.
// counter and auditLog are optional: a nil counter disables the quota,
// a nil auditLog disables batch history.
type Server struct {
	estimator  *pricing.Estimator
	counter    usage.Counter
	auditLog   *history.Store
	config     *Config
	log        zerolog.Logger
	httpServer *http.Server
	startedAt  time.Time
}

// New creates a Server.
func New(estimator *pricing.Estimator, counter usage.Counter, auditLog *history.Store, cfg *Config, log zerolog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Server{
		estimator: estimator,
		counter:   counter,
		auditLog:  auditLog,
		config:    cfg,
		log:       log,
		startedAt: time.Now(),
	}
}

// Handler builds the chi router with the full middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.WriteTimeout))
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/estimate", s.handleEstimate)
	})

	return r
}

// Start runs the HTTP server until the context is canceled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.config.Port).Str("version", version).Msg("server listening")
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				break
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
		"uptime":  time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.auditLog != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.auditLog.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "history store not ready")
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"message": message})
}
