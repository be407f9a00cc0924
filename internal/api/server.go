package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/clavora/clavora/internal/api/handler"
	mw "github.com/clavora/clavora/internal/api/middleware"
)

type Server struct {
	router chi.Router
	logger zerolog.Logger
	pool   *pgxpool.Pool

	backups   *handler.Backup
	schedules *handler.Schedule
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, backups *handler.Backup, schedules *handler.Schedule) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger,
		pool:      pool,
		backups:   backups,
		schedules: schedules,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Backups
		r.Get("/backups", s.backups.List)
		r.Post("/backups", s.backups.Create)
		r.Post("/backups/cleanup", s.backups.Cleanup)
		r.Post("/backups/rescan", s.backups.Rescan)
		r.Get("/backups/{name}", s.backups.Get)
		r.Delete("/backups/{name}", s.backups.Delete)
		r.Post("/backups/{name}/restore", s.backups.Restore)

		// Schedules
		r.Get("/schedules", s.schedules.List)
		r.Post("/schedules", s.schedules.Create)
		r.Get("/schedules/{name}", s.schedules.Get)
		r.Put("/schedules/{name}", s.schedules.Update)
		r.Delete("/schedules/{name}", s.schedules.Delete)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
