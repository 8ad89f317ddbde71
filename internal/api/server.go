// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/snakepit/internal/auth"
	"github.com/tomtom215/snakepit/internal/backup"
	"github.com/tomtom215/snakepit/internal/blob"
	"github.com/tomtom215/snakepit/internal/catalog"
	"github.com/tomtom215/snakepit/internal/config"
	"github.com/tomtom215/snakepit/internal/game"
	"github.com/tomtom215/snakepit/internal/gamestore"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/recovery"
	"github.com/tomtom215/snakepit/internal/snapshot"
)

// Server holds the handler dependencies and builds the router.
type Server struct {
	cfg           *config.Config
	store         *gamestore.Store
	cat           *catalog.Catalog
	blobs         blob.Store
	authenticator *auth.Authenticator
	tokens        *auth.JWTManager
	collector     *snapshot.Collector
	archiver      *backup.Archiver
	orchestrator  *recovery.Orchestrator
	gate          *recovery.Gate
	rooms         *game.Manager
	validate      *validator.Validate
}

// NewServer wires the API server.
func NewServer(
	cfg *config.Config,
	store *gamestore.Store,
	cat *catalog.Catalog,
	blobs blob.Store,
	authenticator *auth.Authenticator,
	tokens *auth.JWTManager,
	collector *snapshot.Collector,
	archiver *backup.Archiver,
	orchestrator *recovery.Orchestrator,
	gate *recovery.Gate,
	rooms *game.Manager,
) *Server {
	return &Server{
		cfg:           cfg,
		store:         store,
		cat:           cat,
		blobs:         blobs,
		authenticator: authenticator,
		tokens:        tokens,
		collector:     collector,
		archiver:      archiver,
		orchestrator:  orchestrator,
		gate:          gate,
		rooms:         rooms,
		validate:      validator.New(),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByRealIP(s.cfg.Server.RateLimit, time.Minute))
		r.Use(prometheusMetrics)

		// Brute force protection on login.
		r.With(httprate.LimitByRealIP(5, 5*time.Minute)).
			Post("/auth/login", s.handleLogin)

		r.Get("/maintenance", s.handleMaintenanceStatus)

		// Gameplay endpoints pause during maintenance.
		r.Group(func(r chi.Router) {
			r.Use(s.maintenanceGuard)
			r.Post("/rooms", s.handleCreateRoom)
			r.Post("/rooms/{code}/join", s.handleJoinRoom)
			r.Post("/rooms/{id}/start", s.handleStartGame)
			r.Post("/rooms/{id}/moves", s.handleMove)
		})
		r.Get("/rooms/{id}", s.handleGetRoom)

		// Admin surface. Role is checked here at the transport boundary;
		// the engine underneath does not re-check.
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.tokens.Authenticate)
			r.Use(auth.RequireRole(auth.RoleAdmin))

			r.Post("/backups", s.handleCreateBackup)
			r.Get("/backups", s.handleListBackups)
			r.Post("/recovery", s.handleRecovery)
			r.Get("/recovery/{id}", s.handleGetRecovery)
			r.Get("/alerts", s.handleListAlerts)
		})
	})

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. Implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	}
}

// String names the service for supervisor logs.
func (s *Server) String() string {
	return "http-server"
}

// maintenanceGuard rejects gameplay mutations while the maintenance gate
// is held.
func (s *Server) maintenanceGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := s.gate.Status(r.Context())
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, CodeInternalError, "maintenance check failed")
			return
		}
		if state != nil && state.Active {
			w.Header().Set("Retry-After", "30")
			respondError(w, r, http.StatusServiceUnavailable, CodeMaintenance, state.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth reports component liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := map[string]string{"store": "ok", "catalog": "ok", "blob": "ok"}
	healthy := true

	if err := s.store.Ping(ctx); err != nil {
		status["store"] = err.Error()
		healthy = false
	}
	if err := s.cat.Ping(ctx); err != nil {
		status["catalog"] = err.Error()
		healthy = false
	}
	// Probe blob storage reachability; the object is never expected to exist.
	if _, err := s.blobs.Exists(ctx, "health-probe"); err != nil {
		status["blob"] = err.Error()
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	respond(w, r, code, map[string]any{
		"healthy":    healthy,
		"components": status,
	})
}

// parseLimit reads a limit query parameter, falling back to def.
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
