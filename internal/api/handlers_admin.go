// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/snakepit/internal/auth"
	"github.com/tomtom215/snakepit/internal/backup"
	"github.com/tomtom215/snakepit/internal/catalog"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/recovery"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// handleLogin exchanges credentials for a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "username and password are required")
		return
	}

	token, err := s.authenticator.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "login failed")
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"token": token})
}

type createBackupRequest struct {
	// Class labels the backup; defaults to manual.
	Class string `json:"class"`

	// IncludeAll captures every document instead of the bounded
	// most-recent subset.
	IncludeAll bool `json:"includeAll"`
}

// handleCreateBackup runs a manual backup.
func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body")
			return
		}
	}

	class := backup.ClassManual
	if req.Class != "" {
		var err error
		if class, err = backup.ParseClass(req.Class); err != nil {
			respondError(w, r, http.StatusBadRequest, CodeBadRequest, "unknown backup class")
			return
		}
	}

	ctx := r.Context()
	collect := s.collector.CollectBounded
	if req.IncludeAll {
		collect = s.collector.CollectFull
	}
	payload, err := collect(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Manual backup snapshot failed")
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "snapshot collection failed")
		return
	}

	rec, err := s.archiver.Store(ctx, payload, class)
	if err != nil {
		logging.Error().Err(err).Msg("Manual backup store failed")
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "backup storage failed")
		return
	}
	respond(w, r, http.StatusCreated, rec)
}

// handleListBackups lists cataloged backups, newest first, capped at 50.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("class")
	if class != "" {
		if _, err := backup.ParseClass(class); err != nil {
			respondError(w, r, http.StatusBadRequest, CodeBadRequest, "unknown backup class")
			return
		}
	}

	records, err := s.archiver.List(r.Context(), class, parseLimit(r, backup.MaxListResults))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "backup listing failed")
		return
	}
	respondList(w, r, records, len(records))
}

type recoveryRequest struct {
	Type       string    `json:"type" validate:"required"`
	BackupID   string    `json:"backupId"`
	Components []string  `json:"components"`
	TargetTime time.Time `json:"targetTime"`
	DryRun     bool      `json:"dryRun"`
}

// handleRecovery starts a recovery operation and waits for its outcome.
func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "recovery type is required")
		return
	}

	result, err := s.orchestrator.Execute(r.Context(), recovery.Request{
		Type:       recovery.Type(req.Type),
		BackupID:   req.BackupID,
		Components: req.Components,
		TargetTime: req.TargetTime,
		DryRun:     req.DryRun,
	})
	switch {
	case errors.Is(err, recovery.ErrInvalidRequest):
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, catalog.ErrBackupNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, backup.ErrChecksumMismatch), errors.Is(err, backup.ErrPayloadMissing):
		respondError(w, r, http.StatusConflict, CodeIntegrityError, err.Error())
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, err.Error())
	default:
		respond(w, r, http.StatusOK, result)
	}
}

// handleGetRecovery returns the audit record of one recovery operation.
func (s *Server) handleGetRecovery(w http.ResponseWriter, r *http.Request) {
	op, err := s.cat.GetRecovery(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrRecoveryNotFound) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "recovery operation not found")
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "recovery lookup failed")
		return
	}
	respond(w, r, http.StatusOK, op)
}

// handleListAlerts returns recent operational alerts.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	severity := r.URL.Query().Get("severity")
	records, err := s.cat.ListAlerts(r.Context(), severity, parseLimit(r, 100))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "alert listing failed")
		return
	}
	respondList(w, r, records, len(records))
}
