// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package api serves the HTTP surface: authentication, admin backup and
// recovery operations, room and gameplay endpoints, health, and metrics.
// All endpoints share one response envelope.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/snakepit/internal/logging"
)

// APIResponse is the response wrapper used by every endpoint.
type APIResponse struct {
	// Success indicates whether the request was handled successfully
	Success bool `json:"success"`

	// Data contains the response payload (null on error)
	Data any `json:"data,omitempty"`

	// Error contains error details (null on success)
	Error *APIError `json:"error,omitempty"`

	// Meta contains optional response metadata
	Meta *APIMeta `json:"meta,omitempty"`
}

// APIError is a machine-readable error.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// APIMeta carries response metadata.
type APIMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count,omitempty"`
}

// Error codes.
const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeMaintenance    = "MAINTENANCE"
	CodeIntegrityError = "INTEGRITY_ERROR"
	CodeInternalError  = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, body *APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Response encoding failed")
	}
}

// respond writes a success envelope.
func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, &APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			RequestID: middleware.GetReqID(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	})
}

// respondList writes a success envelope with an item count.
func respondList(w http.ResponseWriter, r *http.Request, data any, count int) {
	writeJSON(w, http.StatusOK, &APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			RequestID: middleware.GetReqID(r.Context()),
			Timestamp: time.Now().UTC(),
			Count:     count,
		},
	})
}

// respondError writes an error envelope.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, &APIResponse{
		Success: false,
		Error: &APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetReqID(r.Context()),
		},
	})
}
