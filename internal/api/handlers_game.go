// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/snakepit/internal/game"
)

type createRoomRequest struct {
	PlayerID    string `json:"playerId" validate:"required"`
	DisplayName string `json:"displayName" validate:"required,max=32"`
}

// handleCreateRoom opens a new room hosted by the caller.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "playerId and displayName are required")
		return
	}

	room, err := s.rooms.CreateRoom(r.Context(), req.PlayerID, req.DisplayName)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "room creation failed")
		return
	}
	respond(w, r, http.StatusCreated, room)
}

// handleGetRoom returns a room by id.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, game.ErrRoomNotFound) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "room not found")
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "room lookup failed")
		return
	}
	respond(w, r, http.StatusOK, room)
}

// handleJoinRoom adds the caller to a room by its join code.
func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "playerId and displayName are required")
		return
	}

	room, err := s.rooms.JoinRoom(r.Context(), chi.URLParam(r, "code"), req.PlayerID, req.DisplayName)
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "room not found")
	case errors.Is(err, game.ErrRoomFull), errors.Is(err, game.ErrRoomNotJoinable):
		respondError(w, r, http.StatusConflict, CodeConflict, err.Error())
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "join failed")
	default:
		respond(w, r, http.StatusOK, room)
	}
}

type startGameRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
}

// handleStartGame seeds live game state for a waiting room. Host only.
func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req startGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "playerId is required")
		return
	}

	state, err := s.rooms.StartGame(r.Context(), chi.URLParam(r, "id"), req.PlayerID)
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "room not found")
	case errors.Is(err, game.ErrNotHost):
		respondError(w, r, http.StatusForbidden, CodeForbidden, "only the host can start the game")
	case errors.Is(err, game.ErrGameAlreadyStarted), errors.Is(err, game.ErrNotEnoughPlayers):
		respondError(w, r, http.StatusConflict, CodeConflict, err.Error())
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "game start failed")
	default:
		respond(w, r, http.StatusCreated, state)
	}
}

type moveRequest struct {
	PlayerID  string `json:"playerId" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=up down left right"`
}

// handleMove applies a direction change to the caller's snake.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "playerId and a valid direction are required")
		return
	}

	err := s.rooms.ApplyMove(r.Context(), chi.URLParam(r, "id"), req.PlayerID, game.Direction(req.Direction))
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "room or game not found")
	case errors.Is(err, game.ErrNotInRoom):
		respondError(w, r, http.StatusForbidden, CodeForbidden, "player is not in the room")
	case errors.Is(err, game.ErrInvalidMove):
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "move failed")
	default:
		respond(w, r, http.StatusOK, map[string]string{"status": "accepted"})
	}
}

// handleMaintenanceStatus reports the maintenance gate so clients can
// pause gameplay during a restore.
func (s *Server) handleMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.gate.Status(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "maintenance lookup failed")
		return
	}
	if state == nil {
		respond(w, r, http.StatusOK, map[string]bool{"active": false})
		return
	}
	respond(w, r, http.StatusOK, state)
}
