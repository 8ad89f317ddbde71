// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package game implements room lifecycle and gameplay rules for the snake
// arena.
package game

import "time"

// Room statuses.
const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

// Room size and arena bounds.
const (
	MaxPlayersPerRoom = 8
	MinPlayersToStart = 2
	DefaultBoardSize  = 20
)

// Direction of snake travel.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// Position is a cell on the arena grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Snake is one player's snake.
type Snake struct {
	Body      []Position `json:"body"`
	Direction Direction  `json:"direction"`
	Alive     bool       `json:"alive"`
	Length    int        `json:"length"`
}

// Player is a participant in a room.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	JoinedAt    int64  `json:"joinedAt"`
	Ready       bool   `json:"ready"`
}

// Room is a game lobby. Persisted in the rooms collection and included in
// backups; the code, hostId, and status fields are required by restore
// validation.
type Room struct {
	ID         string             `json:"id"`
	Code       string             `json:"code"`
	HostID     string             `json:"hostId"`
	Status     string             `json:"status"`
	Players    map[string]*Player `json:"players"`
	MaxPlayers int                `json:"maxPlayers"`
	CreatedAt  int64              `json:"createdAt"`
	UpdatedAt  int64              `json:"updatedAt"`
}

// User is a registered player profile. Persisted in the users collection
// and included in backups; displayName is required by restore validation.
type User struct {
	DisplayName string `json:"displayName"`
	CreatedAt   int64  `json:"createdAt"`
	GamesPlayed int    `json:"gamesPlayed"`
	Wins        int    `json:"wins"`
}

// GameState is live match state. Never backed up.
type GameState struct {
	RoomID    string            `json:"roomId"`
	Tick      int64             `json:"tick"`
	BoardSize int               `json:"boardSize"`
	Snakes    map[string]*Snake `json:"snakes"`
	Food      []Position        `json:"food"`
	UpdatedAt int64             `json:"updatedAt"`
}

// age helpers

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
