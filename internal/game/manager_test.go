// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/snakepit/internal/gamestore"
)

func newTestManager(t *testing.T) (*Manager, *gamestore.Store) {
	t.Helper()

	store, err := gamestore.Open(gamestore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return NewManager(store), store
}

func TestCreateRoom(t *testing.T) {
	m, _ := newTestManager(t)

	room, err := m.CreateRoom(context.Background(), "u1", "viper")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.Status != StatusWaiting {
		t.Errorf("status = %s, want waiting", room.Status)
	}
	if room.HostID != "u1" {
		t.Errorf("host = %s", room.HostID)
	}
	if len(room.Code) != codeLength {
		t.Errorf("code %q has length %d", room.Code, len(room.Code))
	}
	for _, r := range room.Code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("code %q contains %q outside the alphabet", room.Code, r)
		}
	}
	if _, ok := room.Players["u1"]; !ok {
		t.Error("host not in player list")
	}

	got, err := m.GetRoom(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Code != room.Code {
		t.Errorf("persisted code = %s, want %s", got.Code, room.Code)
	}
}

func TestJoinRoom(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	room, err := m.CreateRoom(ctx, "u1", "viper")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	joined, err := m.JoinRoom(ctx, room.Code, "u2", "cobra")
	if err != nil {
		t.Fatalf("join room: %v", err)
	}
	if len(joined.Players) != 2 {
		t.Errorf("player count = %d, want 2", len(joined.Players))
	}

	// Joining again is idempotent.
	again, err := m.JoinRoom(ctx, room.Code, "u2", "cobra")
	if err != nil {
		t.Fatalf("rejoin room: %v", err)
	}
	if len(again.Players) != 2 {
		t.Errorf("player count after rejoin = %d, want 2", len(again.Players))
	}

	if _, err := m.JoinRoom(ctx, "XXXX", "u3", "mamba"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("join unknown code = %v, want ErrRoomNotFound", err)
	}
}

func TestJoinRoomFull(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	room, err := m.CreateRoom(ctx, "u0", "host")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for i := 1; i < MaxPlayersPerRoom; i++ {
		if _, err := m.JoinRoom(ctx, room.Code, fmt.Sprintf("u%d", i), fmt.Sprintf("p%d", i)); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}

	_, err = m.JoinRoom(ctx, room.Code, "late", "late")
	if !errors.Is(err, ErrRoomFull) {
		t.Errorf("error = %v, want ErrRoomFull", err)
	}
}

func TestJoinRoomNotJoinable(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	room, err := m.CreateRoom(ctx, "u1", "viper")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	room.Status = StatusPlaying
	data, err := json.Marshal(room)
	if err != nil {
		t.Fatalf("marshal room: %v", err)
	}
	if err := store.Put(ctx, gamestore.CollectionRooms, room.ID, data); err != nil {
		t.Fatalf("put room: %v", err)
	}

	_, err = m.JoinRoom(ctx, room.Code, "u2", "cobra")
	if !errors.Is(err, ErrRoomNotJoinable) {
		t.Errorf("error = %v, want ErrRoomNotJoinable", err)
	}
}

func TestStartGame(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	room, err := m.CreateRoom(ctx, "u1", "viper")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	// A lone host cannot start.
	if _, err := m.StartGame(ctx, room.ID, "u1"); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Errorf("solo start = %v, want ErrNotEnoughPlayers", err)
	}

	if _, err := m.JoinRoom(ctx, room.Code, "u2", "cobra"); err != nil {
		t.Fatalf("join room: %v", err)
	}
	if _, err := m.StartGame(ctx, room.ID, "u2"); !errors.Is(err, ErrNotHost) {
		t.Errorf("non-host start = %v, want ErrNotHost", err)
	}

	state, err := m.StartGame(ctx, room.ID, "u1")
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	if state.BoardSize != DefaultBoardSize {
		t.Errorf("board size = %d", state.BoardSize)
	}
	if len(state.Snakes) != 2 {
		t.Fatalf("snakes = %d, want 2", len(state.Snakes))
	}
	seen := map[Position]bool{}
	for id, snake := range state.Snakes {
		if !snake.Alive || len(snake.Body) != 1 {
			t.Errorf("snake %s = %+v", id, snake)
		}
		head := snake.Body[0]
		if head.X < 0 || head.Y < 0 || head.X >= state.BoardSize || head.Y >= state.BoardSize {
			t.Errorf("snake %s spawned off board at %+v", id, head)
		}
		if seen[head] {
			t.Errorf("snakes share spawn %+v", head)
		}
		seen[head] = true
	}

	started, err := m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if started.Status != StatusPlaying {
		t.Errorf("room status = %s, want playing", started.Status)
	}

	// Starting twice fails.
	if _, err := m.StartGame(ctx, room.ID, "u1"); !errors.Is(err, ErrGameAlreadyStarted) {
		t.Errorf("second start = %v, want ErrGameAlreadyStarted", err)
	}

	// The seeded state accepts moves directly.
	if err := m.ApplyMove(ctx, room.ID, "u1", DirUp); err != nil {
		t.Errorf("move after start: %v", err)
	}

	if _, err := store.Get(ctx, gamestore.CollectionGames, room.ID); err != nil {
		t.Errorf("game state not persisted: %v", err)
	}
}

func TestValidateMove(t *testing.T) {
	cases := []struct {
		current Direction
		next    Direction
		wantErr bool
	}{
		{DirUp, DirLeft, false},
		{DirUp, DirRight, false},
		{DirUp, DirUp, false},
		{DirUp, DirDown, true},
		{DirDown, DirUp, true},
		{DirLeft, DirRight, true},
		{DirRight, DirLeft, true},
		{DirRight, DirUp, false},
		{DirUp, Direction("diagonal"), true},
	}
	for _, tc := range cases {
		err := ValidateMove(tc.current, tc.next)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateMove(%s, %s) = %v, wantErr %v", tc.current, tc.next, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidMove) {
			t.Errorf("ValidateMove(%s, %s) error is not ErrInvalidMove: %v", tc.current, tc.next, err)
		}
	}
}

func TestCheckMove(t *testing.T) {
	state := GameState{
		BoardSize: 10,
		Snakes: map[string]*Snake{
			"u1": {Body: []Position{{X: 0, Y: 5}, {X: 0, Y: 6}}, Direction: DirUp, Alive: true, Length: 2},
			"u2": {Body: []Position{{X: 1, Y: 4}}, Direction: DirLeft, Alive: true, Length: 1},
			"u3": {Body: []Position{{X: 1, Y: 6}}, Direction: DirUp, Alive: false, Length: 1},
		},
	}

	head, err := state.CheckMove("u1", DirUp)
	if err != nil {
		t.Fatalf("open cell rejected: %v", err)
	}
	if (head != Position{X: 0, Y: 4}) {
		t.Errorf("head = %+v, want (0,4)", head)
	}

	// Left of (0,5) is off the board.
	if _, err := state.CheckMove("u1", DirLeft); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("out of bounds = %v, want ErrInvalidMove", err)
	}

	// Right of u2's head at (1,4) is open, but right of u1's head is u2.
	state.Snakes["u1"].Body[0] = Position{X: 0, Y: 4}
	if _, err := state.CheckMove("u1", DirRight); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("collision with other snake = %v, want ErrInvalidMove", err)
	}

	// Own body blocks too.
	state.Snakes["u1"].Body = []Position{{X: 5, Y: 5}, {X: 4, Y: 5}}
	state.Snakes["u1"].Direction = DirUp
	if _, err := state.CheckMove("u1", DirLeft); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("collision with own body = %v, want ErrInvalidMove", err)
	}

	// Dead snakes do not block.
	state.Snakes["u1"].Body = []Position{{X: 1, Y: 5}}
	state.Snakes["u1"].Direction = DirRight
	if _, err := state.CheckMove("u1", DirUp); err == nil {
		t.Error("move onto live snake accepted")
	}
	if _, err := state.CheckMove("u1", DirDown); err != nil {
		t.Errorf("move onto dead snake rejected: %v", err)
	}

	if _, err := state.CheckMove("ghost", DirUp); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("unknown player = %v, want ErrInvalidMove", err)
	}
}

func TestApplyMove(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	room, err := m.CreateRoom(ctx, "u1", "viper")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	state := GameState{
		RoomID:    room.ID,
		BoardSize: 20,
		Snakes: map[string]*Snake{
			"u1": {Body: []Position{{X: 5, Y: 5}}, Direction: DirUp, Alive: true, Length: 1},
		},
	}
	data, err := json.Marshal(&state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	if err := store.Put(ctx, gamestore.CollectionGames, room.ID, data); err != nil {
		t.Fatalf("put state: %v", err)
	}

	if err := m.ApplyMove(ctx, room.ID, "u1", DirLeft); err != nil {
		t.Fatalf("apply move: %v", err)
	}

	doc, err := store.Get(ctx, gamestore.CollectionGames, room.ID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	var updated GameState
	if err := json.Unmarshal(doc, &updated); err != nil {
		t.Fatalf("parse state: %v", err)
	}
	if updated.Snakes["u1"].Direction != DirLeft {
		t.Errorf("direction = %s, want left", updated.Snakes["u1"].Direction)
	}

	// Reversal rejected, state unchanged.
	if err := m.ApplyMove(ctx, room.ID, "u1", DirRight); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("reversal error = %v, want ErrInvalidMove", err)
	}

	// Outsider rejected.
	if err := m.ApplyMove(ctx, room.ID, "ghost", DirUp); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("outsider error = %v, want ErrNotInRoom", err)
	}
}

func TestCleanupRooms(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	fresh, err := m.CreateRoom(ctx, "u1", "viper")
	if err != nil {
		t.Fatalf("create fresh room: %v", err)
	}

	putRoom := func(id, status string, updatedAt time.Time) {
		t.Helper()
		room := &Room{
			ID: id, Code: "ST" + id[len(id)-2:], HostID: "u9", Status: status,
			Players:    map[string]*Player{},
			MaxPlayers: MaxPlayersPerRoom,
			CreatedAt:  millis(updatedAt), UpdatedAt: millis(updatedAt),
		}
		data, err := json.Marshal(room)
		if err != nil {
			t.Fatalf("marshal room: %v", err)
		}
		if err := store.Put(ctx, gamestore.CollectionRooms, id, data); err != nil {
			t.Fatalf("put room: %v", err)
		}
	}
	putRoom("stale-01", StatusWaiting, now.Add(-3*time.Hour))
	putRoom("done--02", StatusFinished, now.Add(-3*time.Hour))
	putRoom("done--03", StatusFinished, now)
	putRoom("plays-04", StatusPlaying, now.Add(-30*time.Hour))

	removed, err := m.CleanupRooms(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d rooms, want 2", removed)
	}

	if _, err := m.GetRoom(ctx, fresh.ID); err != nil {
		t.Errorf("fresh room removed: %v", err)
	}
	if _, err := m.GetRoom(ctx, "stale-01"); !errors.Is(err, ErrRoomNotFound) {
		t.Error("stale waiting room survived cleanup")
	}
	if _, err := m.GetRoom(ctx, "done--02"); !errors.Is(err, ErrRoomNotFound) {
		t.Error("stale finished room survived cleanup")
	}
	if _, err := m.GetRoom(ctx, "done--03"); err != nil {
		t.Errorf("fresh finished room removed: %v", err)
	}
	// Rooms with a game in progress survive regardless of idle age.
	if _, err := m.GetRoom(ctx, "plays-04"); err != nil {
		t.Errorf("in-progress room removed: %v", err)
	}
}
