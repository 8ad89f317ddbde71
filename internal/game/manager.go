// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/snakepit/internal/gamestore"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/metrics"
)

// Sentinel errors.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrRoomNotJoinable    = errors.New("room is not accepting players")
	ErrInvalidMove        = errors.New("invalid move")
	ErrNotInRoom          = errors.New("player is not in the room")
	ErrNotHost            = errors.New("only the host can start the game")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
)

// Room codes use an alphabet without easily confused characters.
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// opposites maps each direction to its reversal.
var opposites = map[Direction]Direction{
	DirUp:    DirDown,
	DirDown:  DirUp,
	DirLeft:  DirRight,
	DirRight: DirLeft,
}

// Manager owns room lifecycle against the game store.
type Manager struct {
	store *gamestore.Store
	now   func() time.Time
}

// NewManager returns a Manager over the given store.
func NewManager(store *gamestore.Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// newRoomCode generates a random join code.
func newRoomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// CreateRoom creates a waiting room hosted by the given player.
func (m *Manager) CreateRoom(ctx context.Context, hostID, hostName string) (*Room, error) {
	code, err := newRoomCode()
	if err != nil {
		return nil, err
	}

	now := millis(m.now())
	room := &Room{
		ID:     uuid.NewString(),
		Code:   code,
		HostID: hostID,
		Status: StatusWaiting,
		Players: map[string]*Player{
			hostID: {ID: hostID, DisplayName: hostName, JoinedAt: now},
		},
		MaxPlayers: MaxPlayersPerRoom,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.putRoom(ctx, room); err != nil {
		return nil, err
	}

	metrics.ActiveRooms.Inc()
	logging.Info().Str("room_id", room.ID).Str("code", room.Code).Str("host_id", hostID).Msg("Room created")
	return room, nil
}

// GetRoom loads a room by id.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	doc, err := m.store.Get(ctx, gamestore.CollectionRooms, roomID)
	if errors.Is(err, gamestore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	var room Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return nil, fmt.Errorf("parse room %s: %w", roomID, err)
	}
	return &room, nil
}

// FindRoomByCode locates a room by its join code.
func (m *Manager) FindRoomByCode(ctx context.Context, code string) (*Room, error) {
	rooms, err := m.store.ReadCollection(ctx, gamestore.CollectionRooms, 0)
	if err != nil {
		return nil, fmt.Errorf("scan rooms: %w", err)
	}
	for id, doc := range rooms {
		var room Room
		if err := json.Unmarshal(doc, &room); err != nil {
			logging.Warn().Err(err).Str("room_id", id).Msg("Skipping unparseable room document")
			continue
		}
		if room.Code == code {
			return &room, nil
		}
	}
	return nil, fmt.Errorf("code %s: %w", code, ErrRoomNotFound)
}

// JoinRoom adds a player to a waiting room identified by its join code.
func (m *Manager) JoinRoom(ctx context.Context, code, playerID, displayName string) (*Room, error) {
	room, err := m.FindRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Status != StatusWaiting {
		return nil, fmt.Errorf("room %s is %s: %w", room.ID, room.Status, ErrRoomNotJoinable)
	}
	if _, ok := room.Players[playerID]; !ok && len(room.Players) >= room.MaxPlayers {
		return nil, fmt.Errorf("room %s: %w", room.ID, ErrRoomFull)
	}

	if _, ok := room.Players[playerID]; !ok {
		room.Players[playerID] = &Player{ID: playerID, DisplayName: displayName, JoinedAt: millis(m.now())}
	}
	room.UpdatedAt = millis(m.now())
	if err := m.putRoom(ctx, room); err != nil {
		return nil, err
	}

	logging.Info().Str("room_id", room.ID).Str("player_id", playerID).Msg("Player joined room")
	return room, nil
}

// ValidateMove checks a direction change against the snake's current
// heading. A direct reversal is rejected.
func ValidateMove(current, next Direction) error {
	if _, ok := opposites[next]; !ok {
		return fmt.Errorf("unknown direction %q: %w", next, ErrInvalidMove)
	}
	if opposites[current] == next {
		return fmt.Errorf("cannot reverse from %s to %s: %w", current, next, ErrInvalidMove)
	}
	return nil
}

// startPosition spreads snake spawns around the board, padded in from
// the walls: facing pairs for two players, corners beyond that.
func startPosition(i, total, size int) Position {
	const padding = 3
	mid := size / 2
	switch total {
	case 2:
		if i == 0 {
			return Position{X: padding, Y: mid}
		}
		return Position{X: size - padding - 1, Y: mid}
	case 3:
		switch i {
		case 0:
			return Position{X: padding, Y: padding}
		case 1:
			return Position{X: size - padding - 1, Y: padding}
		default:
			return Position{X: mid, Y: size - padding - 1}
		}
	default:
		corners := []Position{
			{X: padding, Y: padding},
			{X: size - padding - 1, Y: padding},
			{X: padding, Y: size - padding - 1},
			{X: size - padding - 1, Y: size - padding - 1},
		}
		return corners[i%4]
	}
}

// startDirection points each spawn toward open board.
func startDirection(i, total int) Direction {
	switch total {
	case 2:
		if i == 0 {
			return DirRight
		}
		return DirLeft
	case 3:
		return []Direction{DirRight, DirLeft, DirUp}[i]
	default:
		return []Direction{DirRight, DirLeft, DirRight, DirLeft}[i%4]
	}
}

// StartGame seeds live game state for a waiting room and flips it to
// playing. Only the host can start, and at least two players must have
// joined.
func (m *Manager) StartGame(ctx context.Context, roomID, playerID string) (*GameState, error) {
	room, err := m.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != playerID {
		return nil, fmt.Errorf("player %s in room %s: %w", playerID, roomID, ErrNotHost)
	}
	if room.Status != StatusWaiting {
		return nil, fmt.Errorf("room %s is %s: %w", roomID, room.Status, ErrGameAlreadyStarted)
	}
	if len(room.Players) < MinPlayersToStart {
		return nil, fmt.Errorf("room %s has %d players: %w", roomID, len(room.Players), ErrNotEnoughPlayers)
	}

	ids := make([]string, 0, len(room.Players))
	for id := range room.Players {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	now := millis(m.now())
	state := &GameState{
		RoomID:    roomID,
		BoardSize: DefaultBoardSize,
		Snakes:    make(map[string]*Snake, len(ids)),
		UpdatedAt: now,
	}
	for i, id := range ids {
		state.Snakes[id] = &Snake{
			Body:      []Position{startPosition(i, len(ids), DefaultBoardSize)},
			Direction: startDirection(i, len(ids)),
			Alive:     true,
			Length:    1,
		}
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("serialize game state %s: %w", roomID, err)
	}
	if err := m.store.Put(ctx, gamestore.CollectionGames, roomID, data); err != nil {
		return nil, fmt.Errorf("save game state %s: %w", roomID, err)
	}

	room.Status = StatusPlaying
	room.UpdatedAt = now
	if err := m.putRoom(ctx, room); err != nil {
		return nil, err
	}

	logging.Info().Str("room_id", roomID).Int("players", len(ids)).Msg("Game started")
	return state, nil
}

// step returns the cell one move along dir from head.
func step(head Position, dir Direction) Position {
	switch dir {
	case DirUp:
		head.Y--
	case DirDown:
		head.Y++
	case DirLeft:
		head.X--
	case DirRight:
		head.X++
	}
	return head
}

// CheckMove validates a direction change for the player against the live
// arena. Reversals, moves off the board, and moves into any live snake
// body are rejected. Returns the position the head would occupy.
func (s *GameState) CheckMove(playerID string, next Direction) (Position, error) {
	snake, ok := s.Snakes[playerID]
	if !ok || !snake.Alive {
		return Position{}, fmt.Errorf("player %s has no live snake: %w", playerID, ErrInvalidMove)
	}
	if err := ValidateMove(snake.Direction, next); err != nil {
		return Position{}, err
	}
	if len(snake.Body) == 0 {
		return Position{}, fmt.Errorf("player %s snake has no body: %w", playerID, ErrInvalidMove)
	}

	head := step(snake.Body[0], next)
	if head.X < 0 || head.Y < 0 || head.X >= s.BoardSize || head.Y >= s.BoardSize {
		return head, fmt.Errorf("move to (%d,%d) is out of bounds: %w", head.X, head.Y, ErrInvalidMove)
	}
	for id, other := range s.Snakes {
		if !other.Alive {
			continue
		}
		for _, pos := range other.Body {
			if pos != head {
				continue
			}
			if id == playerID {
				return head, fmt.Errorf("move collides with own snake: %w", ErrInvalidMove)
			}
			return head, fmt.Errorf("move collides with another snake: %w", ErrInvalidMove)
		}
	}
	return head, nil
}

// ApplyMove records a validated direction change in the room's live game
// state.
func (m *Manager) ApplyMove(ctx context.Context, roomID, playerID string, next Direction) error {
	room, err := m.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if _, ok := room.Players[playerID]; !ok {
		return fmt.Errorf("player %s in room %s: %w", playerID, roomID, ErrNotInRoom)
	}

	doc, err := m.store.Get(ctx, gamestore.CollectionGames, roomID)
	if errors.Is(err, gamestore.ErrNotFound) {
		return fmt.Errorf("no active game in room %s: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return fmt.Errorf("load game state %s: %w", roomID, err)
	}
	var state GameState
	if err := json.Unmarshal(doc, &state); err != nil {
		return fmt.Errorf("parse game state %s: %w", roomID, err)
	}

	if _, err := state.CheckMove(playerID, next); err != nil {
		metrics.MovesValidated.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.MovesValidated.WithLabelValues("accepted").Inc()

	state.Snakes[playerID].Direction = next
	state.UpdatedAt = millis(m.now())
	data, err := json.Marshal(&state)
	if err != nil {
		return fmt.Errorf("serialize game state %s: %w", roomID, err)
	}
	if err := m.store.Put(ctx, gamestore.CollectionGames, roomID, data); err != nil {
		return fmt.Errorf("save game state %s: %w", roomID, err)
	}
	return nil
}

// CleanupRooms removes waiting and finished rooms idle past maxIdle,
// returning how many were deleted. Rooms with a game in progress are
// never swept.
func (m *Manager) CleanupRooms(ctx context.Context, maxIdle time.Duration) (int, error) {
	rooms, err := m.store.ReadCollection(ctx, gamestore.CollectionRooms, 0)
	if err != nil {
		return 0, fmt.Errorf("scan rooms: %w", err)
	}

	cutoff := millis(m.now().Add(-maxIdle))
	removed := 0
	for id, doc := range rooms {
		var room Room
		if err := json.Unmarshal(doc, &room); err != nil {
			logging.Warn().Err(err).Str("room_id", id).Msg("Skipping unparseable room document")
			continue
		}
		if room.Status == StatusPlaying || room.UpdatedAt >= cutoff {
			continue
		}
		if err := m.store.Delete(ctx, gamestore.CollectionRooms, id); err != nil {
			return removed, fmt.Errorf("delete room %s: %w", id, err)
		}
		// Drop any live game state alongside the room.
		if err := m.store.Delete(ctx, gamestore.CollectionGames, id); err != nil && !errors.Is(err, gamestore.ErrNotFound) {
			return removed, fmt.Errorf("delete game state %s: %w", id, err)
		}
		removed++
		metrics.RoomsCleaned.Inc()
		metrics.ActiveRooms.Dec()
	}

	if removed > 0 {
		logging.Info().Int("removed", removed).Msg("Stale rooms cleaned up")
	}
	return removed, nil
}

func (m *Manager) putRoom(ctx context.Context, room *Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("serialize room %s: %w", room.ID, err)
	}
	if err := m.store.Put(ctx, gamestore.CollectionRooms, room.ID, data); err != nil {
		return fmt.Errorf("save room %s: %w", room.ID, err)
	}
	return nil
}
