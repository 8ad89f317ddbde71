// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/snakepit/internal/gamestore"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/metrics"
)

// Gate controls the maintenance flag that clients poll to pause gameplay
// while a restore rewrites live state. Acquire overwrites any existing
// flag; last writer wins.
type Gate struct {
	store *gamestore.Store
	now   func() time.Time
}

// NewGate returns a Gate over the given store.
func NewGate(store *gamestore.Store) *Gate {
	return &Gate{store: store, now: time.Now}
}

// Acquire raises the maintenance flag on behalf of a recovery operation.
func (g *Gate) Acquire(ctx context.Context, recoveryID, message string) error {
	state := gamestore.MaintenanceState{
		Active:     true,
		Message:    message,
		StartTime:  g.now().UTC().UnixMilli(),
		RecoveryID: recoveryID,
	}
	if err := g.store.SetMaintenance(ctx, state); err != nil {
		return fmt.Errorf("raise maintenance flag: %w", err)
	}
	metrics.SetMaintenanceActive(true)
	logging.Info().Str("recovery_id", recoveryID).Msg("Maintenance mode enabled")
	return nil
}

// Release clears the maintenance flag. Releasing an unheld gate is a no-op.
func (g *Gate) Release(ctx context.Context) error {
	if err := g.store.ClearMaintenance(ctx); err != nil {
		return fmt.Errorf("clear maintenance flag: %w", err)
	}
	metrics.SetMaintenanceActive(false)
	logging.Info().Msg("Maintenance mode disabled")
	return nil
}

// Status returns the current maintenance state, or nil when the gate is
// not held.
func (g *Gate) Status(ctx context.Context) (*gamestore.MaintenanceState, error) {
	return g.store.GetMaintenance(ctx)
}
