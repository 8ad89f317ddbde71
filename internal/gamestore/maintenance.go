// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package gamestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// maintenanceKey is the singleton key for the maintenance-mode flag.
var maintenanceKey = []byte("maintenance")

// MaintenanceState is the process-wide maintenance-mode singleton. It exists
// only while a destructive restore runs; application code is expected to
// check it before accepting player actions. The flag is advisory:
// last-writer-wins, no lock arbitration.
type MaintenanceState struct {
	Active     bool   `json:"active"`
	Message    string `json:"message"`
	StartTime  int64  `json:"start_time"`
	RecoveryID string `json:"recovery_id"`
}

// SetMaintenance writes the maintenance-mode singleton, overwriting any
// prior state.
func (s *Store) SetMaintenance(ctx context.Context, state MaintenanceState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal maintenance state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(maintenanceKey, data)
	})
}

// GetMaintenance returns the maintenance-mode singleton, or nil when no
// maintenance is in progress.
func (s *Store) GetMaintenance(ctx context.Context) (*MaintenanceState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var state *MaintenanceState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(maintenanceKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var st MaintenanceState
			if err := json.Unmarshal(val, &st); err != nil {
				return fmt.Errorf("unmarshal maintenance state: %w", err)
			}
			state = &st
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ClearMaintenance removes the maintenance-mode singleton unconditionally.
func (s *Store) ClearMaintenance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(maintenanceKey)
	})
}
