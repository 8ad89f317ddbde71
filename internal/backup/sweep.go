// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/snakepit/internal/blob"
	"github.com/tomtom215/snakepit/internal/catalog"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/metrics"
)

// Sweeper removes backups older than their class retention period from
// blob storage and the catalog.
type Sweeper struct {
	blobs blob.Store
	cat   *catalog.Catalog
	now   func() time.Time
}

// NewSweeper returns a Sweeper over the given blob store and catalog.
func NewSweeper(blobs blob.Store, cat *catalog.Catalog) *Sweeper {
	return &Sweeper{blobs: blobs, cat: cat, now: time.Now}
}

// SetClock replaces the sweeper's time source. Test hook.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep deletes backups of the given class created strictly before the
// class retention cutoff, returning how many payloads were removed.
// Classes without a retention period (manual) are left untouched.
func (s *Sweeper) Sweep(ctx context.Context, class Class) (int, error) {
	period, sweepable := RetentionPeriod(class)
	if !sweepable {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-period)

	objects, err := s.blobs.List(ctx, BlobPrefix(class))
	if err != nil {
		return 0, fmt.Errorf("list %s backups: %w", class, err)
	}

	deleted := 0
	for _, obj := range objects {
		if !obj.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.blobs.Delete(ctx, obj.Name); err != nil {
			return deleted, fmt.Errorf("delete expired backup %s: %w", obj.Name, err)
		}
		deleted++
		logging.Debug().
			Str("filename", obj.Name).
			Str("class", string(class)).
			Time("created_at", obj.CreatedAt).
			Msg("Expired backup deleted")
	}

	removed, err := s.cat.DeleteBackupsBefore(ctx, string(class), cutoff)
	if err != nil {
		return deleted, fmt.Errorf("prune %s catalog entries: %w", class, err)
	}

	if deleted > 0 || removed > 0 {
		metrics.RetentionDeletions.WithLabelValues(string(class)).Add(float64(deleted))
		logging.Info().
			Str("class", string(class)).
			Int("payloads_deleted", deleted).
			Int64("catalog_rows_removed", removed).
			Time("cutoff", cutoff).
			Msg("Retention sweep completed")
	}
	return deleted, nil
}
