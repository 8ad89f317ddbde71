// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package recovery orchestrates restores of the live game store from
// cataloged backups.
//
// Three restore strategies are supported:
//
//	FULL_RESTORE     replace every backed-up collection from one backup
//	PARTIAL_RESTORE  replace only the named collections
//	POINT_IN_TIME    restore the newest backup at or before a target time,
//	                 dropping entities created after it
//
// Full and point-in-time restores run behind the maintenance gate; a
// partial restore replaces a single collection in place without pausing
// gameplay. Every invocation leaves a permanent recovery operation record
// in the catalog.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/snakepit/internal/alerts"
	"github.com/tomtom215/snakepit/internal/backup"
	"github.com/tomtom215/snakepit/internal/catalog"
	"github.com/tomtom215/snakepit/internal/gamestore"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/metrics"
	"github.com/tomtom215/snakepit/internal/snapshot"
)

// Type selects the restore strategy.
type Type string

const (
	TypeFullRestore    Type = "FULL_RESTORE"
	TypePartialRestore Type = "PARTIAL_RESTORE"
	TypePointInTime    Type = "POINT_IN_TIME"
)

// Sentinel errors.
var (
	// ErrInvalidRequest indicates a malformed recovery request.
	ErrInvalidRequest = errors.New("invalid recovery request")

	// ErrValidationFailed indicates restored data failed structural
	// validation.
	ErrValidationFailed = errors.New("restored data failed validation")
)

// Request describes one recovery invocation.
type Request struct {
	// Type selects the restore strategy.
	Type Type

	// BackupID names the backup to restore. Required for FULL_RESTORE
	// and PARTIAL_RESTORE; ignored by POINT_IN_TIME.
	BackupID string

	// Components names the collections to restore. Required for
	// PARTIAL_RESTORE only.
	Components []string

	// TargetTime is the point to recover to. Required for POINT_IN_TIME
	// only.
	TargetTime time.Time

	// DryRun validates and reports what would be restored without
	// touching the game store or the maintenance gate.
	DryRun bool
}

// Result summarizes a finished recovery operation.
type Result struct {
	Success            bool     `json:"success"`
	RecoveryID         string   `json:"recovery_id"`
	BackupID           string   `json:"backup_id"`
	RestoredComponents []string `json:"restored_components"`
	DurationMillis     int64    `json:"duration_millis"`
	Message            string   `json:"message,omitempty"`
	DryRun             bool     `json:"dry_run"`
}

// Required document fields per collection, checked after a restore.
var requiredFields = map[string][]string{
	gamestore.CollectionRooms: {"code", "hostId", "status"},
	gamestore.CollectionUsers: {"displayName"},
}

// Orchestrator runs recovery operations.
type Orchestrator struct {
	store    *gamestore.Store
	archiver *backup.Archiver
	cat      *catalog.Catalog
	gate     *Gate
	sink     *alerts.Sink
	now      func() time.Time
}

// NewOrchestrator wires a recovery orchestrator.
func NewOrchestrator(store *gamestore.Store, archiver *backup.Archiver, cat *catalog.Catalog, gate *Gate, sink *alerts.Sink) *Orchestrator {
	return &Orchestrator{
		store:    store,
		archiver: archiver,
		cat:      cat,
		gate:     gate,
		sink:     sink,
		now:      time.Now,
	}
}

func validateRequest(req Request) error {
	switch req.Type {
	case TypeFullRestore:
		if req.BackupID == "" {
			return fmt.Errorf("%w: backup id required for full restore", ErrInvalidRequest)
		}
	case TypePartialRestore:
		if req.BackupID == "" {
			return fmt.Errorf("%w: backup id required for partial restore", ErrInvalidRequest)
		}
		if len(req.Components) == 0 {
			return fmt.Errorf("%w: components required for partial restore", ErrInvalidRequest)
		}
		for _, c := range req.Components {
			if !slices.Contains(gamestore.BackedUpCollections, c) {
				return fmt.Errorf("%w: unknown component %q", ErrInvalidRequest, c)
			}
		}
	case TypePointInTime:
		if req.TargetTime.IsZero() {
			return fmt.Errorf("%w: target time required for point in time recovery", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown recovery type %q", ErrInvalidRequest, req.Type)
	}
	return nil
}

// Execute runs a recovery operation. Every invocation with a valid request
// is recorded in the catalog, first as STARTED and then merged to SUCCESS
// or FAILED. On failure a critical alert is emitted. The maintenance gate,
// when taken, is released on every exit path.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	start := o.now().UTC()
	recoveryID := fmt.Sprintf("recovery-%d", start.UnixMilli())

	op := catalog.RecoveryOperation{
		RecoveryID:   recoveryID,
		RecoveryType: string(req.Type),
		BackupID:     req.BackupID,
		Status:       catalog.RecoveryStatusStarted,
		StartedAt:    start,
	}
	if err := o.cat.PutRecovery(ctx, op); err != nil {
		return nil, fmt.Errorf("record recovery start: %w", err)
	}

	logging.Info().
		Str("recovery_id", recoveryID).
		Str("type", string(req.Type)).
		Str("backup_id", req.BackupID).
		Bool("dry_run", req.DryRun).
		Msg("Recovery started")

	backupID, restored, err := o.dispatch(ctx, recoveryID, req)
	duration := o.now().UTC().Sub(start)
	op.BackupID = backupID

	if err != nil {
		op.Status = catalog.RecoveryStatusFailed
		op.Message = err.Error()
		if perr := o.cat.PutRecovery(ctx, op); perr != nil {
			logging.Error().Err(perr).Str("recovery_id", recoveryID).Msg("Recovery failure record write failed")
		}
		o.sink.Critical(ctx, alerts.TypeRecoveryFailure,
			fmt.Sprintf("recovery %s (%s) failed: %v", recoveryID, req.Type, err))
		metrics.RecordRecovery(string(req.Type), catalog.RecoveryStatusFailed, duration)
		logging.Error().Err(err).Str("recovery_id", recoveryID).Msg("Recovery failed")

		return &Result{
			RecoveryID:     recoveryID,
			BackupID:       backupID,
			DurationMillis: duration.Milliseconds(),
			Message:        err.Error(),
			DryRun:         req.DryRun,
		}, err
	}

	op.Status = catalog.RecoveryStatusSuccess
	op.RestoredComponents = restored
	if req.DryRun {
		op.Message = "dry run"
	}
	if perr := o.cat.PutRecovery(ctx, op); perr != nil {
		logging.Error().Err(perr).Str("recovery_id", recoveryID).Msg("Recovery success record write failed")
	}
	metrics.RecordRecovery(string(req.Type), catalog.RecoveryStatusSuccess, duration)
	logging.Info().
		Str("recovery_id", recoveryID).
		Strs("restored", restored).
		Dur("duration", duration).
		Msg("Recovery completed")

	return &Result{
		Success:            true,
		RecoveryID:         recoveryID,
		BackupID:           backupID,
		RestoredComponents: restored,
		DurationMillis:     duration.Milliseconds(),
		Message:            op.Message,
		DryRun:             req.DryRun,
	}, nil
}

// dispatch resolves the backup, applies the strategy, and returns the
// resolved backup id and the restored component names.
func (o *Orchestrator) dispatch(ctx context.Context, recoveryID string, req Request) (string, []string, error) {
	switch req.Type {
	case TypeFullRestore:
		payload, rec, err := o.archiver.Load(ctx, req.BackupID)
		if err != nil {
			return req.BackupID, nil, err
		}
		restored, err := o.restoreGated(ctx, recoveryID, payload, gamestore.BackedUpCollections, req.DryRun,
			fmt.Sprintf("Restoring from backup %s", rec.ID))
		return rec.ID, restored, err

	case TypePartialRestore:
		payload, rec, err := o.archiver.Load(ctx, req.BackupID)
		if err != nil {
			return req.BackupID, nil, err
		}
		// Partial restores swap collections in place without pausing
		// gameplay.
		restored, err := o.restore(ctx, payload, req.Components, req.DryRun)
		return rec.ID, restored, err

	case TypePointInTime:
		rec, err := o.cat.LatestBackupBefore(ctx, req.TargetTime)
		if err != nil {
			return "", nil, err
		}
		payload, _, err := o.archiver.Load(ctx, rec.ID)
		if err != nil {
			return rec.ID, nil, err
		}
		dropped := filterByCreation(payload, req.TargetTime)
		logging.Info().
			Str("backup_id", rec.ID).
			Time("target", req.TargetTime).
			Int("entities_dropped", dropped).
			Msg("Point in time payload filtered")
		restored, err := o.restoreGated(ctx, recoveryID, payload, gamestore.BackedUpCollections, req.DryRun,
			fmt.Sprintf("Restoring to %s from backup %s", req.TargetTime.UTC().Format(time.RFC3339), rec.ID))
		return rec.ID, restored, err

	default:
		return "", nil, fmt.Errorf("%w: unknown recovery type %q", ErrInvalidRequest, req.Type)
	}
}

// restoreGated runs a restore behind the maintenance gate. The gate is
// skipped entirely on a dry run and released on every exit path otherwise.
func (o *Orchestrator) restoreGated(ctx context.Context, recoveryID string, payload *snapshot.Payload, components []string, dryRun bool, gateMessage string) (restored []string, err error) {
	if !dryRun {
		if err := o.gate.Acquire(ctx, recoveryID, gateMessage); err != nil {
			return nil, err
		}
		defer func() {
			if rerr := o.gate.Release(ctx); rerr != nil {
				logging.Error().Err(rerr).Str("recovery_id", recoveryID).Msg("Maintenance gate release failed")
				if err == nil {
					err = rerr
				}
			}
		}()
	}
	return o.restore(ctx, payload, components, dryRun)
}

// restore validates and writes the named collections from the payload.
// Components absent from the payload are skipped with a warning and left
// out of the returned list. A dry run stops after validation.
func (o *Orchestrator) restore(ctx context.Context, payload *snapshot.Payload, components []string, dryRun bool) ([]string, error) {
	present := make([]string, 0, len(components))
	for _, name := range components {
		if _, ok := payload.Collections[name]; !ok {
			logging.Warn().Str("component", name).Msg("Component absent from backup, skipping")
			continue
		}
		if err := validateDocs(name, payload.Collections[name]); err != nil {
			return nil, err
		}
		present = append(present, name)
	}
	if dryRun {
		return present, nil
	}

	for _, name := range present {
		docs := make(map[string]gamestore.Document, len(payload.Collections[name]))
		for id, raw := range payload.Collections[name] {
			docs[id] = gamestore.Document(raw)
		}
		if err := o.store.SetCollection(ctx, name, docs); err != nil {
			return nil, fmt.Errorf("restore collection %s: %w", name, err)
		}
	}

	// Read back and re-check structure after the write.
	for _, name := range present {
		docs, err := o.store.ReadCollection(ctx, name, 0)
		if err != nil {
			return nil, fmt.Errorf("verify restored collection %s: %w", name, err)
		}
		raw := make(map[string]json.RawMessage, len(docs))
		for id, doc := range docs {
			raw[id] = json.RawMessage(doc)
		}
		if err := validateDocs(name, raw); err != nil {
			return nil, err
		}
	}
	return present, nil
}

// validateDocs checks every document in a collection for the fields
// clients depend on.
func validateDocs(collection string, docs map[string]json.RawMessage) error {
	fields := requiredFields[collection]
	if len(fields) == 0 {
		return nil
	}
	for id, raw := range docs {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: %s/%s is not an object: %v", ErrValidationFailed, collection, id, err)
		}
		for _, field := range fields {
			val, ok := doc[field]
			if !ok || string(val) == "null" {
				return fmt.Errorf("%w: %s/%s missing field %q", ErrValidationFailed, collection, id, field)
			}
		}
	}
	return nil
}

// filterByCreation drops entities created after target, returning how many
// were removed. Entities without a createdAt timestamp are kept.
func filterByCreation(payload *snapshot.Payload, target time.Time) int {
	targetMillis := target.UTC().UnixMilli()
	dropped := 0
	for _, docs := range payload.Collections {
		for id, raw := range docs {
			var probe struct {
				CreatedAt int64 `json:"createdAt"`
			}
			if err := json.Unmarshal(raw, &probe); err != nil {
				continue
			}
			if probe.CreatedAt > targetMillis {
				delete(docs, id)
				dropped++
			}
		}
	}
	return dropped
}
