// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package backup stores snapshot payloads in blob storage, indexes them in
// the metadata catalog, and applies per-class retention policy.
package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/snakepit/internal/blob"
	"github.com/tomtom215/snakepit/internal/catalog"
	"github.com/tomtom215/snakepit/internal/integrity"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/metrics"
	"github.com/tomtom215/snakepit/internal/snapshot"
)

// Class identifies the backup cadence and retention policy.
type Class string

const (
	ClassDaily  Class = "daily"
	ClassWeekly Class = "weekly"
	ClassManual Class = "manual"
)

// Retention periods per class. Manual backups are never swept.
const (
	DailyRetention  = 30 * 24 * time.Hour
	WeeklyRetention = 365 * 24 * time.Hour
)

// MaxListResults caps how many catalog entries a single listing returns.
const MaxListResults = 50

// Sentinel errors.
var (
	// ErrChecksumMismatch indicates a loaded payload failed integrity
	// verification against its catalog record.
	ErrChecksumMismatch = errors.New("backup checksum mismatch")

	// ErrPayloadMissing indicates a cataloged backup's payload is gone
	// from blob storage.
	ErrPayloadMissing = errors.New("backup payload missing from blob storage")

	// ErrUnknownClass indicates an unrecognized backup class.
	ErrUnknownClass = errors.New("unknown backup class")
)

// ParseClass validates a class string.
func ParseClass(s string) (Class, error) {
	switch Class(s) {
	case ClassDaily, ClassWeekly, ClassManual:
		return Class(s), nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownClass)
	}
}

// RetentionPeriod returns the retention period for a class. The second
// return is false for classes exempt from retention sweeping.
func RetentionPeriod(class Class) (time.Duration, bool) {
	switch class {
	case ClassDaily:
		return DailyRetention, true
	case ClassWeekly:
		return WeeklyRetention, true
	default:
		return 0, false
	}
}

// blobNameReplacer sanitizes the time portion of an ISO-8601 timestamp for
// use in an object name.
var blobNameReplacer = strings.NewReplacer(":", "-", ".", "-")

// BlobName derives the object name for a backup captured at t.
// Example: backup-daily-2026-08-31-02-00-00-000Z.json
func BlobName(class Class, t time.Time) string {
	iso := t.UTC().Format("2006-01-02T15:04:05.000Z")
	datePart, timePart, _ := strings.Cut(iso, "T")
	return fmt.Sprintf("backup-%s-%s-%s.json", class, datePart, blobNameReplacer.Replace(timePart))
}

// BlobPrefix returns the object name prefix shared by all backups of a
// class.
func BlobPrefix(class Class) string {
	return fmt.Sprintf("backup-%s-", class)
}

// BackupID derives the catalog id for a backup captured at t.
// Example: daily-1756605600000
func BackupID(class Class, t time.Time) string {
	return fmt.Sprintf("%s-%d", class, t.UnixMilli())
}

// Archiver writes snapshot payloads to blob storage and indexes them in the
// catalog. The blob write always commits before the catalog write.
type Archiver struct {
	blobs blob.Store
	cat   *catalog.Catalog
	now   func() time.Time
}

// NewArchiver returns an Archiver over the given blob store and catalog.
func NewArchiver(blobs blob.Store, cat *catalog.Catalog) *Archiver {
	return &Archiver{blobs: blobs, cat: cat, now: time.Now}
}

// SetClock replaces the archiver's time source. Test hook.
func (a *Archiver) SetClock(now func() time.Time) {
	a.now = now
}

// Store persists a sealed payload as a backup of the given class and
// returns its catalog record.
func (a *Archiver) Store(ctx context.Context, payload *snapshot.Payload, class Class) (*catalog.BackupRecord, error) {
	start := a.now().UTC()
	rec, err := a.store(ctx, payload, class, start)
	metrics.RecordBackup(string(class), payload.Metadata.SizeBytes, a.now().Sub(start), err)
	return rec, err
}

func (a *Archiver) store(ctx context.Context, payload *snapshot.Payload, class Class, now time.Time) (*catalog.BackupRecord, error) {
	id := BackupID(class, now)
	name := BlobName(class, now)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize backup payload: %w", err)
	}

	tags := map[string]string{
		"backup_id": id,
		"class":     string(class),
	}
	if err := a.blobs.Save(ctx, name, data, "application/json", tags); err != nil {
		return nil, fmt.Errorf("save backup payload %s: %w", name, err)
	}

	rec := catalog.BackupRecord{
		ID:            id,
		Filename:      name,
		Class:         string(class),
		CreatedAt:     now,
		SizeBytes:     payload.Metadata.SizeBytes,
		Checksum:      payload.Metadata.Checksum,
		FormatVersion: payload.Metadata.FormatVersion,
		Environment:   payload.Metadata.Environment,
	}
	if err := a.cat.PutBackup(ctx, rec); err != nil {
		return nil, fmt.Errorf("index backup %s: %w", id, err)
	}

	logging.Info().
		Str("backup_id", id).
		Str("class", string(class)).
		Str("filename", name).
		Int64("size_bytes", rec.SizeBytes).
		Msg("Backup stored")
	return &rec, nil
}

// List returns cataloged backups of the given class, newest first. An
// empty class matches all classes. The result is capped at MaxListResults.
func (a *Archiver) List(ctx context.Context, class string, limit int) ([]catalog.BackupRecord, error) {
	if limit <= 0 || limit > MaxListResults {
		limit = MaxListResults
	}
	return a.cat.ListBackups(ctx, class, limit)
}

// Load fetches a backup's payload and re-verifies its integrity against
// the catalog record's checksum. Returns catalog.ErrBackupNotFound for an
// unknown id, ErrPayloadMissing when the blob is gone, and
// ErrChecksumMismatch when the payload no longer matches its checksum.
func (a *Archiver) Load(ctx context.Context, backupID string) (*snapshot.Payload, *catalog.BackupRecord, error) {
	rec, err := a.cat.GetBackup(ctx, backupID)
	if err != nil {
		return nil, nil, err
	}

	data, err := a.blobs.Download(ctx, rec.Filename)
	if errors.Is(err, blob.ErrObjectNotFound) {
		return nil, nil, fmt.Errorf("%s (%s): %w", backupID, rec.Filename, ErrPayloadMissing)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("download backup payload %s: %w", rec.Filename, err)
	}

	var payload snapshot.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, fmt.Errorf("parse backup payload %s: %w", rec.Filename, err)
	}

	// Records imported from elsewhere may lack a checksum; only verify
	// when one was recorded.
	if rec.Checksum != "" {
		canonical, err := snapshot.CanonicalCollections(payload.Collections)
		if err != nil {
			return nil, nil, err
		}
		if !integrity.Verify(canonical, rec.Checksum) {
			return nil, nil, fmt.Errorf("%s: %w", backupID, ErrChecksumMismatch)
		}
	}

	return &payload, rec, nil
}
