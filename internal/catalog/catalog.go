// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package catalog provides the indexed metadata catalog for the backup and
// recovery engine, backed by DuckDB.
//
// Three tables are kept:
//
//	backups              one row per stored backup (metadata only; the
//	                     payload lives in blob storage)
//	recovery_operations  permanent audit trail of recovery invocations,
//	                     merge-updated from STARTED to a terminal status
//	alerts               append-only operational alert log
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Sentinel errors.
var (
	// ErrBackupNotFound indicates no backup row matches the requested id
	// or time bound.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrRecoveryNotFound indicates no recovery operation exists with the
	// requested id.
	ErrRecoveryNotFound = errors.New("recovery operation not found")
)

// BackupRecord is a catalog entry for one stored backup. Immutable once
// written, except for deletion by the retention sweeper.
type BackupRecord struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	Class         string    `json:"class"`
	CreatedAt     time.Time `json:"created_at"`
	SizeBytes     int64     `json:"size_bytes"`
	Checksum      string    `json:"checksum"`
	FormatVersion string    `json:"format_version"`
	Environment   string    `json:"environment"`
}

// Recovery operation statuses. Transitions are monotonic: STARTED may move
// to SUCCESS or FAILED; terminal statuses never change.
const (
	RecoveryStatusStarted = "STARTED"
	RecoveryStatusSuccess = "SUCCESS"
	RecoveryStatusFailed  = "FAILED"
)

// RecoveryOperation is the permanent audit record of one recovery
// invocation. Never deleted.
type RecoveryOperation struct {
	RecoveryID         string    `json:"recovery_id"`
	RecoveryType       string    `json:"recovery_type"`
	BackupID           string    `json:"backup_id"`
	Status             string    `json:"status"`
	Message            string    `json:"message"`
	RestoredComponents []string  `json:"restored_components"`
	StartedAt          time.Time `json:"started_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AlertRecord is one entry of the durable alert log.
type AlertRecord struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Catalog is a DuckDB-backed metadata catalog.
type Catalog struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) a DuckDB database at path and initializes the
// catalog schema. An empty path opens an in-memory database.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.initSchema(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Ping performs a liveness probe query.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// initSchema creates the catalog tables if they don't exist.
func (c *Catalog) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS backups (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			class TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			size_bytes BIGINT NOT NULL,
			checksum TEXT NOT NULL,
			format_version TEXT NOT NULL,
			environment TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_backups_class ON backups(class);
		CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups(created_at DESC);

		CREATE TABLE IF NOT EXISTS recovery_operations (
			recovery_id TEXT PRIMARY KEY,
			recovery_type TEXT NOT NULL,
			backup_id TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			restored_components JSON,
			started_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
		CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp DESC);
	`

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// PutBackup inserts a backup record. CreatedAt is catalog-assigned when the
// caller leaves it zero.
func (c *Catalog) PutBackup(ctx context.Context, rec BackupRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO backups (id, filename, class, created_at, size_bytes, checksum, format_version, environment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.Class, rec.CreatedAt, rec.SizeBytes,
		rec.Checksum, rec.FormatVersion, rec.Environment,
	)
	if err != nil {
		return fmt.Errorf("insert backup record %s: %w", rec.ID, err)
	}
	return nil
}

const backupColumns = "id, filename, class, created_at, size_bytes, checksum, format_version, environment"

func scanBackup(row interface{ Scan(...any) error }) (*BackupRecord, error) {
	var rec BackupRecord
	err := row.Scan(&rec.ID, &rec.Filename, &rec.Class, &rec.CreatedAt,
		&rec.SizeBytes, &rec.Checksum, &rec.FormatVersion, &rec.Environment)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetBackup returns the backup record with the given id.
func (c *Catalog) GetBackup(ctx context.Context, id string) (*BackupRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRowContext(ctx,
		"SELECT "+backupColumns+" FROM backups WHERE id = ?", id)
	rec, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrBackupNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	return rec, nil
}

// ListBackups returns backup records ordered by creation time descending.
// An empty class matches all classes; limit <= 0 means no limit.
func (c *Catalog) ListBackups(ctx context.Context, class string, limit int) ([]BackupRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := "SELECT " + backupColumns + " FROM backups"
	var args []any
	if class != "" {
		query += " WHERE class = ?"
		args = append(args, class)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var records []BackupRecord
	for rows.Next() {
		rec, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return records, nil
}

// LatestBackupBefore returns the most recent backup record with creation
// time at or before t, across all classes. Returns ErrBackupNotFound when
// no backup exists at or before t.
func (c *Catalog) LatestBackupBefore(ctx context.Context, t time.Time) (*BackupRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRowContext(ctx,
		"SELECT "+backupColumns+" FROM backups WHERE created_at <= ? ORDER BY created_at DESC LIMIT 1", t)
	rec, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no backup at or before %s: %w", t.UTC().Format(time.RFC3339), ErrBackupNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find backup before %s: %w", t.UTC().Format(time.RFC3339), err)
	}
	return rec, nil
}

// DeleteBackupsBefore removes backup records of the given class created
// strictly before cutoff, returning the number of rows removed.
func (c *Catalog) DeleteBackupsBefore(ctx context.Context, class string, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"DELETE FROM backups WHERE class = ? AND created_at < ?", class, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete %s backups before %s: %w", class, cutoff.UTC().Format(time.RFC3339), err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleted row count: %w", err)
	}
	return count, nil
}

// PutRecovery creates or merge-updates a recovery operation record. Status
// transitions are monotonic: once a record reaches SUCCESS or FAILED it is
// never overwritten back to STARTED.
func (c *Catalog) PutRecovery(ctx context.Context, op RecoveryOperation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if op.StartedAt.IsZero() {
		op.StartedAt = now
	}
	op.UpdatedAt = now

	components, err := json.Marshal(op.RestoredComponents)
	if err != nil {
		return fmt.Errorf("marshal restored components: %w", err)
	}

	var existingStatus string
	err = c.db.QueryRowContext(ctx,
		"SELECT status FROM recovery_operations WHERE recovery_id = ?", op.RecoveryID).Scan(&existingStatus)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = c.db.ExecContext(ctx, `
			INSERT INTO recovery_operations
				(recovery_id, recovery_type, backup_id, status, message, restored_components, started_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			op.RecoveryID, op.RecoveryType, op.BackupID, op.Status, op.Message,
			string(components), op.StartedAt, op.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert recovery operation %s: %w", op.RecoveryID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read recovery operation %s: %w", op.RecoveryID, err)
	}

	if existingStatus != RecoveryStatusStarted && op.Status == RecoveryStatusStarted {
		// Terminal statuses never regress.
		return nil
	}

	_, err = c.db.ExecContext(ctx, `
		UPDATE recovery_operations
		SET status = ?, message = ?, restored_components = ?, updated_at = ?
		WHERE recovery_id = ?`,
		op.Status, op.Message, string(components), op.UpdatedAt, op.RecoveryID,
	)
	if err != nil {
		return fmt.Errorf("update recovery operation %s: %w", op.RecoveryID, err)
	}
	return nil
}

// GetRecovery returns the recovery operation with the given id.
func (c *Catalog) GetRecovery(ctx context.Context, recoveryID string) (*RecoveryOperation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var op RecoveryOperation
	var message sql.NullString
	var components sql.NullString

	row := c.db.QueryRowContext(ctx, `
		SELECT recovery_id, recovery_type, backup_id, status, message,
		       CAST(restored_components AS VARCHAR), started_at, updated_at
		FROM recovery_operations WHERE recovery_id = ?`, recoveryID)
	err := row.Scan(&op.RecoveryID, &op.RecoveryType, &op.BackupID, &op.Status,
		&message, &components, &op.StartedAt, &op.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", recoveryID, ErrRecoveryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get recovery operation %s: %w", recoveryID, err)
	}

	op.Message = message.String
	if components.Valid && components.String != "" {
		if err := json.Unmarshal([]byte(components.String), &op.RestoredComponents); err != nil {
			return nil, fmt.Errorf("parse restored components for %s: %w", recoveryID, err)
		}
	}
	return &op, nil
}

// AppendAlert appends an alert to the durable alert log.
func (c *Catalog) AppendAlert(ctx context.Context, alert AlertRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO alerts (id, type, message, severity, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), alert.Type, alert.Message, alert.Severity, alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts ordered newest first. An empty severity matches
// all severities; limit <= 0 means no limit.
func (c *Catalog) ListAlerts(ctx context.Context, severity string, limit int) ([]AlertRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := "SELECT type, message, severity, timestamp FROM alerts"
	var args []any
	if severity != "" {
		query += " WHERE severity = ?"
		args = append(args, severity)
	}
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var a AlertRecord
		if err := rows.Scan(&a.Type, &a.Message, &a.Severity, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
