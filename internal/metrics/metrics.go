// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Backup creation, sizes, and retention sweeps
// - Recovery operation outcomes and durations
// - Operational alerts
// - API endpoint latency and throughput
// - Live game activity

var (
	// Backup Metrics
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snakepit_backups_total",
			Help: "Total number of backups created",
		},
		[]string{"class"}, // "daily", "weekly", "manual"
	)

	BackupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snakepit_backup_errors_total",
			Help: "Total number of failed backup attempts",
		},
		[]string{"class"},
	)

	BackupSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snakepit_backup_size_bytes",
			Help:    "Size of backup payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to 256MiB
		},
		[]string{"class"},
	)

	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snakepit_backup_duration_seconds",
			Help:    "End to end duration of backup runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	RetentionDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snakepit_retention_deletions_total",
			Help: "Total number of backups removed by retention sweeps",
		},
		[]string{"class"},
	)

	// Recovery Metrics
	RecoveryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snakepit_recovery_operations_total",
			Help: "Total number of recovery operations by type and outcome",
		},
		[]string{"type", "status"}, // type: FULL_RESTORE/PARTIAL_RESTORE/POINT_IN_TIME
	)

	RecoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snakepit_recovery_duration_seconds",
			Help:    "Duration of recovery operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"type"},
	)

	MaintenanceActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snakepit_maintenance_active",
			Help: "Whether the maintenance gate is currently held (1) or released (0)",
		},
	)

	// Alert Metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snakepit_alerts_total",
			Help: "Total number of operational alerts emitted",
		},
		[]string{"severity"}, // "info", "warning", "error", "critical"
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snakepit_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snakepit_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// Game Metrics
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snakepit_active_rooms",
			Help: "Current number of active game rooms",
		},
	)

	RoomsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snakepit_rooms_cleaned_total",
			Help: "Total number of stale rooms removed by cleanup",
		},
	)

	MovesValidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snakepit_moves_validated_total",
			Help: "Total number of move validations by result",
		},
		[]string{"result"}, // "accepted", "rejected"
	)
)

// RecordBackup records a completed backup run.
func RecordBackup(class string, sizeBytes int64, duration time.Duration, err error) {
	if err != nil {
		BackupErrors.WithLabelValues(class).Inc()
		return
	}
	BackupsTotal.WithLabelValues(class).Inc()
	BackupSizeBytes.WithLabelValues(class).Observe(float64(sizeBytes))
	BackupDuration.WithLabelValues(class).Observe(duration.Seconds())
}

// RecordRecovery records a finished recovery operation.
func RecordRecovery(recoveryType, status string, duration time.Duration) {
	RecoveryOperations.WithLabelValues(recoveryType, status).Inc()
	RecoveryDuration.WithLabelValues(recoveryType).Observe(duration.Seconds())
}

// RecordAPIRequest records one handled API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration.Seconds())
}

// SetMaintenanceActive flips the maintenance gate gauge.
func SetMaintenanceActive(active bool) {
	if active {
		MaintenanceActive.Set(1)
		return
	}
	MaintenanceActive.Set(0)
}
