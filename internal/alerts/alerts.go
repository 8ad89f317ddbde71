// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package alerts emits operational alerts to the durable alert log and the
// live alert feeds. Emission is best effort: a failed alert write is logged
// and never fails the operation that raised it.
package alerts

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/snakepit/internal/catalog"
	"github.com/tomtom215/snakepit/internal/gamestore"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/metrics"
)

// Severity levels, in increasing order of urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Live feed names in the game store. Critical alerts land in both.
const (
	FeedAlerts   = "alerts"
	FeedCritical = "critical_alerts"
)

// Alert type identifiers.
const (
	TypeBackupFailure   = "backup_failure"
	TypeRecoveryFailure = "recovery_failure"
	TypeRetentionSweep  = "retention_sweep"
	TypeHealthDegraded  = "health_degraded"
)

// Sink fans alerts out to the catalog and the live feeds. Live feed
// writes are throttled during alert storms; the durable catalog log always
// gets every alert.
type Sink struct {
	cat     *catalog.Catalog
	store   *gamestore.Store
	limiter *rate.Limiter
	now     func() time.Time
}

// NewSink returns a Sink writing to the given catalog and game store.
func NewSink(cat *catalog.Catalog, store *gamestore.Store) *Sink {
	return &Sink{
		cat:     cat,
		store:   store,
		limiter: rate.NewLimiter(rate.Every(time.Second), 20),
		now:     time.Now,
	}
}

// Emit records an alert. Write failures are logged, never returned.
func (s *Sink) Emit(ctx context.Context, alertType, message string, severity Severity) {
	rec := catalog.AlertRecord{
		Type:      alertType,
		Message:   message,
		Severity:  string(severity),
		Timestamp: s.now().UTC(),
	}
	metrics.AlertsTotal.WithLabelValues(string(severity)).Inc()

	if err := s.cat.AppendAlert(ctx, rec); err != nil {
		logging.Warn().Err(err).Str("type", alertType).Msg("Alert log write failed")
	}

	if !s.limiter.Allow() {
		logging.Warn().Str("type", alertType).Msg("Alert feed write throttled")
		return
	}
	entry, err := json.Marshal(rec)
	if err != nil {
		logging.Warn().Err(err).Str("type", alertType).Msg("Alert serialization failed")
		return
	}
	if err := s.store.AppendFeed(ctx, FeedAlerts, entry); err != nil {
		logging.Warn().Err(err).Str("type", alertType).Msg("Alert feed write failed")
	}
	if severity == SeverityCritical {
		if err := s.store.AppendFeed(ctx, FeedCritical, entry); err != nil {
			logging.Warn().Err(err).Str("type", alertType).Msg("Critical alert feed write failed")
		}
	}

	logging.Info().
		Str("type", alertType).
		Str("severity", string(severity)).
		Str("message", message).
		Msg("Alert emitted")
}

// Critical emits a critical severity alert.
func (s *Sink) Critical(ctx context.Context, alertType, message string) {
	s.Emit(ctx, alertType, message, SeverityCritical)
}
