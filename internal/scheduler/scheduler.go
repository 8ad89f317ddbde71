// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package scheduler runs the periodic jobs of the backup engine: daily and
// weekly scheduled backups with retention sweeps, and hourly room cleanup.
// It runs as a suture-supervised service.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/snakepit/internal/alerts"
	"github.com/tomtom215/snakepit/internal/backup"
	"github.com/tomtom215/snakepit/internal/game"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/snapshot"
)

// Config tunes the scheduler.
type Config struct {
	// DailyHour is the UTC hour of the daily backup run.
	DailyHour int

	// WeeklyHour is the UTC hour of the Sunday weekly backup run.
	WeeklyHour int

	// TickPeriod is how often due jobs are checked.
	TickPeriod time.Duration

	// RoomMaxIdle is the idle age past which rooms are cleaned up.
	RoomMaxIdle time.Duration

	// CleanupInterval is how often room cleanup runs.
	CleanupInterval time.Duration
}

// Scheduler fires scheduled backups, retention sweeps, and room cleanup.
type Scheduler struct {
	collector *snapshot.Collector
	archiver  *backup.Archiver
	sweeper   *backup.Sweeper
	rooms     *game.Manager
	sink      *alerts.Sink
	cfg       Config
	now       func() time.Time

	lastDaily   time.Time
	lastWeekly  time.Time
	lastCleanup time.Time
}

// New wires a Scheduler.
func New(collector *snapshot.Collector, archiver *backup.Archiver, sweeper *backup.Sweeper, rooms *game.Manager, sink *alerts.Sink, cfg Config) *Scheduler {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = time.Minute
	}
	return &Scheduler{
		collector: collector,
		archiver:  archiver,
		sweeper:   sweeper,
		rooms:     rooms,
		sink:      sink,
		cfg:       cfg,
		now:       time.Now,
	}
}

// String names the service for supervisor logs.
func (s *Scheduler) String() string {
	return "backup-scheduler"
}

// Serve runs the scheduler until the context is cancelled. Implements
// suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Int("daily_hour", s.cfg.DailyHour).
		Int("weekly_hour", s.cfg.WeeklyHour).
		Dur("tick_period", s.cfg.TickPeriod).
		Msg("Backup scheduler started")

	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Backup scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every job that has come due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().UTC()

	if s.dailyDue(now) {
		s.lastDaily = now
		s.runScheduledBackup(ctx, backup.ClassDaily)
	}
	if s.weeklyDue(now) {
		s.lastWeekly = now
		s.runScheduledBackup(ctx, backup.ClassWeekly)
	}
	if s.cleanupDue(now) {
		s.lastCleanup = now
		if _, err := s.rooms.CleanupRooms(ctx, s.cfg.RoomMaxIdle); err != nil {
			logging.Error().Err(err).Msg("Room cleanup failed")
		}
	}
}

// dailyDue reports whether the daily backup should fire: the daily hour
// has arrived and no run has happened today.
func (s *Scheduler) dailyDue(now time.Time) bool {
	if now.Hour() < s.cfg.DailyHour {
		return false
	}
	return s.lastDaily.IsZero() || !sameDay(s.lastDaily, now)
}

// weeklyDue reports whether the weekly backup should fire: it is Sunday at
// or past the weekly hour and no run has happened this week.
func (s *Scheduler) weeklyDue(now time.Time) bool {
	if now.Weekday() != time.Sunday || now.Hour() < s.cfg.WeeklyHour {
		return false
	}
	if s.lastWeekly.IsZero() {
		return true
	}
	ly, lw := s.lastWeekly.ISOWeek()
	ny, nw := now.ISOWeek()
	return ly != ny || lw != nw
}

func (s *Scheduler) cleanupDue(now time.Time) bool {
	return s.lastCleanup.IsZero() || now.Sub(s.lastCleanup) >= s.cfg.CleanupInterval
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// runScheduledBackup collects a snapshot, archives it, and sweeps expired
// backups of the class. Daily runs are bounded to cap cost; weekly runs
// capture everything. Failures raise a critical alert.
func (s *Scheduler) runScheduledBackup(ctx context.Context, class backup.Class) {
	logging.Info().Str("class", string(class)).Msg("Scheduled backup starting")

	collect := s.collector.CollectBounded
	if class == backup.ClassWeekly {
		collect = s.collector.CollectFull
	}
	payload, err := collect(ctx)
	if err != nil {
		s.sink.Critical(ctx, alerts.TypeBackupFailure,
			fmt.Sprintf("%s backup snapshot failed: %v", class, err))
		return
	}
	rec, err := s.archiver.Store(ctx, payload, class)
	if err != nil {
		s.sink.Critical(ctx, alerts.TypeBackupFailure,
			fmt.Sprintf("%s backup store failed: %v", class, err))
		return
	}

	swept, err := s.sweeper.Sweep(ctx, class)
	if err != nil {
		s.sink.Emit(ctx, alerts.TypeRetentionSweep,
			fmt.Sprintf("%s retention sweep failed: %v", class, err), alerts.SeverityError)
		return
	}
	if swept > 0 {
		s.sink.Emit(ctx, alerts.TypeRetentionSweep,
			fmt.Sprintf("swept %d expired %s backups", swept, class), alerts.SeverityInfo)
	}

	logging.Info().
		Str("backup_id", rec.ID).
		Str("class", string(class)).
		Int("swept", swept).
		Msg("Scheduled backup completed")
}
