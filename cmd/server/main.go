// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Command server runs the Snakepit backend: the HTTP API and the backup
// scheduler under one supervisor.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/snakepit/internal/alerts"
	"github.com/tomtom215/snakepit/internal/api"
	"github.com/tomtom215/snakepit/internal/auth"
	"github.com/tomtom215/snakepit/internal/backup"
	"github.com/tomtom215/snakepit/internal/blob"
	"github.com/tomtom215/snakepit/internal/catalog"
	"github.com/tomtom215/snakepit/internal/config"
	"github.com/tomtom215/snakepit/internal/game"
	"github.com/tomtom215/snakepit/internal/gamestore"
	"github.com/tomtom215/snakepit/internal/logging"
	"github.com/tomtom215/snakepit/internal/recovery"
	"github.com/tomtom215/snakepit/internal/scheduler"
	"github.com/tomtom215/snakepit/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Configuration load failed")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})
	logging.Info().
		Str("environment", cfg.Environment).
		Msg("Snakepit starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := gamestore.Open(gamestore.Options{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Game store open failed")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Game store close failed")
		}
	}()

	cat, err := catalog.Open(ctx, cfg.Catalog.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Catalog open failed")
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logging.Error().Err(err).Msg("Catalog close failed")
		}
	}()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Blob store open failed")
	}

	tokens := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	authenticator := auth.NewAuthenticator([]auth.Account{
		{
			Username:     cfg.Security.AdminUsername,
			PasswordHash: cfg.Security.AdminPasswordHash,
			Role:         auth.RoleAdmin,
		},
	}, tokens)

	collector := snapshot.NewCollector(store, cfg.Environment)
	archiver := backup.NewArchiver(blobs, cat)
	sweeper := backup.NewSweeper(blobs, cat)
	sink := alerts.NewSink(cat, store)
	gate := recovery.NewGate(store)
	orchestrator := recovery.NewOrchestrator(store, archiver, cat, gate, sink)
	rooms := game.NewManager(store)

	server := api.NewServer(cfg, store, cat, blobs, authenticator, tokens,
		collector, archiver, orchestrator, gate, rooms)

	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()
	supervisor := suture.New("snakepit", suture.Spec{
		EventHook:        hook,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          cfg.Server.ShutdownTimeout,
	})
	supervisor.Add(server)

	if cfg.Backup.Enabled {
		supervisor.Add(scheduler.New(collector, archiver, sweeper, rooms, sink, scheduler.Config{
			DailyHour:       cfg.Backup.DailyHour,
			WeeklyHour:      cfg.Backup.WeeklyHour,
			TickPeriod:      cfg.Backup.TickPeriod,
			RoomMaxIdle:     cfg.Game.RoomMaxIdle,
			CleanupInterval: cfg.Game.CleanupInterval,
		}))
	} else {
		logging.Warn().Msg("Backup scheduler disabled")
	}

	err = supervisor.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor exited")
		os.Exit(1)
	}
	logging.Info().Msg("Snakepit stopped")
}

// openBlobStore selects the configured blob backend.
func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "gcs":
		return blob.NewGCSStore(ctx, cfg.Blob.Bucket, cfg.Blob.CredentialsFile)
	default:
		logging.Warn().Msg("Using in-memory blob storage; backups will not survive a restart")
		return blob.NewMemoryStore(), nil
	}
}
