// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package main is the killfeed daemon.
//
// It polls Deadside game servers over SFTP for death-log CSV files and for
// the rotating server log, deduplicates kills reported by both, and turns
// every admitted event into player statistics in DuckDB.
//
// Startup order:
//
//  1. Configuration (Koanf v2: defaults, killfeed.yaml, environment)
//  2. DuckDB statistics store
//  3. Event bus (optional, NATS JetStream or in-process)
//  4. Checkpoint store (optional, BadgerDB) and state restore
//  5. SFTP connection pool, coordinator and pollers
//  6. Ops HTTP API
//
// Everything long-lived runs under a suture supervisor tree and stops on
// SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/killfeed/internal/api"
	"github.com/tomtom215/killfeed/internal/checkpoint"
	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/coordinator"
	"github.com/tomtom215/killfeed/internal/database"
	"github.com/tomtom215/killfeed/internal/eventbus"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/poller"
	"github.com/tomtom215/killfeed/internal/premium"
	"github.com/tomtom215/killfeed/internal/stats"
	"github.com/tomtom215/killfeed/internal/supervisor"
	"github.com/tomtom215/killfeed/internal/supervisor/services"
	"github.com/tomtom215/killfeed/internal/transfer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // sequential setup steps
func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("version", version).
		Int("servers", len(cfg.Servers)).
		Bool("csv", cfg.Poller.CSV.Enabled).
		Bool("log", cfg.Poller.Log.Enabled).
		Str("db_path", cfg.Database.Path).
		Msg("Starting killfeed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	var opts []stats.DispatcherOption
	if cfg.Bus.Enabled {
		bus, err := eventbus.New(ctx, cfg.Bus)
		if err != nil {
			// Delivery to the bus is best effort; ingestion runs without it.
			logging.Error().Err(err).Msg("Failed to start event bus, continuing without it")
		} else {
			opts = append(opts, stats.WithPublisher(bus))
			defer func() {
				if err := bus.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing event bus")
				}
			}()
		}
	}
	dispatcher := stats.NewDispatcher(db, db, opts...)

	coord := coordinator.New(coordinator.Config{
		Window:        cfg.Coordinator.Window,
		HighWater:     cfg.Coordinator.HighWater,
		Retain:        cfg.Coordinator.Retain,
		SweepInterval: cfg.Coordinator.SweepInterval,
	})

	pool := transfer.NewPool(transfer.NewSFTPFactory(cfg.Transfer))
	defer func() {
		if err := pool.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing SFTP connections")
		}
	}()

	deps := poller.Deps{
		Servers:     cfg.Servers,
		Coordinator: coord,
		Pool:        pool,
		Dispatcher:  dispatcher,
		Gate:        premium.NewGate(cfg.Premium.Features),
	}

	var pollers []*poller.Poller
	if cfg.Poller.CSV.Enabled {
		pollers = append(pollers, poller.NewCSVPoller(cfg.Poller.CSV, deps))
	}
	if cfg.Poller.Log.Enabled {
		pollers = append(pollers, poller.NewLogPoller(cfg.Poller.Log, deps))
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddStateService(coord)

	if cfg.Checkpoint.Enabled {
		store, err := checkpoint.Open(cfg.Checkpoint.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Checkpoint.Path).Msg("Failed to open checkpoint store")
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing checkpoint store")
			}
		}()

		trackers := make([]checkpoint.Tracker, 0, len(pollers))
		for _, p := range pollers {
			trackers = append(trackers, p)
		}
		flusher := checkpoint.NewFlusher(store, coord, cfg.Checkpoint.FlushInterval, trackers...)
		if err := flusher.Restore(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to restore checkpoint, starting from lookback")
		}
		tree.AddStateService(flusher)
	}

	pipelines := make([]api.Pipeline, 0, len(pollers))
	for _, p := range pollers {
		tree.AddIngestService(p)
		pipelines = append(pipelines, p)
	}

	if cfg.API.Enabled {
		router := api.NewRouter(cfg.API, api.Deps{
			Pipelines: pipelines,
			Stats:     db,
			Dedup:     coord,
			Version:   version,
		})
		srv := api.NewServer(cfg.API, router)
		tree.AddAPIService(services.NewHTTPServerService(srv, cfg.API.Listen, cfg.Supervisor.ShutdownTimeout))
	}

	if len(pollers) == 0 {
		logging.Warn().Msg("Both pipelines are disabled, nothing will be ingested")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Killfeed stopped")
}
