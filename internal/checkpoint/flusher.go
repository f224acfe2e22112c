// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/killfeed/internal/coordinator"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// Cursors is the coordinator side of a checkpoint.
type Cursors interface {
	Snapshot() coordinator.Cursors
	Restore(coordinator.Cursors)
}

// Tracker is the poller side of a checkpoint.
type Tracker interface {
	Pipeline() events.Pipeline
	LastChecked() map[string]time.Time
	RestoreLastChecked(map[string]time.Time)
}

// Flusher periodically writes coordinator cursors and poller last-checked
// times to the Store. It implements suture.Service and flushes once more on
// shutdown.
type Flusher struct {
	store    *Store
	cursors  Cursors
	trackers []Tracker
	interval time.Duration
}

// NewFlusher creates a Flusher. interval <= 0 defaults to 30 seconds.
func NewFlusher(store *Store, cursors Cursors, interval time.Duration, trackers ...Tracker) *Flusher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Flusher{store: store, cursors: cursors, trackers: trackers, interval: interval}
}

// Restore loads stored state into the coordinator and trackers. Call it
// before the pollers start.
func (f *Flusher) Restore(ctx context.Context) error {
	c, err := f.store.LoadCursors(ctx)
	if err != nil {
		return fmt.Errorf("load cursors: %w", err)
	}
	f.cursors.Restore(c)

	servers := 0
	for _, t := range f.trackers {
		checked, err := f.store.LoadLastChecked(ctx, t.Pipeline())
		if err != nil {
			return fmt.Errorf("load %s last-checked: %w", t.Pipeline(), err)
		}
		t.RestoreLastChecked(checked)
		servers += len(checked)
	}

	logging.Info().
		Int("cursor_pipelines", len(c)).
		Int("last_checked_servers", servers).
		Msg("Checkpoint restored")
	return nil
}

// Flush writes the current state once.
func (f *Flusher) Flush(ctx context.Context) error {
	var errs []error
	if err := f.store.SaveCursors(ctx, f.cursors.Snapshot()); err != nil {
		errs = append(errs, fmt.Errorf("save cursors: %w", err))
	}
	for _, t := range f.trackers {
		if err := f.store.SaveLastChecked(ctx, t.Pipeline(), t.LastChecked()); err != nil {
			errs = append(errs, fmt.Errorf("save %s last-checked: %w", t.Pipeline(), err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		metrics.CheckpointWrites.WithLabelValues("error").Inc()
		return err
	}
	metrics.CheckpointWrites.WithLabelValues("success").Inc()
	return nil
}

// Serve implements suture.Service.
func (f *Flusher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.Flush(flushCtx); err != nil {
				logging.Warn().Err(err).Msg("Final checkpoint flush failed")
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil {
				logging.Warn().Err(err).Msg("Checkpoint flush failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (f *Flusher) String() string {
	return "checkpoint-flusher"
}
