// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package coordinator decides, across the CSV and log pipelines, which
// normalized events are new. It owns two pieces of state behind one mutex:
//
//   - per server and pipeline cursors: the timestamp of the latest admitted
//     event, advisory only
//   - a time-windowed set of event fingerprints, the only authority for
//     duplicate rejection
//
// One Coordinator is created at startup and handed to both pollers.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/killfeed/internal/cache"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// Config tunes the fingerprint retention. Zero fields take the cache defaults.
type Config struct {
	// Window is how long a fingerprint is remembered after insertion.
	Window time.Duration
	// HighWater triggers truncation to the newest Retain fingerprints.
	HighWater int
	Retain    int
	// SweepInterval drives Serve. Defaults to a quarter of Window.
	SweepInterval time.Duration
	Now           func() time.Time
}

// Coordinator is safe for concurrent use by both pollers.
type Coordinator struct {
	mu      sync.Mutex
	seen    *cache.SeenSet
	cursors map[events.Pipeline]map[string]time.Time

	sweepInterval time.Duration
}

// New creates a Coordinator with empty state.
func New(cfg Config) *Coordinator {
	if cfg.Window <= 0 {
		cfg.Window = cache.DefaultWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.Window / 4
	}
	return &Coordinator{
		seen: cache.NewSeenSet(cache.SeenSetConfig{
			Window:    cfg.Window,
			HighWater: cfg.HighWater,
			Retain:    cfg.Retain,
			Now:       cfg.Now,
		}),
		cursors: map[events.Pipeline]map[string]time.Time{
			events.PipelineCSV: {},
			events.PipelineLog: {},
		},
		sweepInterval: cfg.SweepInterval,
	}
}

// IsDuplicate is the single admission gate. It returns true when e's
// fingerprint is retained, leaving the set unchanged. Otherwise it records
// the fingerprint and returns false; the caller must process e now.
func (c *Coordinator) IsDuplicate(e *events.Event) bool {
	_, admitted := c.Admit(e)
	return !admitted
}

// Admit is IsDuplicate that also returns the fingerprint it decided on.
// admitted is true exactly once per retained fingerprint.
func (c *Coordinator) Admit(e *events.Event) (fingerprint string, admitted bool) {
	fp := Fingerprint(e)

	c.mu.Lock()
	before := c.seen.Stats()
	seen := c.seen.CheckAndAdd(fp)
	after := c.seen.Stats()
	c.mu.Unlock()

	recordEvictions(before, after)
	return fp, !seen
}

// UpdateCursor records ts as the latest admitted timestamp for serverID on
// pipeline p. Later calls overwrite, including with earlier timestamps.
func (c *Coordinator) UpdateCursor(p events.Pipeline, serverID string, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipeline(p)[serverID] = ts
}

// UpdateCsvCursor is UpdateCursor for the CSV pipeline.
func (c *Coordinator) UpdateCsvCursor(serverID string, ts time.Time) {
	c.UpdateCursor(events.PipelineCSV, serverID, ts)
}

// UpdateLogCursor is UpdateCursor for the log pipeline.
func (c *Coordinator) UpdateLogCursor(serverID string, ts time.Time) {
	c.UpdateCursor(events.PipelineLog, serverID, ts)
}

// ShouldProcess reports whether candidate is strictly after the cursor, or
// true when no cursor exists. It never rejects on its own authority; it only
// narrows work before fingerprinting.
func (c *Coordinator) ShouldProcess(p events.Pipeline, serverID string, candidate time.Time) bool {
	last, ok := c.Cursor(p, serverID)
	return !ok || candidate.After(last)
}

// ShouldProcessCsv is ShouldProcess for the CSV pipeline.
func (c *Coordinator) ShouldProcessCsv(serverID string, candidate time.Time) bool {
	return c.ShouldProcess(events.PipelineCSV, serverID, candidate)
}

// ShouldProcessLog is ShouldProcess for the log pipeline.
func (c *Coordinator) ShouldProcessLog(serverID string, candidate time.Time) bool {
	return c.ShouldProcess(events.PipelineLog, serverID, candidate)
}

// Cursor returns the cursor for serverID on pipeline p.
func (c *Coordinator) Cursor(p events.Pipeline, serverID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.pipeline(p)[serverID]
	return ts, ok
}

// CsvCursor is Cursor for the CSV pipeline.
func (c *Coordinator) CsvCursor(serverID string) (time.Time, bool) {
	return c.Cursor(events.PipelineCSV, serverID)
}

// LogCursor is Cursor for the log pipeline.
func (c *Coordinator) LogCursor(serverID string) (time.Time, bool) {
	return c.Cursor(events.PipelineLog, serverID)
}

// Cursors is a copy of all cursors keyed by pipeline then server.
type Cursors map[events.Pipeline]map[string]time.Time

// Snapshot copies the cursor maps for checkpointing.
func (c *Coordinator) Snapshot() Cursors {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(Cursors, len(c.cursors))
	for p, servers := range c.cursors {
		cp := make(map[string]time.Time, len(servers))
		for id, ts := range servers {
			cp[id] = ts
		}
		out[p] = cp
	}
	return out
}

// Restore merges cursors into the current state, keeping the later of the
// two when both exist. Fingerprints are not restored.
func (c *Coordinator) Restore(in Cursors) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for p, servers := range in {
		dst := c.pipeline(p)
		for id, ts := range servers {
			if cur, ok := dst[id]; !ok || ts.After(cur) {
				dst[id] = ts
			}
		}
	}
}

// Stats returns the fingerprint set counters.
func (c *Coordinator) Stats() cache.SeenStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen.Stats()
}

// Sweep drops expired fingerprints.
func (c *Coordinator) Sweep() int {
	c.mu.Lock()
	before := c.seen.Stats()
	n := c.seen.Sweep()
	after := c.seen.Stats()
	c.mu.Unlock()

	recordEvictions(before, after)
	return n
}

// Serve sweeps expired fingerprints until ctx is done, so an idle process
// releases memory without waiting for the next insert. It implements
// suture.Service.
func (c *Coordinator) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				logging.Debug().Int("expired", n).Msg("Swept expired fingerprints")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (c *Coordinator) String() string {
	return "coordinator-sweeper"
}

// pipeline returns the cursor map for p (must be called with mu held).
func (c *Coordinator) pipeline(p events.Pipeline) map[string]time.Time {
	m, ok := c.cursors[p]
	if !ok {
		m = make(map[string]time.Time)
		c.cursors[p] = m
	}
	return m
}

func recordEvictions(before, after cache.SeenStats) {
	metrics.SeenSetSize.Set(float64(after.Size))
	if d := after.Expired - before.Expired; d > 0 {
		metrics.SeenSetEvictions.WithLabelValues("expired").Add(float64(d))
	}
	if d := after.Pruned - before.Pruned; d > 0 {
		metrics.SeenSetEvictions.WithLabelValues("pruned").Add(float64(d))
	}
}
