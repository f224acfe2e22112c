// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

/*
Package poller runs the two ingestion pipelines.

A Poller periodically visits every server enabled for its pipeline, lists
the remote files changed since the server's last-checked time, downloads and
parses them, and feeds each record through the shared Coordinator:

	Normalize -> cursor pre-filter -> Classify -> IsDuplicate -> UpdateCursor -> Dispatch

The CSV and log pollers are the same engine with different discovery rules.
Both run as suture services and share one transfer.Pool, so a server never
holds more than one remote connection.
*/
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
	"github.com/tomtom215/killfeed/internal/premium"
	"github.com/tomtom215/killfeed/internal/transfer"
)

var (
	// ErrServerBusy is returned by Trigger while the server is being processed.
	ErrServerBusy = errors.New("server is already being processed")

	// ErrUnknownServer is returned by Trigger for a server id that is not
	// configured, or has this pipeline switched off.
	ErrUnknownServer = errors.New("unknown server")
)

// Admission is the slice of the coordinator a poller relies on.
type Admission interface {
	IsDuplicate(e *events.Event) bool
	UpdateCursor(p events.Pipeline, serverID string, ts time.Time)
	Cursor(p events.Pipeline, serverID string) (time.Time, bool)
}

// Dispatcher delivers admitted events to stats and storage.
type Dispatcher interface {
	Dispatch(ctx context.Context, e *events.Event) error
}

// Deps are the collaborators shared by both pollers.
type Deps struct {
	Servers     []config.ServerConfig
	Coordinator Admission
	Pool        *transfer.Pool
	Dispatcher  Dispatcher
	Gate        *premium.Gate
	Now         func() time.Time
}

// Result summarises one server run.
type Result struct {
	Files      int `json:"files"`
	Events     int `json:"events"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

func (r *Result) add(o Result) {
	r.Files += o.Files
	r.Events += o.Events
	r.Duplicates += o.Duplicates
	r.Errors += o.Errors
}

// Status is a point-in-time view of a poller.
type Status struct {
	Pipeline    events.Pipeline      `json:"pipeline"`
	Running     bool                 `json:"running"`
	Interval    time.Duration        `json:"interval"`
	Servers     []string             `json:"servers"`
	LastChecked map[string]time.Time `json:"last_checked"`
	LastRun     time.Time            `json:"last_run,omitempty"`
}

// Poller is one pipeline's scheduler and file processor.
type Poller struct {
	pipeline events.Pipeline
	cfg      config.PipelineConfig
	feature  string
	discover discoverFunc

	servers    []config.ServerConfig
	coord      Admission
	pool       *transfer.Pool
	dispatcher Dispatcher
	gate       *premium.Gate
	now        func() time.Time

	running     atomic.Bool
	serverLocks sync.Map // server id -> *sync.Mutex

	mu          sync.RWMutex
	lastChecked map[string]time.Time
	lastRun     time.Time
}

// NewCSVPoller builds the death-log CSV pipeline.
func NewCSVPoller(cfg config.PipelineConfig, deps Deps) *Poller {
	return newPoller(events.PipelineCSV, cfg, "", discoverCSV, deps)
}

// NewLogPoller builds the Deadside.log pipeline. It is gated behind the
// log_processing premium feature.
func NewLogPoller(cfg config.PipelineConfig, deps Deps) *Poller {
	return newPoller(events.PipelineLog, cfg, config.FeatureLogProcessing, discoverLog, deps)
}

func newPoller(p events.Pipeline, cfg config.PipelineConfig, feature string, discover discoverFunc, deps Deps) *Poller {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	servers := make([]config.ServerConfig, 0, len(deps.Servers))
	for _, s := range deps.Servers {
		if enabledFor(p, s) {
			servers = append(servers, s)
		}
	}
	return &Poller{
		pipeline:    p,
		cfg:         cfg,
		feature:     feature,
		discover:    discover,
		servers:     servers,
		coord:       deps.Coordinator,
		pool:        deps.Pool,
		dispatcher:  deps.Dispatcher,
		gate:        deps.Gate,
		now:         now,
		lastChecked: make(map[string]time.Time),
	}
}

func enabledFor(p events.Pipeline, s config.ServerConfig) bool {
	if p == events.PipelineCSV {
		return s.CSVEnabled
	}
	return s.LogEnabled
}

// Pipeline returns the pipeline this poller feeds.
func (p *Poller) Pipeline() events.Pipeline {
	return p.pipeline
}

// Serve waits out the startup delay, runs one tick, then ticks at the
// configured interval until ctx is done. It implements suture.Service.
func (p *Poller) Serve(ctx context.Context) error {
	logging.Info().
		Str("pipeline", string(p.pipeline)).
		Dur("interval", p.cfg.Interval).
		Int("servers", len(p.servers)).
		Msg("Starting poller")

	if p.cfg.StartupDelay > 0 {
		timer := time.NewTimer(p.cfg.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.Tick(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("pipeline", string(p.pipeline)).Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (p *Poller) String() string {
	return string(p.pipeline) + "-poller"
}

// Tick visits every server once. A tick that finds the previous one still
// running is skipped, never queued. It reports whether it ran.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		metrics.PollTicksSkipped.WithLabelValues(string(p.pipeline)).Inc()
		logging.Debug().Str("pipeline", string(p.pipeline)).Msg("Previous poll still running, skipping tick")
		return false
	}
	defer p.running.Store(false)

	var total Result
	for _, server := range p.servers {
		if ctx.Err() != nil {
			break
		}
		if !p.allowed(server) {
			continue
		}

		lock := p.serverLock(server.ServerID)
		if !lock.TryLock() {
			logging.Debug().
				Str("pipeline", string(p.pipeline)).
				Str("server_id", server.ServerID).
				Msg("Server busy, skipping")
			continue
		}
		res, err := p.runServer(ctx, server, p.since(server.ServerID))
		lock.Unlock()

		total.add(res)
		if err != nil {
			logging.Error().
				Err(err).
				Str("pipeline", string(p.pipeline)).
				Str("server_id", server.ServerID).
				Msg("Poll failed")
		}
	}

	p.mu.Lock()
	p.lastRun = p.now()
	p.mu.Unlock()

	if total.Files > 0 || total.Errors > 0 {
		logging.Info().
			Str("pipeline", string(p.pipeline)).
			Int("files", total.Files).
			Int("events", total.Events).
			Int("duplicates", total.Duplicates).
			Int("errors", total.Errors).
			Msg("Poll completed")
	}
	return true
}

// Trigger processes one server now. A positive lookback overrides the
// last-checked time for this run only.
func (p *Poller) Trigger(ctx context.Context, serverID string, lookback time.Duration) (Result, error) {
	server, ok := p.server(serverID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}
	if p.feature != "" && p.gate != nil {
		if err := p.gate.Check(p.feature, server.PremiumTier); err != nil {
			return Result{}, err
		}
	}

	lock := p.serverLock(serverID)
	if !lock.TryLock() {
		return Result{}, ErrServerBusy
	}
	defer lock.Unlock()

	since := p.since(serverID)
	if lookback > 0 {
		since = p.now().Add(-lookback)
	}

	logging.Info().
		Str("pipeline", string(p.pipeline)).
		Str("server_id", serverID).
		Time("since", since).
		Msg("Manual processing triggered")
	return p.runServer(ctx, server, since)
}

// Known reports whether serverID is configured for this pipeline.
func (p *Poller) Known(serverID string) bool {
	_, ok := p.server(serverID)
	return ok
}

// Status reports the running flag and last-checked times.
func (p *Poller) Status() Status {
	ids := make([]string, 0, len(p.servers))
	for _, s := range p.servers {
		ids = append(ids, s.ServerID)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{
		Pipeline:    p.pipeline,
		Running:     p.running.Load(),
		Interval:    p.cfg.Interval,
		Servers:     ids,
		LastChecked: copyTimes(p.lastChecked),
		LastRun:     p.lastRun,
	}
}

// LastChecked copies the per-server last-checked times for checkpointing.
func (p *Poller) LastChecked() map[string]time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyTimes(p.lastChecked)
}

// RestoreLastChecked merges in checkpointed times, keeping the later value.
func (p *Poller) RestoreLastChecked(in map[string]time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ts := range in {
		if cur, ok := p.lastChecked[id]; !ok || ts.After(cur) {
			p.lastChecked[id] = ts
		}
	}
}

func (p *Poller) allowed(server config.ServerConfig) bool {
	if p.feature == "" || p.gate == nil {
		return true
	}
	if err := p.gate.Check(p.feature, server.PremiumTier); err != nil {
		logging.Debug().
			Err(err).
			Str("pipeline", string(p.pipeline)).
			Str("server_id", server.ServerID).
			Msg("Server not entitled to pipeline")
		return false
	}
	return true
}

func (p *Poller) server(id string) (config.ServerConfig, bool) {
	for _, s := range p.servers {
		if s.ServerID == id {
			return s, true
		}
	}
	return config.ServerConfig{}, false
}

func (p *Poller) serverLock(id string) *sync.Mutex {
	lock, _ := p.serverLocks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// since is the last-checked time, or now minus the lookback on first sight.
func (p *Poller) since(id string) time.Time {
	p.mu.RLock()
	ts, ok := p.lastChecked[id]
	p.mu.RUnlock()
	if ok {
		return ts
	}
	return p.now().Add(-p.cfg.Lookback)
}

// advance moves the last-checked time forward only.
func (p *Poller) advance(id string, ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.lastChecked[id]; !ok || ts.After(cur) {
		p.lastChecked[id] = ts
	}
}

func copyTimes(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
