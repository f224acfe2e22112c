// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
	"github.com/tomtom215/killfeed/internal/parser"
	"github.com/tomtom215/killfeed/internal/stats"
	"github.com/tomtom215/killfeed/internal/transfer"
)

// Error stages, used as the stage label of killfeed_poll_errors_total.
const (
	stageConnect  = "connect"
	stageDiscover = "discover"
	stageDownload = "download"
	stageParse    = "parse"
	stagePersist  = "persist"
)

// runServer processes every file of server modified after since. The
// caller holds the server lock.
func (p *Poller) runServer(ctx context.Context, server config.ServerConfig, since time.Time) (res Result, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordPoll(string(p.pipeline), server.ServerID, time.Since(start), err)
	}()

	client, err := p.pool.Get(ctx, server)
	if err != nil {
		p.stageError(stageConnect)
		return res, err
	}

	candidates, err := p.discover(ctx, client, server)
	if err != nil {
		p.stageError(stageDiscover)
		return res, fmt.Errorf("discover files: %w", err)
	}

	// Discovery may walk many directories; recover a dropped session first.
	if err := p.pool.Ensure(ctx, server.ServerID, client); err != nil {
		p.stageError(stageConnect)
		return res, err
	}

	files, err := p.changedSince(ctx, client, candidates, since)
	if err != nil {
		p.stageError(stageDiscover)
		return res, err
	}
	if len(files) == 0 {
		logging.Debug().
			Str("pipeline", string(p.pipeline)).
			Str("server_id", server.ServerID).
			Int("candidates", len(candidates)).
			Msg("No changed files")
		return res, nil
	}

	for _, f := range files {
		fr, err := p.processFile(ctx, server, client, f)
		res.add(fr)
		if err != nil {
			// last-checked stays at the previous file so the next tick retries from here.
			res.Errors++
			return res, fmt.Errorf("process %s: %w", f.Path, err)
		}
		res.Files++
		p.advance(server.ServerID, f.ModTime)
	}
	return res, nil
}

// changedSince stats candidates and returns the files modified after since
// in mod-time order.
func (p *Poller) changedSince(ctx context.Context, client transfer.Client, candidates []string, since time.Time) ([]transfer.FileInfo, error) {
	files := make([]transfer.FileInfo, 0, len(candidates))
	for _, c := range candidates {
		info, err := client.Stat(ctx, c)
		if errors.Is(err, transfer.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", c, err)
		}
		if info.IsDir || !info.ModTime.After(since) {
			continue
		}
		files = append(files, info)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// processFile downloads and ingests one file. Only transfer and read
// failures fail the file; per-record persistence errors are counted.
func (p *Poller) processFile(ctx context.Context, server config.ServerConfig, client transfer.Client, f transfer.FileInfo) (Result, error) {
	var res Result

	data, err := client.Download(ctx, f.Path)
	if err != nil {
		p.stageError(stageDownload)
		return res, err
	}

	parsed, err := parser.Parse(p.pipeline, bytes.NewReader(data))
	if err != nil {
		p.stageError(stageParse)
		return res, err
	}

	pl := string(p.pipeline)
	metrics.FilesProcessed.WithLabelValues(pl).Inc()
	metrics.RecordsParsed.WithLabelValues(pl).Add(float64(len(parsed.Records)))
	if n := len(parsed.Errors); n > 0 {
		metrics.ParseErrors.WithLabelValues(pl).Add(float64(n))
		logging.Warn().
			Str("pipeline", pl).
			Str("server_id", server.ServerID).
			Str("file", f.Path).
			Int("malformed", n).
			Int("first_line", parsed.Errors[0].Line).
			Msg("Skipped malformed lines")
	}

	// Every record of a changed file is offered to the coordinator; the
	// fingerprint set alone rejects. The cursor only tracks the latest
	// admitted timestamp and is never lowered here.
	latest, _ := p.coord.Cursor(p.pipeline, server.ServerID)

	for _, rec := range parsed.Records {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		e := events.Normalize(rec)
		e.ServerID = server.ServerID
		e.Source = p.pipeline

		kind := e.Classify()
		if p.coord.IsDuplicate(&e) {
			res.Duplicates++
			metrics.RecordAdmission(pl, string(kind), true)
			continue
		}
		metrics.RecordAdmission(pl, string(kind), false)

		if e.Timestamp.After(latest) {
			latest = e.Timestamp
			p.coord.UpdateCursor(p.pipeline, server.ServerID, latest)
		}

		if err := p.dispatcher.Dispatch(ctx, &e); err != nil {
			if !errors.Is(err, stats.ErrMissingIdentifier) && !errors.Is(err, stats.ErrUnroutable) {
				p.stageError(stagePersist)
				res.Errors++
				logging.Error().
					Err(err).
					Str("pipeline", pl).
					Str("server_id", server.ServerID).
					Str("kind", string(kind)).
					Int("line", e.Line).
					Msg("Failed to persist event")
			}
			continue
		}
		res.Events++
	}

	logging.Debug().
		Str("pipeline", pl).
		Str("server_id", server.ServerID).
		Str("file", f.Path).
		Int("lines", parsed.Lines).
		Int("events", res.Events).
		Int("duplicates", res.Duplicates).
		Msg("Processed file")
	return res, nil
}

func (p *Poller) stageError(stage string) {
	metrics.RecordPollError(string(p.pipeline), stage)
}
