// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package transfer

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LimitedClient paces remote operations on a wrapped Client.
// Connected and Close are local and never wait.
type LimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewLimitedClient allows opsPerSecond operations with a burst of the same size.
// A non-positive rate disables pacing.
func NewLimitedClient(inner Client, opsPerSecond float64) *LimitedClient {
	limit := rate.Inf
	burst := 1
	if opsPerSecond > 0 {
		limit = rate.Limit(opsPerSecond)
		burst = int(opsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &LimitedClient{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (l *LimitedClient) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("transfer rate limit: %w", err)
	}
	return nil
}

// Connect waits for a token, then connects.
func (l *LimitedClient) Connect(ctx context.Context) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.inner.Connect(ctx)
}

// Connected reports the wrapped client's state.
func (l *LimitedClient) Connected() bool {
	return l.inner.Connected()
}

// ListFiles waits for a token, then lists dir.
func (l *LimitedClient) ListFiles(ctx context.Context, dir string) ([]string, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.ListFiles(ctx, dir)
}

// Stat waits for a token, then stats p.
func (l *LimitedClient) Stat(ctx context.Context, p string) (FileInfo, error) {
	if err := l.wait(ctx); err != nil {
		return FileInfo{}, err
	}
	return l.inner.Stat(ctx, p)
}

// Download waits for a token, then downloads p.
func (l *LimitedClient) Download(ctx context.Context, p string) ([]byte, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.Download(ctx, p)
}

// Close closes the wrapped client.
func (l *LimitedClient) Close() error {
	return l.inner.Close()
}

var _ Client = (*LimitedClient)(nil)
