// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// BreakerSettings tunes the per-server circuit breaker.
type BreakerSettings struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which counts reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings trips after 5 consecutive failures and probes again after 2 minutes.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         3,
		Interval:            time.Minute,
		Timeout:             2 * time.Minute,
		ConsecutiveFailures: 5,
	}
}

// BreakerClient wraps a Client with a circuit breaker so a dead host is not
// dialed on every tick. ErrNotFound does not count as a failure.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[interface{}]
	name  string
}

// NewBreakerClient wraps inner with a breaker named "sftp-<serverID>".
func NewBreakerClient(serverID string, inner Client, s BreakerSettings) *BreakerClient {
	cbName := "sftp-" + serverID

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= s.ConsecutiveFailures
			if shouldTrip {
				logging.Warn().
					Str("breaker", cbName).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.RecordCircuitBreakerTransition(name, fromStr, toStr, stateToFloat(to))
		},

		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerClient{inner: inner, cb: cb, name: cbName}
}

// execute wraps a remote call with circuit breaker protection
func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)

	switch {
	case err == nil || errors.Is(err, ErrNotFound):
		metrics.RecordCircuitBreakerRequest(b.name, "success")
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordCircuitBreakerRequest(b.name, "rejected")
		return nil, fmt.Errorf("%s: %w", b.name, err)
	default:
		metrics.RecordCircuitBreakerRequest(b.name, "failure")
	}
	return result, err
}

// State returns the current breaker state as "closed", "half-open" or "open".
func (b *BreakerClient) State() string {
	return stateToString(b.cb.State())
}

// Connect dials through the breaker.
func (b *BreakerClient) Connect(ctx context.Context) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.inner.Connect(ctx)
	})
	return err
}

// Connected does not consult the breaker.
func (b *BreakerClient) Connected() bool {
	return b.inner.Connected()
}

// ListFiles lists dir through the breaker.
func (b *BreakerClient) ListFiles(ctx context.Context, dir string) ([]string, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.inner.ListFiles(ctx, dir)
	})
	if err != nil {
		return nil, err
	}
	names, _ := res.([]string)
	return names, nil
}

// Stat describes p through the breaker.
func (b *BreakerClient) Stat(ctx context.Context, p string) (FileInfo, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.inner.Stat(ctx, p)
	})
	if err != nil {
		return FileInfo{}, err
	}
	info, _ := res.(FileInfo)
	return info, nil
}

// Download reads p through the breaker.
func (b *BreakerClient) Download(ctx context.Context, p string) ([]byte, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.inner.Download(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	data, _ := res.([]byte)
	return data, nil
}

// Close closes the wrapped client.
func (b *BreakerClient) Close() error {
	return b.inner.Close()
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var _ Client = (*BreakerClient)(nil)
