// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package transfer provides the remote file channel used by the pollers.
//
// A Client lists, stats and downloads files on a game server. SFTPClient talks
// to the real host; BreakerClient and LimitedClient wrap any Client with a
// circuit breaker and request pacing; MemClient serves files from memory.
// Pool keeps one connected client per server.
package transfer

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a remote path does not exist.
	ErrNotFound = errors.New("remote path not found")

	// ErrNotConnected is returned when an operation runs on a closed client.
	ErrNotConnected = errors.New("transfer client not connected")
)

// FileInfo describes one remote directory entry.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Client is the remote file channel for one server.
// Implementations must be safe for concurrent use.
type Client interface {
	// Connect opens the connection. Connecting an open client is a no-op.
	Connect(ctx context.Context) error

	// Connected reports whether the last known connection state is open.
	Connected() bool

	// ListFiles returns the entry names of dir, without the directory prefix.
	ListFiles(ctx context.Context, dir string) ([]string, error)

	// Stat describes one remote path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Download reads an entire remote file.
	Download(ctx context.Context, path string) ([]byte, error)

	// Close releases the connection. The client may be reconnected afterwards.
	Close() error
}
