// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// Factory builds the unconnected client for one server.
type Factory func(server config.ServerConfig) Client

// NewSFTPFactory returns a Factory producing breaker(limited(sftp)) clients.
func NewSFTPFactory(cfg config.TransferConfig) Factory {
	return func(server config.ServerConfig) Client {
		sftpClient := NewSFTPClient(SFTPConfig{
			ServerID:       server.ServerID,
			Addr:           server.Address(),
			User:           server.Username,
			Password:       server.Password,
			Timeout:        cfg.Timeout,
			KnownHostsPath: cfg.KnownHostsPath,
		})
		limited := NewLimitedClient(sftpClient, cfg.OpsPerSecond)
		return NewBreakerClient(server.ServerID, limited, DefaultBreakerSettings())
	}
}

// Pool hands out one client per server and reconnects dropped ones.
// Both pollers share a Pool, so a server has at most one connection.
type Pool struct {
	factory Factory

	mu      sync.Mutex
	clients map[string]Client
}

// NewPool creates an empty pool.
func NewPool(factory Factory) *Pool {
	return &Pool{factory: factory, clients: make(map[string]Client)}
}

// Get returns a connected client for server, creating or reconnecting it as needed.
func (p *Pool) Get(ctx context.Context, server config.ServerConfig) (Client, error) {
	p.mu.Lock()
	client, ok := p.clients[server.ServerID]
	if !ok {
		client = p.factory(server)
		p.clients[server.ServerID] = client
	}
	p.mu.Unlock()

	if err := p.ensure(ctx, server.ServerID, client, ok); err != nil {
		return nil, err
	}
	return client, nil
}

// Ensure reconnects client when it reports a dropped connection.
func (p *Pool) Ensure(ctx context.Context, serverID string, client Client) error {
	return p.ensure(ctx, serverID, client, true)
}

func (p *Pool) ensure(ctx context.Context, serverID string, client Client, existing bool) error {
	if client.Connected() {
		return nil
	}
	if existing {
		metrics.TransferReconnects.Inc()
		logging.Info().Str("server_id", serverID).Msg("Reconnecting transfer client")
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect server %s: %w", serverID, err)
	}
	return nil
}

// Remove closes and forgets the client for serverID.
func (p *Pool) Remove(serverID string) error {
	p.mu.Lock()
	client, ok := p.clients[serverID]
	delete(p.clients, serverID)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return client.Close()
}

// Len returns the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close closes every pooled client.
func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]Client)
	p.mu.Unlock()

	var errs []error
	for id, client := range clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close server %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
