// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

/*
database_schema.go - Database Schema Management

Tables:
  - players: per-server player counters (kills, deaths, suicides, streaks,
    longest kill, joins) with the current nemesis and prey
  - rivalries: kill counts per killer/victim pair, used to derive nemesis/prey
  - kills, connections, missions, game_events: one row per admitted event
  - events: the canonical JSON document of every admitted event, including
    unknown ones that update no stats

All timestamps are stored as UTC TIMESTAMP values.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS players (
			server_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			player_name TEXT NOT NULL DEFAULT '',
			kills BIGINT NOT NULL DEFAULT 0,
			deaths BIGINT NOT NULL DEFAULT 0,
			suicides BIGINT NOT NULL DEFAULT 0,
			current_streak INTEGER NOT NULL DEFAULT 0,
			best_streak INTEGER NOT NULL DEFAULT 0,
			longest_kill INTEGER NOT NULL DEFAULT 0,
			joins BIGINT NOT NULL DEFAULT 0,
			nemesis_id TEXT,
			prey_id TEXT,
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL,
			PRIMARY KEY (server_id, player_id)
		)`,

		`CREATE TABLE IF NOT EXISTS rivalries (
			server_id TEXT NOT NULL,
			killer_id TEXT NOT NULL,
			victim_id TEXT NOT NULL,
			kills BIGINT NOT NULL DEFAULT 0,
			last_kill TIMESTAMP NOT NULL,
			PRIMARY KEY (server_id, killer_id, victim_id)
		)`,

		`CREATE TABLE IF NOT EXISTS kills (
			server_id TEXT NOT NULL,
			killer_id TEXT NOT NULL,
			killer_name TEXT,
			victim_id TEXT NOT NULL,
			victim_name TEXT,
			weapon TEXT,
			distance INTEGER,
			killer_console TEXT,
			victim_console TEXT,
			is_suicide BOOLEAN NOT NULL DEFAULT false,
			source TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS connections (
			server_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			player_name TEXT,
			action TEXT,
			source TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS missions (
			server_id TEXT NOT NULL,
			mission_name TEXT NOT NULL,
			difficulty TEXT,
			location TEXT,
			state TEXT,
			source TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS game_events (
			server_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_id TEXT,
			location TEXT,
			state TEXT,
			source TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			kind TEXT NOT NULL,
			event_type TEXT,
			server_id TEXT NOT NULL,
			source TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			ingested_at TIMESTAMP NOT NULL,
			document TEXT NOT NULL
		)`,
	}
}

// createIndexes creates indexes for the per-server lookups
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_kills_server_time ON kills(server_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_server_time ON connections(server_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_missions_server_time ON missions(server_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_game_events_server_time ON game_events(server_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_server_time ON events(server_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_fingerprint ON events(fingerprint)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
