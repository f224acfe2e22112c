// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killfeed/internal/metrics"
	"github.com/tomtom215/killfeed/internal/stats"
)

// AppendEvent writes the canonical document. Documents are never updated; a
// repeated ID is ignored.
func (db *DB) AppendEvent(ctx context.Context, doc stats.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode event document: %w", err)
	}

	return db.inTx(ctx, doc.ServerID, "append_event", "events", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO events (
			id, fingerprint, kind, event_type, server_id, source, occurred_at, ingested_at, document
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
			doc.ID, doc.Fingerprint, string(doc.Kind), doc.Type, doc.ServerID,
			string(doc.Source), doc.Timestamp.UTC(), doc.IngestedAt.UTC(), string(payload),
		)
		if err != nil {
			return fmt.Errorf("failed to insert event document: %w", err)
		}
		return nil
	})
}

// RecentEvents returns up to limit documents for serverID, newest first.
func (db *DB) RecentEvents(ctx context.Context, serverID string, limit int) ([]stats.Document, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 50
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT document FROM events
		WHERE server_id = ?
		ORDER BY occurred_at DESC, ingested_at DESC
		LIMIT ?`, serverID, limit)
	metrics.RecordDBQuery("recent_events", "events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer closeWithLog(rows, "rows")

	docs := make([]stats.Document, 0, limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var doc stats.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode event document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return docs, nil
}

// CountEvents returns the stored document count per kind for serverID.
func (db *DB) CountEvents(ctx context.Context, serverID string) (map[string]int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT kind, COUNT(*) FROM events
		WHERE server_id = ?
		GROUP BY kind`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer closeWithLog(rows, "rows")

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

var _ stats.Store = (*DB)(nil)
