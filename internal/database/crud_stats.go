// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/stats"
)

const (
	insertKillQuery = `INSERT INTO kills (
		server_id, killer_id, killer_name, victim_id, victim_name, weapon, distance,
		killer_console, victim_console, is_suicide, source, occurred_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	upsertRivalryQuery = `INSERT INTO rivalries (server_id, killer_id, victim_id, kills, last_kill)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (server_id, killer_id, victim_id) DO UPDATE SET
			kills = kills + 1,
			last_kill = greatest(last_kill, EXCLUDED.last_kill)`

	// Nemesis: whoever killed the victim most. Prey: whom the killer killed most.
	nemesisQuery = `SELECT killer_id FROM rivalries
		WHERE server_id = ? AND victim_id = ?
		ORDER BY kills DESC, last_kill DESC, killer_id
		LIMIT 1`
	preyQuery = `SELECT victim_id FROM rivalries
		WHERE server_id = ? AND killer_id = ?
		ORDER BY kills DESC, last_kill DESC, victim_id
		LIMIT 1`

	upsertKillerQuery = `INSERT INTO players (
		server_id, player_id, player_name, kills, current_streak, best_streak, longest_kill,
		prey_id, first_seen, last_seen
	) VALUES (?, ?, ?, 1, 1, 1, ?, ?, ?, ?)
	ON CONFLICT (server_id, player_id) DO UPDATE SET
		player_name = CASE WHEN EXCLUDED.player_name <> '' THEN EXCLUDED.player_name ELSE player_name END,
		kills = kills + 1,
		current_streak = current_streak + 1,
		best_streak = greatest(best_streak, current_streak + 1),
		longest_kill = greatest(longest_kill, EXCLUDED.longest_kill),
		prey_id = EXCLUDED.prey_id,
		first_seen = least(first_seen, EXCLUDED.first_seen),
		last_seen = greatest(last_seen, EXCLUDED.last_seen)`

	upsertVictimQuery = `INSERT INTO players (
		server_id, player_id, player_name, deaths, nemesis_id, first_seen, last_seen
	) VALUES (?, ?, ?, 1, ?, ?, ?)
	ON CONFLICT (server_id, player_id) DO UPDATE SET
		player_name = CASE WHEN EXCLUDED.player_name <> '' THEN EXCLUDED.player_name ELSE player_name END,
		deaths = deaths + 1,
		current_streak = 0,
		nemesis_id = EXCLUDED.nemesis_id,
		first_seen = least(first_seen, EXCLUDED.first_seen),
		last_seen = greatest(last_seen, EXCLUDED.last_seen)`

	upsertSuicideQuery = `INSERT INTO players (
		server_id, player_id, player_name, suicides, first_seen, last_seen
	) VALUES (?, ?, ?, 1, ?, ?)
	ON CONFLICT (server_id, player_id) DO UPDATE SET
		player_name = CASE WHEN EXCLUDED.player_name <> '' THEN EXCLUDED.player_name ELSE player_name END,
		suicides = suicides + 1,
		current_streak = 0,
		first_seen = least(first_seen, EXCLUDED.first_seen),
		last_seen = greatest(last_seen, EXCLUDED.last_seen)`

	insertConnectionQuery = `INSERT INTO connections (
		server_id, player_id, player_name, action, source, occurred_at
	) VALUES (?, ?, ?, ?, ?, ?)`

	upsertSeenQuery = `INSERT INTO players (
		server_id, player_id, player_name, joins, first_seen, last_seen
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (server_id, player_id) DO UPDATE SET
		player_name = CASE WHEN EXCLUDED.player_name <> '' THEN EXCLUDED.player_name ELSE player_name END,
		joins = joins + EXCLUDED.joins,
		first_seen = least(first_seen, EXCLUDED.first_seen),
		last_seen = greatest(last_seen, EXCLUDED.last_seen)`

	insertMissionQuery = `INSERT INTO missions (
		server_id, mission_name, difficulty, location, state, source, occurred_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertGameEventQuery = `INSERT INTO game_events (
		server_id, event_type, event_id, location, state, source, occurred_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// RecordKill stores the kill and updates both players. A suicide touches only
// the victim's suicide count and never creates a rivalry.
func (db *DB) RecordKill(ctx context.Context, rec stats.KillRecord) error {
	ts := rec.Timestamp.UTC()

	return db.inTx(ctx, rec.ServerID, "record_kill", "kills", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertKillQuery,
			rec.ServerID, rec.KillerID, rec.KillerName, rec.VictimID, rec.VictimName,
			rec.Weapon, rec.Distance, rec.KillerConsole, rec.VictimConsole,
			rec.IsSuicide, string(rec.Source), ts,
		); err != nil {
			return fmt.Errorf("failed to insert kill: %w", err)
		}

		if rec.IsSuicide {
			if _, err := tx.ExecContext(ctx, upsertSuicideQuery,
				rec.ServerID, rec.VictimID, rec.VictimName, ts, ts,
			); err != nil {
				return fmt.Errorf("failed to update suicide stats: %w", err)
			}
			return nil
		}

		if _, err := tx.ExecContext(ctx, upsertRivalryQuery,
			rec.ServerID, rec.KillerID, rec.VictimID, ts,
		); err != nil {
			return fmt.Errorf("failed to update rivalry: %w", err)
		}

		nemesis, err := queryID(ctx, tx, nemesisQuery, rec.ServerID, rec.VictimID)
		if err != nil {
			return fmt.Errorf("failed to resolve nemesis: %w", err)
		}
		prey, err := queryID(ctx, tx, preyQuery, rec.ServerID, rec.KillerID)
		if err != nil {
			return fmt.Errorf("failed to resolve prey: %w", err)
		}

		if _, err := tx.ExecContext(ctx, upsertKillerQuery,
			rec.ServerID, rec.KillerID, rec.KillerName, rec.Distance, prey, ts, ts,
		); err != nil {
			return fmt.Errorf("failed to update killer stats: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsertVictimQuery,
			rec.ServerID, rec.VictimID, rec.VictimName, nemesis, ts, ts,
		); err != nil {
			return fmt.Errorf("failed to update victim stats: %w", err)
		}
		return nil
	})
}

// RecordConnection stores the connection event and refreshes the player's
// last-seen time. Joins and registrations count towards the join total.
func (db *DB) RecordConnection(ctx context.Context, rec stats.ConnectionRecord) error {
	ts := rec.Timestamp.UTC()
	joins := 0
	if rec.Action == events.TypeJoin || rec.Action == events.TypeRegister {
		joins = 1
	}

	return db.inTx(ctx, rec.ServerID, "record_connection", "connections", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertConnectionQuery,
			rec.ServerID, rec.PlayerID, rec.PlayerName, rec.Action, string(rec.Source), ts,
		); err != nil {
			return fmt.Errorf("failed to insert connection: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsertSeenQuery,
			rec.ServerID, rec.PlayerID, rec.PlayerName, joins, ts, ts,
		); err != nil {
			return fmt.Errorf("failed to update player: %w", err)
		}
		return nil
	})
}

// RecordMission stores a mission state change.
func (db *DB) RecordMission(ctx context.Context, rec stats.MissionRecord) error {
	return db.inTx(ctx, rec.ServerID, "record_mission", "missions", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertMissionQuery,
			rec.ServerID, rec.Name, rec.Difficulty, rec.Location, rec.State,
			string(rec.Source), rec.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert mission: %w", err)
		}
		return nil
	})
}

// RecordGameEvent stores a world event (airdrop, helicrash, trader, convoy).
func (db *DB) RecordGameEvent(ctx context.Context, rec stats.GameEventRecord) error {
	return db.inTx(ctx, rec.ServerID, "record_game_event", "game_events", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertGameEventQuery,
			rec.ServerID, rec.Type, rec.EventID, rec.Location, rec.State,
			string(rec.Source), rec.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert game event: %w", err)
		}
		return nil
	})
}

// queryID returns the single id selected by query, or nil when no row matches.
func queryID(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (interface{}, error) {
	var id string
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return id, nil
}

var _ stats.Updater = (*DB)(nil)
