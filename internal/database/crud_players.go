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
	"time"

	"github.com/tomtom215/killfeed/internal/metrics"
)

// PlayerStats is one row of the players table.
type PlayerStats struct {
	ServerID      string    `json:"server_id"`
	PlayerID      string    `json:"player_id"`
	PlayerName    string    `json:"player_name"`
	Kills         int64     `json:"kills"`
	Deaths        int64     `json:"deaths"`
	Suicides      int64     `json:"suicides"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
	LongestKill   int       `json:"longest_kill"`
	Joins         int64     `json:"joins"`
	NemesisID     string    `json:"nemesis_id,omitempty"`
	PreyID        string    `json:"prey_id,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// KDR returns kills per death, or kills when the player never died.
func (p PlayerStats) KDR() float64 {
	if p.Deaths == 0 {
		return float64(p.Kills)
	}
	return float64(p.Kills) / float64(p.Deaths)
}

const playerColumns = `server_id, player_id, player_name, kills, deaths, suicides,
	current_streak, best_streak, longest_kill, joins, nemesis_id, prey_id, first_seen, last_seen`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row rowScanner) (PlayerStats, error) {
	var p PlayerStats
	var nemesis, prey sql.NullString
	err := row.Scan(
		&p.ServerID, &p.PlayerID, &p.PlayerName, &p.Kills, &p.Deaths, &p.Suicides,
		&p.CurrentStreak, &p.BestStreak, &p.LongestKill, &p.Joins, &nemesis, &prey,
		&p.FirstSeen, &p.LastSeen,
	)
	if err != nil {
		return PlayerStats{}, err
	}
	p.NemesisID = nemesis.String
	p.PreyID = prey.String
	p.FirstSeen = p.FirstSeen.UTC()
	p.LastSeen = p.LastSeen.UTC()
	return p, nil
}

// GetPlayer returns the stats row for one player, or ErrPlayerNotFound.
func (db *DB) GetPlayer(ctx context.Context, serverID, playerID string) (PlayerStats, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE server_id = ? AND player_id = ?`,
		serverID, playerID)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("get_player", "players", time.Since(start), nil)
		return PlayerStats{}, ErrPlayerNotFound
	}
	metrics.RecordDBQuery("get_player", "players", time.Since(start), err)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

// Leaderboard returns the top limit players on serverID by kills, fewer
// deaths breaking ties.
func (db *DB) Leaderboard(ctx context.Context, serverID string, limit int) ([]PlayerStats, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players
		WHERE server_id = ? AND kills > 0
		ORDER BY kills DESC, deaths ASC, player_id
		LIMIT ?`, serverID, limit)
	metrics.RecordDBQuery("leaderboard", "players", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer closeWithLog(rows, "rows")

	players := make([]PlayerStats, 0, limit)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}
	return players, nil
}
