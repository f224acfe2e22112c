// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package stats defines the downstream contracts for admitted events and the
// Dispatcher that routes each event to them exactly once.
//
// Updater applies events to player and rivalry aggregates. Store appends the
// canonical event document. Publisher, when configured, fans the document out
// to the event bus. The database package implements Updater and Store.
package stats

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/killfeed/internal/events"
)

var (
	// ErrMissingIdentifier marks an event dropped for lacking a required ID.
	ErrMissingIdentifier = errors.New("event is missing a required identifier")

	// ErrUnroutable marks an event whose kind has no route.
	ErrUnroutable = errors.New("event kind has no route")
)

// KillRecord is one kill or suicide.
type KillRecord struct {
	ServerID      string
	KillerID      string
	KillerName    string
	VictimID      string
	VictimName    string
	Weapon        string
	Distance      int
	KillerConsole string
	VictimConsole string
	Timestamp     time.Time
	IsSuicide     bool
	Source        events.Pipeline
}

// ConnectionRecord is one register, unregister, join or kick.
type ConnectionRecord struct {
	ServerID   string
	PlayerID   string
	PlayerName string
	Action     string
	Timestamp  time.Time
	Source     events.Pipeline
}

// MissionRecord is one mission state change.
type MissionRecord struct {
	ServerID   string
	Name       string
	Difficulty string
	Location   string
	State      string
	Timestamp  time.Time
	Source     events.Pipeline
}

// GameEventRecord is one world event: airdrop, helicrash, trader or convoy.
type GameEventRecord struct {
	ServerID  string
	Type      string
	EventID   string
	Location  string
	State     string
	Timestamp time.Time
	Source    events.Pipeline
}

// Updater applies admitted events to aggregates. Implementations should
// tolerate a repeated call, although the Dispatcher makes at most one per event.
type Updater interface {
	RecordKill(ctx context.Context, rec KillRecord) error
	RecordConnection(ctx context.Context, rec ConnectionRecord) error
	RecordMission(ctx context.Context, rec MissionRecord) error
	RecordGameEvent(ctx context.Context, rec GameEventRecord) error
}

// Store is append-only persistence of canonical event documents.
type Store interface {
	AppendEvent(ctx context.Context, doc Document) error
}

// Publisher receives every document after it has been stored.
type Publisher interface {
	Publish(ctx context.Context, doc Document) error
}
