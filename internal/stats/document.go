// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package stats

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/killfeed/internal/coordinator"
	"github.com/tomtom215/killfeed/internal/events"
)

// Document is the canonical, append-only form of an admitted event.
type Document struct {
	ID          string          `json:"id"`
	Fingerprint string          `json:"fingerprint"`
	Kind        events.Kind     `json:"kind"`
	Type        string          `json:"event_type"`
	ServerID    string          `json:"server_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      events.Pipeline `json:"source"`
	Weapon      string          `json:"weapon,omitempty"`
	IsSuicide   bool            `json:"is_suicide,omitempty"`
	IngestedAt  time.Time       `json:"ingested_at"`

	Kill       *events.KillPayload       `json:"kill,omitempty"`
	Connection *events.ConnectionPayload `json:"connection,omitempty"`
	Mission    *events.MissionPayload    `json:"mission,omitempty"`
	World      *events.WorldPayload      `json:"world,omitempty"`
	Extra      map[string]any            `json:"extra,omitempty"`
}

// NewDocument builds the document for e with a fresh ID.
func NewDocument(e *events.Event, ingestedAt time.Time) Document {
	return Document{
		ID:          uuid.NewString(),
		Fingerprint: coordinator.Fingerprint(e),
		Kind:        e.Kind,
		Type:        e.Type,
		ServerID:    e.ServerID,
		Timestamp:   e.Timestamp.UTC(),
		Source:      e.Source,
		Weapon:      e.Weapon,
		IsSuicide:   e.IsSuicide(),
		IngestedAt:  ingestedAt.UTC(),
		Kill:        e.Kill,
		Connection:  e.Connection,
		Mission:     e.Mission,
		World:       e.World,
		Extra:       e.Extra,
	}
}
