// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package coordinator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/killfeed/internal/events"
)

const separator = "|"

// Fingerprint returns the identity of the real-world occurrence e describes.
// Two events share a fingerprint iff their timestamps and kind-relevant
// identity fields match exactly. server_id is not part of the identity, so
// two servers reporting the same instant and the same players collide.
func Fingerprint(e *events.Event) string {
	kind := e.Kind
	if kind == "" {
		kind = events.Classify(e)
	}
	ts := events.FormatTimestamp(e.Timestamp)

	switch kind {
	case events.KindKill, events.KindSuicide:
		var killerID, victimID string
		if e.Kill != nil {
			killerID, victimID = e.Kill.KillerID, e.Kill.VictimID
		}
		return join(ts, killerID, victimID, e.Weapon)
	case events.KindMission:
		var name, location string
		if e.Mission != nil {
			name, location = e.Mission.Name, e.Mission.Location
		}
		return join(ts, name, location)
	case events.KindGameEvent:
		var eventID string
		if e.World != nil {
			eventID = e.World.EventID
		}
		return join(ts, e.Type, eventID)
	case events.KindConnection:
		var playerID string
		if e.Connection != nil {
			playerID = e.Connection.PlayerID
		}
		return join(ts, e.Type, playerID)
	default:
		return join(ts, structuralHash(e))
	}
}

func join(parts ...string) string {
	return strings.Join(parts, separator)
}

// structuralShape is what an unknown event is hashed over. Line, Source and
// ServerID are excluded so the same record seen twice hashes the same.
type structuralShape struct {
	Type       string                    `json:"type"`
	Weapon     string                    `json:"weapon"`
	Kill       *events.KillPayload       `json:"kill,omitempty"`
	Connection *events.ConnectionPayload `json:"connection,omitempty"`
	Mission    *events.MissionPayload    `json:"mission,omitempty"`
	World      *events.WorldPayload      `json:"world,omitempty"`
	Extra      map[string]any            `json:"extra,omitempty"`
}

// structuralHash is a SHA-256 over canonical JSON, truncated to 16 hex chars.
// Map keys marshal sorted, so field order in the raw record is irrelevant.
func structuralHash(e *events.Event) string {
	data, err := json.Marshal(structuralShape{
		Type:       e.Type,
		Weapon:     e.Weapon,
		Kill:       e.Kill,
		Connection: e.Connection,
		Mission:    e.Mission,
		World:      e.World,
		Extra:      e.Extra,
	})
	if err != nil {
		// Unmarshalable Extra values; hash what identifies the shape instead.
		data = []byte(e.Type + separator + e.Weapon)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
