// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package events

// Field names shared by the parser and the normalizer.
const (
	FieldTimestamp     = "timestamp"
	FieldServerID      = "server_id"
	FieldEventType     = "event_type"
	FieldKillerName    = "killer_name"
	FieldKillerID      = "killer_id"
	FieldVictimName    = "victim_name"
	FieldVictimID      = "victim_id"
	FieldWeapon        = "weapon"
	FieldDistance      = "distance"
	FieldKillerConsole = "killer_console"
	FieldVictimConsole = "victim_console"
	FieldPlayerID      = "player_id"
	FieldPlayerName    = "player_name"
	FieldAction        = "action"
	FieldMissionName   = "mission_name"
	FieldDifficulty    = "difficulty"
	FieldLocation      = "location"
	FieldState         = "state"
	FieldEventID       = "event_id"
	FieldLine          = "line"
)

// RawRecord is an ordered mapping of field name to untyped value produced
// from one log line or CSV row. A nil value models an explicit null, which
// is distinct from an absent key.
type RawRecord struct {
	keys   []string
	values map[string]any
}

// NewRawRecord returns an empty record.
func NewRawRecord() *RawRecord {
	return &RawRecord{values: make(map[string]any)}
}

// Set assigns a value, keeping the position of an existing key.
func (r *RawRecord) Set(key string, value any) *RawRecord {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return r
}

// Get returns the value for key and whether the key is present.
func (r *RawRecord) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present, even with a nil value.
func (r *RawRecord) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete removes key.
func (r *RawRecord) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in insertion order.
func (r *RawRecord) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *RawRecord) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}
