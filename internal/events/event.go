// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package events defines the canonical event model and the two pure stages
// that produce it: Normalize turns a loosely typed RawRecord into an Event,
// and Classify derives the Event's Kind.
package events

import (
	"time"
)

// Kind is the coarse category an event is routed by.
type Kind string

const (
	KindKill       Kind = "kill"
	KindSuicide    Kind = "suicide"
	KindConnection Kind = "connection"
	KindMission    Kind = "mission"
	KindGameEvent  Kind = "game_event"
	KindUnknown    Kind = "unknown"
)

// Kinds lists every Kind in routing order.
var Kinds = []Kind{KindKill, KindSuicide, KindConnection, KindMission, KindGameEvent, KindUnknown}

// Pipeline names the source that observed an event.
type Pipeline string

const (
	PipelineCSV Pipeline = "csv"
	PipelineLog Pipeline = "log"
)

// Raw event_type tags produced by the parser and the normalizer.
const (
	TypeKill       = "kill"
	TypeSuicide    = "suicide"
	TypeRegister   = "register"
	TypeUnregister = "unregister"
	TypeJoin       = "join"
	TypeKick       = "kick"
	TypeMission    = "mission"
	TypeAirdrop    = "airdrop"
	TypeHelicrash  = "helicrash"
	TypeTrader     = "trader"
	TypeConvoy     = "convoy"

	// UnknownConsole fills console columns absent from legacy rows.
	UnknownConsole = "Unknown"
)

// IsConnectionType reports whether t is a connection tag.
func IsConnectionType(t string) bool {
	switch t {
	case TypeRegister, TypeUnregister, TypeJoin, TypeKick:
		return true
	}
	return false
}

// IsWorldType reports whether t is a world event tag.
func IsWorldType(t string) bool {
	switch t {
	case TypeAirdrop, TypeHelicrash, TypeTrader, TypeConvoy:
		return true
	}
	return false
}

// KillPayload is present when the record carried both killer_id and victim_id.
type KillPayload struct {
	KillerID      string `json:"killer_id"`
	KillerName    string `json:"killer_name"`
	VictimID      string `json:"victim_id"`
	VictimName    string `json:"victim_name"`
	Distance      int    `json:"distance,omitempty"`
	KillerConsole string `json:"killer_console"`
	VictimConsole string `json:"victim_console"`
}

// ConnectionPayload is present when the record carried player_id.
type ConnectionPayload struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Action     string `json:"action,omitempty"`
	HasAction  bool   `json:"-"`
}

// MissionPayload is present when the record carried mission_name.
type MissionPayload struct {
	Name       string `json:"mission_name"`
	Difficulty string `json:"difficulty,omitempty"`
	Location   string `json:"location,omitempty"`
	State      string `json:"state,omitempty"`
}

// WorldPayload is present for airdrop, helicrash, trader and convoy events.
type WorldPayload struct {
	EventID  string `json:"event_id,omitempty"`
	Location string `json:"location,omitempty"`
	State    string `json:"state,omitempty"`
}

// Event is a normalized record: a shared base plus at most the payloads the
// raw record carried fields for.
type Event struct {
	Timestamp time.Time
	ServerID  string
	// Type is the raw event_type tag, refined by the normalizer for kills.
	Type   string
	Kind   Kind
	Source Pipeline
	Weapon string
	// Line is the source line number. It never takes part in identity.
	Line int

	Kill       *KillPayload
	Connection *ConnectionPayload
	Mission    *MissionPayload
	World      *WorldPayload

	// Extra holds fields the normalizer does not recognise.
	Extra map[string]any
}

// IsSuicide reports whether the event has been classified as a suicide.
func (e *Event) IsSuicide() bool {
	return e.Kind == KindSuicide
}

// Classify stores Classify(e) in e.Kind and returns it.
func (e *Event) Classify() Kind {
	e.Kind = Classify(e)
	return e.Kind
}
