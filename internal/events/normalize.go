// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package events

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// knownFields are consumed by Normalize; anything else lands in Event.Extra.
var knownFields = map[string]struct{}{
	FieldTimestamp: {}, FieldServerID: {}, FieldEventType: {},
	FieldKillerName: {}, FieldKillerID: {}, FieldVictimName: {}, FieldVictimID: {},
	FieldWeapon: {}, FieldDistance: {}, FieldKillerConsole: {}, FieldVictimConsole: {},
	FieldPlayerID: {}, FieldPlayerName: {}, FieldAction: {},
	FieldMissionName: {}, FieldDifficulty: {}, FieldLocation: {}, FieldState: {},
	FieldEventID: {}, FieldLine: {},
}

// Normalizer converts RawRecords into Events. The zero value uses time.Now.
type Normalizer struct {
	// Now supplies the fallback timestamp.
	Now func() time.Time
}

var defaultNormalizer Normalizer

// Normalize converts r using the wall clock for timestamp fallback.
func Normalize(r *RawRecord) Event {
	return defaultNormalizer.Normalize(r)
}

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now().UTC()
	}
	return time.Now().UTC()
}

// Normalize never fails: malformed input yields a best-effort Event whose
// Timestamp is always set and whose identifier fields are never nil.
func (n Normalizer) Normalize(r *RawRecord) Event {
	e := Event{
		Timestamp: n.timestamp(r),
		ServerID:  asString(field(r, FieldServerID)),
		Type:      asString(field(r, FieldEventType)),
		Weapon:    asString(field(r, FieldWeapon)),
		Line:      asInt(field(r, FieldLine)),
	}

	if r.Has(FieldKillerID) && r.Has(FieldVictimID) {
		e.Kill = normalizeKill(r, &e)
	}

	if r.Has(FieldPlayerID) {
		action, hasAction := r.Get(FieldAction)
		e.Connection = &ConnectionPayload{
			PlayerID:   asString(field(r, FieldPlayerID)),
			PlayerName: asString(field(r, FieldPlayerName)),
			Action:     asString(action),
			HasAction:  hasAction,
		}
	}

	if r.Has(FieldMissionName) || e.Type == TypeMission {
		e.Mission = &MissionPayload{
			Name:       asString(field(r, FieldMissionName)),
			Difficulty: asString(field(r, FieldDifficulty)),
			Location:   asString(field(r, FieldLocation)),
			State:      asString(field(r, FieldState)),
		}
	}

	if r.Has(FieldEventID) || IsWorldType(e.Type) {
		e.World = &WorldPayload{
			EventID:  asString(field(r, FieldEventID)),
			Location: asString(field(r, FieldLocation)),
			State:    asString(field(r, FieldState)),
		}
	}

	for _, k := range r.Keys() {
		if _, ok := knownFields[k]; ok {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[k], _ = r.Get(k)
	}

	return e
}

func (n Normalizer) timestamp(r *RawRecord) time.Time {
	raw, ok := r.Get(FieldTimestamp)
	if !ok || raw == nil {
		return n.now()
	}

	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return n.now()
		}
		return v.UTC()
	case *time.Time:
		if v == nil || v.IsZero() {
			return n.now()
		}
		return v.UTC()
	case string:
		if t, ok := ParseTimestamp(v); ok {
			return t
		}
		logging.Warn().Str("timestamp", v).Msg("Could not parse timestamp, using current time")
		metrics.TimestampFallbacks.Inc()
		return n.now()
	default:
		logging.Warn().Str("timestamp", fmt.Sprint(v)).Msg("Unsupported timestamp type, using current time")
		metrics.TimestampFallbacks.Inc()
		return n.now()
	}
}

// normalizeKill builds the kill payload and tags e.Type as kill or suicide.
func normalizeKill(r *RawRecord, e *Event) *KillPayload {
	k := &KillPayload{
		KillerID:   asString(field(r, FieldKillerID)),
		VictimID:   asString(field(r, FieldVictimID)),
		KillerName: asString(field(r, FieldKillerName)),
		VictimName: asString(field(r, FieldVictimName)),
		Distance:   asInt(field(r, FieldDistance)),
	}

	// Legacy 7-field rows carry no console columns at all.
	if !r.Has(FieldKillerConsole) && !r.Has(FieldVictimConsole) {
		k.KillerConsole = UnknownConsole
		k.VictimConsole = UnknownConsole
	} else {
		k.KillerConsole = consoleOrUnknown(field(r, FieldKillerConsole))
		k.VictimConsole = consoleOrUnknown(field(r, FieldVictimConsole))
	}

	switch {
	case e.Weapon == "suicide_by_relocation" || e.Weapon == "suicide":
		if k.KillerID == k.VictimID {
			e.Type = TypeSuicide
		} else if k.KillerName != "" && k.KillerName == k.VictimName {
			// Same player under two IDs: trust the victim side.
			e.Type = TypeSuicide
			k.KillerID = k.VictimID
		}
	case k.KillerID == k.VictimID:
		e.Type = TypeSuicide
	default:
		e.Type = TypeKill
	}

	return k
}

func field(r *RawRecord, key string) any {
	v, _ := r.Get(key)
	return v
}

func consoleOrUnknown(v any) string {
	if s := asString(v); s != "" {
		return s
	}
	return UnknownConsole
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case []byte:
		return strings.TrimSpace(string(s))
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// asInt truncates numbers and numeric strings; anything else is 0.
func asInt(v any) int {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return truncate(float64(n))
	case float64:
		return truncate(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return truncate(f)
	default:
		return 0
	}
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0
	}
	return int(f)
}
