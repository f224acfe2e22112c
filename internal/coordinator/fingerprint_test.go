// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package coordinator

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tomtom215/killfeed/internal/events"
)

func TestFingerprint_PerKind(t *testing.T) {
	ts := "2024-03-15T14:30:00.123Z"
	at := t0.Add(123 * time.Millisecond)

	tests := []struct {
		name  string
		event *events.Event
		want  string
	}{
		{
			"kill",
			newKill(at, "K1", "V1", "AK-47"),
			ts + "|K1|V1|AK-47",
		},
		{
			"suicide",
			&events.Event{Timestamp: at, Type: events.TypeSuicide, Weapon: "suicide", Kill: &events.KillPayload{KillerID: "V1", VictimID: "V1"}},
			ts + "|V1|V1|suicide",
		},
		{
			"mission",
			&events.Event{Timestamp: at, Type: events.TypeMission, Mission: &events.MissionPayload{Name: "GA_Airport_Mis_01", Location: "Airport"}},
			ts + "|GA_Airport_Mis_01|Airport",
		},
		{
			"game event",
			&events.Event{Timestamp: at, Type: events.TypeAirdrop, World: &events.WorldPayload{EventID: "AD_7"}},
			ts + "|airdrop|AD_7",
		},
		{
			"connection",
			&events.Event{Timestamp: at, Type: events.TypeJoin, Connection: &events.ConnectionPayload{PlayerID: "P1"}},
			ts + "|join|P1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.event); got != tt.want {
				t.Errorf("Fingerprint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprint_Unknown(t *testing.T) {
	a := &events.Event{Timestamp: t0, Type: "weather", Extra: map[string]any{"rain": true, "wind": 3}}
	b := &events.Event{Timestamp: t0, Type: "weather", Extra: map[string]any{"wind": 3, "rain": true}, Line: 99}
	c := &events.Event{Timestamp: t0, Type: "weather", Extra: map[string]any{"rain": false, "wind": 3}}

	fa, fb, fc := Fingerprint(a), Fingerprint(b), Fingerprint(c)
	if fa != fb {
		t.Errorf("same shape hashed differently: %q vs %q", fa, fb)
	}
	if fa == fc {
		t.Error("different shapes share a fingerprint")
	}
	if !strings.HasPrefix(fa, "2024-03-15T14:30:00Z|") || len(fa) != len("2024-03-15T14:30:00Z|")+16 {
		t.Errorf("unexpected unknown fingerprint %q", fa)
	}
}

func TestFingerprint_LegacyAndModernRowsAgree(t *testing.T) {
	legacy := events.NewRawRecord().
		Set(events.FieldTimestamp, "2024.03.15-14.30.00").
		Set(events.FieldKillerName, "Alpha").Set(events.FieldKillerID, "K1").
		Set(events.FieldVictimName, "Bravo").Set(events.FieldVictimID, "V1").
		Set(events.FieldWeapon, "M4A1").Set(events.FieldDistance, "120")
	modern := events.NewRawRecord().
		Set(events.FieldTimestamp, "2024.03.15-14.30.00").
		Set(events.FieldKillerName, "Alpha").Set(events.FieldKillerID, "K1").
		Set(events.FieldVictimName, "Bravo").Set(events.FieldVictimID, "V1").
		Set(events.FieldWeapon, "M4A1").Set(events.FieldDistance, "120").
		Set(events.FieldKillerConsole, "PS5").Set(events.FieldVictimConsole, "XSX")

	a, b := events.Normalize(legacy), events.Normalize(modern)
	a.Classify()
	b.Classify()

	if Fingerprint(&a) != Fingerprint(&b) {
		t.Errorf("fingerprints differ: %q vs %q", Fingerprint(&a), Fingerprint(&b))
	}
}

func TestFingerprint_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("stable under non-identity fields", prop.ForAll(
		func(killerID, victimID, weapon string, line int, distance int, console string) bool {
			a := newKill(t0, killerID, victimID, weapon)
			b := newKill(t0, killerID, victimID, weapon)
			b.Line = line
			b.Source = events.PipelineLog
			b.ServerID = "other"
			b.Kill.Distance = distance
			b.Kill.KillerConsole = console
			b.Extra = map[string]any{"line_text": console}
			return Fingerprint(a) == Fingerprint(b)
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString(),
		gen.IntRange(0, 100000),
		gen.IntRange(0, 2000),
		gen.AlphaString(),
	))

	properties.Property("first call admits and second rejects", prop.ForAll(
		func(killerID, victimID, weapon string, offset int64) bool {
			c := New(Config{})
			e := newKill(t0.Add(time.Duration(offset)), killerID, victimID, weapon)
			return !c.IsDuplicate(e) && c.IsDuplicate(e)
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString(),
		gen.Int64Range(0, int64(time.Hour)),
	))

	properties.TestingRun(t)
}
