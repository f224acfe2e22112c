// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package events

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestClassify_TaggedTypes(t *testing.T) {
	tests := []struct {
		eventType string
		want      Kind
	}{
		{TypeKill, KindKill},
		{TypeSuicide, KindSuicide},
		{TypeRegister, KindConnection},
		{TypeUnregister, KindConnection},
		{TypeJoin, KindConnection},
		{TypeKick, KindConnection},
		{TypeMission, KindMission},
		{TypeAirdrop, KindGameEvent},
		{TypeHelicrash, KindGameEvent},
		{TypeTrader, KindGameEvent},
		{TypeConvoy, KindGameEvent},
		{"", KindUnknown},
		{"weather", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			e := &Event{Type: tt.eventType}
			if got := Classify(e); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestClassify_RawDerivation(t *testing.T) {
	kill := func(killerID, victimID, killerName, victimName string) *KillPayload {
		return &KillPayload{KillerID: killerID, VictimID: victimID, KillerName: killerName, VictimName: victimName}
	}

	tests := []struct {
		name  string
		event Event
		want  Kind
	}{
		{"suicide weapon no ids", Event{Weapon: "Suicide_Fall"}, KindSuicide},
		{"equal ids", Event{Weapon: "AK-47", Kill: kill("A", "A", "x", "y")}, KindSuicide},
		{"equal names", Event{Weapon: "AK-47", Kill: kill("A", "B", "Zed", "Zed")}, KindSuicide},
		{"empty names differ ids", Event{Weapon: "AK-47", Kill: kill("A", "B", "", "")}, KindKill},
		{"empty weapon empty ids", Event{Kill: kill("", "", "x", "y")}, KindSuicide},
		{"falling keyword", Event{Weapon: "Falling_Damage", Kill: kill("A", "B", "x", "y")}, KindSuicide},
		{"drowning keyword", Event{Weapon: "drowning", Kill: kill("A", "B", "x", "y")}, KindSuicide},
		{"relog keyword", Event{Weapon: "RELOG", Kill: kill("A", "B", "x", "y")}, KindSuicide},
		{"real weapon", Event{Weapon: "MP5", Kill: kill("A", "B", "x", "y")}, KindKill},
		{"connection by action", Event{Connection: &ConnectionPayload{PlayerID: "P", Action: "join", HasAction: true}}, KindConnection},
		{"player without action", Event{Connection: &ConnectionPayload{PlayerID: "P"}}, KindUnknown},
		{"nothing", Event{}, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event
			if got := Classify(&e); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	e := testNormalizer().Normalize(killRecord("K1", "V1", "AK-47"))
	first := e.Classify()
	second := e.Classify()
	if first != second || first != KindKill {
		t.Errorf("Classify() = %q then %q, want kill twice", first, second)
	}
}

func TestClassify_RefinesDemotedKill(t *testing.T) {
	e := testNormalizer().Normalize(killRecord("K1", "V1", "AK-47"))
	e.Kill.KillerID = e.Kill.VictimID
	if got := e.Classify(); got != KindSuicide {
		t.Errorf("Classify() = %q, want suicide", got)
	}
}

func TestClassify_KillProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	n := testNormalizer()

	weapons := gen.OneConstOf("AK-47", "M4A1", "MP5", "SVD", "Mosin", "knife", "VSS")

	properties.Property("distinct ids classify as kill", prop.ForAll(
		func(killerID, victimID, weapon string) bool {
			if killerID == victimID {
				return true
			}
			e := n.Normalize(killRecord(killerID, victimID, weapon))
			return e.Classify() == KindKill
		},
		gen.Identifier(),
		gen.Identifier(),
		weapons,
	))

	properties.Property("equal ids classify as suicide regardless of weapon", prop.ForAll(
		func(id, weapon string) bool {
			e := n.Normalize(killRecord(id, id, weapon))
			return e.Classify() == KindSuicide
		},
		gen.Identifier(),
		gen.OneGenOf(weapons, gen.AlphaString(), gen.Const("suicide_by_relocation")),
	))

	properties.Property("classification is stable across repeated calls", prop.ForAll(
		func(killerID, victimID, weapon string) bool {
			e := n.Normalize(killRecord(killerID, victimID, weapon))
			return e.Classify() == e.Classify()
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
