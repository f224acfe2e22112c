// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package events

import "strings"

// suicideWeapons match the whole weapon field, case-insensitively.
var suicideWeapons = map[string]struct{}{
	"suicide_by_relocation": {},
	"suicide":               {},
	"suicide_fall":          {},
}

// suicideKeywords match anywhere in the weapon field.
var suicideKeywords = []string{"suicide", "fall", "falling", "drown", "drowning", "relog", "relocation"}

// Classify returns the Kind of e. It is pure and idempotent, and it only
// ever confirms or refines a kill or suicide tag set by Normalize.
func Classify(e *Event) Kind {
	switch {
	case e.Type == TypeSuicide:
		return KindSuicide
	case e.Type == TypeKill:
		// A kill whose identities have since been made equal is a suicide.
		if e.Kill != nil && e.Kill.KillerID != "" && e.Kill.KillerID == e.Kill.VictimID {
			return KindSuicide
		}
		return KindKill
	case IsConnectionType(e.Type):
		return KindConnection
	case e.Type == TypeMission:
		return KindMission
	case IsWorldType(e.Type):
		return KindGameEvent
	}

	weapon := strings.ToLower(e.Weapon)
	if _, ok := suicideWeapons[weapon]; ok {
		return KindSuicide
	}

	if k := e.Kill; k != nil {
		return classifyKill(k, weapon)
	}

	if c := e.Connection; c != nil && c.HasAction {
		return KindConnection
	}

	return KindUnknown
}

func classifyKill(k *KillPayload, weapon string) Kind {
	if k.KillerID != "" && k.KillerID == k.VictimID {
		return KindSuicide
	}
	if k.KillerName != "" && k.KillerName == k.VictimName {
		return KindSuicide
	}
	if weapon == "" && k.KillerID == k.VictimID {
		return KindSuicide
	}
	for _, kw := range suicideKeywords {
		if strings.Contains(weapon, kw) {
			return KindSuicide
		}
	}
	return KindKill
}
