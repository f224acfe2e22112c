// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/killfeed/internal/events"
)

func get(t *testing.T, rec *events.RawRecord, key string) any {
	t.Helper()
	v, ok := rec.Get(key)
	if !ok {
		t.Fatalf("record missing %q: keys=%v", key, rec.Keys())
	}
	return v
}

func TestParseCSVLine_Generations(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantFields int
		generation string
	}{
		{"legacy", "2024.03.15-14.30.00;Alpha;K1;Bravo;V1;AK-47;120", 7, "legacy"},
		{"legacy trailing delimiter", "2024.03.15-14.30.00;Alpha;K1;Bravo;V1;AK-47;120;", 7, "legacy"},
		{"modern", "2024.03.15-14.30.00;Alpha;K1;Bravo;V1;AK-47;120;PS5;XSX;", 9, "modern"},
		{"comma separated", "2024.03.15-14.30.00,Alpha,K1,Bravo,V1,AK-47,120", 7, "legacy"},
		{"short row", "2024.03.15-14.30.00;Alpha;K1", 3, "partial"},
		{"extra columns", "2024.03.15-14.30.00;Alpha;K1;Bravo;V1;AK-47;120;PS5;XSX;foo;bar", 9, "modern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseCSVLine(tt.line, 4)
			if err != nil {
				t.Fatalf("ParseCSVLine() error = %v", err)
			}
			// +1 for the line number field
			if got := rec.Len() - 1; got != tt.wantFields {
				t.Errorf("fields = %d, want %d (%v)", got, tt.wantFields, rec.Keys())
			}
			if got := Generation(rec); got != tt.generation {
				t.Errorf("Generation() = %q, want %q", got, tt.generation)
			}
			if get(t, rec, events.FieldLine) != 4 {
				t.Error("line number not recorded")
			}
		})
	}
}

func TestParseCSVLine_Values(t *testing.T) {
	rec, err := ParseCSVLine(`2024.03.15-14.30.00;"Big ""Al"" Jr";K1;Bravo;V1;MP5;42.5;PS5;;`, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := get(t, rec, events.FieldKillerName); got != `Big "Al" Jr` {
		t.Errorf("killer_name = %q", got)
	}
	if got := get(t, rec, events.FieldDistance); got != "42.5" {
		t.Errorf("distance = %q", got)
	}
	if got := get(t, rec, events.FieldVictimConsole); got != "" {
		t.Errorf("victim_console = %q, want empty", got)
	}
}

func TestParseCSVLine_StrayQuoteFallsBack(t *testing.T) {
	rec, err := ParseCSVLine(`2024.03.15-14.30.00;Al"pha;K1;"Bra"vo";V1;AK-47;1`, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := get(t, rec, events.FieldVictimID); got != "V1" {
		t.Errorf("victim_id = %q", got)
	}
}

func TestParseCSVLine_SkipsAndErrors(t *testing.T) {
	if rec, err := ParseCSVLine("Timestamp;Killer;KillerID", 1); rec != nil || err != nil {
		t.Errorf("header row = (%v, %v), want skip", rec, err)
	}
	_, err := ParseCSVLine("garbage without delimiter", 2)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestParseCSV_IsolatesBadRows(t *testing.T) {
	input := "\ufeff2024.03.15-14.30.00;Alpha;K1;Bravo;V1;AK-47;120;\r\n" +
		"\n" +
		"garbage\n" +
		"2024.03.15-14.31.00;Charlie;K2;Delta;V2;M4A1;80;PS5;XSX;\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 3 {
		t.Errorf("errors = %+v, want one on line 3", res.Errors)
	}
	if res.Lines != 4 {
		t.Errorf("lines = %d, want 4", res.Lines)
	}
	if got := get(t, res.Records[0], events.FieldTimestamp); got != "2024.03.15-14.30.00" {
		t.Errorf("BOM not stripped: %q", got)
	}
}

func TestParseCSV_RoundTripThroughNormalizer(t *testing.T) {
	legacy, _ := ParseCSVLine("2024.03.15-14.30.00;Alpha;K1;Bravo;V1;AK-47;120", 1)
	modern, _ := ParseCSVLine("2024.03.15-14.30.00;Alpha;K1;Bravo;V1;AK-47;120;PS5;XSX", 9)

	a, b := events.Normalize(legacy), events.Normalize(modern)
	if !a.Timestamp.Equal(b.Timestamp) || a.Type != b.Type || a.Weapon != b.Weapon ||
		*a.Kill != (events.KillPayload{
			KillerID: "K1", KillerName: "Alpha", VictimID: "V1", VictimName: "Bravo",
			Distance: 120, KillerConsole: "Unknown", VictimConsole: "Unknown",
		}) || b.Kill.KillerConsole != "PS5" {
		t.Errorf("legacy=%+v modern=%+v", a.Kill, b.Kill)
	}
}
