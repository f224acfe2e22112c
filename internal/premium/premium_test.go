// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package premium

import (
	"errors"
	"testing"
)

func TestGate_Check(t *testing.T) {
	g := NewGate(map[string]int{"log_processing": 1, "exports": 3})

	tests := []struct {
		name    string
		feature string
		tier    int
		wantErr bool
	}{
		{"free tier locked out of logs", "log_processing", 0, true},
		{"tier one unlocks logs", "log_processing", 1, false},
		{"higher tier unlocks logs", "log_processing", 4, false},
		{"tier two below exports", "exports", 2, true},
		{"ungated feature", "csv_processing", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.feature, tt.tier)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := g.Allowed(tt.feature, tt.tier); got == tt.wantErr {
				t.Errorf("Allowed() = %v, inconsistent with Check()", got)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrFeatureLocked) {
				t.Errorf("Check() error should wrap ErrFeatureLocked")
			}
			var locked *LockedError
			if !errors.As(err, &locked) || locked.Feature != tt.feature || locked.Tier != tt.tier {
				t.Errorf("Check() error = %#v", err)
			}
		})
	}
}

func TestGate_CopiesInput(t *testing.T) {
	features := map[string]int{"log_processing": 1}
	g := NewGate(features)
	features["log_processing"] = 5

	if g.Required("log_processing") != 1 {
		t.Errorf("Required() = %d, gate should not alias its input", g.Required("log_processing"))
	}
}

func TestGate_Nil(t *testing.T) {
	var g *Gate
	if !g.Allowed("log_processing", 0) {
		t.Error("nil gate should allow everything")
	}
	if g.Features() != nil {
		t.Error("nil gate should have no features")
	}
}

func TestGate_Features(t *testing.T) {
	g := NewGate(map[string]int{"b": 1, "a": 2})
	got := g.Features()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Features() = %v, want [a b]", got)
	}
}
