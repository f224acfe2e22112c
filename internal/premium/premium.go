// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package premium implements the tier check that gates optional features per server.
// Quotas and billing are out of scope; a feature is either unlocked for a tier or not.
package premium

import (
	"errors"
	"fmt"
	"sort"
)

// ErrFeatureLocked is returned by Check when the tier is below the feature's minimum.
var ErrFeatureLocked = errors.New("feature requires a higher premium tier")

// LockedError carries the feature and tiers involved in a denied check.
type LockedError struct {
	Feature  string
	Tier     int
	Required int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("feature %q requires tier %d (server tier %d)", e.Feature, e.Required, e.Tier)
}

func (e *LockedError) Unwrap() error { return ErrFeatureLocked }

// Gate maps feature names to the minimum tier that unlocks them.
// Features absent from the map are available to every tier. A Gate is
// read-only after construction and safe for concurrent use.
type Gate struct {
	features map[string]int
}

// NewGate copies features into a new Gate.
func NewGate(features map[string]int) *Gate {
	g := &Gate{features: make(map[string]int, len(features))}
	for name, tier := range features {
		g.features[name] = tier
	}
	return g
}

// Required returns the minimum tier for feature, or 0 when it is not gated.
func (g *Gate) Required(feature string) int {
	if g == nil {
		return 0
	}
	return g.features[feature]
}

// Allowed reports whether tier unlocks feature.
func (g *Gate) Allowed(feature string, tier int) bool {
	return tier >= g.Required(feature)
}

// Check returns a *LockedError wrapping ErrFeatureLocked when tier does not unlock feature.
func (g *Gate) Check(feature string, tier int) error {
	required := g.Required(feature)
	if tier >= required {
		return nil
	}
	return &LockedError{Feature: feature, Tier: tier, Required: required}
}

// Features returns the gated feature names in sorted order.
func (g *Gate) Features() []string {
	if g == nil {
		return nil
	}
	names := make([]string, 0, len(g.features))
	for name := range g.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
