// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package events

import (
	"strconv"
	"strings"
	"time"
)

// Deadside writes "2024.03.15-14.30.00" in CSV rows and appends ":fff"
// in Deadside.log. The colon separator has no time.Parse equivalent.
const dotLayout = "2006.01.02-15.04.05"

// isoLayouts make up the ISO-8601 attempt. time.Parse accepts a fractional
// second after the seconds field even when the layout omits it.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// timestampParsers run in order; the first match wins.
var timestampParsers = []func(string) (time.Time, bool){
	parseISO,
	layoutParser(dotLayout),
	parseDotFraction,
	layoutParser("2006-01-02 15:04:05"),
	layoutParser("2006-01-02 15:04:05.000000"),
}

// ParseTimestamp parses s using the formats Deadside and upstream tools emit.
// Timestamps without a zone are UTC. ok is false when no format matched.
func ParseTimestamp(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, parse := range timestampParsers {
		if t, ok := parse(s); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseISO(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func layoutParser(layout string) func(string) (time.Time, bool) {
	return func(s string) (time.Time, bool) {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
}

// parseDotFraction handles "2006.01.02-15.04.05:ffffff" with 1 to 9 digits.
func parseDotFraction(s string) (time.Time, bool) {
	if len(s) <= len(dotLayout)+1 || s[len(dotLayout)] != ':' {
		return time.Time{}, false
	}
	frac := s[len(dotLayout)+1:]
	if len(frac) > 9 || strings.Trim(frac, "0123456789") != "" {
		return time.Time{}, false
	}
	base, err := time.ParseInLocation(dotLayout, s[:len(dotLayout)], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
	if err != nil {
		return time.Time{}, false
	}
	return base.Add(time.Duration(n)), true
}

// FormatTimestamp renders t the way fingerprints and documents carry it:
// RFC 3339 in UTC with sub-second precision kept.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
