// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/tomtom215/killfeed/internal/events"
)

// Column layouts of the two death-log generations. The legacy layout is a
// prefix of the modern one.
const (
	LegacyFieldCount = 7
	ModernFieldCount = 9
)

var csvColumns = []string{
	events.FieldTimestamp,
	events.FieldKillerName,
	events.FieldKillerID,
	events.FieldVictimName,
	events.FieldVictimID,
	events.FieldWeapon,
	events.FieldDistance,
	events.FieldKillerConsole,
	events.FieldVictimConsole,
}

// ParseCSV parses a death-log file. The returned error is only set when r
// itself fails; bad rows are collected in Result.Errors.
func ParseCSV(r io.Reader) (Result, error) {
	return scan(r, ParseCSVLine)
}

// ParseCSVLine parses one row. Unknown column counts are tolerated: the
// recognised prefix is mapped and the normalizer fills the rest.
func ParseCSVLine(line string, lineNo int) (*events.RawRecord, error) {
	if isHeader(line) {
		return nil, nil
	}

	delim := ';'
	if !strings.ContainsRune(line, ';') {
		delim = ','
	}

	fields, err := splitStrict(line, delim)
	if err != nil {
		// Stray quotes inside player names defeat the CSV reader.
		fields = strings.Split(line, string(delim))
	}
	fields = trimFields(fields)

	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: no %q delimiter in row", ErrMalformed, delim)
	}

	rec := events.NewRawRecord()
	for i, col := range csvColumns {
		if i >= len(fields) {
			break
		}
		rec.Set(col, fields[i])
	}
	rec.Set(events.FieldLine, lineNo)
	return rec, nil
}

func splitStrict(line string, delim rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	return r.Read()
}

// trimFields trims whitespace and drops the empty field a trailing
// delimiter leaves behind.
func trimFields(fields []string) []string {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if n := len(fields); n > 0 && fields[n-1] == "" {
		fields = fields[:n-1]
	}
	return fields
}

func isHeader(line string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), events.FieldTimestamp)
}

// Generation reports the schema generation of a parsed row.
func Generation(rec *events.RawRecord) string {
	switch {
	case rec.Has(events.FieldKillerConsole) || rec.Has(events.FieldVictimConsole):
		return "modern"
	case rec.Has(events.FieldDistance):
		return "legacy"
	default:
		return "partial"
	}
}
