// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package parser turns Deadside death-log CSV rows and Deadside.log lines
// into events.RawRecord values. Parsing is per line: a malformed line is
// reported in Result.Errors and never stops the rest of the file.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tomtom215/killfeed/internal/events"
)

// maxLineSize bounds a single line. Deadside lines are far shorter; anything
// longer is corrupt.
const maxLineSize = 1 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrMalformed wraps every per-line failure.
var ErrMalformed = errors.New("malformed record")

// LineError describes one line that could not be parsed.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error {
	return e.Err
}

// Result is the outcome of parsing one file.
type Result struct {
	Records []*events.RawRecord
	Errors  []LineError
	// Lines is the number of lines read, including skipped ones.
	Lines int
}

// lineFunc parses one line. A nil record with a nil error skips the line.
type lineFunc func(line string, lineNo int) (*events.RawRecord, error)

// scan applies parse to every line of r.
func scan(r io.Reader, parse lineFunc) (Result, error) {
	var res Result

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		res.Lines++
		raw := scanner.Bytes()
		if res.Lines == 1 {
			raw = bytes.TrimPrefix(raw, utf8BOM)
		}
		line := strings.TrimRight(string(raw), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := parse(line, res.Lines)
		if err != nil {
			res.Errors = append(res.Errors, LineError{Line: res.Lines, Text: line, Err: err})
			continue
		}
		if rec != nil {
			res.Records = append(res.Records, rec)
		}
	}

	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read line %d: %w", res.Lines+1, err)
	}
	return res, nil
}

// Parse dispatches to ParseCSV or ParseLog by pipeline.
func Parse(p events.Pipeline, r io.Reader) (Result, error) {
	if p == events.PipelineLog {
		return ParseLog(r)
	}
	return ParseCSV(r)
}
