// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package parser

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/tomtom215/killfeed/internal/events"
)

// Deadside.log lines look like
//
//	[2024.03.15-14.30.00:123][ 42]LogSFPS: KillFeed: Alpha (76561198000000001) killed Bravo (76561198000000002) with AK-47 at 120m
var (
	// Strict header: millisecond timestamp and frame counter.
	headerRe = regexp.MustCompile(`^\[(\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}:\d{3})\]\[\s*\d+\](.*)$`)
	// Tolerant header for lines written by older builds without the counter.
	looseHeaderRe = regexp.MustCompile(`^\[(\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}(?::\d{1,6})?)\](?:\[\s*\d*\])?\s*(.*)$`)

	killRe = regexp.MustCompile(
		`^LogSFPS: KillFeed: (.+?) \(([^()]*)\) killed (.+?) \(([^()]*)\) with (.+?)(?: at (\d+(?:\.\d+)?)\s*m)?\s*$`)
	playerRe = regexp.MustCompile(
		`^LogSFPS: Player '(.*?)' \(([^()]*)\) (registered|unregistered|joined|kicked)\b`)
	onlineRe = regexp.MustCompile(
		`^LogOnline: Warning: Player \|(\w+) successfully (registered|unregistered)`)
	missionRe = regexp.MustCompile(
		`^LogSFPS: Mission (\S+) switched to (\w+)`)
	missionNameRe = regexp.MustCompile(`^GA_(.+?)_[Mm]is(?:_(\w+))?$`)
	worldRe       = regexp.MustCompile(
		`^LogSFPS: (AirDrop|HeliCrash|Trader|Convoy)(?: event)? (\S+)(?: (switched to|spawned at|landed at|arrived at) (.+?))?\s*$`)
)

// Body prefixes that commit a line to a grammar. A line carrying one of
// these that fails its pattern is malformed rather than irrelevant.
const (
	killPrefix    = "LogSFPS: KillFeed:"
	missionPrefix = "LogSFPS: Mission "
)

var connectionActions = map[string]string{
	"registered":   events.TypeRegister,
	"unregistered": events.TypeUnregister,
	"joined":       events.TypeJoin,
	"kicked":       events.TypeKick,
}

var worldTypes = map[string]string{
	"AirDrop":   events.TypeAirdrop,
	"HeliCrash": events.TypeHelicrash,
	"Trader":    events.TypeTrader,
	"Convoy":    events.TypeConvoy,
}

// ParseLog parses Deadside.log content. The returned error is only set when
// r itself fails.
func ParseLog(r io.Reader) (Result, error) {
	return scan(r, ParseLogLine)
}

// ParseLogLine parses one log line. Lines outside the recognised grammar
// return (nil, nil).
func ParseLogLine(line string, lineNo int) (*events.RawRecord, error) {
	ts, body, ok := splitHeader(line)
	if !ok {
		return nil, nil
	}

	rec := events.NewRawRecord().Set(events.FieldTimestamp, ts)

	switch {
	case strings.HasPrefix(body, killPrefix):
		m := killRe.FindStringSubmatch(body)
		if m == nil {
			return nil, fmt.Errorf("%w: kill feed line does not match", ErrMalformed)
		}
		rec.Set(events.FieldKillerName, m[1]).
			Set(events.FieldKillerID, m[2]).
			Set(events.FieldVictimName, m[3]).
			Set(events.FieldVictimID, m[4]).
			Set(events.FieldWeapon, m[5])
		if m[6] != "" {
			rec.Set(events.FieldDistance, m[6])
		}

	case playerRe.MatchString(body):
		m := playerRe.FindStringSubmatch(body)
		action := connectionActions[m[3]]
		rec.Set(events.FieldEventType, action).
			Set(events.FieldPlayerName, m[1]).
			Set(events.FieldPlayerID, m[2]).
			Set(events.FieldAction, action)

	case onlineRe.MatchString(body):
		m := onlineRe.FindStringSubmatch(body)
		action := connectionActions[m[2]]
		rec.Set(events.FieldEventType, action).
			Set(events.FieldPlayerID, m[1]).
			Set(events.FieldAction, action)

	case strings.HasPrefix(body, missionPrefix):
		m := missionRe.FindStringSubmatch(body)
		if m == nil {
			return nil, fmt.Errorf("%w: mission line does not match", ErrMalformed)
		}
		location, difficulty := splitMissionName(m[1])
		rec.Set(events.FieldEventType, events.TypeMission).
			Set(events.FieldMissionName, m[1]).
			Set(events.FieldState, m[2]).
			Set(events.FieldLocation, location).
			Set(events.FieldDifficulty, difficulty)

	case worldRe.MatchString(body):
		m := worldRe.FindStringSubmatch(body)
		rec.Set(events.FieldEventType, worldTypes[m[1]]).
			Set(events.FieldEventID, m[2])
		switch m[3] {
		case "":
		case "switched to":
			rec.Set(events.FieldState, m[4])
		default:
			rec.Set(events.FieldLocation, m[4])
		}

	default:
		return nil, nil
	}

	rec.Set(events.FieldLine, lineNo)
	return rec, nil
}

// splitHeader tries the strict header first and the tolerant one second.
func splitHeader(line string) (ts, body string, ok bool) {
	if m := headerRe.FindStringSubmatch(line); m != nil {
		return m[1], strings.TrimSpace(m[2]), true
	}
	if m := looseHeaderRe.FindStringSubmatch(line); m != nil {
		return m[1], strings.TrimSpace(m[2]), true
	}
	return "", "", false
}

// splitMissionName derives location and difficulty from names such as
// GA_Military_Base_Mis_03. Unrecognised names yield empty strings.
func splitMissionName(name string) (location, difficulty string) {
	m := missionNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", ""
	}
	return strings.ReplaceAll(m[1], "_", " "), m[2]
}
