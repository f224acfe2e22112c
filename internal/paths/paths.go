// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package paths derives the remote directory layout of a Deadside game
// server as exposed by the hosting provider's SFTP root:
//
//	/<host>_<serverID>/Logs/Deadside.log
//	/<host>_<serverID>/actual1/deathlogs[/<worldDir>]/*.csv
//
// All functions are pure and never fail.
package paths

import (
	"path"
	"strings"
)

const (
	// DefaultHost replaces an empty hostname.
	DefaultHost = "server"

	// LogFileName is the rolling game log inside LogDir.
	LogFileName = "Deadside.log"

	logsDir      = "Logs"
	deathlogsDir = "actual1/deathlogs"
)

// CleanHost strips a ":port" suffix and defaults an empty host to "server".
func CleanHost(host string) string {
	host = strings.TrimSpace(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return DefaultHost
	}
	return host
}

// BaseDir returns "/" + CleanHost(host) + "_" + serverID.
func BaseDir(host, serverID string) string {
	return "/" + CleanHost(host) + "_" + serverID
}

// LogDir returns BaseDir/Logs.
func LogDir(host, serverID string) string {
	return path.Join(BaseDir(host, serverID), logsDir)
}

// LogFile returns LogDir/Deadside.log.
func LogFile(host, serverID string) string {
	return path.Join(LogDir(host, serverID), LogFileName)
}

// CSVDir returns BaseDir/actual1/deathlogs, optionally suffixed by worldDir.
func CSVDir(host, serverID, worldDir string) string {
	dir := path.Join(BaseDir(host, serverID), deathlogsDir)
	if worldDir = strings.Trim(worldDir, "/"); worldDir != "" {
		dir = path.Join(dir, worldDir)
	}
	return dir
}

// LogSearchDirs lists the directories probed for Deadside.log when the
// canonical LogDir does not exist, in probe order and without duplicates.
func LogSearchDirs(host, serverID string) []string {
	candidates := []string{
		LogDir(host, serverID),
		"/" + logsDir,
		"/" + serverID + "/" + logsDir,
		"/logs",
	}
	return dedupe(candidates)
}

// CSVSearchDirs lists the directories probed for death-log CSVs.
func CSVSearchDirs(host, serverID, worldDir string) []string {
	candidates := []string{
		CSVDir(host, serverID, worldDir),
		CSVDir(host, serverID, ""),
		"/" + serverID + "/" + deathlogsDir,
	}
	return dedupe(candidates)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Layout bundles the resolved paths of one server.
type Layout struct {
	Base    string
	LogDir  string
	LogFile string
	CSVDir  string
}

// Resolve computes the Layout for host, serverID and an optional worldDir.
func Resolve(host, serverID, worldDir string) Layout {
	return Layout{
		Base:    BaseDir(host, serverID),
		LogDir:  LogDir(host, serverID),
		LogFile: LogFile(host, serverID),
		CSVDir:  CSVDir(host, serverID, worldDir),
	}
}
