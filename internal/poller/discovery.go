// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package poller

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/paths"
	"github.com/tomtom215/killfeed/internal/transfer"
)

// discoverFunc returns the absolute remote paths of candidate files.
type discoverFunc func(ctx context.Context, client transfer.Client, server config.ServerConfig) ([]string, error)

// Depth of the last-resort log search below "/".
const recursiveSearchDepth = 2

// searchDirs puts an absolute configured path ahead of the derived ones.
func searchDirs(server config.ServerConfig, derived []string) []string {
	if strings.HasPrefix(server.SFTPPath, "/") {
		return []string{path.Clean(server.SFTPPath)}
	}
	return derived
}

// logFileRegexp anchors pattern at the start of the file name.
func logFileRegexp(server config.ServerConfig) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + server.EffectiveLogPattern() + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile log pattern: %w", err)
	}
	return re, nil
}

func discoverLog(ctx context.Context, client transfer.Client, server config.ServerConfig) ([]string, error) {
	re, err := logFileRegexp(server)
	if err != nil {
		return nil, err
	}

	dirs := searchDirs(server, paths.LogSearchDirs(server.Host(), server.PathServerID()))
	for _, dir := range dirs {
		names, err := listDir(ctx, client, dir)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, name := range names {
			if re.MatchString(name) {
				found = append(found, path.Join(dir, name))
			}
		}
		if len(found) > 0 {
			return found, nil
		}
	}

	logging.Debug().Str("server_id", server.ServerID).Msg("No log file in search dirs, searching recursively")
	return findRecursive(ctx, client, "/", re, recursiveSearchDepth)
}

func discoverCSV(ctx context.Context, client transfer.Client, server config.ServerConfig) ([]string, error) {
	dirs := searchDirs(server, paths.CSVSearchDirs(server.Host(), server.PathServerID(), server.WorldDir))
	for _, dir := range dirs {
		names, err := listDir(ctx, client, dir)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, name := range names {
			full := path.Join(dir, name)
			switch {
			case isCSV(name):
				found = append(found, full)
			case strings.HasPrefix(name, "world_"):
				info, err := client.Stat(ctx, full)
				if err != nil || !info.IsDir {
					continue
				}
				sub, err := listDir(ctx, client, full)
				if err != nil {
					return nil, err
				}
				for _, s := range sub {
					if isCSV(s) {
						found = append(found, path.Join(full, s))
					}
				}
			}
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}

func isCSV(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}

// listDir returns nil for a missing directory.
func listDir(ctx context.Context, client transfer.Client, dir string) ([]string, error) {
	names, err := client.ListFiles(ctx, dir)
	if errors.Is(err, transfer.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return names, nil
}

// findRecursive returns the first directory's matches walking breadth first.
// Entries that cannot be listed are skipped.
func findRecursive(ctx context.Context, client transfer.Client, root string, re *regexp.Regexp, depth int) ([]string, error) {
	level := []string{root}
	for d := 0; d <= depth && len(level) > 0; d++ {
		var next []string
		for _, dir := range level {
			names, err := listDir(ctx, client, dir)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			var found []string
			for _, name := range names {
				full := path.Join(dir, name)
				if re.MatchString(name) {
					found = append(found, full)
					continue
				}
				if path.Ext(name) == "" {
					next = append(next, full)
				}
			}
			if len(found) > 0 {
				return found, nil
			}
		}
		level = next
	}
	return nil, nil
}
