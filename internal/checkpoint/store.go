// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package checkpoint persists pipeline cursors and per-server last-checked
// times in BadgerDB so a restart resumes where the pollers left off.
//
// Seen fingerprints are not persisted. After a restart the cursors keep old
// records out of the pollers' pre-filter, and the lookback window bounds what
// is re-read.
//
// Keys:
//
//	cursor:<pipeline>:<server_id>   newest admitted record timestamp
//	checked:<pipeline>:<server_id>  newest successfully processed file mod time
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/killfeed/internal/coordinator"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/logging"
)

const (
	prefixCursor  = "cursor:"
	prefixChecked = "checked:"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("checkpoint store is closed")

// entry is the stored value for every key.
type entry struct {
	At      time.Time `json:"at"`
	SavedAt time.Time `json:"saved_at"`
}

// Store is a BadgerDB-backed checkpoint store.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	// Checkpoints are a few hundred bytes; 16MB is the smallest sane table size.
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 16 << 20
	opts.NumCompactors = 2

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", path).Msg("Checkpoint store opened")
	return &Store{db: db}, nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func key(prefix string, p events.Pipeline, serverID string) []byte {
	return []byte(prefix + string(p) + ":" + serverID)
}

// SaveCursors writes every cursor in c.
func (s *Store) SaveCursors(ctx context.Context, c coordinator.Cursors) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.db.Update(func(txn *badger.Txn) error {
		for p, servers := range c {
			for id, ts := range servers {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := setEntry(txn, key(prefixCursor, p, id), entry{At: ts.UTC(), SavedAt: now}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// LoadCursors reads all stored cursors.
func (s *Store) LoadCursors(ctx context.Context) (coordinator.Cursors, error) {
	out := make(coordinator.Cursors)
	err := s.scan(ctx, prefixCursor, func(p events.Pipeline, serverID string, e entry) {
		if out[p] == nil {
			out[p] = make(map[string]time.Time)
		}
		out[p][serverID] = e.At
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveLastChecked writes the last-checked times of one pipeline.
func (s *Store) SaveLastChecked(ctx context.Context, p events.Pipeline, checked map[string]time.Time) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.db.Update(func(txn *badger.Txn) error {
		for id, ts := range checked {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := setEntry(txn, key(prefixChecked, p, id), entry{At: ts.UTC(), SavedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadLastChecked reads the last-checked times of one pipeline.
func (s *Store) LoadLastChecked(ctx context.Context, p events.Pipeline) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	err := s.scan(ctx, prefixChecked, func(got events.Pipeline, serverID string, e entry) {
		if got == p {
			out[serverID] = e.At
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteServer removes every checkpoint of serverID.
func (s *Store) DeleteServer(ctx context.Context, serverID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range []string{prefixCursor, prefixChecked} {
			for _, p := range []events.Pipeline{events.PipelineCSV, events.PipelineLog} {
				if err := ctx.Err(); err != nil {
					return err
				}
				err := txn.Delete(key(prefix, p, serverID))
				if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) scan(ctx context.Context, prefix string, fn func(events.Pipeline, string, entry)) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), prefix)
			p, serverID, ok := strings.Cut(rest, ":")
			if !ok {
				continue
			}

			var e entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable checkpoint")
				continue
			}
			fn(events.Pipeline(p), serverID, e)
		}
		return nil
	})
}

func setEntry(txn *badger.Txn, k []byte, e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return txn.SetEntry(badger.NewEntry(k, data))
}

// Close closes the store, giving up after 30 seconds.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Checkpoint store closed")
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("badgerdb close timeout after 30s")
	}
}
