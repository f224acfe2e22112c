// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package cache provides the bounded, time-windowed membership set the
// coordinator uses to remember event fingerprints.
package cache

import (
	"time"
)

// Defaults for NewSeenSet.
const (
	DefaultWindow    = time.Hour
	DefaultHighWater = 10000
	DefaultRetain    = 1000
)

// seenEntry is a node of the insertion-ordered list.
type seenEntry struct {
	key        string
	insertedAt time.Time
	prev       *seenEntry
	next       *seenEntry
}

// SeenSet remembers keys for a retention window measured from insertion.
// Two bounds apply on every insert:
//
//   - entries older than the window expire
//   - above the high-water mark the set is truncated to the most recently
//     inserted retain entries
//
// A hit never refreshes or reorders an entry. SeenSet is not safe for
// concurrent use; callers serialize access.
type SeenSet struct {
	window    time.Duration
	highWater int
	retain    int
	now       func() time.Time

	items map[string]*seenEntry

	// head.next is the newest entry, tail.prev the oldest
	head *seenEntry
	tail *seenEntry

	hits    int64
	misses  int64
	expired int64
	pruned  int64
}

// SeenSetConfig tunes a SeenSet. Zero fields take the defaults.
type SeenSetConfig struct {
	Window    time.Duration
	HighWater int
	Retain    int
	Now       func() time.Time
}

// NewSeenSet creates an empty set.
func NewSeenSet(cfg SeenSetConfig) *SeenSet {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = DefaultHighWater
	}
	if cfg.Retain <= 0 || cfg.Retain > cfg.HighWater {
		cfg.Retain = min(DefaultRetain, cfg.HighWater)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &SeenSet{
		window:    cfg.Window,
		highWater: cfg.HighWater,
		retain:    cfg.Retain,
		now:       cfg.Now,
		items:     make(map[string]*seenEntry),
		head:      &seenEntry{},
		tail:      &seenEntry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// CheckAndAdd reports whether key is already present. When absent the key
// is inserted as the newest entry and bounds are enforced.
func (s *SeenSet) CheckAndAdd(key string) (seen bool) {
	now := s.now()

	if entry, ok := s.items[key]; ok {
		if !s.isExpired(entry, now) {
			s.hits++
			return true
		}
		s.remove(entry)
		s.expired++
	}

	entry := &seenEntry{key: key, insertedAt: now}
	s.pushFront(entry)
	s.items[key] = entry
	s.misses++

	s.expireOlderThan(now)
	if len(s.items) > s.highWater {
		s.truncate()
	}
	return false
}

// Contains reports membership without inserting.
func (s *SeenSet) Contains(key string) bool {
	entry, ok := s.items[key]
	return ok && !s.isExpired(entry, s.now())
}

// Len returns the number of retained keys, including ones that have expired
// but not been swept yet.
func (s *SeenSet) Len() int {
	return len(s.items)
}

// Sweep drops expired entries and returns how many were removed.
func (s *SeenSet) Sweep() int {
	before := s.expired
	s.expireOlderThan(s.now())
	return int(s.expired - before)
}

// SeenStats is a point-in-time view of a SeenSet.
type SeenStats struct {
	Size    int
	Hits    int64
	Misses  int64
	Expired int64
	Pruned  int64
}

// Stats returns counters since creation.
func (s *SeenSet) Stats() SeenStats {
	return SeenStats{
		Size:    len(s.items),
		Hits:    s.hits,
		Misses:  s.misses,
		Expired: s.expired,
		Pruned:  s.pruned,
	}
}

func (s *SeenSet) isExpired(entry *seenEntry, now time.Time) bool {
	return now.Sub(entry.insertedAt) >= s.window
}

// expireOlderThan walks from the oldest entry while entries are expired.
func (s *SeenSet) expireOlderThan(now time.Time) {
	for entry := s.tail.prev; entry != s.head && s.isExpired(entry, now); entry = s.tail.prev {
		s.remove(entry)
		s.expired++
	}
}

// truncate keeps the newest retain entries.
func (s *SeenSet) truncate() {
	for len(s.items) > s.retain {
		s.remove(s.tail.prev)
		s.pruned++
	}
}

func (s *SeenSet) pushFront(entry *seenEntry) {
	entry.prev = s.head
	entry.next = s.head.next
	s.head.next.prev = entry
	s.head.next = entry
}

func (s *SeenSet) remove(entry *seenEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(s.items, entry.key)
}
