// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package cache

import (
	"strconv"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSet(clock *fakeClock) *SeenSet {
	return NewSeenSet(SeenSetConfig{Now: clock.Now})
}

func TestSeenSet_CheckAndAdd(t *testing.T) {
	s := newTestSet(&fakeClock{t: time.Unix(0, 0)})

	if s.CheckAndAdd("a") {
		t.Error("first insert reported seen")
	}
	if !s.CheckAndAdd("a") {
		t.Error("second insert not reported seen")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	stats := s.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestSeenSet_WindowExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := newTestSet(clock)

	s.CheckAndAdd("a")
	clock.Advance(30 * time.Minute)
	s.CheckAndAdd("b")

	clock.Advance(29 * time.Minute)
	if !s.Contains("a") {
		t.Error("a expired before the window")
	}

	clock.Advance(time.Minute)
	if s.Contains("a") {
		t.Error("a still present after the window")
	}
	if s.CheckAndAdd("a") {
		t.Error("expired key reported seen")
	}
	if !s.Contains("b") {
		t.Error("b should still be retained")
	}
}

func TestSeenSet_HitDoesNotRefresh(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := newTestSet(clock)

	s.CheckAndAdd("a")
	clock.Advance(59 * time.Minute)
	if !s.CheckAndAdd("a") {
		t.Fatal("expected hit")
	}
	clock.Advance(time.Minute)
	if s.Contains("a") {
		t.Error("hit must not extend the retention window")
	}
}

func TestSeenSet_HighWaterTruncation(t *testing.T) {
	s := newTestSet(&fakeClock{t: time.Unix(0, 0)})

	var last string
	for i := 0; i <= DefaultHighWater; i++ {
		last = "fp-" + strconv.Itoa(i)
		s.CheckAndAdd(last)
	}

	if s.Len() != DefaultRetain {
		t.Errorf("Len() = %d, want %d", s.Len(), DefaultRetain)
	}
	if !s.Contains(last) {
		t.Error("newest key evicted by truncation")
	}
	if s.Contains("fp-0") {
		t.Error("oldest key survived truncation")
	}
	if got := s.Stats().Pruned; got != int64(DefaultHighWater+1-DefaultRetain) {
		t.Errorf("Pruned = %d", got)
	}
}

func TestSeenSet_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := NewSeenSet(SeenSetConfig{Window: time.Minute, Now: clock.Now})

	s.CheckAndAdd("a")
	s.CheckAndAdd("b")
	clock.Advance(2 * time.Minute)

	if n := s.Sweep(); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestNewSeenSet_Defaults(t *testing.T) {
	s := NewSeenSet(SeenSetConfig{HighWater: 10, Retain: 50})
	if s.window != DefaultWindow || s.highWater != 10 || s.retain != 10 {
		t.Errorf("window=%v highWater=%d retain=%d", s.window, s.highWater, s.retain)
	}
}
