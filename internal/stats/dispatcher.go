// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// Dispatcher routes admitted events to the Updater by kind, then appends the
// canonical document to the Store, then hands it to the Publisher.
type Dispatcher struct {
	updater   Updater
	store     Store
	publisher Publisher
	now       func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPublisher adds an event bus publisher.
func WithPublisher(p Publisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithClock overrides the ingestion time source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a Dispatcher. store may be nil when documents are not kept.
func NewDispatcher(updater Updater, store Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{updater: updater, store: store, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Validate checks the identifiers the event's kind requires.
func Validate(e *events.Event) error {
	if e.ServerID == "" {
		return fmt.Errorf("%w: server_id", ErrMissingIdentifier)
	}
	switch e.Kind {
	case events.KindKill, events.KindSuicide:
		if e.Kill == nil || e.Kill.VictimID == "" {
			return fmt.Errorf("%w: victim_id", ErrMissingIdentifier)
		}
		if e.Kind == events.KindKill && e.Kill.KillerID == "" {
			return fmt.Errorf("%w: killer_id", ErrMissingIdentifier)
		}
	case events.KindConnection:
		if e.Connection == nil || e.Connection.PlayerID == "" {
			return fmt.Errorf("%w: player_id", ErrMissingIdentifier)
		}
	case events.KindMission:
		if e.Mission == nil || e.Mission.Name == "" {
			return fmt.Errorf("%w: mission_name", ErrMissingIdentifier)
		}
	case events.KindGameEvent, events.KindUnknown:
	default:
		return fmt.Errorf("%w: %q", ErrUnroutable, e.Kind)
	}
	return nil
}

// Dispatch delivers one admitted event. Contract violations drop the event
// with a warning and return an error wrapping ErrMissingIdentifier or
// ErrUnroutable. Unknown events are stored but never reach the Updater.
func (d *Dispatcher) Dispatch(ctx context.Context, e *events.Event) error {
	if e.Kind == "" {
		e.Classify()
	}

	if err := Validate(e); err != nil {
		reason := "unroutable"
		if errors.Is(err, ErrMissingIdentifier) {
			reason = "missing_identifier"
		}
		metrics.EventsDropped.WithLabelValues(string(e.Kind), reason).Inc()
		logging.Warn().
			Err(err).
			Str("server_id", e.ServerID).
			Str("kind", string(e.Kind)).
			Str("pipeline", string(e.Source)).
			Int("line", e.Line).
			Msg("Dropping event")
		return err
	}

	var errs []error
	if err := d.route(ctx, e); err != nil {
		errs = append(errs, fmt.Errorf("update stats: %w", err))
	}

	doc := NewDocument(e, d.now())
	if d.store != nil {
		if err := d.store.AppendEvent(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("append event: %w", err))
		}
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, doc); err != nil {
			// The bus is best effort; stored state is already consistent.
			logging.Warn().Err(err).Str("event_id", doc.ID).Msg("Failed to publish event")
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) route(ctx context.Context, e *events.Event) error {
	switch e.Kind {
	case events.KindKill, events.KindSuicide:
		return d.updater.RecordKill(ctx, killRecord(e))
	case events.KindConnection:
		return d.updater.RecordConnection(ctx, ConnectionRecord{
			ServerID:   e.ServerID,
			PlayerID:   e.Connection.PlayerID,
			PlayerName: e.Connection.PlayerName,
			Action:     connectionAction(e),
			Timestamp:  e.Timestamp,
			Source:     e.Source,
		})
	case events.KindMission:
		return d.updater.RecordMission(ctx, MissionRecord{
			ServerID:   e.ServerID,
			Name:       e.Mission.Name,
			Difficulty: e.Mission.Difficulty,
			Location:   e.Mission.Location,
			State:      e.Mission.State,
			Timestamp:  e.Timestamp,
			Source:     e.Source,
		})
	case events.KindGameEvent:
		rec := GameEventRecord{
			ServerID:  e.ServerID,
			Type:      e.Type,
			Timestamp: e.Timestamp,
			Source:    e.Source,
		}
		if e.World != nil {
			rec.EventID = e.World.EventID
			rec.Location = e.World.Location
			rec.State = e.World.State
		}
		return d.updater.RecordGameEvent(ctx, rec)
	default:
		logging.Debug().
			Str("server_id", e.ServerID).
			Str("event_type", e.Type).
			Msg("Unknown event stored without stats update")
		return nil
	}
}

func killRecord(e *events.Event) KillRecord {
	k := e.Kill
	rec := KillRecord{
		ServerID:      e.ServerID,
		KillerID:      k.KillerID,
		KillerName:    k.KillerName,
		VictimID:      k.VictimID,
		VictimName:    k.VictimName,
		Weapon:        e.Weapon,
		Distance:      k.Distance,
		KillerConsole: k.KillerConsole,
		VictimConsole: k.VictimConsole,
		Timestamp:     e.Timestamp,
		IsSuicide:     e.IsSuicide(),
		Source:        e.Source,
	}
	if rec.IsSuicide && rec.KillerID == "" {
		rec.KillerID = rec.VictimID
		rec.KillerName = rec.VictimName
	}
	return rec
}

func connectionAction(e *events.Event) string {
	if e.Connection.Action != "" {
		return e.Connection.Action
	}
	return e.Type
}
