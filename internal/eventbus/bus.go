// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package eventbus publishes admitted event documents over Watermill.
//
// Without a NATS URL the bus is an in-process gochannel that local consumers
// subscribe to. With one (or with the embedded server) documents go to a
// JetStream stream on subject killfeed.<kind>, carrying MessageID (server
// id and event fingerprint) as Nats-Msg-Id so JetStream drops re-publishes
// inside its duplicate window.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
	"github.com/tomtom215/killfeed/internal/stats"
)

// TopicPrefix prefixes every topic; the JetStream stream binds TopicPrefix + ">".
const TopicPrefix = "killfeed."

var (
	// ErrClosed is returned by Publish and Subscribe after Close.
	ErrClosed = errors.New("event bus is closed")

	// ErrNoSubscriber is returned by Subscribe on a publish-only bus.
	ErrNoSubscriber = errors.New("event bus has no local subscriber")
)

// Topic returns the topic for documents of kind.
func Topic(kind events.Kind) string {
	return TopicPrefix + string(kind)
}

// Bus implements stats.Publisher.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	cb         *gobreaker.CircuitBreaker[interface{}]
	shutdown   []func() error

	mu     sync.RWMutex
	closed bool
}

// New builds the bus described by cfg. The embedded server, when enabled,
// is started here and stopped by Close.
func New(ctx context.Context, cfg config.BusConfig) (*Bus, error) {
	logger := logging.NewWatermillAdapter()

	url := cfg.NATSURL
	var shutdown []func() error
	if cfg.Embedded {
		srv, err := StartEmbeddedServer(ServerConfig{StoreDir: cfg.StoreDir})
		if err != nil {
			return nil, err
		}
		url = srv.ClientURL()
		shutdown = append(shutdown, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	if url == "" {
		return NewInProcess(), nil
	}

	if err := EnsureStream(ctx, url, StreamConfig{
		Name:            cfg.Stream,
		DuplicateWindow: cfg.DuplicateWindow,
	}); err != nil {
		_ = runAll(shutdown)
		return nil, err
	}

	pub, err := newNATSPublisher(url, logger)
	if err != nil {
		_ = runAll(shutdown)
		return nil, err
	}

	logging.Info().Str("url", url).Str("stream", cfg.Stream).Bool("embedded", cfg.Embedded).Msg("Event bus connected to NATS")
	return newBus(pub, nil, shutdown), nil
}

// NewInProcess returns a gochannel-backed bus that supports Subscribe.
func NewInProcess() *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logging.NewWatermillAdapter())
	return newBus(ch, ch, nil)
}

func newBus(pub message.Publisher, sub message.Subscriber, shutdown []func() error) *Bus {
	cbName := "event-bus"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), float64(to))
		},
	})

	return &Bus{publisher: pub, subscriber: sub, cb: cb, shutdown: shutdown}
}

// MessageID is the JetStream deduplication key for doc. Fingerprints do not
// include the server, and the stream is shared by every server.
func MessageID(doc stats.Document) string {
	return doc.ServerID + ":" + doc.Fingerprint
}

// Publish sends doc to Topic(doc.Kind).
func (b *Bus) Publish(ctx context.Context, doc stats.Document) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	msg := message.NewMessage(doc.ID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set(natsgo.MsgIdHdr, MessageID(doc))
	msg.Metadata.Set("server_id", doc.ServerID)
	msg.Metadata.Set("source", string(doc.Source))
	msg.Metadata.Set("kind", string(doc.Kind))

	topic := Topic(doc.Kind)
	_, err = b.cb.Execute(func() (interface{}, error) {
		return nil, b.publisher.Publish(topic, msg)
	})
	if err != nil {
		metrics.BusPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.BusPublished.WithLabelValues(topic, "success").Inc()
	return nil
}

// Subscribe returns documents of kind published to an in-process bus.
// Consumers must Ack each message.
func (b *Bus) Subscribe(ctx context.Context, kind events.Kind) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.subscriber == nil {
		return nil, ErrNoSubscriber
	}
	return b.subscriber.Subscribe(ctx, Topic(kind))
}

// DecodeDocument unmarshals a published message.
func DecodeDocument(msg *message.Message) (stats.Document, error) {
	var doc stats.Document
	if err := json.Unmarshal(msg.Payload, &doc); err != nil {
		return stats.Document{}, fmt.Errorf("decode document %s: %w", msg.UUID, err)
	}
	return doc, nil
}

// Close stops the publisher and any embedded server.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	// The gochannel subscriber is the publisher itself.
	return errors.Join(b.publisher.Close(), runAll(b.shutdown))
}

func runAll(fns []func() error) error {
	var errs []error
	for _, fn := range fns {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

var _ stats.Publisher = (*Bus)(nil)
