// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/stats"
)

func testDocument() stats.Document {
	e := &events.Event{
		Kind:      events.KindKill,
		Type:      events.TypeKill,
		ServerID:  "7020",
		Timestamp: time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
		Source:    events.PipelineLog,
		Weapon:    "AK-74",
		Kill:      &events.KillPayload{KillerID: "A", KillerName: "Alpha", VictimID: "B", VictimName: "Bravo"},
	}
	return stats.NewDocument(e, time.Now())
}

func TestTopic(t *testing.T) {
	if got := Topic(events.KindMission); got != "killfeed.mission" {
		t.Errorf("Topic() = %q, want killfeed.mission", got)
	}
}

func TestMessageID_ScopedByServer(t *testing.T) {
	a := testDocument()
	b := testDocument()
	b.ServerID = "8080"

	if a.Fingerprint != b.Fingerprint {
		t.Fatalf("fingerprints differ: %q vs %q", a.Fingerprint, b.Fingerprint)
	}
	if MessageID(a) == MessageID(b) {
		t.Errorf("MessageID() = %q for both servers", MessageID(a))
	}
	if MessageID(a) != MessageID(testDocument()) {
		t.Error("MessageID() not stable for the same server and event")
	}
}

func TestInProcess_PublishSubscribe(t *testing.T) {
	bus := NewInProcess()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgs, err := bus.Subscribe(ctx, events.KindKill)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	doc := testDocument()
	if err := bus.Publish(ctx, doc); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		got, err := DecodeDocument(msg)
		if err != nil {
			t.Fatalf("DecodeDocument() error = %v", err)
		}
		if got.ID != doc.ID || got.Fingerprint != doc.Fingerprint {
			t.Errorf("got %s/%s, want %s/%s", got.ID, got.Fingerprint, doc.ID, doc.Fingerprint)
		}
		if got, want := msg.Metadata.Get(natsgo.MsgIdHdr), "7020:"+doc.Fingerprint; got != want {
			t.Errorf("Nats-Msg-Id = %q, want %q", got, want)
		}
		if msg.Metadata.Get("server_id") != "7020" || msg.Metadata.Get("source") != "log" {
			t.Errorf("metadata = %v", msg.Metadata)
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestInProcess_OtherKindNotDelivered(t *testing.T) {
	bus := NewInProcess()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, events.KindMission)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := bus.Publish(ctx, testDocument()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-msgs:
		t.Fatalf("unexpected message on mission topic: %s", msg.UUID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClosed(t *testing.T) {
	bus := NewInProcess()
	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := bus.Publish(context.Background(), testDocument()); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after close = %v, want ErrClosed", err)
	}
	if _, err := bus.Subscribe(context.Background(), events.KindKill); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after close = %v, want ErrClosed", err)
	}
}

func TestNew_InProcessWithoutURL(t *testing.T) {
	bus, err := New(context.Background(), config.BusConfig{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer bus.Close()
	if bus.subscriber == nil {
		t.Error("bus without NATS URL should be in-process")
	}
}

func TestEnsureStream_RequiresName(t *testing.T) {
	if err := EnsureStream(context.Background(), "nats://127.0.0.1:1", StreamConfig{}); err == nil {
		t.Error("EnsureStream() without name succeeded")
	}
}

func TestNATS_DeduplicatesByFingerprint(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}

	srv, err := StartEmbeddedServer(ServerConfig{StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("StartEmbeddedServer() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bus, err := New(ctx, config.BusConfig{
		Enabled:         true,
		NATSURL:         srv.ClientURL(),
		Stream:          "KILLFEED_TEST",
		DuplicateWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer bus.Close()

	if _, err := bus.Subscribe(ctx, events.KindKill); !errors.Is(err, ErrNoSubscriber) {
		t.Errorf("Subscribe() on NATS bus = %v, want ErrNoSubscriber", err)
	}

	doc := testDocument()
	for i := 0; i < 2; i++ {
		if err := bus.Publish(ctx, doc); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
	}
	other := testDocument()
	other.Fingerprint = "different"
	if err := bus.Publish(ctx, other); err != nil {
		t.Fatalf("Publish(other) error = %v", err)
	}
	// Same fingerprint reported by another server is a separate message.
	otherServer := testDocument()
	otherServer.ID = "doc-other-server"
	otherServer.ServerID = "8080"
	if err := bus.Publish(ctx, otherServer); err != nil {
		t.Fatalf("Publish(otherServer) error = %v", err)
	}

	nc, err := natsgo.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	stream, err := js.Stream(ctx, "KILLFEED_TEST")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.State.Msgs != 3 {
		t.Errorf("stream messages = %d, want 3 (repeat fingerprint dropped)", info.State.Msgs)
	}
}
