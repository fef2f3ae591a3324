// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package relay

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) HandleEvent(_ context.Context, ev models.Event) (eventstore.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return eventstore.ResultInserted, nil
}

func (s *recordingSink) snapshot() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

func TestTopic(t *testing.T) {
	tests := []struct {
		device string
		want   string
	}{
		{"e00fce68", "collector.events.e00fce68"},
		{"DATACER", "collector.events.DATACER"},
		{"a.b*c>d e", "collector.events.a_b_c_d_e"},
		{"", "collector.events._"},
	}
	for _, tt := range tests {
		if got := Topic("collector.events", tt.device); got != tt.want {
			t.Errorf("Topic(%q) = %q, want %q", tt.device, got, tt.want)
		}
	}
}

func TestPublisher_ForwardsLocalEventsOnly(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermillLogger())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscribe(ctx, "collector.events.D1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p := newPublisher(bus, "collector.events")
	go func() { _ = p.Serve(ctx) }()

	p.Enqueue(models.Event{DeviceID: "D1", Name: "Tank/Level", Data: "upstream copy", Upstream: true})
	p.Enqueue(models.Event{DeviceID: "D1", PublishedAt: "2024-05-01T10:00:00Z", Name: "Tank/Level", Data: `{"generation":1,"noSerie":1}`})

	select {
	case msg := <-msgs:
		msg.Ack()
		var ev models.Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Upstream || ev.Data != `{"generation":1,"noSerie":1}` {
			t.Errorf("forwarded %+v", ev)
		}
		if msg.Metadata.Get(metaDevice) != "D1" {
			t.Errorf("device metadata = %q", msg.Metadata.Get(metaDevice))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	select {
	case msg := <-msgs:
		t.Errorf("unexpected second message %s", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublisher_ClosedDropsEvents(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger())
	p := newPublisher(bus, "collector.events")
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	p.Enqueue(models.Event{DeviceID: "D1"})
	if len(p.queue) != 0 {
		t.Error("closed publisher queued an event")
	}
}

func TestRelay_RoundTripOverEmbeddedNATS(t *testing.T) {
	srv, err := NewEmbeddedServer("127.0.0.1", -1, "")
	if err != nil {
		t.Fatalf("embedded server: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if !srv.IsRunning() {
		t.Fatal("server not running")
	}

	sink := &recordingSink{}
	up, err := NewUpstream(srv.ClientURL(), "collector.events", "", sink)
	if err != nil {
		t.Fatalf("upstream: %v", err)
	}
	defer up.Close()

	pub, err := NewPublisher(srv.ClientURL(), "collector.events")
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = up.Serve(ctx) }()
	go func() { _ = pub.Serve(ctx) }()

	// Core NATS drops messages published before the subscription exists,
	// so keep publishing until one arrives.
	ev := models.Event{DeviceID: "e00fce68", PublishedAt: "2024-05-01T10:00:00Z", Name: "Tank/Level", Data: `{"generation":7,"noSerie":3}`}
	deadline := time.Now().Add(5 * time.Second)
	for len(sink.snapshot()) == 0 && time.Now().Before(deadline) {
		pub.Enqueue(ev)
		time.Sleep(50 * time.Millisecond)
	}

	got := sink.snapshot()
	if len(got) == 0 {
		t.Fatal("no event relayed")
	}
	if !got[0].Upstream {
		t.Error("relayed event not marked upstream")
	}
	if got[0].DeviceID != ev.DeviceID || got[0].Data != ev.Data || got[0].Name != ev.Name {
		t.Errorf("relayed %+v, want %+v", got[0], ev)
	}
}
