// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/collector/internal/cloud"
	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

type fakeStream struct {
	events chan models.Event
	err    error
	closed atomic.Bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan models.Event)}
}

func (s *fakeStream) Events() <-chan models.Event { return s.events }
func (s *fakeStream) Err() error                  { return s.err }
func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	calls   atomic.Int32
}

func (f *fakeSource) Connect(context.Context) (cloud.Stream, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSource) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

type fakeSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeSink) HandleEvent(_ context.Context, ev models.Event) (eventstore.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return eventstore.ResultInserted, nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeReplayer struct{ passes atomic.Int32 }

func (f *fakeReplayer) RequestAllDeviceReplay(context.Context) error {
	f.passes.Add(1)
	return nil
}

type fakeEscalator struct {
	mu     sync.Mutex
	code   int
	reason string
	calls  int
}

func (f *fakeEscalator) Trigger(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code, f.reason = code, reason
	f.calls++
}

func serveAsync(ctx context.Context, s *StreamService) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
	return nil
}

func TestStreamService_ForwardsEventsAndReplaysOnConnect(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	rep := &fakeReplayer{}
	svc := NewStreamService(src, sink, StreamOptions{InactivityTimeout: time.Second, Replayer: rep})

	if svc.State() != StateDisconnected {
		t.Fatalf("initial state = %s", svc.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(ctx, svc)

	waitFor(t, "connect", func() bool { return svc.State() == StateConnected && src.last() != nil })
	stream := src.last()
	stream.events <- models.Event{DeviceID: "D1", Name: "Tank/Level", Data: `{"generation":1,"noSerie":1}`}
	stream.events <- models.Event{DeviceID: "D1", Name: "spark/status", Data: "online"}

	waitFor(t, "events", func() bool { return sink.count() == 2 })
	waitFor(t, "replay pass", func() bool { return rep.passes.Load() == 1 })
	if testutil.ToFloat64(metrics.StreamConnected) != 1 {
		t.Error("stream gauge not set while connected")
	}

	cancel()
	if err := wait(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
	if !stream.closed.Load() {
		t.Error("stream not closed")
	}
	if svc.State() != StateDisconnected {
		t.Errorf("state after stop = %s", svc.State())
	}
}

func TestStreamService_InactivityReconnects(t *testing.T) {
	src := &fakeSource{}
	svc := NewStreamService(src, &fakeSink{}, StreamOptions{InactivityTimeout: 30 * time.Millisecond, Policy: PolicyReconnect})
	before := testutil.ToFloat64(metrics.StreamDisconnects.WithLabelValues("inactivity"))

	err := wait(t, serveAsync(context.Background(), svc))
	if !errors.Is(err, ErrInactivity) {
		t.Fatalf("Serve = %v, want ErrInactivity", err)
	}
	if !src.last().closed.Load() {
		t.Error("silent stream not aborted")
	}
	if d := testutil.ToFloat64(metrics.StreamDisconnects.WithLabelValues("inactivity")) - before; d != 1 {
		t.Errorf("inactivity disconnect delta = %v", d)
	}
}

func TestStreamService_TrafficResetsWatchdog(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	svc := NewStreamService(src, sink, StreamOptions{InactivityTimeout: 80 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := serveAsync(ctx, svc)
	waitFor(t, "connect", func() bool { return src.last() != nil })

	// Keep the stream busy for well past one timeout window.
	for i := 0; i < 6; i++ {
		time.Sleep(40 * time.Millisecond)
		select {
		case src.last().events <- models.Event{DeviceID: "D1", Name: "spark/timeout"}:
		case err := <-done:
			t.Fatalf("Serve returned while traffic flowed: %v", err)
		}
	}

	if err := wait(t, done); !errors.Is(err, ErrInactivity) {
		t.Errorf("Serve = %v, want ErrInactivity once traffic stops", err)
	}
	if sink.count() != 6 {
		t.Errorf("forwarded %d events, want 6", sink.count())
	}
}

func TestStreamService_StreamEndings(t *testing.T) {
	tests := []struct {
		name      string
		streamErr error
		wantIs    error
	}{
		{"clean end", cloud.ErrStreamEnded, ErrStreamClosed},
		{"read error", errors.New("connection reset"), ErrStreamClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			svc := NewStreamService(src, &fakeSink{}, StreamOptions{InactivityTimeout: time.Second})
			done := serveAsync(context.Background(), svc)

			waitFor(t, "connect", func() bool { return src.last() != nil })
			stream := src.last()
			stream.err = tt.streamErr
			close(stream.events)

			if err := wait(t, done); !errors.Is(err, tt.wantIs) {
				t.Errorf("Serve = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestStreamService_ConnectError(t *testing.T) {
	src := &fakeSource{err: errors.New("401 unauthorized")}
	svc := NewStreamService(src, &fakeSink{}, StreamOptions{InactivityTimeout: time.Second})

	err := wait(t, serveAsync(context.Background(), svc))
	if err == nil || svc.State() != StateDisconnected {
		t.Errorf("Serve = %v, state %s", err, svc.State())
	}
	if svc.Connections() != 0 {
		t.Errorf("connections = %d", svc.Connections())
	}
}

func TestStreamService_ShutdownPolicy(t *testing.T) {
	src := &fakeSource{}
	esc := &fakeEscalator{}
	svc := NewStreamService(src, &fakeSink{}, StreamOptions{
		InactivityTimeout: 20 * time.Millisecond,
		Policy:            PolicyShutdown,
		Shutdown:          esc,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(ctx, svc)

	waitFor(t, "escalation", func() bool {
		esc.mu.Lock()
		defer esc.mu.Unlock()
		return esc.calls == 1
	})
	select {
	case err := <-done:
		t.Fatalf("Serve returned before shutdown cancelled it: %v", err)
	default:
	}
	esc.mu.Lock()
	code := esc.code
	esc.mu.Unlock()
	if code != ExitPolicy {
		t.Errorf("exit code = %d, want %d", code, ExitPolicy)
	}

	cancel()
	if err := wait(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v", err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("reconnected %d times under shutdown policy", src.calls.Load()-1)
	}
}

func TestState_String(t *testing.T) {
	for st, want := range map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
	} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
