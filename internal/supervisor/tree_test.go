// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/logging"
)

func testTree(t *testing.T) *Tree {
	t.Helper()
	return NewTree(logging.NewSlogLogger(), config.SupervisorConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewTree_Defaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), config.SupervisorConfig{})

	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %f, want 5", tree.config.FailureThreshold)
	}
	if tree.config.FailureDecay != 30.0 {
		t.Errorf("FailureDecay = %f, want 30", tree.config.FailureDecay)
	}
	if tree.config.FailureBackoff != 15*time.Second {
		t.Errorf("FailureBackoff = %v, want 15s", tree.config.FailureBackoff)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", tree.config.ShutdownTimeout)
	}
}

func TestTree_StartsEveryLayer(t *testing.T) {
	tree := testTree(t)
	ingest := newMockService("ingest")
	delivery := newMockService("delivery")
	api := newMockService("api")
	tree.AddIngestService(ingest)
	tree.AddDeliveryService(delivery)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "services to start", func() bool {
		return ingest.starts.Load() == 1 && delivery.starts.Load() == 1 && api.starts.Load() == 1
	})

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
}

func TestTree_StopIngestLeavesOthersRunning(t *testing.T) {
	tree := testTree(t)
	poller := newMockService("poller")
	api := newMockService("api")
	token := tree.AddIngestService(poller)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	waitFor(t, "services to start", func() bool {
		return poller.starts.Load() == 1 && api.starts.Load() == 1
	})

	if err := tree.StopIngest(token); err != nil {
		t.Fatalf("StopIngest: %v", err)
	}
	if poller.stops.Load() != 1 {
		t.Error("poller did not stop")
	}
	if api.stops.Load() != 0 {
		t.Error("api stopped with the poller")
	}
}

type flakyService struct {
	mockService
	fails int32
}

func (f *flakyService) Serve(ctx context.Context) error {
	if f.starts.Add(1) <= f.fails {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_RestartsFailingService(t *testing.T) {
	tree := testTree(t)
	flaky := &flakyService{mockService: mockService{name: "flaky"}, fails: 2}
	stable := newMockService("stable")
	tree.AddIngestService(flaky)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	waitFor(t, "restarts", func() bool { return flaky.starts.Load() >= 3 })
	if stable.starts.Load() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.starts.Load())
	}
}
