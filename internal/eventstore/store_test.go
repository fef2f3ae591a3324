// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package eventstore

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/database"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
	"github.com/tomtom215/collector/internal/registry"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

var testDBSemaphore = make(chan struct{}, 1)

func setupStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB"})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, registry.New(), nil, Options{}), db
}

func event(device, data string) models.Event {
	return models.Event{
		DeviceID:    device,
		PublishedAt: "2024-05-01T10:00:00.000Z",
		Name:        "sensor/reading",
		Data:        data,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) listen(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func queryAll(t *testing.T, s *Store, f models.QueryFilter) []models.RawEvent {
	t.Helper()
	var out []models.RawEvent
	if _, err := s.Query(context.Background(), f, func(r *models.RawEvent) error {
		out = append(out, *r)
		return nil
	}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	return out
}

func TestHandleEvent_Idempotent(t *testing.T) {
	s, db := setupStore(t)
	rec := &recorder{}
	s.OnEvent(rec.listen)
	ctx := context.Background()

	ev := event("D1", `{"generation":5,"noSerie":10}`)
	res, err := s.HandleEvent(ctx, ev)
	if err != nil || res != ResultInserted {
		t.Fatalf("first HandleEvent = (%v, %v), want inserted", res, err)
	}
	res, err = s.HandleEvent(ctx, ev)
	if err != nil || res != ResultDuplicate {
		t.Fatalf("second HandleEvent = (%v, %v), want duplicate", res, err)
	}

	n, err := db.CountEvents(ctx, "D1")
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("stored rows = %d, want 1", n)
	}
	if rec.count() != 1 {
		t.Errorf("notifications = %d, want 1", rec.count())
	}
}

func TestHandleEvent_DuplicateBypassesCacheAcrossStores(t *testing.T) {
	s, db := setupStore(t)
	ctx := context.Background()
	ev := event("D1", `{"generation":5,"noSerie":10}`)

	if _, err := s.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	// A fresh store over the same table has an empty key cache, so the
	// unique constraint alone must catch the duplicate.
	other := New(db, nil, nil, Options{})
	rec := &recorder{}
	other.OnEvent(rec.listen)
	res, err := other.HandleEvent(ctx, ev)
	if err != nil || res != ResultDuplicate {
		t.Fatalf("HandleEvent on second store = (%v, %v), want duplicate", res, err)
	}
	if rec.count() != 0 {
		t.Errorf("duplicate notified %d listeners", rec.count())
	}
}

func TestHandleEvent_ConcurrentSameKey(t *testing.T) {
	s, db := setupStore(t)
	rec := &recorder{}
	s.OnEvent(rec.listen)
	ctx := context.Background()

	// The live stream and a replay resend race on the same key.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.HandleEvent(ctx, event("D1", `{"generation":5,"noSerie":10}`))
		}()
	}
	wg.Wait()

	n, err := db.CountEvents(ctx, "D1")
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 1 || rec.count() != 1 {
		t.Errorf("rows = %d, notifications = %d, want 1 and 1", n, rec.count())
	}
}

func TestHandleEvent_SingleQuotedPayload(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	if res, _ := s.HandleEvent(ctx, event("D1", `{'generation':7,'noSerie':1,'eName':'Tank/Level'}`)); res != ResultInserted {
		t.Fatalf("result = %v, want inserted", res)
	}
	rows := queryAll(t, s, models.QueryFilter{Device: strp("D1"), Generation: i64(7)})
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].RawData != `{"generation":7,"noSerie":1,"eName":"Tank/Level"}` {
		t.Errorf("stored data = %s", rows[0].RawData)
	}
}

func TestHandleEvent_Unparseable(t *testing.T) {
	s, db := setupStore(t)
	rec := &recorder{}
	s.OnEvent(rec.listen)
	ctx := context.Background()

	tests := []struct {
		name string
		data string
	}{
		{"not json", "garbage"},
		{"missing serial", `{"generation":5}`},
		{"missing generation", `{"noSerie":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.HandleEvent(ctx, event("D2", tt.data))
			if err != nil || res != ResultUnparseable {
				t.Fatalf("HandleEvent = (%v, %v), want unparseable", res, err)
			}
		})
	}

	// Unparseable rows never deduplicate.
	if res, _ := s.HandleEvent(ctx, event("D2", "garbage")); res != ResultUnparseable {
		t.Fatalf("repeat unparseable = %v", res)
	}

	n, err := db.CountEvents(ctx, "D2")
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 4 {
		t.Errorf("stored rows = %d, want 4", n)
	}
	if rec.count() != 4 {
		t.Errorf("notifications = %d, want 4", rec.count())
	}

	if rows := queryAll(t, s, models.QueryFilter{Device: strp("D2"), Generation: i64(5)}); len(rows) != 0 {
		t.Errorf("generation query returned %d unparseable rows", len(rows))
	}
	if ok, _ := s.ContainsEvent(ctx, "D2", 5, 0); ok {
		t.Error("ContainsEvent matched an unparseable row")
	}
}

func TestHandleEvent_ControlEventsDropped(t *testing.T) {
	s, db := setupStore(t)
	rec := &recorder{}
	s.OnEvent(rec.listen)
	ctx := context.Background()

	for _, name := range []string{"spark/status", "spark/flash/status", "particle/device/updates/pending", "spark/device/diagnostics/update"} {
		ev := event("D1", "online")
		ev.Name = name
		if res, err := s.HandleEvent(ctx, ev); err != nil || res != ResultControl {
			t.Errorf("HandleEvent(%s) = (%v, %v), want control", name, res, err)
		}
	}
	if n, _ := db.CountEvents(ctx, "D1"); n != 0 {
		t.Errorf("control events stored %d rows", n)
	}
	if rec.count() != 0 {
		t.Errorf("control events notified %d times", rec.count())
	}
}

func TestHandleEvent_DuplicateKinds(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	base := event("D3", `{"generation":1,"noSerie":1}`)
	if _, err := s.HandleEvent(ctx, base); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	upstream := base
	upstream.Upstream = true
	live := base
	live.Name = "sensor/live/reading"

	tests := []struct {
		name string
		ev   models.Event
		kind string
	}{
		{"upstream", upstream, "upstream"},
		{"live", live, "live"},
		{"replay", base, "replay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(metrics.DuplicateEvents.WithLabelValues(tt.kind))
			if res, _ := s.HandleEvent(ctx, tt.ev); res != ResultDuplicate {
				t.Fatalf("result = %v, want duplicate", res)
			}
			after := testutil.ToFloat64(metrics.DuplicateEvents.WithLabelValues(tt.kind))
			if after-before != 1 {
				t.Errorf("duplicate[%s] delta = %v, want 1", tt.kind, after-before)
			}
		})
	}
}

func TestListeners_OrderAndUnsubscribe(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	var order []string
	s.OnEvent(func(models.Event) { order = append(order, "a") })
	sub := s.OnEvent(func(models.Event) { order = append(order, "b") })
	s.OnEvent(func(models.Event) { panic("boom") })
	s.OnEvent(func(models.Event) { order = append(order, "c") })

	if _, err := s.HandleEvent(ctx, event("D1", `{"generation":1,"noSerie":1}`)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe()
	if _, err := s.HandleEvent(ctx, event("D1", `{"generation":1,"noSerie":2}`)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	want := []string{"a", "b", "c", "a", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestQuery_OrderingThroughStore(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	for _, d := range []string{
		`{"generation":2,"noSerie":1}`,
		`{"generation":1,"noSerie":2}`,
		`{"generation":1,"noSerie":1}`,
		`{"generation":2,"noSerie":2}`,
	} {
		if _, err := s.HandleEvent(ctx, event("D1", d)); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	}

	asc := queryAll(t, s, models.QueryFilter{Device: strp("D1")})
	wantAsc := [][2]int64{{1, 1}, {1, 2}, {2, 1}, {2, 2}}
	if len(asc) != len(wantAsc) {
		t.Fatalf("ascending rows = %d", len(asc))
	}
	for i, w := range wantAsc {
		if *asc[i].GenerationID != w[0] || *asc[i].SerialNo != w[1] {
			t.Errorf("asc[%d] = (%d,%d), want %v", i, *asc[i].GenerationID, *asc[i].SerialNo, w)
		}
	}

	limit := 2
	desc := queryAll(t, s, models.QueryFilter{Device: strp("D1"), Limit: &limit})
	wantDesc := [][2]int64{{2, 2}, {2, 1}}
	if len(desc) != 2 {
		t.Fatalf("limited rows = %d, want 2", len(desc))
	}
	for i, w := range wantDesc {
		if *desc[i].GenerationID != w[0] || *desc[i].SerialNo != w[1] {
			t.Errorf("desc[%d] = (%d,%d), want %v", i, *desc[i].GenerationID, *desc[i].SerialNo, w)
		}
	}
}

func TestFilterProblems(t *testing.T) {
	tests := []struct {
		name string
		f    models.QueryFilter
		want int
	}{
		{"no after", models.QueryFilter{}, 0},
		{"after alone", models.QueryFilter{After: i64(3)}, 2},
		{"after with device", models.QueryFilter{After: i64(3), Device: strp("D1")}, 1},
		{"after complete", models.QueryFilter{After: i64(3), Device: strp("D1"), Generation: i64(1)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterProblems(tt.f); len(got) != tt.want {
				t.Errorf("FilterProblems() = %v, want %d problems", got, tt.want)
			}
		})
	}
}

type failingBackend struct {
	Backend
	err error
}

func (f failingBackend) InsertRawEvent(context.Context, *database.NewRawEvent) (bool, error) {
	return false, f.err
}

type fakeDeadLetters struct {
	events []models.Event
	causes []error
}

func (f *fakeDeadLetters) Record(_ context.Context, ev models.Event, cause error) (string, error) {
	f.events = append(f.events, ev)
	f.causes = append(f.causes, cause)
	return "dl-1", nil
}

func TestHandleEvent_StorageFailure(t *testing.T) {
	driverErr := errors.New("disk I/O error")
	dead := &fakeDeadLetters{}
	s := New(failingBackend{err: driverErr}, nil, dead, Options{})
	rec := &recorder{}
	s.OnEvent(rec.listen)

	for _, data := range []string{`{"generation":1,"noSerie":1}`, "garbage"} {
		res, err := s.HandleEvent(context.Background(), event("D1", data))
		if res != ResultFailed {
			t.Errorf("result = %v, want failed", res)
		}
		if !errors.Is(err, ErrStorageWrite) || !errors.Is(err, driverErr) {
			t.Errorf("err = %v, want ErrStorageWrite wrapping the driver error", err)
		}
	}

	if len(dead.events) != 2 {
		t.Fatalf("dead letters = %d, want 2", len(dead.events))
	}
	if !errors.Is(dead.causes[0], driverErr) {
		t.Errorf("dead letter cause = %v", dead.causes[0])
	}
	if rec.count() != 0 {
		t.Errorf("failed writes notified %d listeners", rec.count())
	}
}

func TestDevString(t *testing.T) {
	s := New(failingBackend{}, nil, nil, Options{})
	if got := s.DevString("abc"); got != "? (abc)" {
		t.Errorf("unknown DevString = %q", got)
	}
	s.SetAttributes("abc", registry.Attributes{ID: "abc", Name: "pump"})
	if got := s.DevString("abc"); got != "pump (abc)" {
		t.Errorf("DevString = %q", got)
	}
}

func i64(v int64) *int64    { return &v }
func strp(v string) *string { return &v }
