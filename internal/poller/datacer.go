// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/collector/internal/breaker"
	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
	"github.com/tomtom215/collector/internal/registry"
	"github.com/tomtom215/collector/internal/replay"
)

const (
	// DatacerDeviceID is the device every vacuum reading is stored under.
	DatacerDeviceID = "DATACER"
	// DatacerEventName names vacuum events in the payload and on the wire.
	DatacerEventName = "Vacuum/Datacer"
)

// publishedAtLayout matches the device cloud's timestamps.
const publishedAtLayout = "2006-01-02T15:04:05.000Z"

// maintenanceDevices report maintenance counters worth keeping.
var maintenanceDevices = map[string]bool{
	"EB-V1": true,
	"EB-V2": true,
	"EB-V3": true,
}

// Sink receives synthetic events. *eventstore.Store implements it.
type Sink interface {
	HandleEvent(ctx context.Context, ev models.Event) (eventstore.Result, error)
	SetAttributes(deviceID string, attrs registry.Attributes)
}

// Bootstrapper restores generation state. *replay.Coordinator implements it.
type Bootstrapper interface {
	BootstrapLocalGeneration(ctx context.Context, namespace string) (*replay.SerialCounter, error)
}

// VacuumReading is one item of the Datacer "vacuum" array. Numeric fields
// arrive as numbers or strings depending on the firmware.
type VacuumReading struct {
	Device            string      `json:"device"`
	Label             string      `json:"label"`
	RawValue          interface{} `json:"rawValue"`
	Temp              interface{} `json:"temp"`
	ReferencialValue  interface{} `json:"referencialValue"`
	PercentCharge     interface{} `json:"percentCharge"`
	Offset            interface{} `json:"offset"`
	LastUpdatedAt     interface{} `json:"lastUpdatedAt"`
	RunTimeSinceMaint interface{} `json:"RunTimeSinceMaint"`
	NeedMaintenance   interface{} `json:"NeedMaintenance"`
}

type datacerResponse struct {
	Vacuum []VacuumReading `json:"vacuum"`
}

// vacuumPayload is the event data stored for each reading.
type vacuumPayload struct {
	NoSerie           int64       `json:"noSerie"`
	Generation        int64       `json:"generation"`
	EData             float64     `json:"eData"`
	Temp              float64     `json:"temp"`
	Ref               float64     `json:"ref"`
	PercentCharge     float64     `json:"percentCharge"`
	Offset            interface{} `json:"offset"`
	Device            string      `json:"device"`
	Label             string      `json:"label"`
	NormalizedLabel   string      `json:"normalizedLabel"`
	LastUpdatedAt     interface{} `json:"lastUpdatedAt"`
	EName             string      `json:"eName"`
	RunTimeSinceMaint interface{} `json:"RunTimeSinceMaint,omitempty"`
	NeedMaintenance   interface{} `json:"NeedMaintenance,omitempty"`
}

// Datacer polls the Datacer vacuum endpoint. It implements suture.Service.
type Datacer struct {
	url      string
	interval time.Duration
	spacing  time.Duration

	sink      Sink
	bootstrap Bootstrapper
	client    *http.Client
	breaker   *breaker.Breaker[*datacerResponse]
	now       func() time.Time
}

// NewDatacer creates the Datacer poller from configuration.
func NewDatacer(cfg config.PollerConfig, sink Sink, bootstrap Bootstrapper) *Datacer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Datacer{
		url:       cfg.URL,
		interval:  cfg.Interval,
		spacing:   cfg.Spacing,
		sink:      sink,
		bootstrap: bootstrap,
		client:    &http.Client{Timeout: timeout},
		breaker:   breaker.New[*datacerResponse]("datacer", breaker.Settings{}),
		now:       time.Now,
	}
}

// Serve bootstraps the generation, polls once, then polls on every tick
// until ctx is cancelled.
func (d *Datacer) Serve(ctx context.Context) error {
	counter, err := d.bootstrap.BootstrapLocalGeneration(ctx, DatacerDeviceID)
	if err != nil {
		return fmt.Errorf("datacer bootstrap: %w", err)
	}

	logging.Info().Str("url", d.url).Dur("interval", d.interval).Msg("Starting Datacer polling")

	limiter := d.newLimiter()
	d.poll(ctx, counter, limiter)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Datacer polling stopped")
			return ctx.Err()
		case <-ticker.C:
			d.poll(ctx, counter, limiter)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (d *Datacer) String() string {
	return "datacer-poller"
}

func (d *Datacer) newLimiter() *rate.Limiter {
	if d.spacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d.spacing), 1)
}

func (d *Datacer) poll(ctx context.Context, counter *replay.SerialCounter, limiter *rate.Limiter) {
	data, err := d.breaker.Execute(func() (*datacerResponse, error) {
		return d.fetch(ctx)
	})
	metrics.RecordPollerFetch("datacer", err)
	if err != nil {
		logging.Warn().Err(err).Str("url", d.url).Msg("Failed to fetch Datacer data")
		return
	}
	if data == nil || len(data.Vacuum) == 0 {
		logging.Info().Msg("No Datacer vacuum data received")
		return
	}

	logging.Debug().Int("readings", len(data.Vacuum)).Msg("Received Datacer vacuum readings")
	for _, item := range data.Vacuum {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		ev, err := d.syntheticEvent(item, counter)
		if err != nil {
			logging.Error().Err(err).Str("device", item.Device).Msg("Failed to build Datacer event")
			continue
		}
		// Storage failures are logged and dead-lettered by the store.
		_, _ = d.sink.HandleEvent(ctx, ev)
	}
}

func (d *Datacer) fetch(ctx context.Context) (*datacerResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("response status: %d", resp.StatusCode)
	}

	var out datacerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (d *Datacer) syntheticEvent(item VacuumReading, counter *replay.SerialCounter) (models.Event, error) {
	generation, serial := counter.Next()

	// All readings share one device ID; the name tracks the latest reading
	// so logs show which vacuum sensor produced it.
	d.sink.SetAttributes(DatacerDeviceID, registry.Attributes{ID: DatacerDeviceID, Name: item.Device})

	payload := vacuumPayload{
		NoSerie:         serial,
		Generation:      generation,
		EData:           parseFloatOrZero(item.RawValue),
		Temp:            parseFloatOrZero(item.Temp),
		Ref:             parseFloatOrZero(item.ReferencialValue),
		PercentCharge:   parseFloatOrZero(item.PercentCharge),
		Offset:          orZero(item.Offset),
		Device:          item.Device,
		Label:           item.Label,
		NormalizedLabel: NormalizeLabel(item.Label),
		LastUpdatedAt:   item.LastUpdatedAt,
		EName:           DatacerEventName,
	}
	if maintenanceDevices[item.Device] {
		payload.RunTimeSinceMaint = item.RunTimeSinceMaint
		payload.NeedMaintenance = item.NeedMaintenance
	}

	data, err := json.Marshal(&payload)
	if err != nil {
		return models.Event{}, fmt.Errorf("marshal vacuum payload: %w", err)
	}

	return models.Event{
		DeviceID:    DatacerDeviceID,
		PublishedAt: d.now().UTC().Format(publishedAtLayout),
		Name:        DatacerEventName,
		Data:        string(data),
		Upstream:    false,
	}, nil
}
