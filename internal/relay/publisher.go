// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/collector/internal/breaker"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

const (
	publishQueue = 4096

	metaDevice = "device"
)

// ErrQueueFull is counted when the publish queue overflows.
var ErrQueueFull = errors.New("relay publish queue full")

// Publisher forwards stored events to NATS.
type Publisher struct {
	pub     message.Publisher
	subject string
	breaker *breaker.Breaker[struct{}]
	queue   chan models.Event

	mu     sync.RWMutex
	closed bool
}

// NewPublisher connects to url and publishes under subject.
func NewPublisher(url, subject string) (*Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOptions("publisher"),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, watermillLogger())
	if err != nil {
		return nil, fmt.Errorf("create relay publisher: %w", err)
	}
	return newPublisher(pub, subject), nil
}

func newPublisher(pub message.Publisher, subject string) *Publisher {
	return &Publisher{
		pub:     pub,
		subject: subject,
		breaker: breaker.New[struct{}]("relay-publish", breaker.Settings{}),
		queue:   make(chan models.Event, publishQueue),
	}
}

// Enqueue queues ev for publishing without blocking. It is registered as an
// event store listener. Events received from upstream are not forwarded.
func (p *Publisher) Enqueue(ev models.Event) {
	if ev.Upstream {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		metrics.RecordRelay("out", ErrQueueFull)
		logging.Warn().Str("device", ev.DeviceID).Msg("Relay queue full, event not forwarded")
	}
}

// Serve publishes queued events until ctx ends. It implements suture.Service.
func (p *Publisher) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.queue:
			err := p.publish(ev)
			metrics.RecordRelay("out", err)
			if err != nil {
				logging.Warn().Err(err).Str("device", ev.DeviceID).Str("event", ev.Name).Msg("Relay publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal relay event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(metaDevice, ev.DeviceID)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.pub.Publish(Topic(p.subject, ev.DeviceID), msg)
	})
	return err
}

// Close stops accepting events and closes the NATS connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.pub.Close()
}

func (p *Publisher) String() string {
	return "relay-publisher"
}
