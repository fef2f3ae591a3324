// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package relay

import (
	"context"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

// Sink stores relayed events. *eventstore.Store implements it.
type Sink interface {
	HandleEvent(ctx context.Context, ev models.Event) (eventstore.Result, error)
}

// Upstream ingests events published by another collector.
type Upstream struct {
	sub     message.Subscriber
	subject string
	sink    Sink
}

// NewUpstream subscribes to every device under subject on url. Collectors
// sharing queueGroup split the stream between them.
func NewUpstream(url, subject, queueGroup string, sink Sink) (*Upstream, error) {
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOptions("upstream"),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, watermillLogger())
	if err != nil {
		return nil, fmt.Errorf("create relay subscriber: %w", err)
	}
	return &Upstream{sub: sub, subject: subject, sink: sink}, nil
}

// Serve ingests messages until ctx ends. It implements suture.Service.
func (u *Upstream) Serve(ctx context.Context) error {
	messages, err := u.sub.Subscribe(ctx, u.subject+".>")
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", u.subject, err)
	}
	logging.Info().Str("subject", u.subject).Msg("Relay upstream subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("relay subscription to %s closed", u.subject)
			}
			u.handle(ctx, msg)
		}
	}
}

func (u *Upstream) handle(ctx context.Context, msg *message.Message) {
	var ev models.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		metrics.RecordRelay("in", err)
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable relay message")
		msg.Ack()
		return
	}
	ev.Upstream = true

	// Storage failures are dead-lettered by the store; the message is acked
	// either way so the peer does not redeliver it.
	_, err := u.sink.HandleEvent(ctx, ev)
	metrics.RecordRelay("in", err)
	if err != nil {
		logging.Error().Err(err).Str("device", ev.DeviceID).Str("message_uuid", msg.UUID).Msg("Relayed event not stored")
	}
	msg.Ack()
}

// Close closes the NATS subscription.
func (u *Upstream) Close() error {
	return u.sub.Close()
}

func (u *Upstream) String() string {
	return "relay-upstream"
}
