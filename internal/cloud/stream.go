// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/models"
)

// ErrStreamEnded is reported by Stream.Err when the server closed the
// stream cleanly.
var ErrStreamEnded = errors.New("event stream ended")

const maxEventSize = 64 * 1024

// EventSource opens live event streams. *Client implements it.
type EventSource interface {
	Connect(ctx context.Context) (Stream, error)
}

// Stream is an open live event connection.
type Stream interface {
	// Events is closed when the stream ends.
	Events() <-chan models.Event
	// Err reports why Events was closed.
	Err() error
	Close() error
}

type wireEvent struct {
	Data        string `json:"data"`
	PublishedAt string `json:"published_at"`
	CoreID      string `json:"coreid"`
}

type sseStream struct {
	cancel context.CancelFunc
	events chan models.Event

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	done      chan struct{}
}

// Connect opens the account-wide event stream. It returns once the server
// has accepted the subscription; reconnecting is left to the caller.
func (c *Client) Connect(ctx context.Context) (Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	sc := sse.NewClient(c.baseURL+"/v1/devices/events", sse.ClientMaxBufferSize(maxEventSize))
	sc.Connection = c.stream
	sc.ReconnectStrategy = &backoff.StopBackOff{}
	if c.token != "" {
		sc.Headers["Authorization"] = "Bearer " + c.token
	}

	connected := make(chan struct{})
	sc.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		close(connected)
		return nil
	}

	s := &sseStream{
		cancel: cancel,
		events: make(chan models.Event, 64),
		done:   make(chan struct{}),
	}
	go s.read(streamCtx, sc)

	select {
	case <-connected:
		return s, nil
	case <-s.done:
		select {
		case <-connected:
			return s, nil
		default:
		}
		cancel()
		return nil, fmt.Errorf("connect event stream: %w", s.Err())
	}
}

func (s *sseStream) read(ctx context.Context, sc *sse.Client) {
	defer close(s.events)
	defer close(s.done)

	err := sc.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		ev, err := decodeEvent(string(msg.Event), msg.Data)
		if err != nil {
			logging.Warn().Err(err).Str("event", string(msg.Event)).Msg("Skipping malformed stream event")
			return
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	})

	switch {
	case ctx.Err() != nil:
		s.setErr(ctx.Err())
	case err != nil:
		s.setErr(err)
	default:
		s.setErr(ErrStreamEnded)
	}
}

func decodeEvent(name string, data []byte) (models.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Event{}, fmt.Errorf("decode stream event: %w", err)
	}
	return models.Event{
		DeviceID:    w.CoreID,
		PublishedAt: w.PublishedAt,
		Name:        name,
		Data:        w.Data,
	}, nil
}

func (s *sseStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *sseStream) Events() <-chan models.Event {
	return s.events
}

func (s *sseStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close aborts the stream and waits for the reader to exit.
func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
