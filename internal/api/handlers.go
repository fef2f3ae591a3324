// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package api

import (
	"context"
	"time"

	"github.com/tomtom215/collector/internal/blacklist"
	"github.com/tomtom215/collector/internal/deadletter"
	"github.com/tomtom215/collector/internal/supervisor"
	"github.com/tomtom215/collector/internal/websocket"
)

// StreamStatus is implemented by *supervisor.StreamService.
type StreamStatus interface {
	State() supervisor.State
	Connections() int64
}

// ClientCounter is implemented by *websocket.Hub.
type ClientCounter interface {
	GetClientCount() int
}

// Pinger is implemented by *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DeadLetterLister is implemented by *deadletter.Journal.
type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]deadletter.Entry, error)
}

// Deps are the handler's collaborators. Stream and DeadLetters may be nil
// when those features are disabled.
type Deps struct {
	Store       websocket.QueryStore
	Blacklist   *blacklist.Index
	DB          Pinger
	Stream      StreamStatus
	Clients     ClientCounter
	DeadLetters DeadLetterLister
}

// Handler holds the HTTP endpoint implementations.
type Handler struct {
	store       websocket.QueryStore
	blacklist   *blacklist.Index
	db          Pinger
	stream      StreamStatus
	clients     ClientCounter
	deadLetters DeadLetterLister
	startTime   time.Time
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		store:       d.Store,
		blacklist:   d.Blacklist,
		db:          d.DB,
		stream:      d.Stream,
		clients:     d.Clients,
		deadLetters: d.DeadLetters,
		startTime:   time.Now(),
	}
}
