// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/collector/internal/blacklist"
	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/models"
	"github.com/tomtom215/collector/internal/validation"
)

// Frame kinds for metrics.
const (
	kindQuery    = "query"
	kindComplete = "complete"
	kindError    = "error"
)

const msgNotSupported = "command not supported"

// QueryStore runs historical queries. *eventstore.Store implements it.
type QueryStore interface {
	Query(ctx context.Context, f models.QueryFilter, fn func(*models.RawEvent) error) (string, error)
}

// Conn is the engine's view of a client.
type Conn interface {
	ID() uint64
	Subscribe()
	Send(ctx context.Context, kind string, frame interface{}) error
}

// Engine executes client commands.
type Engine struct {
	store     QueryStore
	blacklist *blacklist.Index

	wg sync.WaitGroup
}

// NewEngine creates an engine. bl may be nil.
func NewEngine(store QueryStore, bl *blacklist.Index) *Engine {
	return &Engine{store: store, blacklist: bl}
}

// OnCommand handles one raw client message. Queries continue in the
// background under ctx; everything else completes before return.
func (e *Engine) OnCommand(ctx context.Context, raw []byte, conn Conn) {
	var cmd models.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		logging.Warn().Err(err).Uint64("client", conn.ID()).Msg("Malformed client command")
		e.sendError(ctx, conn, "malformed command: "+err.Error(), nil)
		return
	}

	switch cmd.Command {
	case models.CommandSubscribe:
		conn.Subscribe()
		logging.Info().Uint64("client", conn.ID()).Msg("Client subscribed")

	case models.CommandQuery:
		echo := json.RawMessage(append([]byte(nil), raw...))
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runQuery(ctx, cmd, echo, conn)
		}()

	default:
		logging.Warn().Uint64("client", conn.ID()).Str("command", cmd.Command).Msg("Unsupported client command")
		e.sendError(ctx, conn, msgNotSupported, json.RawMessage(raw))
	}
}

// Wait blocks until every running query has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) runQuery(ctx context.Context, cmd models.Command, echo json.RawMessage, conn Conn) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	start := time.Now()

	if err := validation.ValidateStruct(&cmd); err != nil {
		e.sendError(ctx, conn, err.Error(), echo)
		cmd.Limit = nil
	}

	filter := cmd.Filter()
	for _, problem := range eventstore.FilterProblems(filter) {
		e.sendError(ctx, conn, problem, echo)
	}

	sent := 0
	sql, err := e.store.Query(ctx, filter, func(row *models.RawEvent) error {
		if row.PublishedAt == nil || row.GenerationID == nil || row.SerialNo == nil {
			return nil
		}
		if e.blacklist.Blacklisted(row) {
			return nil
		}
		frame, err := QueryFrame(row)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("id", row.ID).Str("device", row.DeviceID).Msg("Skipping stored event with undecodable data")
			return nil
		}
		if err := conn.Send(ctx, kindQuery, frame); err != nil {
			return err
		}
		sent++
		return nil
	})

	log := logging.Ctx(ctx)
	if err != nil {
		if errors.Is(err, ErrClientClosed) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			log.Debug().Uint64("client", conn.ID()).Int("sent", sent).Msg("Query aborted, client gone")
			return
		}
		log.Error().Err(err).Uint64("client", conn.ID()).Str("filter", sql).Msg("Query failed")
		e.sendError(ctx, conn, "query failed", echo)
	}

	complete := models.ControlFrame{
		Name: models.FrameQueryComplete,
		Data: models.QueryCompleteData{Command: echo, Filter: sql, Sent: sent},
	}
	if err := conn.Send(ctx, kindComplete, complete); err != nil {
		return
	}
	log.Info().
		Uint64("client", conn.ID()).
		Int("sent", sent).
		Dur("duration", time.Since(start)).
		Str("filter", sql).
		Msg("Query complete")
}

func (e *Engine) sendError(ctx context.Context, conn Conn, message string, command json.RawMessage) {
	frame := models.ControlFrame{
		Name: models.FrameError,
		Data: models.ErrorData{Message: message, Command: command},
	}
	if err := conn.Send(ctx, kindError, frame); err != nil {
		logging.Debug().Err(err).Uint64("client", conn.ID()).Msg("Could not deliver error frame")
	}
}

// QueryFrame turns a stored row into a client event frame. The payload gets
// the row's generation and serial injected; its eName, if any, becomes the
// frame name.
func QueryFrame(row *models.RawEvent) (models.EventFrame, error) {
	if row.GenerationID == nil || row.SerialNo == nil {
		return models.EventFrame{}, fmt.Errorf("row %d has no generation or serial", row.ID)
	}
	fields, err := models.DecodeFields(row.RawData)
	if err != nil {
		return models.EventFrame{}, err
	}
	fields[models.FieldGeneration] = *row.GenerationID
	fields[models.FieldSerial] = *row.SerialNo

	name, _ := fields[models.FieldName].(string)
	if name == "" {
		name = models.FrameQueryDefault
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return models.EventFrame{}, fmt.Errorf("marshal query data: %w", err)
	}

	var publishedAt string
	if row.PublishedAt != nil {
		publishedAt = *row.PublishedAt
	}
	return models.EventFrame{
		CoreID:      row.DeviceID,
		PublishedAt: publishedAt,
		Name:        name,
		Data:        string(data),
	}, nil
}
