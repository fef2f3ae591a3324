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
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 1024
	replyBuffer    = 256
)

// ErrClientClosed is returned when sending to a disconnected client.
var ErrClientClosed = errors.New("websocket client closed")

var clientIDCounter atomic.Uint64

// Client is one websocket connection.
type Client struct {
	id     uint64
	hub    *Hub
	engine *Engine
	conn   *websocket.Conn

	// send carries live broadcasts; replies carries query output so a long
	// query never starves the broadcast queue.
	send      chan []byte
	replies   chan []byte
	done      chan struct{}
	closeOnce sync.Once

	subscribed atomic.Bool

	// ctx is cancelled when the connection goes away; queries run under it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient wraps conn. The client is not registered until Start.
func NewClient(hub *Hub, engine *Engine, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:     clientIDCounter.Add(1),
		hub:    hub,
		engine: engine,
		conn:   conn,
		send:    make(chan []byte, sendBuffer),
		replies: make(chan []byte, replyBuffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the client's connection-ordered identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Subscribe opts the client into live broadcasts.
func (c *Client) Subscribe() {
	c.subscribed.Store(true)
}

// Subscribed reports whether the client receives broadcasts.
func (c *Client) Subscribed() bool {
	return c.subscribed.Load()
}

// Send marshals frame and queues it on the reply queue, waiting for space.
// It fails when the client disconnects or ctx is cancelled.
func (c *Client) Send(ctx context.Context, kind string, frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", kind, err)
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.replies <- data:
		metrics.WSFramesSent.WithLabelValues(kind).Inc()
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// offer queues a broadcast frame without waiting.
func (c *Client) offer(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the pumps and cancels in-flight queries.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// Start registers the client and runs its pumps.
func (c *Client) Start() {
	c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Uint64("client", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		c.engine.OnCommand(c.ctx, data, c)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) {
				return
			}

		case frame := <-c.replies:
			if !c.write(frame) {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				c.hub.Unregister(c)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c)
				return
			}
		}
	}
}

func (c *Client) write(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set write deadline")
		c.hub.Unregister(c)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		logging.Debug().Err(err).Uint64("client", c.id).Msg("failed to write frame")
		c.hub.Unregister(c)
		return false
	}
	return true
}
