// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/collector/internal/logging"
)

// Process exit codes.
const (
	ExitVoluntary = 0
	ExitPolicy    = 1
)

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// Shutdown coordinates process exit. Steps run once, in registration order,
// after the first Trigger.
type Shutdown struct {
	timeout time.Duration

	mu     sync.Mutex
	steps  []step
	code   int
	reason string

	once      sync.Once
	requested chan struct{}
}

// NewShutdown creates a coordinator. timeout bounds each step.
func NewShutdown(timeout time.Duration) *Shutdown {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Shutdown{timeout: timeout, requested: make(chan struct{})}
}

// Add registers a shutdown step.
func (s *Shutdown) Add(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{name: name, fn: fn})
}

// Trigger requests shutdown. Only the first call sets the exit code.
func (s *Shutdown) Trigger(code int, reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.code = code
		s.reason = reason
		s.mu.Unlock()
		logging.Info().Int("exit_code", code).Str("reason", reason).Msg("Shutdown requested")
		close(s.requested)
	})
}

// Requested is closed by the first Trigger.
func (s *Shutdown) Requested() <-chan struct{} {
	return s.requested
}

// Run executes every step in order and returns the exit code. Failed steps
// are logged and do not stop later ones.
func (s *Shutdown) Run() int {
	s.mu.Lock()
	steps := append([]step(nil), s.steps...)
	code, reason := s.code, s.reason
	s.mu.Unlock()

	start := time.Now()
	for _, st := range steps {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := st.fn(ctx)
		cancel()
		if err != nil {
			logging.Warn().Err(err).Str("step", st.name).Msg("Shutdown step failed")
			continue
		}
		logging.Debug().Str("step", st.name).Msg("Shutdown step done")
	}

	logging.Info().
		Int("exit_code", code).
		Str("reason", reason).
		Dur("duration", time.Since(start)).
		Msg("Shutdown complete")
	return code
}
