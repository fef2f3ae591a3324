// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package config

import (
	"time"
)

// Config holds all collector configuration.
//
// Loading order (Koanf v2):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (config.yaml or CONFIG_PATH)
//  3. Environment variables
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Server     ServerConfig     `koanf:"server"`
	Stream     StreamConfig     `koanf:"stream"`
	Cloud      CloudConfig      `koanf:"cloud"`
	Replay     ReplayConfig     `koanf:"replay"`
	Poller     PollerConfig     `koanf:"poller"`
	Relay      RelayConfig      `koanf:"relay"`
	DeadLetter DeadLetterConfig `koanf:"deadletter"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`

	// Blacklist rules hide rows from query results. Only settable from the
	// config file.
	Blacklist []BlacklistRule `koanf:"blacklist"`
}

// DatabaseConfig configures the DuckDB event log.
type DatabaseConfig struct {
	// Path is the DuckDB file. ":memory:" keeps everything in RAM (tests).
	Path string `koanf:"path" validate:"required"`

	// MaxMemory caps DuckDB memory, e.g. "512MB".
	MaxMemory string `koanf:"max_memory" validate:"required"`

	// Threads for DuckDB. 0 = runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// ServerConfig configures the HTTP listener that serves the WebSocket
// protocol, the device endpoint, health and metrics.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// ShutdownTimeout bounds how long open connections may drain on exit.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs per RateLimitWindow per client IP on the HTTP read
	// endpoints. 0 disables the limiter.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// StreamConfig configures the live event stream supervisor.
type StreamConfig struct {
	Enabled bool `koanf:"enabled"`

	// InactivityTimeout closes the stream when no event (including vendor
	// timeout notices) arrives within this window.
	InactivityTimeout time.Duration `koanf:"inactivity_timeout" validate:"gte=1s"`

	// Policy applied when the stream drops: "reconnect" or "shutdown".
	Policy string `koanf:"policy" validate:"oneof=reconnect shutdown"`
}

// CloudConfig configures the device cloud API.
type CloudConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// ListDevices loads device names into the registry at startup.
	ListDevices bool `koanf:"list_devices"`
}

// ReplayConfig configures the replay coordinator.
type ReplayConfig struct {
	// GenerationGap is the silence after which a local producer starts a
	// new generation instead of resuming the last one.
	GenerationGap time.Duration `koanf:"generation_gap" validate:"gt=0"`

	// Interval between periodic replay passes. 0 disables them; a pass still
	// runs after every stream connect.
	Interval time.Duration `koanf:"interval" validate:"gte=0"`
}

// PollerConfig configures the Datacer vacuum poller.
type PollerConfig struct {
	Enabled  bool          `koanf:"enabled"`
	URL      string        `koanf:"url" validate:"omitempty,url"`
	Interval time.Duration `koanf:"interval" validate:"gte=1s"`

	// Spacing between events emitted from one poll.
	Spacing time.Duration `koanf:"spacing" validate:"gte=0"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// RelayConfig configures the NATS relay.
type RelayConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url" validate:"required_if=Enabled true"`

	// Subject prefix. Inserted events go to "<subject>.<device>".
	Subject string `koanf:"subject" validate:"required"`

	// EmbeddedServer starts an in-process NATS server on EmbeddedPort.
	EmbeddedServer bool   `koanf:"embedded_server"`
	EmbeddedPort   int    `koanf:"embedded_port" validate:"gte=-1,lte=65535"`
	StoreDir       string `koanf:"store_dir"`

	// Upstream subscribes to another collector's relay subject and ingests
	// its events marked as upstream.
	UpstreamEnabled bool   `koanf:"upstream_enabled"`
	UpstreamURL     string `koanf:"upstream_url" validate:"required_if=UpstreamEnabled true"`
	UpstreamSubject string `koanf:"upstream_subject" validate:"required_if=UpstreamEnabled true"`
	QueueGroup      string `koanf:"queue_group"`
}

// DeadLetterConfig configures the journal of events whose insert failed.
type DeadLetterConfig struct {
	Enabled bool          `koanf:"enabled"`
	Path    string        `koanf:"path" validate:"required_if=Enabled true"`
	TTL     time.Duration `koanf:"ttl" validate:"gte=0"`
}

// SupervisorConfig mirrors suture's failure handling knobs.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// BlacklistRule hides stored rows from query results.
// Until is an RFC3339 timestamp; an empty Device matches every device.
type BlacklistRule struct {
	Device string `koanf:"device"`
	Until  string `koanf:"timestamp_until"`
	Reason string `koanf:"reason"`
}

// Load loads configuration using Koanf: defaults, then file, then env.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
