// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/collector/config.yaml",
	"/etc/collector/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// legacyPollerEnvVar enables the vacuum poller simply by being set, as the
// deployment scripts have always done.
const legacyPollerEnvVar = "ENDPOINT_VAC"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/collector.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Stream: StreamConfig{
			Enabled:           true,
			InactivityTimeout: 240 * time.Second,
			Policy:            "reconnect",
		},
		Cloud: CloudConfig{
			BaseURL:     "https://api.particle.io",
			Timeout:     30 * time.Second,
			ListDevices: true,
		},
		Replay: ReplayConfig{
			GenerationGap: 300 * time.Second,
			Interval:      0,
		},
		Poller: PollerConfig{
			Enabled:  false,
			Interval: 60 * time.Second,
			Spacing:  100 * time.Millisecond,
			Timeout:  20 * time.Second,
		},
		Relay: RelayConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			Subject:        "collector.events",
			EmbeddedServer: false,
			EmbeddedPort:   4222,
			QueueGroup:     "collector",
		},
		DeadLetter: DeadLetterConfig{
			Enabled: true,
			Path:    "/data/deadletter",
			TTL:     30 * 24 * time.Hour,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration in three layers (defaults, file, env)
// and validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if os.Getenv(legacyPollerEnvVar) != "" && os.Getenv("POLLER_ENABLED") == "" {
		if err := k.Set("poller.enabled", true); err != nil {
			return nil, fmt.Errorf("failed to set poller.enabled: %w", err)
		}
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"http_host":             "server.host",
	"http_port":             "server.port",
	"port":                  "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",

	"stream_enabled":            "stream.enabled",
	"stream_inactivity_timeout": "stream.inactivity_timeout",
	"stream_policy":             "stream.policy",

	"access_token":       "cloud.token",
	"cloud_base_url":     "cloud.base_url",
	"cloud_timeout":      "cloud.timeout",
	"cloud_list_devices": "cloud.list_devices",

	"replay_generation_gap": "replay.generation_gap",
	"replay_interval":       "replay.interval",

	"endpoint_vac":     "poller.url",
	"poller_enabled":   "poller.enabled",
	"poller_interval":  "poller.interval",
	"poller_spacing":   "poller.spacing",
	"poller_timeout":   "poller.timeout",

	"nats_enabled":          "relay.enabled",
	"nats_url":              "relay.url",
	"nats_subject":          "relay.subject",
	"nats_embedded":         "relay.embedded_server",
	"nats_embedded_port":    "relay.embedded_port",
	"nats_store_dir":        "relay.store_dir",
	"nats_upstream_enabled": "relay.upstream_enabled",
	"nats_upstream_url":     "relay.upstream_url",
	"nats_upstream_subject": "relay.upstream_subject",
	"nats_queue_group":      "relay.queue_group",

	"deadletter_enabled": "deadletter.enabled",
	"deadletter_path":    "deadletter.path",
	"deadletter_ttl":     "deadletter.ttl",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Returning "" skips the variable.
//
//   - ACCESS_TOKEN -> cloud.token
//   - ENDPOINT_VAC -> poller.url
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
