// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate clears the environment and points CONFIG_PATH at a missing file so
// that a config.yaml in the working directory cannot leak into a test.
func isolate(t *testing.T) {
	t.Helper()
	saved := os.Environ()
	os.Clearenv()
	t.Cleanup(func() {
		os.Clearenv()
		for _, kv := range saved {
			if k, v, ok := strings.Cut(kv, "="); ok {
				os.Setenv(k, v)
			}
		}
	})
	wd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Stream.InactivityTimeout != 240*time.Second {
		t.Errorf("Stream.InactivityTimeout = %v, want 240s", cfg.Stream.InactivityTimeout)
	}
	if cfg.Stream.Policy != "reconnect" {
		t.Errorf("Stream.Policy = %q, want reconnect", cfg.Stream.Policy)
	}
	if cfg.Replay.GenerationGap != 300*time.Second {
		t.Errorf("Replay.GenerationGap = %v, want 300s", cfg.Replay.GenerationGap)
	}
	if cfg.Poller.Interval != time.Minute || cfg.Poller.Spacing != 100*time.Millisecond {
		t.Errorf("Poller timing = %v/%v, want 1m/100ms", cfg.Poller.Interval, cfg.Poller.Spacing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"ACCESS_TOKEN":              "cloud.token",
		"ENDPOINT_VAC":              "poller.url",
		"HTTP_PORT":                 "server.port",
		"STREAM_POLICY":             "stream.policy",
		"STREAM_INACTIVITY_TIMEOUT": "stream.inactivity_timeout",
		"LOG_LEVEL":                 "logging.level",
		"HOME":                      "",
		"PATH":                      "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadWithKoanfEnvVars(t *testing.T) {
	isolate(t)

	os.Setenv("ACCESS_TOKEN", "tok123")
	os.Setenv("HTTP_PORT", "9000")
	os.Setenv("STREAM_POLICY", "shutdown")
	os.Setenv("STREAM_INACTIVITY_TIMEOUT", "150s")
	os.Setenv("ENDPOINT_VAC", "https://vac.example.com/vacuum")
	os.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Cloud.Token != "tok123" {
		t.Errorf("Cloud.Token = %q, want tok123", cfg.Cloud.Token)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if !cfg.Stream.ShutdownOnDisconnect() {
		t.Error("expected shutdown policy")
	}
	if cfg.Stream.InactivityTimeout != 150*time.Second {
		t.Errorf("Stream.InactivityTimeout = %v, want 150s", cfg.Stream.InactivityTimeout)
	}
	if !cfg.Poller.Enabled || cfg.Poller.URL != "https://vac.example.com/vacuum" {
		t.Errorf("ENDPOINT_VAC should enable the poller, got %+v", cfg.Poller)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Database.MaxMemory != "512MB" {
		t.Errorf("Database.MaxMemory = %q, want default 512MB", cfg.Database.MaxMemory)
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "collector.yaml")
	content := `
database:
  path: ":memory:"
stream:
  policy: reconnect
  inactivity_timeout: 5m
blacklist:
  - device: dev-a
    timestamp_until: "2021-03-01T00:00:00Z"
    reason: sensor replaced
  - reason: all devices
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv(ConfigPathEnvVar, path)
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Stream.InactivityTimeout != 5*time.Minute {
		t.Errorf("Stream.InactivityTimeout = %v, want 5m", cfg.Stream.InactivityTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env should override file: Logging.Level = %q", cfg.Logging.Level)
	}
	if len(cfg.Blacklist) != 2 {
		t.Fatalf("expected 2 blacklist rules, got %d", len(cfg.Blacklist))
	}
	if cfg.Blacklist[0].Device != "dev-a" || cfg.Blacklist[0].Until != "2021-03-01T00:00:00Z" {
		t.Errorf("unexpected first rule: %+v", cfg.Blacklist[0])
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad policy", func(c *Config) { c.Stream.Policy = "restart" }, "Policy"},
		{"short watchdog", func(c *Config) { c.Stream.InactivityTimeout = 0 }, "InactivityTimeout"},
		{"poller without url", func(c *Config) { c.Poller.Enabled = true }, "poller.url"},
		{"spacing over interval", func(c *Config) {
			c.Poller.Enabled = true
			c.Poller.URL = "http://x.example"
			c.Poller.Spacing = 2 * time.Minute
		}, "poller.spacing"},
		{"bad blacklist time", func(c *Config) {
			c.Blacklist = []BlacklistRule{{Device: "d", Until: "yesterday"}}
		}, "RFC3339"},
		{"upstream without subject", func(c *Config) { c.Relay.UpstreamEnabled = true }, "UpstreamURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}
