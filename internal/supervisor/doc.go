// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

/*
Package supervisor runs the collector's long-lived services under suture v4.

# Tree

	collector
	├── ingest-layer
	│   ├── live-stream       (StreamService)
	│   ├── datacer-poller
	│   └── relay-upstream    (if relay.upstream_enabled)
	├── delivery-layer
	│   ├── websocket-hub
	│   ├── relay-publisher   (if relay.enabled)
	│   └── replay-scheduler  (if replay.interval > 0)
	└── api-layer
	    └── http-server

Service events are logged through sutureslog using the zerolog-backed slog
adapter from the logging package.

# Live stream

StreamService makes one connection attempt per Serve call. After connecting
it starts the inactivity watchdog and a replay pass. Any event resets the
watchdog, vendor timeout notices included. When the watchdog fires or the
stream ends, the configured Policy applies:

  - PolicyReconnect returns ErrInactivity or ErrStreamClosed so suture
    restarts the service with backoff.
  - PolicyShutdown triggers the Shutdown coordinator with ExitPolicy.

# Shutdown

Shutdown runs registered steps in order after the first Trigger. main
registers them so pollers stop first, then the live stream, then the HTTP
listener drains, then storage closes. The exit code is ExitVoluntary for
signals and ExitPolicy for stream escalation.
*/
package supervisor
