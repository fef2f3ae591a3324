// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

/*
Package websocket serves the client protocol: live subscriptions and
historical queries over JSON text frames.

Clients send commands:

	{"command":"subscribe"}
	{"command":"query","device":"id","generation":1700000000,"after":41,"limit":100}

and receive event frames

	{"coreid":"id","published_at":"...","name":"...","data":"<json string>"}

plus control frames named collector/error and collector/querycomplete.

A client starts unsubscribed and receives no broadcast until it sends
subscribe. The Hub serializes each newly stored event once and offers it to
every subscribed client without blocking; a client whose buffer is full is
dropped so that one slow reader never delays the rest.

Queries run on their own goroutine per command with a context tied to the
connection, so a disconnect stops the database scan.
*/
package websocket
