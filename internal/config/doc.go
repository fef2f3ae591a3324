// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

/*
Package config loads collector configuration with Koanf v2.

Three layers are merged, later layers winning:

  - Built-in defaults (defaultConfig)
  - An optional YAML file: CONFIG_PATH, config.yaml, or /etc/collector/config.yaml
  - Environment variables mapped through envMappings

The environment names kept from earlier deployments still work:
ACCESS_TOKEN sets the device cloud token and ENDPOINT_VAC sets (and
enables) the vacuum poller.

Blacklist rules are only read from the YAML file:

	blacklist:
	  - device: "3a0037000347343337373737"
	    timestamp_until: "2021-03-01T00:00:00Z"
	    reason: "sensor replaced"

Validation runs go-playground/validator struct tags through the validation
package, then cross-field checks.
*/
package config
