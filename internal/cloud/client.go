// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/registry"
)

// Client talks to the device cloud REST API.
type Client struct {
	baseURL string
	token   string

	// http carries request/response calls; stream has no overall timeout
	// because an event stream stays open indefinitely.
	http   *http.Client
	stream *http.Client
}

// New creates a client from configuration.
func New(cfg config.CloudConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Body)
}

type functionResponse struct {
	ReturnValue int  `json:"return_value"`
	Connected   bool `json:"connected"`
}

// CallFunction invokes a cloud function on a device and returns its
// integer result.
func (c *Client) CallFunction(ctx context.Context, deviceID, name, arg string) (int, error) {
	form := url.Values{}
	form.Set("arg", arg)

	path := "/v1/devices/" + url.PathEscape(deviceID) + "/" + url.PathEscape(name)
	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out functionResponse
	if err := c.doJSON(req, &out); err != nil {
		return 0, fmt.Errorf("call %s on %s: %w", name, deviceID, err)
	}
	return out.ReturnValue, nil
}

type deviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListDevices returns the devices visible to the token.
func (c *Client) ListDevices(ctx context.Context) ([]registry.Attributes, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/devices", http.NoBody)
	if err != nil {
		return nil, err
	}

	var devices []deviceInfo
	if err := c.doJSON(req, &devices); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	out := make([]registry.Attributes, 0, len(devices))
	for _, d := range devices {
		out = append(out, registry.Attributes{ID: d.ID, Name: d.Name})
	}
	return out, nil
}
