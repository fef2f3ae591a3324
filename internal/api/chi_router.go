// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/collector/internal/middleware"
)

// Router wires handlers, the websocket endpoint and middleware.
type Router struct {
	handler   *Handler
	websocket http.Handler
	mw        *ChiMiddleware
}

func NewRouter(handler *Handler, ws http.Handler, mw *ChiMiddleware) *Router {
	return &Router{handler: handler, websocket: ws, mw: mw}
}

// Setup builds the chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.mw.CORS())
	r.Use(middleware.PrometheusMetrics)

	// Long-lived; not rate limited beyond the upgrade itself.
	r.Get("/ws", router.websocket.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/health", router.handler.Health)
		r.Get("/health/live", router.handler.Live)
	})

	r.Group(func(r chi.Router) {
		r.Use(router.mw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Get("/device/{id}", router.handler.Device)
		r.Get("/deadletters", router.handler.DeadLetters)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
