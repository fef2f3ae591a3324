// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/collector/internal/api"
	"github.com/tomtom215/collector/internal/blacklist"
	"github.com/tomtom215/collector/internal/cloud"
	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/database"
	"github.com/tomtom215/collector/internal/deadletter"
	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/poller"
	"github.com/tomtom215/collector/internal/registry"
	"github.com/tomtom215/collector/internal/replay"
	"github.com/tomtom215/collector/internal/supervisor"
	"github.com/tomtom215/collector/internal/supervisor/services"
	ws "github.com/tomtom215/collector/internal/websocket"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("stream_enabled", cfg.Stream.Enabled).
		Str("stream_policy", cfg.Stream.Policy).
		Bool("poller_enabled", cfg.Poller.Enabled).
		Bool("relay_enabled", cfg.Relay.Enabled).
		Msg("Starting collector with supervisor tree")

	shutdown := supervisor.NewShutdown(cfg.Supervisor.ShutdownTimeout)

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	logging.Info().Msg("Database initialized successfully")

	var journal *deadletter.Journal
	var dead eventstore.DeadLetters
	if cfg.DeadLetter.Enabled {
		journal, err = deadletter.Open(cfg.DeadLetter)
		if err != nil {
			closeQuietly("database", db.Close)
			logging.Fatal().Err(err).Msg("Failed to open dead-letter journal")
		}
		dead = journal
	} else {
		logging.Info().Msg("Dead-letter journal disabled (DEADLETTER_ENABLED=false)")
	}

	bl, err := blacklist.FromConfig(cfg.Blacklist)
	if err != nil {
		closeQuietly("database", db.Close)
		logging.Fatal().Err(err).Msg("Invalid blacklist configuration")
	}
	if bl.Len() > 0 {
		logging.Info().Int("rules", bl.Len()).Msg("Blacklist loaded")
	}

	reg := registry.New()
	store := eventstore.New(db, reg, dead, eventstore.Options{})

	cloudClient := cloud.New(cfg.Cloud)
	var ctrl replay.DeviceController
	if cfg.Cloud.Token != "" {
		ctrl = cloudClient
		if cfg.Cloud.ListDevices {
			listCtx, cancel := context.WithTimeout(context.Background(), cfg.Cloud.Timeout)
			if err := reg.LoadFrom(listCtx, cloudClient); err != nil {
				logging.Warn().Err(err).Msg("Failed to load device list, continuing with device ids")
			}
			cancel()
		}
	} else {
		logging.Warn().Msg("No cloud access token: live stream and replay disabled")
	}

	coord := replay.NewCoordinator(store, ctrl, cfg.Replay)
	coord.SkipLocal(poller.DatacerDeviceID)

	hub := ws.NewHub()
	engine := ws.NewEngine(store, bl)
	store.OnEvent(hub.BroadcastEvent)

	relayComponents, err := InitRelay(&cfg.Relay, store)
	if err != nil {
		closeQuietly("database", db.Close)
		logging.Fatal().Err(err).Msg("Failed to initialize NATS relay")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), cfg.Supervisor)

	// Ingest layer.
	var stream *supervisor.StreamService
	var streamToken suture.ServiceToken
	var ingestTokens []suture.ServiceToken
	if cfg.Stream.Enabled && ctrl != nil {
		stream = supervisor.NewStreamService(cloudClient, store, supervisor.StreamOptions{
			InactivityTimeout: cfg.Stream.InactivityTimeout,
			Policy:            supervisor.Policy(cfg.Stream.Policy),
			Replayer:          coord,
			Shutdown:          shutdown,
		})
		streamToken = tree.AddIngestService(stream)
	}
	if cfg.Poller.Enabled {
		ingestTokens = append(ingestTokens, tree.AddIngestService(poller.NewDatacer(cfg.Poller, store, coord)))
	}
	if cfg.Replay.Interval > 0 && ctrl != nil {
		ingestTokens = append(ingestTokens, tree.AddIngestService(replay.NewService(coord, cfg.Replay.Interval)))
	}
	if up := relayComponents.Upstream(); up != nil {
		ingestTokens = append(ingestTokens, tree.AddIngestService(up))
	}

	// Delivery layer.
	tree.AddDeliveryService(services.NewHubService(hub))
	if pub := relayComponents.Publisher(); pub != nil {
		tree.AddDeliveryService(pub)
	}

	// API layer.
	handler := api.NewHandler(api.Deps{
		Store:       store,
		Blacklist:   bl,
		DB:          db,
		Stream:      streamStatus(stream),
		Clients:     hub,
		DeadLetters: deadLetterLister(journal),
	})
	mw := api.NewChiMiddleware(api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	})
	router := api.NewRouter(handler, ws.NewHandler(hub, engine, cfg.Server.CORSOrigins), mw)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
	httpToken := tree.AddAPIService(services.NewHTTPServerService(httpServer, addr, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	go func() {
		<-sigCtx.Done()
		shutdown.Trigger(supervisor.ExitVoluntary, "signal")
	}()

	logging.Info().Str("addr", addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)
	treeDone := make(chan struct{})
	go func() {
		defer close(treeDone)
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree stopped unexpectedly")
		}
		// No-op when shutdown is already under way.
		shutdown.Trigger(supervisor.ExitPolicy, "supervisor stopped")
	}()

	<-shutdown.Requested()
	stopSignals()

	// Pollers and upstream first so nothing new arrives, then the live
	// stream, then HTTP, then everything else the tree still runs.
	shutdown.Add("pollers", func(context.Context) error {
		var errs []error
		for _, token := range ingestTokens {
			if err := tree.StopIngest(token); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	if stream != nil {
		shutdown.Add("live stream", func(context.Context) error {
			return tree.StopIngest(streamToken)
		})
	}
	shutdown.Add("http server", func(context.Context) error {
		return tree.StopAPI(httpToken)
	})
	shutdown.Add("supervisor tree", func(stepCtx context.Context) error {
		cancel()
		select {
		case <-treeDone:
		case <-stepCtx.Done():
			return fmt.Errorf("supervisor tree: %w", stepCtx.Err())
		}
		engine.Wait()
		if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
			for _, svc := range unstopped {
				logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
			}
		}
		return nil
	})
	shutdown.Add("relay", relayComponents.Shutdown)
	shutdown.Add("database", func(stepCtx context.Context) error {
		if err := db.Checkpoint(stepCtx); err != nil {
			logging.Warn().Err(err).Msg("Final checkpoint failed")
		}
		return db.Close()
	})
	if journal != nil {
		shutdown.Add("dead-letter journal", func(context.Context) error {
			return journal.Close()
		})
	}

	os.Exit(shutdown.Run())
}

// streamStatus avoids handing a typed nil to the health handler.
func streamStatus(s *supervisor.StreamService) api.StreamStatus {
	if s == nil {
		return nil
	}
	return s
}

func deadLetterLister(j *deadletter.Journal) api.DeadLetterLister {
	if j == nil {
		return nil
	}
	return j
}

func closeQuietly(what string, fn func() error) {
	if err := fn(); err != nil {
		logging.Error().Err(err).Str("component", what).Msg("Close failed")
	}
}
