// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package main is the entry point for the Vigil server.
//
// Vigil monitors faculty presence from camera recognition events. Detection
// events arrive over HTTP or NATS, flow through validation and presence
// tracking, and feed an alert rule engine with a durable alert store.
// Operators follow alerts over the REST API and a live websocket feed;
// high-priority alerts also go out through webhook and email notifiers.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Roster: Load the faculty subject and camera registries from YAML
//  3. Alert Store: Open the Badger journal and replay persisted alerts
//  4. Presence Tracker: Seed per-subject state from the roster
//  5. Notification Dispatcher: Configure webhook and email notifiers
//  6. Alert Engine: Wire rule evaluation to the store, hub, and dispatcher
//  7. Intake: HTTP endpoint plus optional NATS queue-group consumer
//  8. HTTP Server: REST API, websocket upgrade, health, and metrics
//
// All long-lived components run under a suture supervision tree so a crash
// in one layer is restarted without taking down the rest.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (see .env.example)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Flushes queued notifications (10s grace)
//   - Closes websocket clients and the alert journal
//
// # Example Usage
//
// Minimal run with a roster file:
//
//	export ROSTER_PATH=roster.yaml
//	./vigil
//
// With NATS intake and a webhook notifier:
//
//	export ROSTER_PATH=roster.yaml
//	export NATS_ENABLED=true
//	export NATS_URL=nats://localhost:4222
//	export WEBHOOK_ENABLED=true
//	export WEBHOOK_URL=https://hooks.example.com/vigil
//	./vigil
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/vigil/internal/alerting"
	"github.com/tomtom215/vigil/internal/api"
	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/intake"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/notify"
	"github.com/tomtom215/vigil/internal/presence"
	"github.com/tomtom215/vigil/internal/roster"
	"github.com/tomtom215/vigil/internal/supervisor"
	ws "github.com/tomtom215/vigil/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Vigil with supervisor tree")

	// Roster: faculty subjects and registered cameras
	ros, err := roster.LoadFile(cfg.Roster.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Roster.Path).Msg("Failed to load roster")
	}
	subjects, cameras := ros.Counts()
	logging.Info().
		Int("subjects", subjects).
		Int("cameras", cameras).
		Str("path", cfg.Roster.Path).
		Msg("Roster loaded")

	// Alert store with optional Badger-backed journal
	var journal alerting.Journal
	if cfg.Store.Path != "" {
		bj, err := alerting.OpenJournal(cfg.Store.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open alert journal")
		}
		defer func() {
			if err := bj.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing alert journal")
			}
		}()
		journal = bj
	} else {
		logging.Warn().Msg("Alert journal disabled, alerts will not survive restarts")
	}

	store := alerting.NewStore(journal)
	if err := store.Load(); err != nil {
		logging.Fatal().Err(err).Msg("Failed to replay alert journal")
	}

	tracker := presence.NewTracker(cfg.Presence.GraceInterval, ros)
	hub := ws.NewHub()

	// Notifiers are optional; the dispatcher is a no-op without any.
	var notifiers []notify.Notifier
	if cfg.Notify.Webhook.Enabled {
		notifiers = append(notifiers, notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:     cfg.Notify.Webhook.URL,
			Timeout: cfg.Notify.Webhook.Timeout,
		}))
		logging.Info().Str("url", cfg.Notify.Webhook.URL).Msg("Webhook notifier enabled")
	}
	if cfg.Notify.Email.Enabled {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.EmailConfig{
			Host:     cfg.Notify.Email.Host,
			Port:     cfg.Notify.Email.Port,
			Username: cfg.Notify.Email.Username,
			Password: cfg.Notify.Email.Password,
			From:     cfg.Notify.Email.From,
			To:       cfg.Notify.Email.To,
			UseTLS:   cfg.Notify.Email.UseTLS,
		}))
		logging.Info().Str("host", cfg.Notify.Email.Host).Msg("Email notifier enabled")
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		QueueSize:     cfg.Notify.QueueSize,
		MaxAttempts:   cfg.Notify.MaxAttempts,
		RetryBackoff:  cfg.Notify.RetryBackoff,
		RatePerMinute: cfg.Notify.RatePerMinute,
	}, notifiers...)

	engine := alerting.NewEngine(store, alerting.Config{
		AbsenceThreshold:        cfg.Alerting.AbsenceThreshold,
		HighPriorityThreshold:   cfg.Alerting.HighPriorityThreshold,
		UnknownConfidenceFloor:  cfg.Alerting.UnknownConfidenceFloor,
		UnknownEscalationCount:  cfg.Alerting.UnknownEscalationCount,
		UnknownEscalationWindow: cfg.Alerting.UnknownEscalationWindow,
	}, hub, dispatcher)

	// One pipeline for every accepted event, regardless of transport.
	process := func(ev *intake.Event) {
		if ch := tracker.Observe(ev); ch != nil {
			engine.HandlePresenceChange(ch)
			hub.BroadcastPresenceChange(ch)
		}
		engine.HandleEvent(ev)
	}

	intakeSvc := intake.New(ros, intake.Config{
		ConfidenceFloor: cfg.Intake.ConfidenceFloor,
		MaxClockSkew:    cfg.Intake.MaxClockSkew,
		DedupWindow:     cfg.Intake.DedupWindow,
	})

	// Sweep results feed the rule engine and the live presence feed.
	sweeper := presence.NewSweeper(tracker, cfg.Presence.SweepInterval,
		func(now time.Time, changes []presence.Change, absentees []presence.Absentee) {
			engine.HandleSweep(now, changes, absentees)
			for i := range changes {
				hub.BroadcastPresenceChange(&changes[i])
			}
		})

	handler := api.NewHandler(intakeSvc, store, engine, tracker, ros, hub, process,
		cfg.API.DefaultPageSize, cfg.API.MaxPageSize)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.CORSOrigins,
		RateLimit:      cfg.API.RateLimitReqs,
		RateWindow:     cfg.API.RateLimitWindow,
	})

	server := api.NewServer(router, api.ServerConfig{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	})

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build supervisor tree")
	}

	tree.AddPipelineService(sweeper)
	tree.AddPipelineService(dispatcher)
	tree.AddMessagingService(hub)
	if cfg.NATS.Enabled {
		tree.AddMessagingService(intake.NewConsumer(intake.ConsumerConfig{
			URL:           cfg.NATS.URL,
			Subject:       cfg.NATS.Subject,
			QueueGroup:    cfg.NATS.QueueGroup,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, intakeSvc, process))
	}
	tree.AddAPIService(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Vigil ready")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	logging.Info().Msg("Vigil stopped")
}
