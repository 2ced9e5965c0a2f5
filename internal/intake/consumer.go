// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
)

// ConsumerConfig holds NATS consumer settings.
type ConsumerConfig struct {
	URL           string
	Subject       string
	QueueGroup    string
	ReconnectWait time.Duration
}

// Consumer subscribes to raw detection events published by camera workers
// and funnels them through the intake service. A queue-group subscription
// lets multiple Vigil replicas share the subject without double-processing.
type Consumer struct {
	cfg    ConsumerConfig
	svc    *Service
	handle func(*Event)
}

// NewConsumer creates a NATS intake consumer. handle is invoked for every
// accepted event; rejected and duplicate events are counted and dropped.
func NewConsumer(cfg ConsumerConfig, svc *Service, handle func(*Event)) *Consumer {
	return &Consumer{
		cfg:    cfg,
		svc:    svc,
		handle: handle,
	}
}

// Serve implements suture.Service. It connects, subscribes, and blocks
// until the context is canceled. Connection failures return an error so the
// supervisor restarts the consumer with backoff.
func (c *Consumer) Serve(ctx context.Context) error {
	nc, err := nats.Connect(c.cfg.URL,
		nats.Name("vigil-intake"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.cfg.ReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", c.cfg.URL, err)
	}
	defer nc.Close()

	sub, err := nc.QueueSubscribe(c.cfg.Subject, c.cfg.QueueGroup, c.onMessage)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", c.cfg.Subject, err)
	}

	logging.Info().
		Str("subject", c.cfg.Subject).
		Str("queue_group", c.cfg.QueueGroup).
		Msg("intake consumer subscribed")

	<-ctx.Done()

	// Let in-flight deliveries finish before closing the connection.
	if err := sub.Drain(); err != nil {
		logging.Warn().Err(err).Msg("failed to drain intake subscription")
	}

	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (c *Consumer) String() string {
	return "intake-consumer"
}

func (c *Consumer) onMessage(m *nats.Msg) {
	var raw RawEvent
	if err := json.Unmarshal(m.Data, &raw); err != nil {
		metrics.IntakeNATSMessages.WithLabelValues("parse_failed").Inc()
		logging.Warn().Err(err).Str("subject", m.Subject).Msg("unparseable detection message")
		return
	}

	ev, err := c.svc.Ingest(&raw)
	if err != nil {
		metrics.IntakeNATSMessages.WithLabelValues("rejected").Inc()
		logging.Debug().Err(err).Str("camera_id", raw.CameraID).Msg("detection message rejected")
		return
	}
	if ev == nil {
		// Duplicate delivery, already counted by intake.
		return
	}

	metrics.IntakeNATSMessages.WithLabelValues("processed").Inc()
	c.handle(ev)
}
