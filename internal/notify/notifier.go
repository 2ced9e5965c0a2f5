// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package notify delivers alert notifications to external channels.
//
// The dispatcher consumes alert lifecycle events through a bounded queue so
// notification I/O never back-pressures ingestion. Deliveries are retried
// with exponential backoff, guarded per notifier by a circuit breaker and a
// rate limiter. Notification is advisory; alert state stays authoritative
// regardless of delivery outcome.
package notify

import (
	"context"
	"time"

	"github.com/tomtom215/vigil/internal/alerting"
)

// Delivery events.
const (
	EventCreated   = "created"
	EventEscalated = "escalated"
)

// Delivery is one notification to be sent to every configured notifier.
type Delivery struct {
	// ID is a unique delivery identifier for tracing.
	ID string `json:"delivery_id"`

	// Event is "created" or "escalated".
	Event string `json:"event"`

	Alert     *alerting.Alert `json:"alert"`
	Timestamp time.Time       `json:"timestamp"`

	// Source identifies the sending system.
	Source string `json:"source"`
}

// Notifier sends a single delivery to one external channel.
type Notifier interface {
	// Name identifies the notifier in logs and metrics.
	Name() string

	// Send delivers the notification. A returned error marks the attempt
	// failed and eligible for retry.
	Send(ctx context.Context, d *Delivery) error
}
