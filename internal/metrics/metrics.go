// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package metrics provides Prometheus instrumentation for Vigil.
//
// Collectors cover the full detection pipeline:
//   - Event intake (accepted / rejected / deduplicated)
//   - Presence sweeps
//   - Alert lifecycle (created / escalated / resolved / dismissed)
//   - Notification dispatch
//   - API and WebSocket activity
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake Metrics
	IntakeEventsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_events_accepted_total",
			Help: "Total number of detection events accepted by intake",
		},
		[]string{"kind"}, // recognized, unknown, error, restore
	)

	IntakeEventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_events_rejected_total",
			Help: "Total number of detection events rejected by intake validation",
		},
		[]string{"reason"}, // schema, confidence, clock_skew, unknown_camera
	)

	IntakeEventsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_events_deduplicated_total",
			Help: "Total number of detection events suppressed as duplicates",
		},
	)

	IntakeNATSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_nats_messages_total",
			Help: "Total number of NATS messages received by the intake consumer",
		},
		[]string{"result"}, // processed, parse_failed, rejected
	)

	// Presence Metrics
	PresenceSubjects = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presence_subjects",
			Help: "Current number of tracked subjects by presence status",
		},
		[]string{"status"}, // present, absent, unknown
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "presence_sweep_duration_seconds",
			Help:    "Duration of presence sweep passes in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	SweepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_sweep_transitions_total",
			Help: "Total number of presence status transitions produced by sweeps",
		},
		[]string{"to"}, // present, absent
	)

	// Alert Lifecycle Metrics
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"type", "priority"},
	)

	AlertsEscalated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_escalated_total",
			Help: "Total number of in-place alert priority escalations",
		},
		[]string{"type"},
	)

	AlertsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_resolved_total",
			Help: "Total number of alerts resolved",
		},
		[]string{"type", "mode"}, // mode: auto, operator
	)

	AlertsDismissed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_dismissed_total",
			Help: "Total number of alerts dismissed by operators",
		},
		[]string{"type"},
	)

	AlertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alerts_active",
			Help: "Current number of active alerts",
		},
	)

	AlertsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_deduplicated_total",
			Help: "Total number of alert creations coalesced into an existing active alert",
		},
		[]string{"type"},
	)

	// Journal Metrics
	JournalWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_journal_writes_total",
			Help: "Total number of alert journal writes",
		},
		[]string{"result"}, // ok, error
	)

	// Notification Dispatch Metrics
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dispatch_attempts_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"notifier", "result"}, // result: success, failure, rejected, rate_limited
	)

	DispatchDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_dispatch_dropped_total",
			Help: "Total number of notifications dropped because the queue was full",
		},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_dispatch_queue_depth",
			Help: "Current depth of the notification dispatch queue",
		},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_dispatch_duration_seconds",
			Help:    "Duration of notification deliveries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"notifier"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages broadcast",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped due to a full broadcast channel",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordIntakeAccepted records an accepted detection event.
func RecordIntakeAccepted(kind string) {
	IntakeEventsAccepted.WithLabelValues(kind).Inc()
}

// RecordIntakeRejected records a rejected detection event with its reason.
func RecordIntakeRejected(reason string) {
	IntakeEventsRejected.WithLabelValues(reason).Inc()
}

// RecordIntakeDeduplicated records a duplicate detection event.
func RecordIntakeDeduplicated() {
	IntakeEventsDeduplicated.Inc()
}

// RecordSweep records a completed presence sweep.
func RecordSweep(duration time.Duration) {
	SweepDuration.Observe(duration.Seconds())
}

// RecordAlertCreated records a newly created alert.
func RecordAlertCreated(alertType, priority string) {
	AlertsCreated.WithLabelValues(alertType, priority).Inc()
	AlertsActive.Inc()
}

// RecordAlertEscalated records an in-place priority escalation.
func RecordAlertEscalated(alertType string) {
	AlertsEscalated.WithLabelValues(alertType).Inc()
}

// RecordAlertResolved records an alert resolution.
// mode is "auto" for rule-driven resolution and "operator" for manual.
func RecordAlertResolved(alertType, mode string) {
	AlertsResolved.WithLabelValues(alertType, mode).Inc()
	AlertsActive.Dec()
}

// RecordAlertDismissed records an operator dismissal.
func RecordAlertDismissed(alertType string) {
	AlertsDismissed.WithLabelValues(alertType).Inc()
	AlertsActive.Dec()
}

// RecordDispatch records a notification delivery attempt.
func RecordDispatch(notifier, result string, duration time.Duration) {
	DispatchAttempts.WithLabelValues(notifier, result).Inc()
	DispatchDuration.WithLabelValues(notifier).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
