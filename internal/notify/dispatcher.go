// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/vigil/internal/alerting"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
)

// Config holds dispatcher settings.
type Config struct {
	// QueueSize bounds the pending delivery queue. When full, the newest
	// delivery is dropped with a warning rather than blocking ingestion.
	QueueSize int

	// MaxAttempts is the per-notifier attempt budget per delivery.
	MaxAttempts int

	// RetryBackoff is the initial backoff, doubled per failed attempt.
	RetryBackoff time.Duration

	// RatePerMinute caps deliveries per notifier.
	RatePerMinute int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:     256,
		MaxAttempts:   3,
		RetryBackoff:  time.Second,
		RatePerMinute: 30,
	}
}

// managedNotifier pairs a notifier with its circuit breaker and limiter.
type managedNotifier struct {
	notifier Notifier
	breaker  *gobreaker.CircuitBreaker[struct{}]
	limiter  *rate.Limiter
}

// Dispatcher fans alert notifications out to the configured notifiers.
//
// It implements alerting.Publisher: created and escalated alerts are
// enqueued, other updates are ignored. The queue is drained by Serve.
type Dispatcher struct {
	cfg       Config
	queue     chan *Delivery
	notifiers []*managedNotifier
}

// NewDispatcher creates a dispatcher over the given notifiers.
func NewDispatcher(cfg Config, notifiers ...Notifier) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg = DefaultConfig()
	}

	d := &Dispatcher{
		cfg:   cfg,
		queue: make(chan *Delivery, cfg.QueueSize),
	}
	for _, n := range notifiers {
		d.notifiers = append(d.notifiers, newManagedNotifier(n, cfg))
	}
	return d
}

func newManagedNotifier(n Notifier, cfg Config) *managedNotifier {
	name := n.Name()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("notifier", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("notifier circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	perSecond := rate.Limit(float64(cfg.RatePerMinute) / 60.0)
	if cfg.RatePerMinute <= 0 {
		perSecond = rate.Inf
	}

	return &managedNotifier{
		notifier: n,
		breaker:  breaker,
		limiter:  rate.NewLimiter(perSecond, max(cfg.RatePerMinute/6, 1)),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// AlertCreated implements alerting.Publisher.
func (d *Dispatcher) AlertCreated(a *alerting.Alert) {
	d.enqueue(a, EventCreated)
}

// AlertEscalated implements alerting.Publisher.
func (d *Dispatcher) AlertEscalated(a *alerting.Alert) {
	d.enqueue(a, EventEscalated)
}

// AlertUpdated implements alerting.Publisher. Plain updates are not
// notified externally.
func (d *Dispatcher) AlertUpdated(a *alerting.Alert) {}

func (d *Dispatcher) enqueue(a *alerting.Alert, event string) {
	if len(d.notifiers) == 0 {
		return
	}

	delivery := &Delivery{
		ID:        uuid.New().String(),
		Event:     event,
		Alert:     a,
		Timestamp: time.Now().UTC(),
		Source:    "vigil",
	}

	select {
	case d.queue <- delivery:
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
	default:
		metrics.DispatchDropped.Inc()
		logging.Warn().
			Uint64("alert_id", a.ID).
			Str("event", event).
			Int("queue_size", d.cfg.QueueSize).
			Msg("notification queue full, dropping delivery")
	}
}

// Serve implements suture.Service. It drains the queue until the context
// is canceled, then flushes pending deliveries with a bounded grace period.
func (d *Dispatcher) Serve(ctx context.Context) error {
	logging.Info().
		Int("notifiers", len(d.notifiers)).
		Int("queue_size", d.cfg.QueueSize).
		Msg("notification dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.flush()
			return ctx.Err()
		case delivery := <-d.queue:
			metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
			d.deliverAll(ctx, delivery)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (d *Dispatcher) String() string {
	return "notify-dispatcher"
}

// flush sends whatever is still queued, bounded by a grace period so
// shutdown cannot hang on a dead notifier.
func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case delivery := <-d.queue:
			d.deliverAll(ctx, delivery)
		default:
			logging.Info().Msg("notification dispatcher flushed")
			return
		}
		if ctx.Err() != nil {
			logging.Warn().
				Int("pending", len(d.queue)).
				Msg("notification flush timed out")
			return
		}
	}
}

// deliverAll attempts the delivery on every notifier independently; one
// notifier's failure never blocks another's delivery.
func (d *Dispatcher) deliverAll(ctx context.Context, delivery *Delivery) {
	for _, mn := range d.notifiers {
		d.deliver(ctx, mn, delivery)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, mn *managedNotifier, delivery *Delivery) {
	name := mn.notifier.Name()

	if err := mn.limiter.Wait(ctx); err != nil {
		metrics.RecordDispatch(name, "rate_limited", 0)
		return
	}

	backoff := d.cfg.RetryBackoff
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		_, err := mn.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, mn.notifier.Send(ctx, delivery)
		})
		if err == nil {
			metrics.RecordDispatch(name, "ok", time.Since(start))
			logging.Debug().
				Str("notifier", name).
				Str("delivery_id", delivery.ID).
				Uint64("alert_id", delivery.Alert.ID).
				Msg("notification delivered")
			return
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordDispatch(name, "circuit_open", time.Since(start))
			logging.Debug().
				Str("notifier", name).
				Str("delivery_id", delivery.ID).
				Msg("notifier circuit open, skipping delivery")
			return
		}

		metrics.RecordDispatch(name, "error", time.Since(start))
		logging.Warn().
			Err(err).
			Str("notifier", name).
			Str("delivery_id", delivery.ID).
			Int("attempt", attempt).
			Msg("notification attempt failed")

		if attempt == d.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	logging.Error().
		Str("notifier", name).
		Str("delivery_id", delivery.ID).
		Uint64("alert_id", delivery.Alert.ID).
		Int("attempts", d.cfg.MaxAttempts).
		Msg("notification dropped after retries")
}

// QueueDepth returns the number of pending deliveries, for diagnostics.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}
