// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package presence

import (
	"context"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
)

// SweepFunc receives the result of each sweep tick.
type SweepFunc func(now time.Time, changes []Change, absentees []Absentee)

// Sweeper runs the absence sweep on a fixed interval.
//
// Ticks are strictly sequential: a slow downstream handler delays the next
// tick rather than overlapping it, and a skipped tick is harmless because
// the following sweep reconciles from absolute timestamps.
type Sweeper struct {
	tracker  *Tracker
	interval time.Duration
	onSweep  SweepFunc
}

// NewSweeper creates a sweeper over the given tracker. onSweep is invoked
// after every tick, including ticks with no transitions.
func NewSweeper(tracker *Tracker, interval time.Duration, onSweep SweepFunc) *Sweeper {
	return &Sweeper{
		tracker:  tracker,
		interval: interval,
		onSweep:  onSweep,
	}
}

// Serve implements suture.Service. It sweeps until the context is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Msg("presence sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("presence sweeper stopped")
			return ctx.Err()
		case now := <-ticker.C:
			changes, absentees := s.tracker.Sweep(now)
			if len(changes) > 0 {
				logging.Debug().
					Int("transitions", len(changes)).
					Int("absentees", len(absentees)).
					Msg("presence sweep completed")
			}
			if s.onSweep != nil {
				s.onSweep(now, changes, absentees)
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Sweeper) String() string {
	return "presence-sweeper"
}
