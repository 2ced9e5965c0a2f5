// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package alerting

import (
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/vigil/internal/intake"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/presence"
)

// Publisher receives alert lifecycle notifications. Implementations must
// not block; slow consumers buffer or drop on their own side.
type Publisher interface {
	AlertCreated(a *Alert)
	AlertEscalated(a *Alert)
	AlertUpdated(a *Alert)
}

// Config holds rule engine thresholds.
type Config struct {
	// AbsenceThreshold is the unseen duration that opens an absence alert.
	AbsenceThreshold time.Duration

	// HighPriorityThreshold is the unseen duration that escalates an open
	// absence alert to high priority.
	HighPriorityThreshold time.Duration

	// UnknownConfidenceFloor is the minimum confidence for unknown-person
	// detections to raise an alert.
	UnknownConfidenceFloor float64

	// UnknownEscalationCount detections on one camera within
	// UnknownEscalationWindow escalate the unknown-person alert.
	UnknownEscalationCount  int
	UnknownEscalationWindow time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AbsenceThreshold:        2 * time.Hour,
		HighPriorityThreshold:   4 * time.Hour,
		UnknownConfidenceFloor:  0.5,
		UnknownEscalationCount:  3,
		UnknownEscalationWindow: 10 * time.Minute,
	}
}

// Engine evaluates detection events and presence transitions against the
// alert rules and mutates the store accordingly. Each input produces at
// most one alert mutation; rule failures are logged, never fatal.
type Engine struct {
	store *Store
	cfg   Config
	pubs  []Publisher

	// unknownSightings tracks recent unknown-person detections per camera
	// for window-based escalation.
	mu               sync.Mutex
	unknownSightings map[string][]time.Time
}

// NewEngine creates a rule engine over the store. Publishers are notified
// after every store mutation.
func NewEngine(store *Store, cfg Config, pubs ...Publisher) *Engine {
	if cfg.AbsenceThreshold <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		store:            store,
		cfg:              cfg,
		pubs:             pubs,
		unknownSightings: make(map[string][]time.Time),
	}
}

// HandleEvent applies a normalized detection event to the alert rules.
// Recognition events are handled through presence transitions instead.
func (e *Engine) HandleEvent(ev *intake.Event) {
	switch ev.Kind {
	case intake.KindUnknown:
		e.handleUnknown(ev)
	case intake.KindError:
		e.handleError(ev)
	case intake.KindRestore:
		e.handleRestore(ev)
	}
}

func (e *Engine) handleUnknown(ev *intake.Event) {
	if ev.Confidence < e.cfg.UnknownConfidenceFloor {
		logging.Debug().
			Str("camera_id", ev.CameraID).
			Float64("confidence", ev.Confidence).
			Msg("unknown-person detection below reporting floor")
		return
	}

	recent := e.recordUnknownSighting(ev.CameraID, ev.CapturedAt)

	a, created := e.store.CreateOrGet(&Alert{
		Type:        TypeUnknownPerson,
		Priority:    PriorityMedium,
		CameraID:    ev.CameraID,
		Location:    ev.Location,
		Description: fmt.Sprintf("Unknown person detected at %s", placeLabel(ev.Location, ev.CameraID)),
	})

	if created {
		logging.Info().
			Uint64("alert_id", a.ID).
			Str("camera_id", ev.CameraID).
			Msg("unknown-person alert created")
		e.publishCreated(a)
	} else {
		if touched, err := e.store.Touch(a.ID); err == nil {
			e.publishUpdated(touched)
		}
	}

	if recent >= e.cfg.UnknownEscalationCount {
		if esc, changed, err := e.store.Escalate(a.ID, PriorityHigh); err == nil && changed {
			logging.Warn().
				Uint64("alert_id", esc.ID).
				Str("camera_id", ev.CameraID).
				Int("sightings", recent).
				Dur("window", e.cfg.UnknownEscalationWindow).
				Msg("unknown-person alert escalated")
			e.publishEscalated(esc)
		}
	}
}

// recordUnknownSighting appends a sighting and returns how many fall
// within the escalation window ending at this sighting.
func (e *Engine) recordUnknownSighting(cameraID string, at time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := at.Add(-e.cfg.UnknownEscalationWindow)
	kept := e.unknownSightings[cameraID][:0]
	for _, t := range e.unknownSightings[cameraID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, at)
	e.unknownSightings[cameraID] = kept

	return len(kept)
}

func (e *Engine) handleError(ev *intake.Event) {
	desc := fmt.Sprintf("Camera feed error at %s", placeLabel(ev.Location, ev.CameraID))
	if ev.Detail != "" {
		desc += ": " + ev.Detail
	}

	a, created := e.store.CreateOrGet(&Alert{
		Type:        TypeSystemError,
		Priority:    PriorityMedium,
		CameraID:    ev.CameraID,
		Location:    ev.Location,
		Description: desc,
	})

	if created {
		logging.Warn().
			Uint64("alert_id", a.ID).
			Str("camera_id", ev.CameraID).
			Msg("system error alert created")
		e.publishCreated(a)
		return
	}
	if touched, err := e.store.Touch(a.ID); err == nil {
		e.publishUpdated(touched)
	}
}

func (e *Engine) handleRestore(ev *intake.Event) {
	a, ok := e.store.ActiveFor(TypeSystemError, "", ev.CameraID)
	if !ok {
		return
	}

	resolved, err := e.store.Transition(a.ID, StatusResolved, ModeAuto)
	if err != nil {
		logging.Warn().Err(err).Uint64("alert_id", a.ID).Msg("failed to auto-resolve system error alert")
		return
	}

	logging.Info().
		Uint64("alert_id", resolved.ID).
		Str("camera_id", ev.CameraID).
		Msg("system error alert auto-resolved on feed restore")
	e.publishUpdated(resolved)
}

// HandlePresenceChange auto-resolves a subject's active absence alert
// when they reappear.
func (e *Engine) HandlePresenceChange(ch *presence.Change) {
	if ch == nil || ch.To != presence.StatusPresent {
		return
	}

	a, ok := e.store.ActiveFor(TypeAbsence, ch.SubjectID, "")
	if !ok {
		return
	}

	resolved, err := e.store.Transition(a.ID, StatusResolved, ModeAuto)
	if err != nil {
		logging.Warn().Err(err).Uint64("alert_id", a.ID).Msg("failed to auto-resolve absence alert")
		return
	}

	logging.Info().
		Uint64("alert_id", resolved.ID).
		Str("subject_id", ch.SubjectID).
		Str("camera_id", ch.CameraID).
		Msg("absence alert auto-resolved on return")
	e.publishUpdated(resolved)
}

// HandleSweep evaluates the absence rules against the sweep's absentee
// list, opening and escalating absence alerts as thresholds are crossed.
func (e *Engine) HandleSweep(now time.Time, changes []presence.Change, absentees []presence.Absentee) {
	for _, ab := range absentees {
		if ab.Duration < e.cfg.AbsenceThreshold {
			continue
		}

		a, created := e.store.CreateOrGet(&Alert{
			Type:      TypeAbsence,
			Priority:  PriorityMedium,
			SubjectID: ab.SubjectID,
			// Name may be empty for subjects outside the roster file.
			SubjectName: ab.SubjectName,
			CameraID:    ab.LastCamera,
			Description: fmt.Sprintf("%s has not been seen for %s",
				subjectLabel(ab.SubjectName, ab.SubjectID), ab.Duration.Round(time.Minute)),
		})
		if created {
			logging.Info().
				Uint64("alert_id", a.ID).
				Str("subject_id", ab.SubjectID).
				Dur("absence", ab.Duration).
				Msg("absence alert created")
			e.publishCreated(a)
		}

		if ab.Duration >= e.cfg.HighPriorityThreshold {
			if esc, changed, err := e.store.Escalate(a.ID, PriorityHigh); err == nil && changed {
				logging.Warn().
					Uint64("alert_id", esc.ID).
					Str("subject_id", ab.SubjectID).
					Dur("absence", ab.Duration).
					Msg("absence alert escalated")
				e.publishEscalated(esc)
			}
		}
	}
}

// Resolve transitions an alert to resolved as an operator action.
func (e *Engine) Resolve(id uint64) (*Alert, error) {
	a, err := e.store.Transition(id, StatusResolved, ModeOperator)
	if err != nil {
		return nil, err
	}
	e.forgetUnknownSightings(a)
	e.publishUpdated(a)
	return a, nil
}

// Dismiss transitions an alert to dismissed as an operator action.
func (e *Engine) Dismiss(id uint64) (*Alert, error) {
	a, err := e.store.Transition(id, StatusDismissed, ModeOperator)
	if err != nil {
		return nil, err
	}
	e.forgetUnknownSightings(a)
	e.publishUpdated(a)
	return a, nil
}

// forgetUnknownSightings drops a camera's sighting window when its
// unknown-person alert goes terminal. A closed alert ends the escalation
// window; the next detection opens a fresh alert counting from one.
func (e *Engine) forgetUnknownSightings(a *Alert) {
	if a.Type != TypeUnknownPerson {
		return
	}
	e.mu.Lock()
	delete(e.unknownSightings, a.CameraID)
	e.mu.Unlock()
}

func (e *Engine) publishCreated(a *Alert) {
	for _, p := range e.pubs {
		p.AlertCreated(a)
	}
}

func (e *Engine) publishEscalated(a *Alert) {
	for _, p := range e.pubs {
		p.AlertEscalated(a)
	}
}

func (e *Engine) publishUpdated(a *Alert) {
	for _, p := range e.pubs {
		p.AlertUpdated(a)
	}
}

func placeLabel(location, cameraID string) string {
	if location != "" {
		return location
	}
	return cameraID
}

func subjectLabel(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
