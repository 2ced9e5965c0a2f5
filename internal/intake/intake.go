// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/roster"
	"github.com/tomtom215/vigil/internal/validation"
)

// Config holds intake validation settings.
type Config struct {
	// ConfidenceFloor is the minimum confidence for recognized events.
	ConfidenceFloor float64

	// MaxClockSkew bounds how far CapturedAt may run ahead of server time.
	// Events captured in the past are accepted regardless of age.
	MaxClockSkew time.Duration

	// DedupWindow is how long event fingerprints are remembered.
	DedupWindow time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceFloor: 0.8,
		MaxClockSkew:    2 * time.Second,
		DedupWindow:     time.Second,
	}
}

// Service validates and normalizes raw detection events.
type Service struct {
	roster *roster.Roster
	dedup  *dedupIndex
	cfg    Config

	// now is injectable for deterministic tests.
	now func() time.Time
}

// New creates an intake service backed by the given roster.
func New(ros *roster.Roster, cfg Config) *Service {
	if cfg.ConfidenceFloor == 0 && cfg.MaxClockSkew == 0 && cfg.DedupWindow == 0 {
		cfg = DefaultConfig()
	}
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = DefaultConfig().MaxClockSkew
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultConfig().DedupWindow
	}

	return &Service{
		roster: ros,
		dedup:  newDedupIndex(cfg.DedupWindow),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Ingest validates a raw event and returns the normalized Event.
//
// A duplicate within the dedup window returns (nil, nil): the submission is
// acknowledged but has no further effect. Validation failures return a
// *InvalidEventError; the caller logs and moves on, a bad event never stops
// the pipeline.
func (s *Service) Ingest(raw *RawEvent) (*Event, error) {
	if verr := validation.ValidateStruct(raw); verr != nil {
		first := verr.Errors()[0]
		metrics.RecordIntakeRejected(ReasonSchema)
		return nil, &InvalidEventError{
			Field:   strings.ToLower(first.Field()),
			Reason:  ReasonSchema,
			Message: first.Error(),
		}
	}

	now := s.now()
	kind := Kind(raw.Kind)

	// A capture stamped in the future beyond the skew tolerance means a
	// misconfigured camera clock that would corrupt last-seen tracking.
	// Late events are valid input: delivery is out-of-order at-least-once,
	// and the tracker reconciles stale sightings itself.
	if ahead := raw.CapturedAt.Sub(now); ahead > s.cfg.MaxClockSkew {
		metrics.RecordIntakeRejected(ReasonClockSkew)
		return nil, &InvalidEventError{
			Field:  "captured_at",
			Reason: ReasonClockSkew,
			Message: fmt.Sprintf("capture time is %s ahead of server time (max skew %s)",
				ahead.Round(time.Second), s.cfg.MaxClockSkew),
		}
	}

	if !s.roster.KnownCamera(raw.CameraID) {
		metrics.RecordIntakeRejected(ReasonUnknownCamera)
		return nil, &InvalidEventError{
			Field:   "camera_id",
			Reason:  ReasonUnknownCamera,
			Message: fmt.Sprintf("camera %q is not registered", raw.CameraID),
		}
	}

	if kind == KindRecognized {
		if _, ok := s.roster.Subject(raw.SubjectID); !ok {
			metrics.RecordIntakeRejected(ReasonUnknownSubject)
			return nil, &InvalidEventError{
				Field:   "subject_id",
				Reason:  ReasonUnknownSubject,
				Message: fmt.Sprintf("subject %q is not registered", raw.SubjectID),
			}
		}
		if raw.Confidence < s.cfg.ConfidenceFloor {
			metrics.RecordIntakeRejected(ReasonConfidence)
			return nil, &InvalidEventError{
				Field:  "confidence",
				Reason: ReasonConfidence,
				Message: fmt.Sprintf("confidence %.2f below floor %.2f",
					raw.Confidence, s.cfg.ConfidenceFloor),
			}
		}
	}

	// Fingerprint on capture second so a retried delivery of the same
	// detection is idempotent.
	fp := fmt.Sprintf("%s|%s|%s|%d", raw.CameraID, raw.Kind, raw.SubjectID,
		raw.CapturedAt.UTC().Unix())
	if s.dedup.seen(fp, now) {
		metrics.RecordIntakeDeduplicated()
		logging.Debug().
			Str("camera_id", raw.CameraID).
			Str("kind", raw.Kind).
			Msg("duplicate detection event suppressed")
		return nil, nil
	}

	ev := &Event{
		ID:          uuid.New().String(),
		Kind:        kind,
		CameraID:    raw.CameraID,
		Location:    s.roster.CameraLocation(raw.CameraID),
		SubjectID:   raw.SubjectID,
		SubjectName: s.roster.SubjectName(raw.SubjectID),
		Confidence:  raw.Confidence,
		Detail:      raw.Detail,
		CapturedAt:  raw.CapturedAt.UTC(),
		ReceivedAt:  now.UTC(),
	}
	if kind != KindRecognized {
		ev.SubjectID = raw.SubjectID
		if raw.SubjectID == "" {
			ev.SubjectName = ""
		}
	}

	metrics.RecordIntakeAccepted(string(kind))
	return ev, nil
}

// DedupSize returns the number of live fingerprints, for diagnostics.
func (s *Service) DedupSize() int {
	return s.dedup.len()
}
