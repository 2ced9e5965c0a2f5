// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package intake validates and normalizes raw detection events.
//
// Camera and inference collaborators submit RawEvent payloads over HTTP or
// NATS. Intake applies schema validation, clock-skew bounds, camera-known
// checks, a confidence floor for recognitions, and TTL-based duplicate
// suppression before handing normalized Events to the alerting engine.
// A malformed event is rejected and logged; it never halts the pipeline.
package intake

import (
	"fmt"
	"time"
)

// Kind classifies a detection event.
type Kind string

const (
	// KindRecognized is a positive identification of a registered subject.
	KindRecognized Kind = "recognized"

	// KindUnknown is a detection of an unregistered person.
	KindUnknown Kind = "unknown"

	// KindError signals a camera or inference failure.
	KindError Kind = "error"

	// KindRestore signals that a previously failed feed recovered.
	KindRestore Kind = "restore"
)

// RawEvent is the wire format submitted by camera workers.
type RawEvent struct {
	CameraID   string    `json:"camera_id" validate:"required,max=64"`
	Kind       string    `json:"kind" validate:"required,oneof=recognized unknown error restore"`
	SubjectID  string    `json:"subject_id,omitempty" validate:"required_if=Kind recognized,omitempty,max=64"`
	Confidence float64   `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	CapturedAt time.Time `json:"captured_at" validate:"required"`
	Detail     string    `json:"detail,omitempty" validate:"omitempty,max=512"`
}

// Event is a validated, normalized detection event.
type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	CameraID    string    `json:"camera_id"`
	Location    string    `json:"location,omitempty"`
	SubjectID   string    `json:"subject_id,omitempty"`
	SubjectName string    `json:"subject_name,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
	ReceivedAt  time.Time `json:"received_at"`
}

// InvalidEventError describes why a raw event was rejected.
type InvalidEventError struct {
	// Field is the offending field name, or "event" for cross-field problems.
	Field string

	// Reason is a short machine-friendly reason: schema, confidence,
	// clock_skew, unknown_camera, unknown_subject.
	Reason string

	// Message is a human-readable explanation.
	Message string
}

// Error implements the error interface.
func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Message)
}

// Rejection reasons reported by Ingest and recorded in metrics.
const (
	ReasonSchema         = "schema"
	ReasonConfidence     = "confidence"
	ReasonClockSkew      = "clock_skew"
	ReasonUnknownCamera  = "unknown_camera"
	ReasonUnknownSubject = "unknown_subject"
)
