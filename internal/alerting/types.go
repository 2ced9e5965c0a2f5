// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package alerting holds the alert store, the rule engine, and the badger
// journal.
//
// The store is the authoritative alert set: sharded for per-id write
// serialization, with an active-alert dedup index so repeated qualifying
// conditions update one alert instead of spawning duplicates. Status
// transitions are monotone terminal; alerts are never deleted, only
// transitioned, and every write is journaled for restart recovery.
package alerting

import (
	"fmt"
	"time"
)

// Type classifies an alert.
type Type string

const (
	// TypeAbsence is raised when a faculty member is unseen past the
	// configured threshold.
	TypeAbsence Type = "absence"

	// TypeUnknownPerson is raised on unknown-person detections.
	TypeUnknownPerson Type = "unknown_person"

	// TypeSystemError is raised on camera or inference failures.
	TypeSystemError Type = "system_error"
)

// Priority orders alerts by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// rank maps priorities to a comparable order. Unknown values rank lowest.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Status is an alert's lifecycle status.
type Status string

const (
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

// Transition modes recorded on terminal status changes.
const (
	// ModeOperator marks an explicit operator action.
	ModeOperator = "operator"

	// ModeAuto marks an automatic resolution, such as a subject
	// reappearing or a camera feed recovering.
	ModeAuto = "auto"
)

// Alert is one alert record. Terminal records are retained for audit.
type Alert struct {
	ID          uint64    `json:"id"`
	Type        Type      `json:"type"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	SubjectID   string    `json:"subject_id,omitempty"`
	SubjectName string    `json:"subject_name,omitempty"`
	CameraID    string    `json:"camera_id,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
	// ClosedBy is "operator" or "auto" for terminal alerts.
	ClosedBy string `json:"closed_by,omitempty"`
}

// clone returns a copy safe to hand outside the store's locks.
func (a *Alert) clone() *Alert {
	c := *a
	return &c
}

// NotFoundError reports an unknown alert ID.
type NotFoundError struct {
	ID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alert %d not found", e.ID)
}

// InvalidTransitionError reports an illegal status change, typically an
// operator acting on an already-terminal alert.
type InvalidTransitionError struct {
	ID   uint64
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("alert %d: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// Journal persists alert state for restart recovery. Append stores the
// alert's latest state; Replay yields every journaled alert in ID order.
type Journal interface {
	Append(a *Alert) error
	Replay(fn func(a *Alert) error) error
	Close() error
}
