// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package presence tracks per-subject presence state.
//
// The tracker is a sharded state machine: a recognized detection marks the
// subject present, and a periodic sweep flips subjects to absent once their
// last sighting falls outside the grace interval. Shard-level locking keeps
// one subject's update from serializing the rest of the fleet.
package presence

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/vigil/internal/intake"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/roster"
)

// Status is a subject's presence status.
type Status string

const (
	// StatusUnknown means the subject has never been sighted.
	StatusUnknown Status = "unknown"

	// StatusPresent means the subject was sighted within the grace interval.
	StatusPresent Status = "present"

	// StatusAbsent means the subject's last sighting is older than the
	// grace interval.
	StatusAbsent Status = "absent"
)

// State is the tracked presence state for one subject.
type State struct {
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name,omitempty"`
	Status      Status    `json:"status"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	LastCamera  string    `json:"last_camera,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// Change records a presence status transition.
type Change struct {
	SubjectID   string
	SubjectName string
	From        Status
	To          Status
	CameraID    string
	Location    string
	At          time.Time
}

// Absentee describes a subject currently marked absent.
type Absentee struct {
	SubjectID   string
	SubjectName string
	LastSeenAt  time.Time
	LastCamera  string
	Duration    time.Duration
}

const trackerShards = 16

type trackerShard struct {
	mu     sync.RWMutex
	states map[string]*State
}

// Tracker holds presence state for all tracked subjects.
type Tracker struct {
	shards [trackerShards]*trackerShard
	grace  time.Duration
}

// NewTracker creates a tracker with the given absence grace interval.
// Registered roster subjects are pre-seeded with StatusUnknown so that
// presence listings cover the whole faculty from the first request.
func NewTracker(grace time.Duration, ros *roster.Roster) *Tracker {
	t := &Tracker{grace: grace}
	for i := range t.shards {
		t.shards[i] = &trackerShard{states: make(map[string]*State)}
	}
	if ros != nil {
		for _, s := range ros.Subjects() {
			sh := t.shard(s.ID)
			sh.states[s.ID] = &State{
				SubjectID:   s.ID,
				SubjectName: s.Name,
				Status:      StatusUnknown,
			}
		}
	}
	return t
}

func (t *Tracker) shard(subjectID string) *trackerShard {
	h := fnv.New32a()
	h.Write([]byte(subjectID))
	return t.shards[h.Sum32()%trackerShards]
}

// Observe applies a recognized detection event and returns a Change when the
// subject's status flipped to present, or nil for a same-status refresh.
// Non-recognition events never touch presence state.
func (t *Tracker) Observe(ev *intake.Event) *Change {
	if ev == nil || ev.Kind != intake.KindRecognized || ev.SubjectID == "" {
		return nil
	}

	sh := t.shard(ev.SubjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.states[ev.SubjectID]
	if !ok {
		st = &State{SubjectID: ev.SubjectID, Status: StatusUnknown}
		sh.states[ev.SubjectID] = st
	}
	if ev.SubjectName != "" {
		st.SubjectName = ev.SubjectName
	}

	// Events can arrive out of order; keep the newest sighting.
	if ev.CapturedAt.After(st.LastSeenAt) {
		st.LastSeenAt = ev.CapturedAt
		st.LastCamera = ev.CameraID
		st.Location = ev.Location
	}

	if st.Status == StatusPresent {
		return nil
	}

	from := st.Status
	st.Status = StatusPresent

	return &Change{
		SubjectID:   st.SubjectID,
		SubjectName: st.SubjectName,
		From:        from,
		To:          StatusPresent,
		CameraID:    ev.CameraID,
		Location:    ev.Location,
		At:          ev.CapturedAt,
	}
}

// Sweep marks subjects absent whose last sighting is older than the grace
// interval. It returns the transitions made this tick and the full absentee
// list with absence durations for downstream rule evaluation.
func (t *Tracker) Sweep(now time.Time) ([]Change, []Absentee) {
	start := time.Now()
	var changes []Change
	var absentees []Absentee

	for _, sh := range t.shards {
		sh.mu.Lock()
		for _, st := range sh.states {
			if st.Status == StatusPresent && now.Sub(st.LastSeenAt) > t.grace {
				st.Status = StatusAbsent
				changes = append(changes, Change{
					SubjectID:   st.SubjectID,
					SubjectName: st.SubjectName,
					From:        StatusPresent,
					To:          StatusAbsent,
					CameraID:    st.LastCamera,
					Location:    st.Location,
					At:          now,
				})
			}
			if st.Status == StatusAbsent {
				absentees = append(absentees, Absentee{
					SubjectID:   st.SubjectID,
					SubjectName: st.SubjectName,
					LastSeenAt:  st.LastSeenAt,
					LastCamera:  st.LastCamera,
					Duration:    now.Sub(st.LastSeenAt),
				})
			}
		}
		sh.mu.Unlock()
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].SubjectID < changes[j].SubjectID })
	sort.Slice(absentees, func(i, j int) bool { return absentees[i].SubjectID < absentees[j].SubjectID })

	metrics.RecordSweep(time.Since(start))
	for _, c := range changes {
		metrics.SweepTransitions.WithLabelValues(string(c.To)).Inc()
	}
	t.recordGauges()

	return changes, absentees
}

// Snapshot returns a copy of all tracked states sorted by subject ID.
// Readers never block concurrent Observe calls on other shards.
func (t *Tracker) Snapshot() []State {
	var out []State
	for _, sh := range t.shards {
		sh.mu.RLock()
		for _, st := range sh.states {
			out = append(out, *st)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// State returns the current state for one subject.
func (t *Tracker) State(subjectID string) (State, bool) {
	sh := t.shard(subjectID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.states[subjectID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

func (t *Tracker) recordGauges() {
	counts := map[Status]int{}
	for _, sh := range t.shards {
		sh.mu.RLock()
		for _, st := range sh.states {
			counts[st.Status]++
		}
		sh.mu.RUnlock()
	}
	for _, s := range []Status{StatusUnknown, StatusPresent, StatusAbsent} {
		metrics.PresenceSubjects.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
