// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package alerting

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
)

const storeShards = 16

// shardMask extracts the shard index embedded in an alert ID.
const shardMask = storeShards - 1

type storeShard struct {
	mu     sync.RWMutex
	alerts map[uint64]*Alert
	// active maps dedup keys to the single active alert per key.
	active map[string]uint64
}

// Store is the authoritative alert set.
//
// Alerts are sharded by dedup key; the shard index is embedded in the low
// bits of the alert ID so per-id operations find their shard without a
// global lookup. Writes serialize per shard, reads copy on read.
type Store struct {
	shards  [storeShards]*storeShard
	seq     atomic.Uint64
	journal Journal

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewStore creates an empty store. journal may be nil for tests.
func NewStore(journal Journal) *Store {
	s := &Store{
		journal: journal,
		now:     time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &storeShard{
			alerts: make(map[uint64]*Alert),
			active: make(map[string]uint64),
		}
	}
	return s
}

// dedupKey identifies the at-most-one-active scope for an alert: per
// subject for absence, per camera for unknown-person and system errors.
func dedupKey(t Type, subjectID, cameraID string) string {
	if t == TypeAbsence {
		return string(t) + "|" + subjectID
	}
	return string(t) + "|" + cameraID
}

func shardIndex(key string) uint64 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return uint64(h.Sum32()) & shardMask
}

// CreateOrGet creates an alert, or returns the existing active alert for
// the same dedup scope. The returned bool reports whether a new alert was
// created. The caller fills Type, Priority, SubjectID/CameraID, names,
// and Description; the store assigns ID, Status, and timestamps.
func (s *Store) CreateOrGet(a *Alert) (*Alert, bool) {
	key := dedupKey(a.Type, a.SubjectID, a.CameraID)
	idx := shardIndex(key)
	sh := s.shards[idx]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if id, ok := sh.active[key]; ok {
		metrics.AlertsDeduplicated.WithLabelValues(string(a.Type)).Inc()
		return sh.alerts[id].clone(), false
	}

	now := s.now().UTC()
	a.ID = s.seq.Add(1)<<4 | idx
	a.Status = StatusActive
	a.CreatedAt = now
	a.UpdatedAt = now

	sh.alerts[a.ID] = a
	sh.active[key] = a.ID

	s.append(a)
	metrics.RecordAlertCreated(string(a.Type), string(a.Priority))

	return a.clone(), true
}

// Get returns the alert with the given ID.
func (s *Store) Get(id uint64) (*Alert, error) {
	sh := s.shards[id&shardMask]
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	a, ok := sh.alerts[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return a.clone(), nil
}

// Escalate raises an active alert's priority in place, keeping its ID.
// Lower or equal priorities and terminal alerts are no-ops.
func (s *Store) Escalate(id uint64, p Priority) (*Alert, bool, error) {
	sh := s.shards[id&shardMask]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	a, ok := sh.alerts[id]
	if !ok {
		return nil, false, &NotFoundError{ID: id}
	}
	if a.Status != StatusActive || p.rank() <= a.Priority.rank() {
		return a.clone(), false, nil
	}

	a.Priority = p
	a.UpdatedAt = s.now().UTC()

	s.append(a)
	metrics.RecordAlertEscalated(string(a.Type))

	return a.clone(), true, nil
}

// Touch refreshes an active alert's UpdatedAt, marking a repeated
// qualifying condition against the same alert.
func (s *Store) Touch(id uint64) (*Alert, error) {
	sh := s.shards[id&shardMask]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	a, ok := sh.alerts[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if a.Status != StatusActive {
		return a.clone(), nil
	}

	a.UpdatedAt = s.now().UTC()
	s.append(a)

	return a.clone(), nil
}

// Transition moves an active alert to a terminal status. mode is
// ModeOperator or ModeAuto and is retained on the record. Transitioning
// an already-terminal alert fails with *InvalidTransitionError.
func (s *Store) Transition(id uint64, to Status, mode string) (*Alert, error) {
	if to != StatusResolved && to != StatusDismissed {
		return nil, &InvalidTransitionError{ID: id, To: to}
	}

	sh := s.shards[id&shardMask]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	a, ok := sh.alerts[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if a.Status != StatusActive {
		return nil, &InvalidTransitionError{ID: id, From: a.Status, To: to}
	}

	now := s.now().UTC()
	a.Status = to
	a.UpdatedAt = now
	a.ClosedAt = now
	a.ClosedBy = mode

	delete(sh.active, dedupKey(a.Type, a.SubjectID, a.CameraID))
	s.append(a)

	if to == StatusResolved {
		metrics.RecordAlertResolved(string(a.Type), mode)
	} else {
		metrics.RecordAlertDismissed(string(a.Type))
	}

	return a.clone(), nil
}

// ActiveFor returns the active alert for a dedup scope, if any.
func (s *Store) ActiveFor(t Type, subjectID, cameraID string) (*Alert, bool) {
	key := dedupKey(t, subjectID, cameraID)
	sh := s.shards[shardIndex(key)]

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	id, ok := sh.active[key]
	if !ok {
		return nil, false
	}
	return sh.alerts[id].clone(), true
}

// Filter selects alerts for listing. Zero values match everything.
type Filter struct {
	Status   Status
	Priority Priority
	Type     Type
	// Query matches subject, camera, location, and description text
	// case-insensitively.
	Query  string
	Limit  int
	Offset int
}

// List returns alerts matching the filter, newest first, plus the total
// match count before pagination.
func (s *Store) List(f Filter) ([]*Alert, int) {
	query := strings.ToLower(strings.TrimSpace(f.Query))

	var matched []*Alert
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, a := range sh.alerts {
			if f.Status != "" && a.Status != f.Status {
				continue
			}
			if f.Priority != "" && a.Priority != f.Priority {
				continue
			}
			if f.Type != "" && a.Type != f.Type {
				continue
			}
			if query != "" && !matchesQuery(a, query) {
				continue
			}
			matched = append(matched, a.clone())
		}
		sh.mu.RUnlock()
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, total
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	return matched, total
}

func matchesQuery(a *Alert, query string) bool {
	for _, field := range []string{
		a.SubjectID, a.SubjectName, a.CameraID, a.Location, a.Description,
		strconv.FormatUint(a.ID, 10),
	} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Stats summarizes the alert set.
type Stats struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	ActiveByPriority map[string]int `json:"active_by_priority"`
	ActiveByType     map[string]int `json:"active_by_type"`
}

// Stats returns counts by status, and by priority and type for active
// alerts.
func (s *Store) Stats() Stats {
	st := Stats{
		ByStatus:         map[string]int{},
		ActiveByPriority: map[string]int{},
		ActiveByType:     map[string]int{},
	}

	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, a := range sh.alerts {
			st.Total++
			st.ByStatus[string(a.Status)]++
			if a.Status == StatusActive {
				st.ActiveByPriority[string(a.Priority)]++
				st.ActiveByType[string(a.Type)]++
			}
		}
		sh.mu.RUnlock()
	}

	return st
}

// Load replays the journal into an empty store and restores the sequence
// counter and active-alert index. Call before starting writers.
func (s *Store) Load() error {
	if s.journal == nil {
		return nil
	}

	var maxSeq uint64
	var active int

	err := s.journal.Replay(func(a *Alert) error {
		sh := s.shards[a.ID&shardMask]
		sh.alerts[a.ID] = a
		if a.Status == StatusActive {
			sh.active[dedupKey(a.Type, a.SubjectID, a.CameraID)] = a.ID
			active++
		}
		if seq := a.ID >> 4; seq > maxSeq {
			maxSeq = seq
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.seq.Store(maxSeq)
	metrics.AlertsActive.Set(float64(active))

	logging.Info().
		Uint64("max_seq", maxSeq).
		Int("active", active).
		Msg("alert store loaded from journal")

	return nil
}

// append journals an alert's latest state. Journal failures are logged
// but never fail the in-memory write; alert state is authoritative.
func (s *Store) append(a *Alert) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(a.clone()); err != nil {
		logging.Error().Err(err).Uint64("alert_id", a.ID).Msg("failed to journal alert")
	}
}
