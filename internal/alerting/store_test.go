// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package alerting

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var storeClock = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	s := NewStore(nil)
	s.now = func() time.Time { return storeClock }
	return s
}

func absenceAlert(subjectID, name string) *Alert {
	return &Alert{
		Type:        TypeAbsence,
		Priority:    PriorityMedium,
		SubjectID:   subjectID,
		SubjectName: name,
		CameraID:    "cam-lobby",
		Description: name + " has not been seen for 2h10m",
	}
}

func TestCreateOrGetDedup(t *testing.T) {
	s := newTestStore()

	first, created := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))
	if !created {
		t.Fatal("expected creation")
	}
	if first.Status != StatusActive {
		t.Errorf("status = %q", first.Status)
	}
	if first.ID == 0 {
		t.Error("expected assigned ID")
	}

	second, created := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))
	if created {
		t.Fatal("duplicate qualifying condition must not create a second alert")
	}
	if second.ID != first.ID {
		t.Errorf("dedup returned id %d, want %d", second.ID, first.ID)
	}

	// Different subject gets its own alert.
	other, created := s.CreateOrGet(absenceAlert("fac-002", "Dr. Omar Haddad"))
	if !created || other.ID == first.ID {
		t.Errorf("expected distinct alert, got created=%v id=%d", created, other.ID)
	}
}

func TestDedupScopePerCameraForUnknown(t *testing.T) {
	s := newTestStore()

	a, _ := s.CreateOrGet(&Alert{Type: TypeUnknownPerson, Priority: PriorityMedium, CameraID: "cam-lobby"})
	b, created := s.CreateOrGet(&Alert{Type: TypeUnknownPerson, Priority: PriorityMedium, CameraID: "cam-lobby"})
	if created || b.ID != a.ID {
		t.Errorf("same-camera unknown alerts must dedup: created=%v", created)
	}

	c, created := s.CreateOrGet(&Alert{Type: TypeUnknownPerson, Priority: PriorityMedium, CameraID: "cam-201"})
	if !created || c.ID == a.ID {
		t.Error("different camera must get its own alert")
	}
}

func TestGetUnknownID(t *testing.T) {
	s := newTestStore()

	_, err := s.Get(42)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if nf.ID != 42 {
		t.Errorf("error id = %d", nf.ID)
	}
}

func TestTransitionLifecycle(t *testing.T) {
	s := newTestStore()
	a, _ := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))

	resolved, err := s.Transition(a.ID, StatusResolved, ModeOperator)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.ClosedBy != ModeOperator {
		t.Errorf("resolved = %+v", resolved)
	}
	if resolved.ClosedAt.IsZero() {
		t.Error("expected closed timestamp")
	}

	// Terminal states are final.
	_, err = s.Transition(a.ID, StatusDismissed, ModeOperator)
	var it *InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected *InvalidTransitionError, got %v", err)
	}
	if it.From != StatusResolved || it.To != StatusDismissed {
		t.Errorf("error transition %s -> %s", it.From, it.To)
	}

	// A fresh qualifying condition after resolution creates a new alert.
	fresh, created := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))
	if !created {
		t.Fatal("expected new alert after resolution")
	}
	if fresh.ID == a.ID {
		t.Error("new alert must get a new id")
	}
}

func TestTransitionRejectsNonTerminalTarget(t *testing.T) {
	s := newTestStore()
	a, _ := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))

	if _, err := s.Transition(a.ID, StatusActive, ModeOperator); err == nil {
		t.Error("transition to active must fail")
	}
}

func TestEscalateInPlace(t *testing.T) {
	s := newTestStore()
	a, _ := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))

	esc, changed, err := s.Escalate(a.ID, PriorityHigh)
	if err != nil || !changed {
		t.Fatalf("escalate: changed=%v err=%v", changed, err)
	}
	if esc.ID != a.ID {
		t.Errorf("escalation changed id %d -> %d", a.ID, esc.ID)
	}
	if esc.Priority != PriorityHigh {
		t.Errorf("priority = %q", esc.Priority)
	}

	// Lower or equal priorities are no-ops.
	if _, changed, _ := s.Escalate(a.ID, PriorityMedium); changed {
		t.Error("downgrade must be a no-op")
	}
	if _, changed, _ := s.Escalate(a.ID, PriorityHigh); changed {
		t.Error("repeat escalation must be a no-op")
	}

	// Terminal alerts never change priority.
	s.Transition(a.ID, StatusDismissed, ModeOperator)
	if _, changed, _ := s.Escalate(a.ID, PriorityHigh); changed {
		t.Error("terminal alert must not escalate")
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	s := newTestStore()
	a, _ := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			to := StatusResolved
			if n%2 == 0 {
				to = StatusDismissed
			}
			_, err := s.Transition(a.ID, to, ModeOperator)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	winners := 0
	for err := range errs {
		if err == nil {
			winners++
			continue
		}
		var it *InvalidTransitionError
		if !errors.As(err, &it) {
			t.Errorf("loser got %v, want *InvalidTransitionError", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestListFiltersAndOrder(t *testing.T) {
	s := NewStore(nil)
	tick := storeClock
	s.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	a1, _ := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))
	a2, _ := s.CreateOrGet(&Alert{
		Type: TypeUnknownPerson, Priority: PriorityMedium,
		CameraID: "cam-lobby", Location: "Lobby",
		Description: "Unknown person detected at Lobby",
	})
	a3, _ := s.CreateOrGet(&Alert{
		Type: TypeSystemError, Priority: PriorityMedium,
		CameraID: "cam-201", Description: "Camera feed error at cam-201",
	})
	s.Transition(a1.ID, StatusResolved, ModeAuto)

	all, total := s.List(Filter{})
	if total != 3 || len(all) != 3 {
		t.Fatalf("total = %d len = %d", total, len(all))
	}
	// Newest first.
	if all[0].ID != a3.ID || all[2].ID != a1.ID {
		t.Errorf("order = [%d %d %d]", all[0].ID, all[1].ID, all[2].ID)
	}

	active, total := s.List(Filter{Status: StatusActive})
	if total != 2 || len(active) != 2 {
		t.Errorf("active total = %d", total)
	}

	unknowns, _ := s.List(Filter{Type: TypeUnknownPerson})
	if len(unknowns) != 1 || unknowns[0].ID != a2.ID {
		t.Errorf("type filter = %v", unknowns)
	}

	byQuery, _ := s.List(Filter{Query: "lobby"})
	if len(byQuery) != 2 {
		t.Errorf("query matched %d, want 2", len(byQuery))
	}

	byName, _ := s.List(Filter{Query: "ada"})
	if len(byName) != 1 || byName[0].ID != a1.ID {
		t.Errorf("name query = %v", byName)
	}

	paged, total := s.List(Filter{Limit: 1, Offset: 1})
	if total != 3 || len(paged) != 1 || paged[0].ID != a2.ID {
		t.Errorf("paged = %v total = %d", paged, total)
	}

	empty, total := s.List(Filter{Offset: 10})
	if total != 3 || len(empty) != 0 {
		t.Errorf("overflow offset = %v", empty)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore()

	a1, _ := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))
	s.CreateOrGet(absenceAlert("fac-002", "Dr. Omar Haddad"))
	s.CreateOrGet(&Alert{Type: TypeUnknownPerson, Priority: PriorityHigh, CameraID: "cam-lobby"})
	s.Transition(a1.ID, StatusDismissed, ModeOperator)

	st := s.Stats()
	if st.Total != 3 {
		t.Errorf("total = %d", st.Total)
	}
	if st.ByStatus["active"] != 2 || st.ByStatus["dismissed"] != 1 {
		t.Errorf("by status = %v", st.ByStatus)
	}
	if st.ActiveByPriority["medium"] != 1 || st.ActiveByPriority["high"] != 1 {
		t.Errorf("active by priority = %v", st.ActiveByPriority)
	}
	if st.ActiveByType["absence"] != 1 || st.ActiveByType["unknown_person"] != 1 {
		t.Errorf("active by type = %v", st.ActiveByType)
	}
}
