// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package alerting

import (
	"testing"
	"time"
)

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()

	j, err := OpenJournal(dir)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}

	s := NewStore(j)
	s.now = func() time.Time { return storeClock }

	a1, _ := s.CreateOrGet(absenceAlert("fac-001", "Dr. Ada Chen"))
	a2, _ := s.CreateOrGet(&Alert{
		Type: TypeUnknownPerson, Priority: PriorityMedium,
		CameraID: "cam-lobby", Location: "Lobby",
		Description: "Unknown person detected at Lobby",
	})
	if _, err := s.Transition(a1.ID, StatusResolved, ModeAuto); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	// Reopen and replay into a fresh store.
	j2, err := OpenJournal(dir)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j2.Close()

	restored := NewStore(j2)
	restored.now = func() time.Time { return storeClock }
	if err := restored.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	got1, err := restored.Get(a1.ID)
	if err != nil {
		t.Fatalf("get %d: %v", a1.ID, err)
	}
	if got1.Status != StatusResolved || got1.ClosedBy != ModeAuto {
		t.Errorf("restored alert = %+v", got1)
	}

	got2, err := restored.Get(a2.ID)
	if err != nil {
		t.Fatalf("get %d: %v", a2.ID, err)
	}
	if got2.Status != StatusActive {
		t.Errorf("restored status = %q", got2.Status)
	}

	// The active dedup index is rebuilt from the journal.
	if _, created := restored.CreateOrGet(&Alert{
		Type: TypeUnknownPerson, Priority: PriorityMedium, CameraID: "cam-lobby",
	}); created {
		t.Error("active unknown-person alert must still dedup after reload")
	}

	// The sequence counter resumes past journaled IDs.
	fresh, created := restored.CreateOrGet(absenceAlert("fac-002", "Dr. Omar Haddad"))
	if !created {
		t.Fatal("expected creation")
	}
	if fresh.ID>>4 <= a2.ID>>4 {
		t.Errorf("sequence did not advance: new %d, old %d", fresh.ID, a2.ID)
	}
}
