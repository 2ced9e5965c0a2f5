// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/vigil/internal/intake"
	"github.com/tomtom215/vigil/internal/roster"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func testRoster() *roster.Roster {
	return roster.New(
		[]roster.Subject{
			{ID: "fac-001", Name: "Dr. Ada Chen", Department: "CS"},
			{ID: "fac-002", Name: "Dr. Omar Haddad", Department: "Math"},
		},
		[]roster.Camera{{ID: "cam-lobby", Location: "Lobby"}},
	)
}

func recognized(subjectID, name string, at time.Time) *intake.Event {
	return &intake.Event{
		ID:          "ev-" + subjectID,
		Kind:        intake.KindRecognized,
		CameraID:    "cam-lobby",
		Location:    "Lobby",
		SubjectID:   subjectID,
		SubjectName: name,
		Confidence:  0.95,
		CapturedAt:  at,
		ReceivedAt:  at,
	}
}

func TestSeededSubjectsStartUnknown(t *testing.T) {
	tr := NewTracker(10*time.Minute, testRoster())

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}
	for _, st := range snap {
		if st.Status != StatusUnknown {
			t.Errorf("%s status = %q, want unknown", st.SubjectID, st.Status)
		}
	}
}

func TestObserveMarksPresent(t *testing.T) {
	tr := NewTracker(10*time.Minute, testRoster())

	ch := tr.Observe(recognized("fac-001", "Dr. Ada Chen", baseTime))
	if ch == nil {
		t.Fatal("expected change on first sighting")
	}
	if ch.From != StatusUnknown || ch.To != StatusPresent {
		t.Errorf("transition %s -> %s, want unknown -> present", ch.From, ch.To)
	}

	st, ok := tr.State("fac-001")
	if !ok {
		t.Fatal("state missing")
	}
	if st.Status != StatusPresent || st.LastCamera != "cam-lobby" {
		t.Errorf("state = %+v", st)
	}

	// A repeat sighting refreshes last-seen without a transition.
	if ch := tr.Observe(recognized("fac-001", "Dr. Ada Chen", baseTime.Add(time.Minute))); ch != nil {
		t.Errorf("unexpected change on refresh: %+v", ch)
	}
	st, _ = tr.State("fac-001")
	if !st.LastSeenAt.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("last seen = %s, want refreshed", st.LastSeenAt)
	}
}

func TestObserveIgnoresNonRecognition(t *testing.T) {
	tr := NewTracker(10*time.Minute, testRoster())

	ev := &intake.Event{
		Kind:       intake.KindUnknown,
		CameraID:   "cam-lobby",
		CapturedAt: baseTime,
	}
	if ch := tr.Observe(ev); ch != nil {
		t.Errorf("unknown-person event must not touch presence: %+v", ch)
	}
	if st, _ := tr.State("fac-001"); st.Status != StatusUnknown {
		t.Errorf("status = %q, want unchanged", st.Status)
	}
}

func TestObserveKeepsNewestSighting(t *testing.T) {
	tr := NewTracker(10*time.Minute, testRoster())

	tr.Observe(recognized("fac-001", "Dr. Ada Chen", baseTime))

	// A delayed delivery with an older capture time must not move last-seen
	// backwards.
	stale := recognized("fac-001", "Dr. Ada Chen", baseTime.Add(-5*time.Minute))
	stale.CameraID = "cam-old"
	tr.Observe(stale)

	st, _ := tr.State("fac-001")
	if !st.LastSeenAt.Equal(baseTime) {
		t.Errorf("last seen = %s, want %s", st.LastSeenAt, baseTime)
	}
	if st.LastCamera != "cam-lobby" {
		t.Errorf("last camera = %q, want cam-lobby", st.LastCamera)
	}
}

func TestSweepMarksAbsent(t *testing.T) {
	tr := NewTracker(10*time.Minute, testRoster())
	tr.Observe(recognized("fac-001", "Dr. Ada Chen", baseTime))

	// Inside the grace interval nothing changes.
	changes, absentees := tr.Sweep(baseTime.Add(5 * time.Minute))
	if len(changes) != 0 || len(absentees) != 0 {
		t.Fatalf("premature sweep result: changes=%v absentees=%v", changes, absentees)
	}

	// Past the grace interval the subject flips to absent.
	changes, absentees = tr.Sweep(baseTime.Add(11 * time.Minute))
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want one transition", changes)
	}
	if changes[0].From != StatusPresent || changes[0].To != StatusAbsent {
		t.Errorf("transition %s -> %s", changes[0].From, changes[0].To)
	}
	if len(absentees) != 1 || absentees[0].SubjectID != "fac-001" {
		t.Fatalf("absentees = %v", absentees)
	}
	if absentees[0].Duration != 11*time.Minute {
		t.Errorf("duration = %s, want 11m", absentees[0].Duration)
	}

	// Subsequent sweeps keep reporting the absentee without re-transitioning.
	changes, absentees = tr.Sweep(baseTime.Add(30 * time.Minute))
	if len(changes) != 0 {
		t.Errorf("repeat transition: %v", changes)
	}
	if len(absentees) != 1 || absentees[0].Duration != 30*time.Minute {
		t.Errorf("absentees = %v", absentees)
	}
}

func TestSweepNeverMarksUnseenSubjects(t *testing.T) {
	tr := NewTracker(10*time.Minute, testRoster())

	changes, absentees := tr.Sweep(baseTime.Add(24 * time.Hour))
	if len(changes) != 0 || len(absentees) != 0 {
		t.Errorf("unseen subjects must stay unknown: changes=%v absentees=%v", changes, absentees)
	}
}

func TestReturnAfterAbsence(t *testing.T) {
	tr := NewTracker(10*time.Minute, testRoster())
	tr.Observe(recognized("fac-001", "Dr. Ada Chen", baseTime))
	tr.Sweep(baseTime.Add(15 * time.Minute))

	ch := tr.Observe(recognized("fac-001", "Dr. Ada Chen", baseTime.Add(20*time.Minute)))
	if ch == nil {
		t.Fatal("expected change on return")
	}
	if ch.From != StatusAbsent || ch.To != StatusPresent {
		t.Errorf("transition %s -> %s, want absent -> present", ch.From, ch.To)
	}

	_, absentees := tr.Sweep(baseTime.Add(21 * time.Minute))
	if len(absentees) != 0 {
		t.Errorf("returned subject still listed absent: %v", absentees)
	}
}

func TestConcurrentObserve(t *testing.T) {
	tr := NewTracker(10*time.Minute, testRoster())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				at := baseTime.Add(time.Duration(n*100+j) * time.Second)
				tr.Observe(recognized("fac-001", "Dr. Ada Chen", at))
				tr.Observe(recognized("fac-002", "Dr. Omar Haddad", at))
				tr.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d", len(snap))
	}
	for _, st := range snap {
		if st.Status != StatusPresent {
			t.Errorf("%s status = %q, want present", st.SubjectID, st.Status)
		}
	}
}

func TestSweeperServesUntilCanceled(t *testing.T) {
	tr := NewTracker(time.Minute, testRoster())

	var mu sync.Mutex
	ticks := 0
	sw := NewSweeper(tr, 10*time.Millisecond, func(time.Time, []Change, []Absentee) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Serve(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if ticks == 0 {
		t.Error("expected at least one sweep tick")
	}
}
