// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package roster

import (
	"os"
	"path/filepath"
	"testing"
)

func testRoster() *Roster {
	return New(
		[]Subject{
			{ID: "fac-001", Name: "Dr. Ada Chen", Department: "Computer Science"},
			{ID: "fac-002", Name: "Dr. Omar Haddad", Department: "Mathematics"},
			{ID: "fac-003", Name: "Prof. Riley Stone", Department: "Computer Science"},
		},
		[]Camera{
			{ID: "cam-lobby", Location: "Lobby"},
			{ID: "cam-201", Location: "Room 201"},
		},
	)
}

func TestLookups(t *testing.T) {
	r := testRoster()

	if s, ok := r.Subject("fac-001"); !ok || s.Name != "Dr. Ada Chen" {
		t.Errorf("Subject(fac-001) = %+v, %v", s, ok)
	}
	if _, ok := r.Subject("fac-999"); ok {
		t.Error("expected unknown subject to miss")
	}
	if !r.KnownCamera("cam-lobby") {
		t.Error("cam-lobby should be known")
	}
	if r.KnownCamera("cam-999") {
		t.Error("cam-999 should not be known")
	}
}

func TestSubjectsSorted(t *testing.T) {
	r := testRoster()
	subjects := r.Subjects()
	if len(subjects) != 3 {
		t.Fatalf("got %d subjects, want 3", len(subjects))
	}
	for i := 1; i < len(subjects); i++ {
		if subjects[i-1].ID >= subjects[i].ID {
			t.Errorf("subjects not sorted: %s >= %s", subjects[i-1].ID, subjects[i].ID)
		}
	}
}

func TestSearchSubjects(t *testing.T) {
	r := testRoster()

	tests := []struct {
		query string
		want  int
	}{
		{"computer", 2},
		{"ada", 1},
		{"STONE", 1},
		{"", 3},
		{"biology", 0},
	}

	for _, tt := range tests {
		got := r.SearchSubjects(tt.query)
		if len(got) != tt.want {
			t.Errorf("SearchSubjects(%q) returned %d results, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestNameFallbacks(t *testing.T) {
	r := testRoster()

	if got := r.SubjectName("fac-002"); got != "Dr. Omar Haddad" {
		t.Errorf("SubjectName = %q", got)
	}
	if got := r.SubjectName("fac-999"); got != "fac-999" {
		t.Errorf("unknown subject should fall back to ID, got %q", got)
	}
	if got := r.CameraLocation("cam-201"); got != "Room 201" {
		t.Errorf("CameraLocation = %q", got)
	}
	if got := r.CameraLocation("cam-999"); got != "cam-999" {
		t.Errorf("unknown camera should fall back to ID, got %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	content := []byte(`faculty:
  - id: fac-010
    name: Dr. Sam Doyle
    department: Physics
cameras:
  - id: cam-hall
    location: Hallway East
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	subjects, cameras := r.Counts()
	if subjects != 1 || cameras != 1 {
		t.Errorf("Counts = %d, %d, want 1, 1", subjects, cameras)
	}
	if !r.KnownCamera("cam-hall") {
		t.Error("cam-hall should be known after load")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/roster.yaml"); err == nil {
		t.Error("expected error for missing roster file")
	}
}
