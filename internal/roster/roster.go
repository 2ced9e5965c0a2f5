// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package roster maintains the faculty subject and camera registries.
//
// The roster is seeded from a YAML file at startup and consulted by event
// intake (camera-known validation, subject display names) and by the API.
// All lookups are safe for concurrent use.
package roster

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Subject is a registered faculty member.
type Subject struct {
	ID         string `json:"id" koanf:"id"`
	Name       string `json:"name" koanf:"name"`
	Department string `json:"department,omitempty" koanf:"department"`
}

// Camera is a registered camera feed.
type Camera struct {
	ID       string `json:"id" koanf:"id"`
	Location string `json:"location,omitempty" koanf:"location"`
}

// rosterFile mirrors the YAML roster file layout.
type rosterFile struct {
	Faculty []Subject `koanf:"faculty"`
	Cameras []Camera  `koanf:"cameras"`
}

// Roster holds the subject and camera registries.
type Roster struct {
	mu       sync.RWMutex
	subjects map[string]Subject
	cameras  map[string]Camera
}

// New creates a roster seeded with the given subjects and cameras.
// Entries with empty IDs are skipped.
func New(subjects []Subject, cameras []Camera) *Roster {
	r := &Roster{
		subjects: make(map[string]Subject, len(subjects)),
		cameras:  make(map[string]Camera, len(cameras)),
	}
	for _, s := range subjects {
		if s.ID != "" {
			r.subjects[s.ID] = s
		}
	}
	for _, c := range cameras {
		if c.ID != "" {
			r.cameras[c.ID] = c
		}
	}
	return r
}

// LoadFile loads a roster from a YAML file.
//
// Expected layout:
//
//	faculty:
//	  - id: fac-001
//	    name: Dr. Ada Chen
//	    department: Computer Science
//	cameras:
//	  - id: cam-lobby
//	    location: Lobby
func LoadFile(path string) (*Roster, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load roster file %s: %w", path, err)
	}

	var rf rosterFile
	if err := k.Unmarshal("", &rf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster file %s: %w", path, err)
	}

	return New(rf.Faculty, rf.Cameras), nil
}

// Subject returns the subject with the given ID.
func (r *Roster) Subject(id string) (Subject, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[id]
	return s, ok
}

// Camera returns the camera with the given ID.
func (r *Roster) Camera(id string) (Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cameras[id]
	return c, ok
}

// KnownCamera reports whether the camera ID is registered.
func (r *Roster) KnownCamera(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cameras[id]
	return ok
}

// Subjects returns all registered subjects sorted by ID.
func (r *Roster) Subjects() []Subject {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subject, 0, len(r.subjects))
	for _, s := range r.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cameras returns all registered cameras sorted by ID.
func (r *Roster) Cameras() []Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Camera, 0, len(r.cameras))
	for _, c := range r.cameras {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SearchSubjects returns subjects whose name or department contains the
// query, case-insensitively, sorted by ID. An empty query returns all.
func (r *Roster) SearchSubjects(query string) []Subject {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return r.Subjects()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Subject
	for _, s := range r.subjects {
		if strings.Contains(strings.ToLower(s.Name), query) ||
			strings.Contains(strings.ToLower(s.Department), query) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SubjectName returns the display name for a subject ID, falling back to
// the ID itself for unregistered subjects.
func (r *Roster) SubjectName(id string) string {
	if s, ok := r.Subject(id); ok && s.Name != "" {
		return s.Name
	}
	return id
}

// CameraLocation returns the location label for a camera ID, falling back
// to the ID itself.
func (r *Roster) CameraLocation(id string) string {
	if c, ok := r.Camera(id); ok && c.Location != "" {
		return c.Location
	}
	return id
}

// Counts returns the number of registered subjects and cameras.
func (r *Roster) Counts() (subjects, cameras int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subjects), len(r.cameras)
}
