// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package intake

import (
	"sync"
	"time"
)

// dedupIndex remembers event fingerprints for a bounded window so that a
// retried or double-delivered event is accepted idempotently.
type dedupIndex struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
	// pruneAt is the next time the expired entries are swept out.
	pruneAt time.Time
}

func newDedupIndex(window time.Duration) *dedupIndex {
	return &dedupIndex{
		window:  window,
		entries: make(map[string]time.Time),
	}
}

// seen records the fingerprint and reports whether it was already present
// within the window. Expired entries are pruned opportunistically.
func (d *dedupIndex) seen(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.After(d.pruneAt) {
		for k, t := range d.entries {
			if now.Sub(t) > d.window {
				delete(d.entries, k)
			}
		}
		d.pruneAt = now.Add(d.window)
	}

	if t, ok := d.entries[key]; ok && now.Sub(t) <= d.window {
		return true
	}

	d.entries[key] = now
	return false
}

// len returns the current number of remembered fingerprints.
func (d *dedupIndex) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
