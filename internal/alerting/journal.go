// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package alerting

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/metrics"
)

// Key prefix for journaled alerts. The 8-byte big-endian ID suffix keeps
// iteration in ID order.
const alertKeyPrefix = "alert:"

// BadgerJournal implements Journal on BadgerDB. Each alert occupies one
// key holding its latest state, so replay yields final states directly.
type BadgerJournal struct {
	db *badger.DB
}

// OpenJournal opens (or creates) a badger-backed journal at path.
func OpenJournal(path string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open alert journal at %s: %w", path, err)
	}
	return &BadgerJournal{db: db}, nil
}

// NewBadgerJournal wraps an already-open badger DB.
func NewBadgerJournal(db *badger.DB) *BadgerJournal {
	return &BadgerJournal{db: db}
}

func alertKey(id uint64) []byte {
	key := make([]byte, len(alertKeyPrefix)+8)
	copy(key, alertKeyPrefix)
	binary.BigEndian.PutUint64(key[len(alertKeyPrefix):], id)
	return key
}

// Append stores the alert's latest state.
func (j *BadgerJournal) Append(a *Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		metrics.JournalWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal alert %d: %w", a.ID, err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(alertKey(a.ID), data)
	})
	if err != nil {
		metrics.JournalWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("journal alert %d: %w", a.ID, err)
	}

	metrics.JournalWrites.WithLabelValues("ok").Inc()
	return nil
}

// Replay yields every journaled alert in ID order.
func (j *BadgerJournal) Replay(fn func(a *Alert) error) error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(alertKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var a Alert
				if err := json.Unmarshal(val, &a); err != nil {
					return fmt.Errorf("unmarshal journaled alert: %w", err)
				}
				return fn(&a)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (j *BadgerJournal) Close() error {
	return j.db.Close()
}
