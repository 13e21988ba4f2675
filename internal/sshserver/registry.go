// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"sync"
)

// Registry is the set of live connection records.
//
// Members are keyed by a handle assigned on insertion. count is kept
// separately from the map and is updated under the same lock as every
// insert and remove. Member order carries no meaning.
type Registry struct {
	mu      sync.Mutex
	records map[uint64]*connRecord
	nextID  uint64
	count   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[uint64]*connRecord)}
}

// Register inserts rec and returns the live count observed immediately
// before the insertion.
func (r *Registry) Register(rec *connRecord) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior := r.count
	r.insertLocked(rec)
	return prior
}

// Admit inserts rec only if fewer than limit records are live. The check and
// the insertion happen under one lock hold, so the count never exceeds limit.
func (r *Registry) Admit(rec *connRecord, limit int) (prior int, admitted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior = r.count
	if prior >= limit {
		return prior, false
	}
	r.insertLocked(rec)
	return prior, true
}

func (r *Registry) insertLocked(rec *connRecord) {
	r.nextID++
	rec.id = r.nextID
	r.records[rec.id] = rec
	r.count++
}

// Unregister removes rec. It returns false if rec was not a member.
func (r *Registry) Unregister(rec *connRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.id == 0 || r.records[rec.id] != rec {
		return false
	}
	delete(r.records, rec.id)
	r.count--
	return true
}

// SnapshotOne returns the interrupt and join handles of one live record.
// ok is false when the registry is empty. It never blocks while holding the lock.
func (r *Registry) SnapshotOne() (cancel context.CancelFunc, done <-chan struct{}, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil, nil, false
	}
	for _, rec := range r.records {
		return rec.cancel, rec.done, true
	}
	return nil, nil, false
}

// Len returns the live count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
