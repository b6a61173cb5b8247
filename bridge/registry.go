// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "sync"

// pending is one registered operation. Removal compares pointers, so a
// stale removal never deletes a newer registration that reused the id.
type pending[C any] struct {
	id       string
	callback C
}

// registry maps operation ids to callbacks for one family.
type registry[C any] struct {
	mu      sync.Mutex
	entries map[string]*pending[C]
}

func newRegistry[C any]() *registry[C] {
	return &registry[C]{entries: make(map[string]*pending[C])}
}

// add registers callback under id. It returns nil if id is taken.
func (r *registry[C]) add(id string, callback C) *pending[C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return nil
	}
	entry := &pending[C]{id: id, callback: callback}
	r.entries[id] = entry
	return entry
}

func (r *registry[C]) get(id string) *pending[C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

// take removes and returns the registration for id.
func (r *registry[C]) take(id string) *pending[C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.entries[id]
	delete(r.entries, id)
	return entry
}

// remove deletes entry if it is still the registration for its id and
// reports whether it did.
func (r *registry[C]) remove(entry *pending[C]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[entry.id] != entry {
		return false
	}
	delete(r.entries, entry.id)
	return true
}

// snapshot returns every current registration.
func (r *registry[C]) snapshot() []*pending[C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]*pending[C], 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return entries
}

func (r *registry[C]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
