// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package history implements the server's conversation store: a
// bounded, append-only ordered sequence of broadcast payloads used to
// replay history to joiners.
package history

// DefaultCapacity is the default number of recent broadcasts retained
// for replay.
const DefaultCapacity = 1000

// Store is an append-only ring over broadcast payloads: the exact string
// sent, not including its length header. It is confined to the reactor
// goroutine (the broadcast path runs on the loop after a wake-up), so no
// locking is needed; a caller that moves broadcast off that goroutine must
// guard Store with a mutex of its own.
type Store struct {
	capacity int
	entries  []string
	start    int // index of the oldest entry within entries, once full
}

// New returns a Store bounded to capacity entries. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Append adds entry as the newest broadcast payload, evicting the oldest
// entry once the store is at capacity.
func (s *Store) Append(entry string) {
	if len(s.entries) < s.capacity {
		s.entries = append(s.entries, entry)
		return
	}
	// At capacity: overwrite the oldest slot and advance start, avoiding a
	// reallocation on every broadcast once the store is warm.
	s.entries[s.start] = entry
	s.start = (s.start + 1) % s.capacity
}

// Snapshot returns the retained entries in oldest-to-newest order. The
// returned slice is a fresh copy; callers may retain it.
func (s *Store) Snapshot() []string {
	if len(s.entries) < s.capacity {
		out := make([]string, len(s.entries))
		copy(out, s.entries)
		return out
	}
	out := make([]string, s.capacity)
	copy(out, s.entries[s.start:])
	copy(out[s.capacity-s.start:], s.entries[:s.start])
	return out
}

// Len returns the number of entries currently retained.
func (s *Store) Len() int {
	return len(s.entries)
}
