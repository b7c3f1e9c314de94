// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatch

import "sync"

// Strand serializes callbacks for one connection onto the shared Pool
// while still running them off the I/O thread, and without pinning a
// dedicated goroutine per connection. Submitting straight to a shared Pool
// gives no ordering guarantee between two callbacks for the same
// connection; Strand restores that ordering without serializing unrelated
// connections against each other.
type Strand struct {
	pool *Pool

	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewStrand returns a Strand that dispatches through pool.
func NewStrand(pool *Pool) *Strand {
	return &Strand{pool: pool}
}

// Submit enqueues fn to run after every fn submitted to this Strand before
// it, in order, but never on the caller's goroutine.
func (s *Strand) Submit(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.pool.Submit(s.drain)
}

func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}
