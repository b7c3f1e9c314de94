// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Loop is a single-threaded event loop. One goroutine — whichever calls
// Run — owns the registration table exclusively; every other goroutine
// that wants to affect a registered fd's state must go through Submit.
type Loop struct {
	poller poller
	logger *zap.Logger

	mu        sync.Mutex
	submitted []func()

	closed atomic.Bool
}

// New constructs a Loop using the platform poller backend. logger may be
// nil, in which case a no-op logger is used.
func New(logger *zap.Logger) (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{poller: p, logger: logger}, nil
}

// Register adds fd to the table with the given interest.
func (l *Loop) Register(fd int, interest InterestMask) error {
	return l.poller.add(fd, interest)
}

// Modify changes fd's interest mask. Used on accept-replay-drain
// completion (drop to READ) and on broadcast (flip every client to WRITE);
// a partial write needs no call, since WRITE interest is already set.
func (l *Loop) Modify(fd int, interest InterestMask) error {
	return l.poller.modify(fd, interest)
}

// Deregister removes fd from the table. The caller is responsible for
// closing the underlying socket.
func (l *Loop) Deregister(fd int) error {
	return l.poller.remove(fd)
}

// Submit enqueues fn to run on the loop goroutine at the top of its next
// iteration, then wakes the poller so that iteration happens promptly even
// if the loop is currently blocked in wait().
//
// Every external mutation of the registration or application state
// (broadcast, client send, shutdown) becomes one queued closure, drained
// in submission order at the top of the next iteration. That gives a
// structural happens-before between any Submit call and its effect, with
// no hand-rolled flag or memory ordering needed.
func (l *Loop) Submit(fn func()) {
	l.mu.Lock()
	l.submitted = append(l.submitted, fn)
	l.mu.Unlock()
	l.poller.wake()
}

func (l *Loop) drainSubmitted() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.submitted) == 0 {
		return nil
	}
	fns := l.submitted
	l.submitted = nil
	return fns
}

// Run blocks, repeatedly draining submitted work and dispatching ready
// events to onReady, until Stop is called: drain pending submissions,
// wait for readiness, then dispatch each ready event exactly once.
func (l *Loop) Run(onReady func(ev ReadyEvent)) error {
	return l.run(-1, onReady, nil)
}

// RunWithTick behaves like Run but bounds each wait to interval, calling
// onTick once per iteration regardless of whether anything became ready.
// Components that evict idle connections use this instead of running a
// separate timer goroutine.
func (l *Loop) RunWithTick(interval time.Duration, onReady func(ev ReadyEvent), onTick func()) error {
	timeoutMillis := int(interval / time.Millisecond)
	if timeoutMillis <= 0 {
		timeoutMillis = 1
	}
	return l.run(timeoutMillis, onReady, onTick)
}

func (l *Loop) run(timeoutMillis int, onReady func(ev ReadyEvent), onTick func()) error {
	buf := make([]ReadyEvent, 0, 256)
	for !l.closed.Load() {
		for _, fn := range l.drainSubmitted() {
			fn()
		}
		if l.closed.Load() {
			return nil
		}

		ready, err := l.poller.wait(buf, timeoutMillis)
		if err != nil {
			l.logger.Error("reactor: poll wait failed", zap.Error(err))
			return err
		}

		// ready is collected up front (see poller.wait), so mutating the
		// registration table from inside onReady — accepting, closing,
		// re-registering — never corrupts the batch being walked here.
		for _, ev := range ready {
			onReady(ev)
		}
		if onTick != nil {
			onTick()
		}
	}
	return nil
}

// Stop requests the loop to exit after its current iteration finishes.
func (l *Loop) Stop() {
	l.closed.Store(true)
	l.poller.wake()
}

// Close releases the poller's kernel resources. Call after Run returns.
func (l *Loop) Close() error {
	return l.poller.close()
}
