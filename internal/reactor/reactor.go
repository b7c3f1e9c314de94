// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reactor implements a single-threaded, selector-style event loop:
// one goroutine owns a registration table of file descriptors and their
// interest masks, blocks in the kernel's readiness poll, and dispatches
// ready events to caller-supplied handlers.
//
// A poller abstraction sits underneath the registration table, and the
// ready-event batch from one poll is fully collected before any handler
// runs, so a handler is free to accept, close, or re-register file
// descriptors without corrupting the batch still being walked.
package reactor

// InterestMask is the set of readiness kinds the loop watches a file
// descriptor for.
type InterestMask uint8

const (
	InterestNone  InterestMask = 0
	InterestRead  InterestMask = 1 << 0
	InterestWrite InterestMask = 1 << 1
)

func (m InterestMask) Readable() bool { return m&InterestRead != 0 }
func (m InterestMask) Writable() bool { return m&InterestWrite != 0 }

// ReadyEvent reports one fd's readiness from a single poll wait.
type ReadyEvent struct {
	FD       int
	Readable bool
	Writable bool
	Err      bool
}

// poller is implemented once per OS; epoll_linux.go supplies the only
// backend this repository ships.
type poller interface {
	add(fd int, interest InterestMask) error
	modify(fd int, interest InterestMask) error
	remove(fd int) error
	// wait blocks until at least one registered fd is ready or timeoutMillis
	// elapses (-1 blocks indefinitely), appending ready events to out[:0].
	wait(out []ReadyEvent, timeoutMillis int) ([]ReadyEvent, error)
	wake()
	close() error
}
