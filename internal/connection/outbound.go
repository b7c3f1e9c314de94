// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connection

import (
	"errors"

	"code.hybscloud.com/iox"
)

// DefaultMaxQueuedBytes bounds a connection's outbound queue. A slow
// reader that never drains its socket buffer would otherwise let the
// queue grow without limit.
const DefaultMaxQueuedBytes = 4 << 20 // 4 MiB

// ErrOutboundOverflow is returned by Enqueue when accepting frame would
// push the queue past MaxQueuedBytes. The caller (server/client) treats
// this as a TransportError and closes the connection.
var ErrOutboundOverflow = errors.New("connection: outbound queue overflow")

// Outbound is the per-connection FIFO of fully-framed byte sequences. The
// invariant it maintains: the head element may be partially written; every
// other queued element is untouched.
type Outbound struct {
	queue          [][]byte
	headOff        int
	queuedBytes    int
	maxQueuedBytes int
}

// NewOutbound returns an empty Outbound bounded by maxQueuedBytes. A
// non-positive value falls back to DefaultMaxQueuedBytes.
func NewOutbound(maxQueuedBytes int) *Outbound {
	if maxQueuedBytes <= 0 {
		maxQueuedBytes = DefaultMaxQueuedBytes
	}
	return &Outbound{maxQueuedBytes: maxQueuedBytes}
}

// Empty reports whether the queue has nothing left to write.
func (o *Outbound) Empty() bool {
	return len(o.queue) == 0
}

// QueuedBytes returns the total bytes currently queued, including the
// unwritten tail of the head element.
func (o *Outbound) QueuedBytes() int {
	return o.queuedBytes
}

// Enqueue appends frame to the tail of the queue. It returns
// ErrOutboundOverflow without modifying the queue if frame would push
// QueuedBytes past the configured watermark.
func (o *Outbound) Enqueue(frame []byte) error {
	if o.queuedBytes+len(frame) > o.maxQueuedBytes {
		return ErrOutboundOverflow
	}
	o.queue = append(o.queue, frame)
	o.queuedBytes += len(frame)
	return nil
}

// WriteFunc performs one non-blocking write attempt, returning
// iox.ErrWouldBlock when the socket accepted nothing further right now.
type WriteFunc func([]byte) (int, error)

// Flush drains as much of the queue as writeFn accepts. It writes the head
// element's unwritten tail; on a full write it pops the element and
// continues with the next; on a partial write (iox.ErrWouldBlock) it keeps
// its cursor and returns immediately so the reactor can keep WRITE
// interest registered. drained reports whether the queue is now empty.
func (o *Outbound) Flush(writeFn WriteFunc) (drained bool, err error) {
	for len(o.queue) > 0 {
		head := o.queue[0][o.headOff:]
		n, werr := writeFn(head)
		if n > 0 {
			o.headOff += n
			o.queuedBytes -= n
		}
		if werr != nil {
			if errors.Is(werr, iox.ErrWouldBlock) {
				return false, nil
			}
			return false, werr
		}
		if o.headOff == len(o.queue[0]) {
			o.queue[0] = nil
			o.queue = o.queue[1:]
			o.headOff = 0
			continue
		}
		// writeFn reported success (nil error) but consumed nothing: a
		// well-behaved non-blocking writer should have returned
		// iox.ErrWouldBlock instead. Treat it the same way to avoid
		// spinning.
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}
