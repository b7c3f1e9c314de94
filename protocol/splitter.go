// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"strconv"
	"sync"
)

const lengthDelimiter = "##"

// Encode prepends a decimal length header to payload, using the UTF-8 byte
// count of payload as the length.
func Encode(payload string) string {
	return strconv.Itoa(len(payload)) + lengthDelimiter + payload
}

// EncodeMessage is Encode(EncodePayload(kind, body)), returning any error
// EncodePayload raises.
func EncodeMessage(kind Kind, body string) (string, error) {
	payload, err := EncodePayload(kind, body)
	if err != nil {
		return "", err
	}
	return Encode(payload), nil
}

// Splitter reassembles an inbound byte stream into a FIFO of complete
// payload strings. It is the per-connection reassembly buffer: after every
// Append, the accumulator holds at most one incomplete frame (either an
// unfinished length header or a length-known, under-filled payload).
//
// Concurrent Append/Next calls on the same Splitter serialize through mu;
// callers that confine a Splitter to a single goroutine (the common case:
// one per connection, owned by the reactor loop) pay only the uncontended
// lock cost.
type Splitter struct {
	mu      sync.Mutex
	acc     []byte
	queue   []string
	maxLen  int
	faulted error
}

// NewSplitter returns a Splitter ready to accept chunks.
func NewSplitter(opts ...Option) *Splitter {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	maxLen := o.MaxFrameLength
	if maxLen <= 0 {
		maxLen = defaultMaxFrameLength
	}
	return &Splitter{maxLen: maxLen}
}

// Append concatenates chunk onto the accumulator and extracts every
// complete frame it can. A malformed header (non-numeric, negative, or over
// the safety cap) is sticky: once Append returns a *ProtocolError, every
// subsequent call returns the same error and the splitter stops decoding.
// The caller (server/client read handler) is expected to close the
// connection on the first such error.
func (s *Splitter) Append(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faulted != nil {
		return s.faulted
	}
	if len(chunk) > 0 {
		s.acc = append(s.acc, chunk...)
	}
	if err := s.extractLocked(); err != nil {
		s.faulted = err
		return err
	}
	return nil
}

// extractLocked repeatedly splits the accumulator at the first length
// delimiter and pulls out complete payloads. Called with mu held.
func (s *Splitter) extractLocked() error {
	for {
		idx := bytes.Index(s.acc, []byte(lengthDelimiter))
		if idx < 0 {
			return nil // no complete header yet
		}
		header := string(s.acc[:idx])
		length, err := strconv.Atoi(header)
		if err != nil || length < 0 {
			return newProtocolError(ReasonMalformedLength, header)
		}
		if length > s.maxLen {
			return newProtocolError(ReasonFrameTooLong, strconv.Itoa(length))
		}
		rest := s.acc[idx+len(lengthDelimiter):]
		if len(rest) < length {
			return nil // payload not fully buffered yet
		}
		payload := string(rest[:length])
		s.queue = append(s.queue, payload)

		// Drop (header + delimiter + payload) from the accumulator. Copy the
		// remainder into a fresh slice so the accumulator never aliases a
		// stale backing array as Append keeps extending it.
		remainder := rest[length:]
		next := make([]byte, len(remainder))
		copy(next, remainder)
		s.acc = next
	}
}

// HasNext reports whether a complete payload is queued.
func (s *Splitter) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0
}

// Next pops and returns the oldest complete payload. ok is false when the
// queue is empty.
func (s *Splitter) Next() (payload string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	payload = s.queue[0]
	s.queue = s.queue[1:]
	return payload, true
}

// Err returns the sticky decode error, if any, set by a prior Append.
func (s *Splitter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted
}
