// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrDelimiterInPayload reports a kind or body containing a literal "##"
	// or "$$", which would desynchronize the splitter on the wire.
	ErrDelimiterInPayload = errors.New("protocol: payload contains a delimiter")

	// ErrInvalidUTF8 reports a body that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("protocol: body is not valid UTF-8")
)

// Reason identifies why a ProtocolError was raised.
type Reason uint8

const (
	ReasonMalformedLength Reason = iota
	ReasonUnknownKind
	ReasonFrameTooLong
	ReasonDelimiterInPayload
	ReasonInvalidUTF8
	ReasonWrongDirection
)

func (r Reason) String() string {
	switch r {
	case ReasonMalformedLength:
		return "malformed_length"
	case ReasonUnknownKind:
		return "unknown_kind"
	case ReasonFrameTooLong:
		return "frame_too_long"
	case ReasonDelimiterInPayload:
		return "delimiter_in_payload"
	case ReasonInvalidUTF8:
		return "invalid_utf8"
	case ReasonWrongDirection:
		return "wrong_direction"
	default:
		return "unknown"
	}
}

// ProtocolError reports a malformed frame, an unparsable length, an unknown
// kind, or a kind inappropriate to the direction of travel. The transport
// layer (server/client) closes the offending connection on receipt.
type ProtocolError struct {
	Reason Reason
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol: %s", e.Reason)
	}
	return fmt.Sprintf("protocol: %s: %s", e.Reason, e.Detail)
}

func newProtocolError(reason Reason, detail string) *ProtocolError {
	return &ProtocolError{Reason: reason, Detail: detail}
}

// NewWrongDirectionError reports kind arriving from a peer that is not
// allowed to send it (e.g. a client sending BROADCAST).
func NewWrongDirectionError(kind Kind) *ProtocolError {
	return newProtocolError(ReasonWrongDirection, kind.String())
}
