// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"strings"
	"unicode/utf8"
)

// Kind is the closed set of message kinds the wire protocol carries.
//
// USER, ENTRY, and DISCONNECT travel client->server only; BROADCAST travels
// server->client only. Unknown kinds are protocol violations.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUser
	KindEntry
	KindDisconnect
	KindBroadcast
)

// String returns the uppercase wire name of k, or "" for KindUnknown.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "USER"
	case KindEntry:
		return "ENTRY"
	case KindDisconnect:
		return "DISCONNECT"
	case KindBroadcast:
		return "BROADCAST"
	default:
		return ""
	}
}

// ParseKind maps an uppercase wire token to its Kind. The second return
// value is false for any token outside the closed set.
func ParseKind(token string) (Kind, bool) {
	switch strings.ToUpper(token) {
	case "USER":
		return KindUser, true
	case "ENTRY":
		return KindEntry, true
	case "DISCONNECT":
		return KindDisconnect, true
	case "BROADCAST":
		return KindBroadcast, true
	default:
		return KindUnknown, false
	}
}

// Message is a decoded unit: a kind and a UTF-8 body (possibly empty).
type Message struct {
	Kind Kind
	Body string
}

const typeDelimiter = "$$"

// TypeOf splits payload at the first occurrence of the type delimiter and
// maps the uppercased first token to a Kind. An unrecognized token yields a
// *ProtocolError with ReasonUnknownKind.
func TypeOf(payload string) (Kind, error) {
	token := payload
	if idx := strings.Index(payload, typeDelimiter); idx >= 0 {
		token = payload[:idx]
	}
	kind, ok := ParseKind(token)
	if !ok {
		return KindUnknown, newProtocolError(ReasonUnknownKind, token)
	}
	return kind, nil
}

// BodyOf returns the token after the first type delimiter, trimmed of
// surrounding whitespace, or "" if no delimiter is present.
func BodyOf(payload string) string {
	idx := strings.Index(payload, typeDelimiter)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(payload[idx+len(typeDelimiter):])
}

// DecodeMessage parses a complete payload (post length-header) into a
// Message, using TypeOf/BodyOf.
func DecodeMessage(payload string) (Message, error) {
	kind, err := TypeOf(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, Body: BodyOf(payload)}, nil
}

// EncodePayload joins kind and body with the type delimiter, producing the
// portion of a frame that follows the length header. It rejects a kind or
// body containing either wire delimiter rather than silently
// desynchronizing the splitter on the far end.
func EncodePayload(kind Kind, body string) (string, error) {
	name := kind.String()
	if name == "" {
		return "", newProtocolError(ReasonUnknownKind, "")
	}
	if strings.Contains(name, lengthDelimiter) || strings.Contains(name, typeDelimiter) {
		return "", ErrDelimiterInPayload
	}
	if body == "" {
		return name, nil
	}
	if strings.Contains(body, lengthDelimiter) || strings.Contains(body, typeDelimiter) {
		return "", ErrDelimiterInPayload
	}
	if !utf8.ValidString(body) {
		return "", ErrInvalidUTF8
	}
	return name + typeDelimiter + body, nil
}
