// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol_test

import (
	"testing"

	"code.hybscloud.com/chatline/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage_RoundTrip(t *testing.T) {
	frame, err := protocol.EncodeMessage(protocol.KindEntry, "hi")
	require.NoError(t, err)
	require.Equal(t, "9##ENTRY$$hi", frame)

	s := protocol.NewSplitter()
	require.NoError(t, s.Append([]byte(frame)))
	payload, ok := s.Next()
	require.True(t, ok)

	msg, err := protocol.DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindEntry, msg.Kind)
	assert.Equal(t, "hi", msg.Body)
}

func TestEncodeMessage_EmptyBody(t *testing.T) {
	frame, err := protocol.EncodeMessage(protocol.KindDisconnect, "")
	require.NoError(t, err)
	assert.Equal(t, "10##DISCONNECT", frame)
}

func TestEncodeMessage_RejectsDelimiterInBody(t *testing.T) {
	_, err := protocol.EncodeMessage(protocol.KindEntry, "a##b")
	assert.ErrorIs(t, err, protocol.ErrDelimiterInPayload)

	_, err = protocol.EncodeMessage(protocol.KindEntry, "a$$b")
	assert.ErrorIs(t, err, protocol.ErrDelimiterInPayload)
}

// TestChunkInvariance checks the chunk-invariance property: feeding the
// byte stream of N encoded frames to the splitter in any partition into
// chunks yields exactly N payloads in their original order.
func TestChunkInvariance(t *testing.T) {
	frames := []string{
		mustEncode(t, protocol.KindUser, "ann"),
		mustEncode(t, protocol.KindEntry, "hi"),
		mustEncode(t, protocol.KindDisconnect, ""),
	}
	var wire string
	for _, f := range frames {
		wire += f
	}

	partitions := [][]int{
		{len(wire)},                       // one chunk
		{1, len(wire) - 1},                // split inside the first header
		{5, len(wire) - 5},                // split mid payload
		{3, 3, 3, len(wire) - 9},          // many small chunks
		{len(wire) - 1, 1},                // split one byte from the end
	}

	for _, sizes := range partitions {
		s := protocol.NewSplitter()
		off := 0
		for _, n := range sizes {
			require.NoError(t, s.Append([]byte(wire[off:off+n])))
			off += n
		}
		require.Equal(t, off, len(wire))

		var got []string
		for s.HasNext() {
			payload, ok := s.Next()
			require.True(t, ok)
			got = append(got, payload)
		}
		require.Len(t, got, len(frames))
		for i, payload := range got {
			msg, err := protocol.DecodeMessage(payload)
			require.NoError(t, err)
			want, werr := protocol.DecodeMessage(mustPayload(t, frames[i]))
			require.NoError(t, werr)
			assert.Equal(t, want, msg)
		}
	}
}

// TestPartialFrame checks that a single TCP segment containing "9##USE"
// followed later by "R$$eve" decodes to exactly one USER payload with
// body "eve".
func TestPartialFrame(t *testing.T) {
	s := protocol.NewSplitter()
	require.NoError(t, s.Append([]byte("9##USE")))
	assert.False(t, s.HasNext())

	require.NoError(t, s.Append([]byte("R$$eve")))
	require.True(t, s.HasNext())

	payload, ok := s.Next()
	require.True(t, ok)
	msg, err := protocol.DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindUser, msg.Kind)
	assert.Equal(t, "eve", msg.Body)
}

// TestTwoFramesInOneRead checks that two frames delivered in a single read
// both decode, in order.
func TestTwoFramesInOneRead(t *testing.T) {
	s := protocol.NewSplitter()
	require.NoError(t, s.Append([]byte("9##USER$$ann9##ENTRY$$hi")))

	p1, ok := s.Next()
	require.True(t, ok)
	m1, err := protocol.DecodeMessage(p1)
	require.NoError(t, err)
	assert.Equal(t, protocol.Message{Kind: protocol.KindUser, Body: "ann"}, m1)

	p2, ok := s.Next()
	require.True(t, ok)
	m2, err := protocol.DecodeMessage(p2)
	require.NoError(t, err)
	assert.Equal(t, protocol.Message{Kind: protocol.KindEntry, Body: "hi"}, m2)

	assert.False(t, s.HasNext())
}

// TestMalformedLength checks that a non-numeric length header raises a
// ProtocolError and the splitter stops decoding.
func TestMalformedLength(t *testing.T) {
	s := protocol.NewSplitter()
	err := s.Append([]byte("abc##USER$$x"))
	require.Error(t, err)

	var perr *protocol.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.ReasonMalformedLength, perr.Reason)

	// Sticky: further appends keep returning the same fault.
	err2 := s.Append([]byte("more data"))
	assert.Equal(t, err, err2)
}

func TestSplitter_RejectsOversizedFrame(t *testing.T) {
	s := protocol.NewSplitter(protocol.WithMaxFrameLength(4))
	err := s.Append([]byte("100##USER$$ann"))
	require.Error(t, err)

	var perr *protocol.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.ReasonFrameTooLong, perr.Reason)
}

func TestTypeOf_UnknownKind(t *testing.T) {
	_, err := protocol.TypeOf("FOO$$bar")
	var perr *protocol.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.ReasonUnknownKind, perr.Reason)
}

func mustEncode(t *testing.T, kind protocol.Kind, body string) string {
	t.Helper()
	frame, err := protocol.EncodeMessage(kind, body)
	require.NoError(t, err)
	return frame
}

func mustPayload(t *testing.T, frame string) string {
	t.Helper()
	s := protocol.NewSplitter()
	require.NoError(t, s.Append([]byte(frame)))
	payload, ok := s.Next()
	require.True(t, ok)
	return payload
}
