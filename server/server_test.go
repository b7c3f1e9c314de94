// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"code.hybscloud.com/chatline/protocol"
	"code.hybscloud.com/chatline/server"

	"github.com/stretchr/testify/require"
)

// startTestServer binds to an ephemeral loopback port and returns its
// address plus a function that shuts it down.
func startTestServer(t *testing.T, cfg server.Config) (addr string, stop func()) {
	t.Helper()
	// rawsock.ListenTCP doesn't report back which port the kernel picked
	// for ":0", so reserve one with the stdlib and hand it to the server.
	cfg.Addr = testAddr(t)

	srv, err := server.New(cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()

	waitForListener(t, cfg.Addr)

	return cfg.Addr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("server did not shut down")
		}
	}
}

// testAddr reserves an ephemeral port by briefly listening on it with the
// stdlib, then immediately frees it for the server under test to bind.
func testAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never started listening on %s", addr)
}

// frameReader decodes BROADCAST payload bodies off conn as they arrive.
type frameReader struct {
	conn net.Conn
	s    *protocol.Splitter
}

func newFrameReader(conn net.Conn) *frameReader {
	return &frameReader{conn: conn, s: protocol.NewSplitter()}
}

func (r *frameReader) next(t *testing.T, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if r.s.HasNext() {
			payload, ok := r.s.Next()
			require.True(t, ok)
			msg, err := protocol.DecodeMessage(payload)
			require.NoError(t, err)
			require.Equal(t, protocol.KindBroadcast, msg.Kind)
			return msg.Body
		}
		require.NoError(t, r.conn.SetReadDeadline(deadline))
		buf := make([]byte, 4096)
		n, err := r.conn.Read(buf)
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		require.NoError(t, r.s.Append(buf[:n]))
	}
}

func sendFrame(t *testing.T, conn net.Conn, kind protocol.Kind, body string) {
	t.Helper()
	frame, err := protocol.EncodeMessage(kind, body)
	require.NoError(t, err)
	_, err = conn.Write([]byte(frame))
	require.NoError(t, err)
}

func TestServer_JoinSayLeaveBroadcasts(t *testing.T) {
	addr, stop := startTestServer(t, server.Config{})
	defer stop()

	annConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer annConn.Close()
	ann := newFrameReader(annConn)

	sendFrame(t, annConn, protocol.KindUser, "ann")
	require.Equal(t, "ann joined conversation.", ann.next(t, time.Second))

	eveConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer eveConn.Close()
	eve := newFrameReader(eveConn)

	sendFrame(t, eveConn, protocol.KindUser, "eve")
	// ann sees eve's join; eve first receives the replay of ann's join
	// (replay is covered in detail by the next test), then her own join.
	require.Equal(t, "eve joined conversation.", ann.next(t, time.Second))
	require.Equal(t, "ann joined conversation.", eve.next(t, time.Second))
	require.Equal(t, "eve joined conversation.", eve.next(t, time.Second))

	sendFrame(t, annConn, protocol.KindEntry, "hello there")
	require.Equal(t, "ann: hello there", ann.next(t, time.Second))
	require.Equal(t, "ann: hello there", eve.next(t, time.Second))

	sendFrame(t, eveConn, protocol.KindDisconnect, "")
	require.Equal(t, "eve left conversation.", ann.next(t, time.Second))

	// eve must see its own "left conversation." broadcast flushed to its
	// own socket before the server closes it.
	require.Equal(t, "eve left conversation.", eve.next(t, time.Second))
	require.NoError(t, eveConn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 16)
	n, rerr := eveConn.Read(buf)
	require.Zero(t, n)
	require.Error(t, rerr)
}

func TestServer_ReplaysHistoryToJoiner(t *testing.T) {
	addr, stop := startTestServer(t, server.Config{})
	defer stop()

	annConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer annConn.Close()
	ann := newFrameReader(annConn)

	sendFrame(t, annConn, protocol.KindUser, "ann")
	require.Equal(t, "ann joined conversation.", ann.next(t, time.Second))
	sendFrame(t, annConn, protocol.KindEntry, "first")
	require.Equal(t, "ann: first", ann.next(t, time.Second))
	sendFrame(t, annConn, protocol.KindEntry, "second")
	require.Equal(t, "ann: second", ann.next(t, time.Second))

	eveConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer eveConn.Close()
	eve := newFrameReader(eveConn)

	// eve's own join hasn't been sent yet, but the server starts every
	// accepted connection WRITE-first and replays retained history before
	// anything else reaches the socket.
	require.Equal(t, "ann joined conversation.", eve.next(t, 2*time.Second))
	require.Equal(t, "ann: first", eve.next(t, time.Second))
	require.Equal(t, "ann: second", eve.next(t, time.Second))
}

func TestServer_MalformedLengthClosesOnlyOffendingConnection(t *testing.T) {
	addr, stop := startTestServer(t, server.Config{})
	defer stop()

	annConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer annConn.Close()
	ann := newFrameReader(annConn)
	sendFrame(t, annConn, protocol.KindUser, "ann")
	require.Equal(t, "ann joined conversation.", ann.next(t, time.Second))

	badConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer badConn.Close()
	// Every new connection is sent the history replay first; consume it so
	// the read below observes only the close.
	bad := newFrameReader(badConn)
	require.Equal(t, "ann joined conversation.", bad.next(t, time.Second))
	_, err = badConn.Write([]byte("not-a-length##USER$$x"))
	require.NoError(t, err)

	require.NoError(t, badConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, rerr := badConn.Read(buf)
	require.Zero(t, n)
	require.Error(t, rerr) // the server closed the offending connection

	sendFrame(t, annConn, protocol.KindEntry, "still alive")
	require.Equal(t, "ann: still alive", ann.next(t, time.Second))
}

func TestServer_EvictsIdleConnection(t *testing.T) {
	addr, stop := startTestServer(t, server.Config{IdleTimeout: 200 * time.Millisecond})
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, rerr := conn.Read(buf)
	require.Zero(t, n)
	require.Error(t, rerr) // idle eviction closed the connection
}
