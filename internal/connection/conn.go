// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package connection implements the per-connection record: identity,
// inbound reassembly, outbound queue, and interest mask. A Conn is owned
// exclusively by the reactor goroutine that registered its file
// descriptor; nothing outside that goroutine mutates it.
package connection

import (
	"net"
	"time"

	"code.hybscloud.com/chatline/internal/reactor"
	"code.hybscloud.com/chatline/protocol"
)

// DefaultUsername is the identity a connection carries until its first
// USER message.
const DefaultUsername = "anonymous"

// Conn is the server- or client-side record for one TCP connection.
type Conn struct {
	FD         int
	RemoteAddr net.Addr
	Username   string

	In  *protocol.Splitter
	Out *Outbound

	// Interest mirrors the mask currently registered with the reactor for
	// FD. It exists so callers can decide whether a Modify call is even
	// necessary without asking the reactor; the reactor is the source of
	// truth for what the kernel actually has registered.
	Interest reactor.InterestMask

	// LastActive is set when the Conn is created and updated by the server
	// on every successful read or write; an idle-eviction policy compares
	// it against a deadline. The client never updates it.
	LastActive time.Time

	// Closing marks a connection that has sent or received its final frame
	// and is waiting for Out to drain before the socket closes. The owner
	// checks this once Out.Flush reports drained, instead of dropping back
	// to read interest.
	Closing bool
}

// New returns a Conn with the default username, an empty Splitter bounded
// by splitterOpts, and an Outbound bounded by maxQueuedBytes (0 for the
// default watermark).
func New(fd int, remoteAddr net.Addr, maxQueuedBytes int, splitterOpts ...protocol.Option) *Conn {
	return &Conn{
		FD:         fd,
		RemoteAddr: remoteAddr,
		Username:   DefaultUsername,
		In:         protocol.NewSplitter(splitterOpts...),
		Out:        NewOutbound(maxQueuedBytes),
		LastActive: time.Now(),
	}
}
