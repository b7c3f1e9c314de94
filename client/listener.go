// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package client implements the chat client's connection half: a
// non-blocking socket driven by its own reactor loop, a state machine from
// dial through orderly disconnect, and a listener callback surface
// dispatched off that loop.
package client

// Listener receives notification of a Client's connection lifecycle and
// of decoded broadcast bodies. Every method is invoked on a worker
// goroutine, never the I/O thread, so a slow or blocking Listener cannot
// stall the client's socket. Connected happens-before any RecvdMsg for the
// same Client, and Disconnected is always the last callback delivered.
type Listener interface {
	Connected(remoteAddr string)
	Disconnected()
	RecvdMsg(body string)
}
