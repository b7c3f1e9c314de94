// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import "errors"

var (
	// ErrNotConnected is returned by SendUsername, SendChatEntry, and
	// Disconnect when the Client is not in StateConnected.
	ErrNotConnected = errors.New("client: not connected")

	// ErrAlreadyConnected is returned by Connect on any Client that has
	// already left StateInitial.
	ErrAlreadyConnected = errors.New("client: already connecting or connected")
)
