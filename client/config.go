// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"code.hybscloud.com/chatline/internal/connection"
	"code.hybscloud.com/chatline/internal/dispatch"
	"code.hybscloud.com/chatline/protocol"

	"go.uber.org/zap"
)

// MaxMsgLength bounds one non-blocking read from the server socket.
const MaxMsgLength = 8192

// Config configures a Client. Every field has a usable zero value.
type Config struct {
	MaxQueuedBytes int
	MaxFrameLength int
	Logger         *zap.Logger

	// Pool, if non-nil, is the worker pool Listener callbacks are
	// dispatched through. If nil, the Client starts a private
	// single-worker Pool and closes it when the Client closes.
	Pool *dispatch.Pool
}

func (c *Config) setDefaults() {
	if c.MaxQueuedBytes <= 0 {
		c.MaxQueuedBytes = connection.DefaultMaxQueuedBytes
	}
	if c.MaxFrameLength <= 0 {
		c.MaxFrameLength = 1 << 20
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

func (c *Config) splitterOptions() []protocol.Option {
	return []protocol.Option{protocol.WithMaxFrameLength(c.MaxFrameLength)}
}
