// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"time"

	"code.hybscloud.com/chatline/internal/connection"
	"code.hybscloud.com/chatline/internal/history"
	"code.hybscloud.com/chatline/protocol"

	"go.uber.org/zap"
)

// MaxMsgLength bounds one non-blocking read from a client socket.
const MaxMsgLength = 8192

// DefaultAddr is the address ListenAndServe binds when Config.Addr is
// empty.
const DefaultAddr = ":8080"

// DefaultIdleTimeout is the suggested eviction window for callers that
// want idle eviction but don't have a specific duration in mind.
// Config.IdleTimeout itself defaults to 0 (disabled); callers opt in by
// setting it explicitly, e.g. to DefaultIdleTimeout.
const DefaultIdleTimeout = 10 * time.Minute

// Config configures a Server. Every field has a usable zero value; New
// applies the defaults above and in the internal packages it wires.
type Config struct {
	Addr            string
	HistoryCapacity int
	MaxQueuedBytes  int
	MaxFrameLength  int
	IdleTimeout     time.Duration
	Logger          *zap.Logger
	Metrics         *Metrics
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = history.DefaultCapacity
	}
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
