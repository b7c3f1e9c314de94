// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

// Options configures a Splitter's safety limits.
//
// The functional-options shape is a struct of knobs plus an
// Option func(*Options) constructor list, applied over a package-level
// default.
type Options struct {
	// MaxFrameLength caps the accepted decimal length header, guarding
	// against a hostile or corrupt length driving an unbounded allocation.
	// Zero falls back to defaultMaxFrameLength.
	MaxFrameLength int
}

const defaultMaxFrameLength = 1 << 20 // 1 MiB

var defaultOptions = Options{
	MaxFrameLength: defaultMaxFrameLength,
}

type Option func(*Options)

// WithMaxFrameLength overrides the safety cap on a single frame's payload
// length. Frames whose header declares a longer payload raise a
// ProtocolError with ReasonFrameTooLong.
func WithMaxFrameLength(n int) Option {
	return func(o *Options) { o.MaxFrameLength = n }
}
