// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package reactor

import "errors"

// ErrUnsupportedPlatform is returned by New on platforms without a poller
// backend. Only the Linux epoll backend ships in this repository; a kqueue
// backend for darwin/bsd is a natural follow-up (the same shape evio uses
// with a separate kqueue-backed poller) but is not implemented here.
var ErrUnsupportedPlatform = errors.New("reactor: no poller backend for this platform")

func newPoller() (poller, error) {
	return nil, ErrUnsupportedPlatform
}
