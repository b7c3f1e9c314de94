// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollPoller is the Linux poller backend, built directly on
// golang.org/x/sys/unix epoll/eventfd syscalls rather than the stdlib
// runtime netpoller, so the loop can hold its own explicit
// registration-table and interest-mask model.
type epollPoller struct {
	epfd   int
	wakeFD int
	buf    []unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &epollPoller{epfd: epfd, wakeFD: wakeFD, buf: make([]unix.EpollEvent, 256)}
	// The wake fd is registered once, for the lifetime of the poller, with
	// level-triggered read interest: it stays readable as long as its
	// counter is non-zero, so a Wake() that races the next EpollWait call
	// is never lost.
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		_ = p.close()
		return nil, err
	}
	return p, nil
}

func epollEventsFor(interest InterestMask) uint32 {
	var ev uint32
	if interest.Readable() {
		ev |= unix.EPOLLIN
	}
	if interest.Writable() {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) add(fd int, interest InterestMask) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: epollEventsFor(interest),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) modify(fd int, interest InterestMask) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: epollEventsFor(interest),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) remove(fd int) error {
	// The event argument is ignored by EPOLL_CTL_DEL on modern kernels but
	// older kernels require a non-nil pointer.
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

func (p *epollPoller) wait(out []ReadyEvent, timeoutMillis int) ([]ReadyEvent, error) {
	out = out[:0]
	n, err := unix.EpollWait(p.epfd, p.buf, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, err
	}
	for i := 0; i < n; i++ {
		ev := p.buf[i]
		fd := int(ev.Fd)
		if fd == p.wakeFD {
			p.drainWake()
			continue
		}
		out = append(out, ReadyEvent{
			FD:       fd,
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Err:      ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakeFD, buf[:])
}

func (p *epollPoller) wake() {
	one := [8]byte{1, 0, 0, 0, 0, 0, 0, 0}
	_, _ = unix.Write(p.wakeFD, one[:])
}

func (p *epollPoller) close() error {
	_ = unix.Close(p.wakeFD)
	return unix.Close(p.epfd)
}
