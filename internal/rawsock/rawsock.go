// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package rawsock provides the non-blocking socket primitives the reactor
// needs: a listening fd the poller can register directly, an accept call
// that returns code.hybscloud.com/iox's ErrWouldBlock instead of blocking,
// read/write wrappers with the same translation, and a connect call that
// returns at once with the handshake still in progress (EINPROGRESS is not
// reported as an error).
package rawsock

import (
	"fmt"
	"net"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// Read performs one non-blocking read from fd into buf.
func Read(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, iox.ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Write performs one non-blocking write of buf to fd. A partial write
// returns its byte count with a nil error; the caller is responsible for
// resubmitting the remainder.
func Write(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return n, iox.ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

// Close closes fd directly, bypassing the net package entirely.
func Close(fd int) error {
	return unix.Close(fd)
}

// ListenTCP opens a TCP listening socket bound to addr and returns its raw,
// non-blocking file descriptor plus a function that releases every
// resource backing it. It goes through net.Listen for address parsing and
// dual-stack behavior, then takes over the underlying fd the way a
// reactor-based server must in order to register it with the poller
// directly instead of going through the runtime's integrated netpoller.
func ListenTCP(addr string) (fd int, closeFn func() error, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, nil, err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return 0, nil, fmt.Errorf("rawsock: listener for %q is not TCP", addr)
	}
	f, err := tcpLn.File()
	if err != nil {
		_ = ln.Close()
		return 0, nil, err
	}
	fd = int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = f.Close()
		_ = ln.Close()
		return 0, nil, err
	}
	closeFn = func() error {
		ferr := f.Close()
		lerr := ln.Close()
		if ferr != nil {
			return ferr
		}
		return lerr
	}
	return fd, closeFn, nil
}

// Accept performs one non-blocking accept on listenFD, returning the new
// connection's fd already set non-blocking and close-on-exec.
func Accept(listenFD int) (fd int, remote net.Addr, err error) {
	nfd, sa, aerr := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if aerr != nil {
		if aerr == unix.EAGAIN || aerr == unix.EWOULDBLOCK {
			return 0, nil, iox.ErrWouldBlock
		}
		return 0, nil, aerr
	}
	return nfd, sockaddrToAddr(sa), nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}
	default:
		return nil
	}
}

// DialTCP starts a non-blocking connect to host:port and returns the new
// socket's fd immediately, whether or not the three-way handshake has
// finished. The caller registers fd for write-readiness and calls
// FinishConnect once it fires.
func DialTCP(host string, port int) (fd int, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		_ = unix.Close(fd)
		return 0, err
	}
	var addr [4]byte
	found := false
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			copy(addr[:], v4)
			found = true
			break
		}
	}
	if !found {
		_ = unix.Close(fd)
		return 0, fmt.Errorf("rawsock: no IPv4 address found for %s", host)
	}
	err = unix.Connect(fd, &unix.SockaddrInet4{Port: port, Addr: addr})
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return 0, err
	}
	return fd, nil
}

// FinishConnect checks whether a connect started by DialTCP succeeded,
// once fd has reported write-readiness. A non-nil error means the connect
// failed; fd should be closed.
func FinishConnect(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}
