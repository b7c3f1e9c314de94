// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server implements the broadcast chat server: it accepts TCP
// clients on a single reactor goroutine, reassembles their inbound frames,
// dispatches USER/ENTRY/DISCONNECT messages, and fans every chat line out
// to every connected client, the sender included, while replaying recent
// history to new joiners.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.hybscloud.com/chatline/internal/connection"
	"code.hybscloud.com/chatline/internal/history"
	"code.hybscloud.com/chatline/internal/rawsock"
	"code.hybscloud.com/chatline/internal/reactor"
	"code.hybscloud.com/chatline/protocol"

	"code.hybscloud.com/iox"
	"go.uber.org/zap"
)

// errIdleTimeout reports a connection closed for sitting longer than
// Config.IdleTimeout without sending or receiving a byte.
var errIdleTimeout = errors.New("server: connection idle timeout exceeded")

// Server owns a listening socket, a reactor loop, and the table of
// connected clients. All of its state except the configuration is
// confined to the goroutine running ListenAndServe; Broadcast and
// Shutdown are the only methods safe to call from elsewhere.
type Server struct {
	cfg     Config
	logger  *zap.Logger
	loop    *reactor.Loop
	history *history.Store
	metrics *Metrics

	listenFD      int
	closeListener func() error
	conns         map[int]*connection.Conn

	stopped chan struct{}
}

// New builds a Server from cfg without binding a socket. Call
// ListenAndServe to start accepting connections.
func New(cfg Config) (*Server, error) {
	cfg.setDefaults()
	loop, err := reactor.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("server: new reactor: %w", err)
	}
	return &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		loop:    loop,
		history: history.New(cfg.HistoryCapacity),
		metrics: cfg.Metrics,
		conns:   make(map[int]*connection.Conn),
		stopped: make(chan struct{}),
	}, nil
}

// ListenAndServe binds cfg.Addr, registers the listening socket for read
// (accept) readiness, and runs the reactor loop until Shutdown is called
// or a fatal poller error occurs. It blocks until the loop exits.
func (s *Server) ListenAndServe() error {
	fd, closeFn, err := rawsock.ListenTCP(s.cfg.Addr)
	if err != nil {
		close(s.stopped)
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
	}
	s.listenFD = fd
	s.closeListener = closeFn

	if err := s.loop.Register(fd, reactor.InterestRead); err != nil {
		_ = closeFn()
		close(s.stopped)
		return fmt.Errorf("server: register listener: %w", err)
	}

	s.logger.Info("server: listening", zap.String("addr", s.cfg.Addr))
	defer close(s.stopped)
	defer s.cleanup()
	if s.cfg.IdleTimeout > 0 {
		tick := s.cfg.IdleTimeout / 4
		if tick <= 0 {
			tick = s.cfg.IdleTimeout
		}
		return s.loop.RunWithTick(tick, s.onReady, s.evictIdle)
	}
	return s.loop.Run(s.onReady)
}

// evictIdle closes every connection that has not read or written a byte
// within cfg.IdleTimeout. It runs on the loop goroutine once per
// RunWithTick iteration.
func (s *Server) evictIdle() {
	cutoff := time.Now().Add(-s.cfg.IdleTimeout)
	for _, c := range s.conns {
		if c.LastActive.Before(cutoff) {
			s.closeConn(c, errIdleTimeout)
		}
	}
}

// Shutdown stops the server, closing every connection and breaking
// ListenAndServe's Run loop. It blocks until ListenAndServe returns or ctx
// is done, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.loop.Submit(func() {
		for fd, c := range s.conns {
			_ = s.loop.Deregister(fd)
			_ = rawsock.Close(fd)
			delete(s.conns, fd)
			if s.metrics != nil {
				s.metrics.ConnectionsActive.Dec()
			}
		}
		s.loop.Stop()
	})
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast fans body out to every connected client as a BROADCAST frame
// and records it in history. Safe to call from any goroutine; the actual
// work always runs on the loop goroutine.
func (s *Server) Broadcast(body string) {
	s.loop.Submit(func() { s.broadcastOnLoop(body) })
}

func (s *Server) cleanup() {
	_ = s.loop.Close()
	if s.closeListener != nil {
		_ = s.closeListener()
	}
}

func (s *Server) onReady(ev reactor.ReadyEvent) {
	if ev.FD == s.listenFD {
		s.acceptNew()
		return
	}
	c, ok := s.conns[ev.FD]
	if !ok {
		return // event for an fd we already closed earlier in this batch
	}
	switch {
	case ev.Err:
		s.closeConn(c, errors.New("server: socket reported an error condition"))
	case ev.Readable:
		s.onReadable(c)
	case ev.Writable:
		s.onWritable(c)
	}
}

func (s *Server) acceptNew() {
	for {
		fd, remote, err := rawsock.Accept(s.listenFD)
		if err != nil {
			if errors.Is(err, iox.ErrWouldBlock) {
				return
			}
			s.logger.Warn("server: accept failed", zap.Error(err))
			return
		}

		c := connection.New(fd, remote, s.cfg.MaxQueuedBytes, s.cfg.splitterOptions()...)
		for _, entry := range s.history.Snapshot() {
			frame, ferr := protocol.EncodeMessage(protocol.KindBroadcast, entry)
			if ferr != nil {
				continue
			}
			_ = c.Out.Enqueue([]byte(frame))
		}

		// Register WRITE-first: a fresh socket is almost always writable
		// immediately, so the very next iteration flushes the replay (if
		// any) and drops to READ on its own, even when history is empty.
		if err := s.loop.Register(fd, reactor.InterestWrite); err != nil {
			s.logger.Warn("server: register accepted connection failed", zap.Error(err))
			_ = rawsock.Close(fd)
			continue
		}
		c.Interest = reactor.InterestWrite
		s.conns[fd] = c
		if s.metrics != nil {
			s.metrics.ConnectionsActive.Inc()
		}
		s.logger.Debug("server: accepted connection", zap.Int("fd", fd), zap.Stringer("remote", remote))
	}
}

func (s *Server) onReadable(c *connection.Conn) {
	var buf [MaxMsgLength]byte
	n, err := rawsock.Read(c.FD, buf[:])
	if err != nil {
		if errors.Is(err, iox.ErrWouldBlock) {
			return
		}
		s.closeConn(c, err)
		return
	}
	if n == 0 {
		s.closeConn(c, nil) // peer performed an orderly shutdown
		return
	}
	c.LastActive = time.Now()
	if err := c.In.Append(buf[:n]); err != nil {
		s.logger.Debug("server: malformed frame", zap.Int("fd", c.FD), zap.Error(err))
		if s.metrics != nil {
			s.metrics.FramesRejected.Inc()
		}
		s.closeConn(c, err)
		return
	}
	for c.In.HasNext() {
		payload, ok := c.In.Next()
		if !ok {
			break
		}
		if !s.dispatch(c, payload) {
			return // connection was closed while handling this payload
		}
	}
}

// dispatch decodes one payload and applies it; it reports false once c has
// been closed, at which point the caller must stop draining c.In.
func (s *Server) dispatch(c *connection.Conn, payload string) bool {
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		s.logger.Debug("server: undecodable payload", zap.Int("fd", c.FD), zap.Error(err))
		if s.metrics != nil {
			s.metrics.FramesRejected.Inc()
		}
		s.closeConn(c, err)
		return false
	}
	switch msg.Kind {
	case protocol.KindUser:
		c.Username = msg.Body
		s.broadcastOnLoop(fmt.Sprintf("%s joined conversation.", c.Username))
	case protocol.KindEntry:
		s.broadcastOnLoop(fmt.Sprintf("%s: %s", c.Username, msg.Body))
	case protocol.KindDisconnect:
		// broadcastOnLoop enqueues "left conversation." onto every
		// connection's outbound queue, including c's own, and arms write
		// interest for it; closing here synchronously would drop that
		// frame before it reaches the wire. Mark c as closing instead and
		// let onWritable close it once Out drains.
		s.broadcastOnLoop(fmt.Sprintf("%s left conversation.", c.Username))
		c.Closing = true
		return true
	default:
		if s.metrics != nil {
			s.metrics.FramesRejected.Inc()
		}
		s.closeConn(c, protocol.NewWrongDirectionError(msg.Kind))
		return false
	}
	return true
}

func (s *Server) onWritable(c *connection.Conn) {
	written := 0
	drained, err := c.Out.Flush(func(b []byte) (int, error) {
		n, werr := rawsock.Write(c.FD, b)
		if n > 0 {
			written += n
		}
		return n, werr
	})
	if s.metrics != nil && written > 0 {
		s.metrics.BytesWrittenTotal.Add(float64(written))
	}
	if err != nil {
		s.closeConn(c, err)
		return
	}
	if written > 0 {
		c.LastActive = time.Now()
	}
	if !drained {
		return
	}
	if c.Closing {
		s.closeConn(c, nil)
		return
	}
	if c.Interest != reactor.InterestRead {
		if err := s.loop.Modify(c.FD, reactor.InterestRead); err != nil {
			s.closeConn(c, err)
			return
		}
		c.Interest = reactor.InterestRead
	}
}

// broadcastOnLoop is Broadcast's body, callable directly by code already
// running on the loop goroutine (dispatch above) without a redundant
// Submit round-trip.
func (s *Server) broadcastOnLoop(body string) {
	s.history.Append(body)
	frame, err := protocol.EncodeMessage(protocol.KindBroadcast, body)
	if err != nil {
		s.logger.Error("server: failed to encode broadcast", zap.Error(err))
		return
	}
	data := []byte(frame)
	if s.metrics != nil {
		s.metrics.BroadcastsTotal.Inc()
	}
	for fd, c := range s.conns {
		if err := c.Out.Enqueue(data); err != nil {
			s.logger.Warn("server: outbound overflow, dropping slow consumer", zap.Int("fd", fd))
			s.closeConn(c, err)
			continue
		}
		if c.Interest != reactor.InterestWrite {
			if err := s.loop.Modify(fd, reactor.InterestWrite); err != nil {
				s.logger.Warn("server: failed to arm write interest", zap.Int("fd", fd), zap.Error(err))
				continue
			}
			c.Interest = reactor.InterestWrite
		}
	}
}

func (s *Server) closeConn(c *connection.Conn, err error) {
	delete(s.conns, c.FD)
	_ = s.loop.Deregister(c.FD)
	_ = rawsock.Close(c.FD)
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
	}
	if err != nil {
		s.logger.Debug("server: closed connection", zap.Int("fd", c.FD), zap.Error(err))
		return
	}
	s.logger.Debug("server: closed connection", zap.Int("fd", c.FD))
}
