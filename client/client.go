// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"code.hybscloud.com/chatline/internal/connection"
	"code.hybscloud.com/chatline/internal/dispatch"
	"code.hybscloud.com/chatline/internal/rawsock"
	"code.hybscloud.com/chatline/internal/reactor"
	"code.hybscloud.com/chatline/protocol"

	"code.hybscloud.com/iox"
	"go.uber.org/zap"
)

// hostPortAddr is the best-effort net.Addr captured at dial time, before
// the three-way handshake (and therefore any kernel-confirmed peer
// address) completes.
type hostPortAddr string

func (a hostPortAddr) Network() string { return "tcp" }
func (a hostPortAddr) String() string  { return string(a) }

// Client is one chat connection: INITIAL -> CONNECTING -> CONNECTED ->
// DISCONNECTING -> CLOSED. It owns a private reactor loop (its I/O
// thread) and dispatches Listener callbacks off that loop via a Strand,
// which preserves per-connection callback order without blocking I/O.
type Client struct {
	cfg    Config
	logger *zap.Logger
	loop   *reactor.Loop

	pool     *dispatch.Pool
	ownsPool bool
	strand   *dispatch.Strand

	mu       sync.Mutex
	state    State
	listener Listener
	conn     *connection.Conn

	stopped      chan struct{}
	teardownOnce sync.Once
}

// New constructs a Client ready to Connect. It does not dial until
// Connect is called.
func New(cfg Config) (*Client, error) {
	cfg.setDefaults()
	loop, err := reactor.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("client: new reactor: %w", err)
	}
	pool := cfg.Pool
	ownsPool := false
	if pool == nil {
		pool = dispatch.New(1, cfg.Logger)
		ownsPool = true
	}
	return &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		loop:     loop,
		pool:     pool,
		ownsPool: ownsPool,
		strand:   dispatch.NewStrand(pool),
		stopped:  make(chan struct{}),
	}, nil
}

// Connect starts a non-blocking connect to host:port, registers the new
// socket for write-readiness (which a connecting socket reports once its
// handshake resolves), and starts the client's I/O goroutine. listener
// receives every subsequent lifecycle and message callback.
func (c *Client) Connect(host string, port int, listener Listener) error {
	c.mu.Lock()
	if c.state != StateInitial {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.listener = listener
	c.mu.Unlock()

	fd, err := rawsock.DialTCP(host, port)
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return fmt.Errorf("client: dial %s:%d: %w", host, port, err)
	}

	remote := hostPortAddr(net.JoinHostPort(host, strconv.Itoa(port)))
	conn := connection.New(fd, remote, c.cfg.MaxQueuedBytes, c.cfg.splitterOptions()...)
	if err := c.loop.Register(fd, reactor.InterestWrite); err != nil {
		_ = rawsock.Close(fd)
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return fmt.Errorf("client: register: %w", err)
	}
	conn.Interest = reactor.InterestWrite

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.runLoop()
	return nil
}

func (c *Client) runLoop() {
	defer close(c.stopped)
	defer func() { _ = c.loop.Close() }()
	if err := c.loop.Run(c.onReady); err != nil {
		c.logger.Error("client: reactor loop exited with error", zap.Error(err))
	}
}

func (c *Client) onReady(ev reactor.ReadyEvent) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StateConnecting {
		c.finishConnecting()
		return
	}
	switch {
	case ev.Err:
		c.failFatal(errors.New("client: socket reported an error condition"))
	case ev.Readable:
		c.onReadable()
	case ev.Writable:
		c.onWritable()
	}
}

func (c *Client) finishConnecting() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if err := rawsock.FinishConnect(conn.FD); err != nil {
		c.failFatal(fmt.Errorf("client: connect failed: %w", err))
		return
	}
	if err := c.loop.Modify(conn.FD, reactor.InterestRead); err != nil {
		c.failFatal(err)
		return
	}
	conn.Interest = reactor.InterestRead

	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	remote := conn.RemoteAddr.String()
	c.strand.Submit(func() { c.listener.Connected(remote) })
}

func (c *Client) onReadable() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	var buf [MaxMsgLength]byte
	n, err := rawsock.Read(conn.FD, buf[:])
	if err != nil {
		if errors.Is(err, iox.ErrWouldBlock) {
			return
		}
		c.failFatal(err)
		return
	}
	if n == 0 {
		c.failFatal(nil) // server performed an orderly shutdown
		return
	}
	if err := conn.In.Append(buf[:n]); err != nil {
		c.failFatal(err)
		return
	}
	for conn.In.HasNext() {
		payload, ok := conn.In.Next()
		if !ok {
			break
		}
		msg, derr := protocol.DecodeMessage(payload)
		if derr != nil {
			c.failFatal(derr)
			return
		}
		if msg.Kind != protocol.KindBroadcast {
			c.failFatal(protocol.NewWrongDirectionError(msg.Kind))
			return
		}
		body := msg.Body
		c.strand.Submit(func() { c.listener.RecvdMsg(body) })
	}
}

func (c *Client) onWritable() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	drained, err := conn.Out.Flush(func(b []byte) (int, error) { return rawsock.Write(conn.FD, b) })
	if err != nil {
		c.failFatal(err)
		return
	}
	if !drained {
		return
	}

	c.mu.Lock()
	disconnecting := c.state == StateDisconnecting
	c.mu.Unlock()
	if disconnecting {
		c.closeOrderly()
		return
	}
	if err := c.loop.Modify(conn.FD, reactor.InterestRead); err != nil {
		c.failFatal(err)
		return
	}
	conn.Interest = reactor.InterestRead
}

// enqueue frames kind/body, then submits the actual queue mutation to the
// loop goroutine so Conn.Out and Conn.Interest are never touched from a
// caller goroutine.
func (c *Client) enqueue(kind protocol.Kind, body string) error {
	c.mu.Lock()
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	allowed := state == StateConnected || (state == StateDisconnecting && kind == protocol.KindDisconnect)
	if !allowed {
		return ErrNotConnected
	}

	frame, err := protocol.EncodeMessage(kind, body)
	if err != nil {
		return err
	}
	c.loop.Submit(func() {
		if err := conn.Out.Enqueue([]byte(frame)); err != nil {
			c.failFatal(err)
			return
		}
		if conn.Interest != reactor.InterestWrite {
			if err := c.loop.Modify(conn.FD, reactor.InterestWrite); err != nil {
				c.failFatal(err)
				return
			}
			conn.Interest = reactor.InterestWrite
		}
	})
	return nil
}

// SendUsername sends a USER frame announcing name.
func (c *Client) SendUsername(name string) error {
	return c.enqueue(protocol.KindUser, name)
}

// SendChatEntry sends an ENTRY frame carrying one chat line.
func (c *Client) SendChatEntry(text string) error {
	return c.enqueue(protocol.KindEntry, text)
}

// Disconnect moves the Client to DISCONNECTING, enqueues a DISCONNECT
// frame, and lets the outbound queue drain before the socket closes. The
// loop goroutine delivers Listener.Disconnected once the close completes.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.state = StateDisconnecting
	c.mu.Unlock()
	return c.enqueue(protocol.KindDisconnect, "")
}

// closeOrderly runs on the loop goroutine once the DISCONNECT frame has
// fully drained.
func (c *Client) closeOrderly() {
	c.mu.Lock()
	conn := c.conn
	c.state = StateClosed
	c.mu.Unlock()

	_ = c.loop.Deregister(conn.FD)
	_ = rawsock.Close(conn.FD)
	c.strand.Submit(func() { c.listener.Disconnected() })
	c.teardownPool()
	c.loop.Stop()
}

// failFatal runs on the loop goroutine for any I/O error that was not
// part of an orderly Disconnect. It is idempotent: once the Client is
// already StateClosed, it does nothing, which matters because fd values
// are reused by the kernel and a second unix.Close on a stale fd could
// close an unrelated, newly opened descriptor.
func (c *Client) failFatal(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.state = StateClosed
	c.mu.Unlock()

	if conn != nil {
		_ = c.loop.Deregister(conn.FD)
		_ = rawsock.Close(conn.FD)
	}
	if err != nil {
		c.logger.Debug("client: fatal I/O error", zap.Error(err))
	}
	c.strand.Submit(func() { c.listener.Disconnected() })
	c.teardownPool()
	c.loop.Stop()
}

func (c *Client) teardownPool() {
	if !c.ownsPool {
		return
	}
	c.teardownOnce.Do(func() { c.pool.Close() })
}

// Close forces an immediate shutdown without sending a DISCONNECT frame,
// for callers that want a hard stop instead of the graceful Disconnect
// flow. It blocks until the I/O goroutine exits or ctx is done.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateInitial || state == StateClosed {
		return nil
	}
	c.loop.Submit(func() { c.failFatal(nil) })
	select {
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the Client's current lifecycle stage.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
