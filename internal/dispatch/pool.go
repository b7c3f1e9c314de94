// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements the worker pool that runs listener callbacks
// off the reactor's I/O thread. Nothing here touches a socket; it exists
// solely so a slow or panicking observer callback cannot stall or crash
// the event loop.
package dispatch

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool is a fixed-size goroutine pool draining a task queue, built on
// golang.org/x/sync/errgroup.
type Pool struct {
	tasks  chan func()
	cancel context.CancelFunc
	group  *errgroup.Group
	logger *zap.Logger
}

// New starts a Pool with the given number of workers (GOMAXPROCS if
// workers <= 0).
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	p := &Pool{
		tasks:  make(chan func(), workers*4),
		cancel: cancel,
		group:  group,
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			p.runWorker(ctx)
			return nil
		})
	}
	return p
}

func (p *Pool) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(fn)
		}
	}
}

// run invokes fn, recovering any panic so a misbehaving listener callback
// cannot take down a worker goroutine.
func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("dispatch: listener callback panicked", zap.Any("recover", r))
		}
	}()
	fn()
}

// Submit enqueues fn to run on a worker goroutine. Submit blocks if every
// worker is busy and the queue is full; callers that must never block
// should size the pool accordingly. The reactor package itself never calls
// Submit, but client code does (through its Strand) from the loop
// goroutine, so a full queue stalls that client's I/O until a worker frees
// up.
func (p *Pool) Submit(fn func()) {
	p.tasks <- fn
}

// Close stops accepting new work, lets queued tasks drain, and waits for
// every worker to exit.
func (p *Pool) Close() {
	close(p.tasks)
	_ = p.group.Wait()
	p.cancel()
}
