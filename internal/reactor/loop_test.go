// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package reactor_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/chatline/internal/reactor"

	"github.com/stretchr/testify/require"
)

func TestLoop_RegisterAndDispatchReadable(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	loop, err := reactor.New(nil)
	require.NoError(t, err)
	defer loop.Close()

	require.NoError(t, loop.Register(int(r.Fd()), reactor.InterestRead))

	gotReadable := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(func(ev reactor.ReadyEvent) {
			if ev.FD == int(r.Fd()) && ev.Readable {
				select {
				case gotReadable <- struct{}{}:
				default:
				}
				loop.Stop()
			}
		})
	}()

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case <-gotReadable:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for readable event")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_SubmitWakesBlockedRun(t *testing.T) {
	loop, err := reactor.New(nil)
	require.NoError(t, err)
	defer loop.Close()

	var mu sync.Mutex
	var ran bool
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(func(reactor.ReadyEvent) {})
	}()

	loop.Submit(func() {
		mu.Lock()
		ran = true
		mu.Unlock()
		loop.Stop()
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after Submit")
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, ran)
}
