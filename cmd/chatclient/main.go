// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command chatclient is a minimal non-interactive embedding demo for the
// client package: it connects, prints every broadcast it receives to
// stdout, optionally sends one chat entry via -say, then stays connected
// until interrupted. It is not a REPL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"code.hybscloud.com/chatline/client"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

const defaultPort = 8080

type fileConfig struct {
	MaxQueuedBytes int `toml:"max_queued_bytes"`
	MaxFrameLength int `toml:"max_frame_length"`
}

func applyFileConfig(cfg *client.Config, fc fileConfig) {
	if fc.MaxQueuedBytes > 0 {
		cfg.MaxQueuedBytes = fc.MaxQueuedBytes
	}
	if fc.MaxFrameLength > 0 {
		cfg.MaxFrameLength = fc.MaxFrameLength
	}
}

// stdoutListener prints every lifecycle event and broadcast to stdout,
// signals connected once the handshake completes, and signals done once
// the connection ends.
type stdoutListener struct {
	connected chan struct{}
	done      chan struct{}
}

func (l *stdoutListener) Connected(remoteAddr string) {
	fmt.Printf("connected to %s\n", remoteAddr)
	close(l.connected)
}

func (l *stdoutListener) RecvdMsg(body string) {
	fmt.Println(body)
}

func (l *stdoutListener) Disconnected() {
	fmt.Println("disconnected")
	close(l.done)
}

func main() {
	var username, say, configPath string
	flag.StringVar(&username, "username", "guest", "username to announce on connect")
	flag.StringVar(&say, "say", "", "one chat entry to send after connecting (skipped if empty)")
	flag.StringVar(&configPath, "config", "", "optional TOML file overriding client config")
	flag.Parse()

	host := "127.0.0.1"
	port := defaultPort
	switch flag.NArg() {
	case 0:
	case 1:
		if p, err := strconv.Atoi(flag.Arg(0)); err == nil {
			port = p
		} else {
			host = flag.Arg(0)
		}
	default:
		host = flag.Arg(0)
		if p, err := strconv.Atoi(flag.Arg(1)); err == nil {
			port = p
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatclient: building logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := client.Config{Logger: logger}
	if configPath != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(configPath, &fc); err != nil {
			logger.Warn("chatclient: failed to load config file, continuing with defaults", zap.Error(err))
		} else {
			applyFileConfig(&cfg, fc)
		}
	}

	c, err := client.New(cfg)
	if err != nil {
		logger.Fatal("chatclient: building client", zap.Error(err))
	}

	lst := &stdoutListener{connected: make(chan struct{}), done: make(chan struct{})}
	if err := c.Connect(host, port, lst); err != nil {
		logger.Fatal("chatclient: connect failed", zap.Error(err))
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}()

	select {
	case <-lst.connected:
	case <-lst.done:
		return
	}

	if err := c.SendUsername(username); err != nil {
		logger.Warn("chatclient: send username failed", zap.Error(err))
	}
	if say != "" {
		if err := c.SendChatEntry(say); err != nil {
			logger.Warn("chatclient: send chat entry failed", zap.Error(err))
		}
	}

	<-lst.done
}
