// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/server.go
// Summary: Simulation server streaming a test pattern to remote-display clients.
// Usage: Used by shadow-server-sim and by client integration tests.
// Notes: Each connection is a yamux session; the first stream is the control
// stream, later streams are side channels.

package server

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
)

// Options configures the simulated desktop.
type Options struct {
	// Name is reported in Welcome.
	Name string
	// Width and Height override the client's requested desktop when set.
	Width  int
	Height int
	// FrameInterval is the pattern frame period.
	FrameInterval time.Duration
	// Frames ends the session with a DisconnectNotice after this many
	// frames. Zero streams until the client leaves.
	Frames int
	// Compress enables zstd surfaces when the client offers compression.
	Compress bool
	// Channels lists the side channels the server accepts.
	Channels []string
	// Reject forces a non-OK connect result.
	Reject uint32
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "shadow-server-sim"
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = 100 * time.Millisecond
	}
	return o
}

// Server listens for clients and serves simulated sessions.
type Server struct {
	network  string
	addr     string
	opts     Options
	manager  *Manager
	listener net.Listener
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

func NewServer(network, addr string, opts Options) *Server {
	return &Server{
		network: network,
		addr:    addr,
		opts:    opts.withDefaults(),
		manager: NewManager(),
		quit:    make(chan struct{}),
	}
}

func (s *Server) Start() error {
	if s.network == "unix" {
		if err := os.RemoveAll(s.addr); err != nil {
			return err
		}
	}
	l, err := net.Listen(s.network, s.addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			_ = s.Serve(c)
		}(conn)
	}
}

// Serve runs one client connection to completion and closes it.
func (s *Server) Serve(conn net.Conn) error {
	defer conn.Close()
	mux, err := yamux.Server(conn, muxConfig())
	if err != nil {
		return err
	}
	defer mux.Close()

	control, err := mux.Accept()
	if err != nil {
		return err
	}
	defer control.Close()

	session, accept, err := handleHandshake(control, s.manager, s.opts)
	if session != nil {
		defer s.manager.Close(session.ID())
	}
	if err != nil {
		debugLog.Printf("server: handshake failed: %v", err)
		return err
	}
	go acceptChannels(mux, session, accept.Channels)
	return newConnection(control, session, accept, s.opts, s.quit).serve()
}

func (s *Server) Stop(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.listener != nil {
		_ = s.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		<-done
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Server) Manager() *Manager {
	return s.manager
}

