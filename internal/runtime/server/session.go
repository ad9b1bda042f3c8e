// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/session.go
// Summary: Server-side record of one simulated remote-display session.

package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/framegrace/texelshadow/protocol"
)

// SessionStats is a point-in-time view of a session.
type SessionStats struct {
	ID         [16]byte
	ClientName string
	Width      int
	Height     int
	Channels   []string
	Frames     uint64
	Bytes      uint64
	Pings      uint64
	Connected  time.Time
	Closed     bool
}

// Session holds the negotiated parameters and counters of one client.
type Session struct {
	id        uuid.UUID
	hello     protocol.Hello
	connected time.Time

	mu       sync.Mutex
	width    int
	height   int
	channels []string
	closed   bool

	frames atomic.Uint64
	bytes  atomic.Uint64
	pings  atomic.Uint64
}

func newSession(id uuid.UUID, hello protocol.Hello) *Session {
	return &Session{id: id, hello: hello, connected: time.Now()}
}

func (s *Session) ID() [16]byte { return s.id }

func (s *Session) negotiate(width, height int, channels []string) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.channels = append([]string(nil), channels...)
	s.mu.Unlock()
}

// Desktop returns the negotiated desktop size.
func (s *Session) Desktop() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *Session) resize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

func (s *Session) recordFrame(bytes int) {
	s.frames.Add(1)
	s.bytes.Add(uint64(bytes))
}

func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStats{
		ID:         s.id,
		ClientName: s.hello.ClientName,
		Width:      s.width,
		Height:     s.height,
		Channels:   append([]string(nil), s.channels...),
		Frames:     s.frames.Load(),
		Bytes:      s.bytes.Load(),
		Pings:      s.pings.Load(),
		Connected:  s.connected,
		Closed:     s.closed,
	}
}
