// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/testutil/memconn.go
// Summary: In-memory net.Conn pair for client/server tests.
// Usage: Imported by tests that run a yamux session without OS sockets.
// Notes: Not shipped with production binaries; only used in test code.

package testutil

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// MemConn implements net.Conn using in-memory channels. Reads may return
// part of a written chunk; the remainder is served by the next read.
type MemConn struct {
	readCh    <-chan []byte
	writeCh   chan<- []byte
	closed    chan struct{}
	peer      chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	pending       []byte
	readDeadline  time.Time
	writeDeadline time.Time
}

// NewMemPipe returns two endpoints backed by mirrored channels.
func NewMemPipe(buffer int) (*MemConn, *MemConn) {
	if buffer <= 0 {
		buffer = 16
	}
	leftChan := make(chan []byte, buffer)
	rightChan := make(chan []byte, buffer)
	leftClosed := make(chan struct{})
	rightClosed := make(chan struct{})
	left := &MemConn{readCh: rightChan, writeCh: leftChan, closed: leftClosed, peer: rightClosed}
	right := &MemConn{readCh: leftChan, writeCh: rightChan, closed: rightClosed, peer: leftClosed}
	return left, right
}

func (m *MemConn) Read(b []byte) (int, error) {
	m.mu.Lock()
	if len(m.pending) > 0 {
		n := copy(b, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	deadline := m.readDeadline
	m.mu.Unlock()

	select {
	case <-m.closed:
		return 0, net.ErrClosed
	default:
	}

	var timer <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timer = t.C
	}

	select {
	case data := <-m.readCh:
		return m.deliver(b, data), nil
	case <-m.peer:
		// Drain what the peer wrote before it closed.
		select {
		case data := <-m.readCh:
			return m.deliver(b, data), nil
		default:
			return 0, io.EOF
		}
	case <-m.closed:
		return 0, net.ErrClosed
	case <-timer:
		return 0, os.ErrDeadlineExceeded
	}
}

func (m *MemConn) deliver(b, data []byte) int {
	n := copy(b, data)
	if n < len(data) {
		m.mu.Lock()
		m.pending = append(m.pending, data[n:]...)
		m.mu.Unlock()
	}
	return n
}

func (m *MemConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	deadline := m.writeDeadline
	m.mu.Unlock()

	select {
	case <-m.closed:
		return 0, net.ErrClosed
	case <-m.peer:
		return 0, io.ErrClosedPipe
	default:
	}

	payload := make([]byte, len(b))
	copy(payload, b)

	var timer <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timer = t.C
	}

	select {
	case m.writeCh <- payload:
		return len(b), nil
	case <-m.closed:
		return 0, net.ErrClosed
	case <-m.peer:
		return 0, io.ErrClosedPipe
	case <-timer:
		return 0, os.ErrDeadlineExceeded
	}
}

// Close is idempotent. The peer sees EOF once it has drained buffered data.
func (m *MemConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *MemConn) LocalAddr() net.Addr  { return dummyAddr("mem") }
func (m *MemConn) RemoteAddr() net.Addr { return dummyAddr("mem") }

func (m *MemConn) SetDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	m.writeDeadline = t
	return nil
}

func (m *MemConn) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return nil
}

func (m *MemConn) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDeadline = t
	return nil
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// dummyAddr implements net.Addr for in-memory connections.
type dummyAddr string

func (d dummyAddr) Network() string { return string(d) }
func (d dummyAddr) String() string  { return string(d) }
