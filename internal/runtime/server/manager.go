// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/manager.go
// Summary: Registry of simulated sessions keyed by session id.
// Notes: A session is registered at Hello and removed when its connection
// ends; removal hands the final stats to the observer.

package server

import (
	"bytes"
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/framegrace/texelshadow/protocol"
)

var ErrSessionNotFound = errors.New("server: session not found")

// Manager is safe for concurrent use by connection goroutines.
type Manager struct {
	mu       sync.RWMutex
	live     map[uuid.UUID]*Session
	closed   uint64
	observer SessionStatsObserver
}

func NewManager() *Manager {
	return &Manager{live: make(map[uuid.UUID]*Session)}
}

// SetStatsObserver sets the observer told about each closed session. nil
// disables reporting.
func (m *Manager) SetStatsObserver(observer SessionStatsObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

// NewSession registers a fresh session for hello under a random id.
func (m *Manager) NewSession(hello protocol.Hello) *Session {
	id := uuid.New()
	s := newSession(id, hello)
	m.mu.Lock()
	m.live[id] = s
	m.mu.Unlock()
	return s
}

// Lookup finds a live session.
func (m *Manager) Lookup(id [16]byte) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.live[uuid.UUID(id)]; ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

// Close unregisters id. Unknown ids are ignored so deferred closes are safe
// to repeat.
func (m *Manager) Close(id [16]byte) {
	key := uuid.UUID(id)
	m.mu.Lock()
	s, ok := m.live[key]
	if ok {
		delete(m.live, key)
		m.closed++
	}
	observer := m.observer
	m.mu.Unlock()
	if !ok {
		return
	}
	s.Close()
	if observer != nil {
		observer.ObserveSessionStats(s.Stats())
	}
}

// ActiveSessions returns the number of live sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// ClosedSessions returns how many sessions have been unregistered.
func (m *Manager) ClosedSessions() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// SessionStats snapshots every live session, ordered by client name and
// then id.
func (m *Manager) SessionStats() []SessionStats {
	m.mu.RLock()
	out := make([]SessionStats, 0, len(m.live))
	for _, s := range m.live {
		out = append(out, s.Stats())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b SessionStats) int {
		if c := cmp.Compare(a.ClientName, b.ClientName); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out
}
