// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"testing"

	"github.com/framegrace/texelshadow/protocol"
)

type statsRecorder struct {
	stats []SessionStats
}

func (r *statsRecorder) ObserveSessionStats(stats SessionStats) {
	r.stats = append(r.stats, stats)
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	rec := &statsRecorder{}
	m.SetStatsObserver(rec)

	session := m.NewSession(protocol.Hello{ClientName: "alpha"})
	if m.ActiveSessions() != 1 {
		t.Fatalf("expected 1 active session")
	}
	found, err := m.Lookup(session.ID())
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found != session {
		t.Fatalf("lookup returned different session")
	}

	session.negotiate(64, 32, []string{"cliprdr"})
	session.recordFrame(100)
	session.recordFrame(50)

	m.Close(session.ID())
	if m.ActiveSessions() != 0 {
		t.Fatalf("expected 0 active sessions after close")
	}
	if _, err := m.Lookup(session.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("lookup after close err = %v", err)
	}
	if len(rec.stats) != 1 {
		t.Fatalf("observer calls = %d", len(rec.stats))
	}
	got := rec.stats[0]
	if got.Frames != 2 || got.Bytes != 150 || !got.Closed || got.ClientName != "alpha" || got.Width != 64 {
		t.Fatalf("final stats = %+v", got)
	}
	m.Close(session.ID())
	if len(rec.stats) != 1 {
		t.Fatal("closing an unknown session notified the observer")
	}
	if m.ClosedSessions() != 1 {
		t.Fatalf("closed sessions = %d", m.ClosedSessions())
	}
}

func TestManagerStatsOrdered(t *testing.T) {
	m := NewManager()
	m.NewSession(protocol.Hello{ClientName: "zeta"})
	m.NewSession(protocol.Hello{ClientName: "beta"})
	stats := m.SessionStats()
	if len(stats) != 2 || stats[0].ClientName != "beta" || stats[1].ClientName != "zeta" {
		t.Fatalf("stats = %+v", stats)
	}
}
