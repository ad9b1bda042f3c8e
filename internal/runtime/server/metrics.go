// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/metrics.go
// Summary: Observers for final per-session stats.
// Usage: Manager.SetStatsObserver(ObserveAll(NewSessionStatsLogger(l), &StatsTotals{})).

package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStatsObserver receives the stats of each session as it closes.
type SessionStatsObserver interface {
	ObserveSessionStats(stats SessionStats)
}

// ObserveAll fans stats out to every non-nil observer in order.
func ObserveAll(observers ...SessionStatsObserver) SessionStatsObserver {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []SessionStatsObserver

func (m multiObserver) ObserveSessionStats(stats SessionStats) {
	for _, o := range m {
		o.ObserveSessionStats(stats)
	}
}

// SessionStatsLogger writes one line per closed session.
type SessionStatsLogger struct {
	logger *log.Logger
	now    func() time.Time
}

// NewSessionStatsLogger logs to l, or the standard logger when l is nil.
func NewSessionStatsLogger(l *log.Logger) *SessionStatsLogger {
	if l == nil {
		l = log.Default()
	}
	return &SessionStatsLogger{logger: l, now: time.Now}
}

func (s *SessionStatsLogger) ObserveSessionStats(stats SessionStats) {
	if s == nil || s.logger == nil {
		return
	}
	lived := time.Duration(0)
	if !stats.Connected.IsZero() {
		lived = s.now().Sub(stats.Connected).Round(time.Millisecond)
	}
	s.logger.Printf("session %s closed: client=%q desktop=%dx%d frames=%d bytes=%d pings=%d channels=%v lived=%s",
		uuid.UUID(stats.ID), stats.ClientName, stats.Width, stats.Height,
		stats.Frames, stats.Bytes, stats.Pings, stats.Channels, lived)
}

// StatsTotals accumulates counters across every closed session.
type StatsTotals struct {
	mu       sync.Mutex
	sessions uint64
	frames   uint64
	bytes    uint64
}

func (t *StatsTotals) ObserveSessionStats(stats SessionStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions++
	t.frames += stats.Frames
	t.bytes += stats.Bytes
}

// Totals returns the closed session count and their summed frame and byte
// counters.
func (t *StatsTotals) Totals() (sessions, frames, bytes uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions, t.frames, t.bytes
}
