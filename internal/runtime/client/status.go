// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/client/status.go
// Summary: Session events rendered into the viewer title and the log.

package clientruntime

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/framegrace/texelshadow/damage"
	"github.com/framegrace/texelshadow/framebuffer"
)

// status tracks what the title row shows. It is a session.Observer.
type status struct {
	address   string
	presenter *framebuffer.Presenter

	mu       sync.Mutex
	result   string
	channels map[string]bool
}

func newStatus(address string, presenter *framebuffer.Presenter) *status {
	return &status{address: address, presenter: presenter, result: "connecting", channels: make(map[string]bool)}
}

func (s *status) OnConnectionResult(code uint32) {
	s.mu.Lock()
	if code == 0 {
		s.result = "connected"
	} else {
		s.result = fmt.Sprintf("connect failed (%d)", code)
	}
	s.mu.Unlock()
	s.refresh()
}

func (s *status) OnChannelConnected(name string) {
	s.mu.Lock()
	s.channels[name] = true
	s.mu.Unlock()
	s.refresh()
}

func (s *status) OnChannelDisconnected(name string) {
	s.mu.Lock()
	delete(s.channels, name)
	s.mu.Unlock()
	s.refresh()
}

// Title returns the current title row text.
func (s *status) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "texelshadow %s [%s]", s.address, s.result)
	if len(s.channels) > 0 {
		names := make([]string, 0, len(s.channels))
		for name := range s.channels {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, " channels: %s", strings.Join(names, ","))
	}
	b.WriteString("  q to quit")
	return b.String()
}

func (s *status) refresh() {
	title := s.Title()
	debugLog.Printf("status: %s", title)
	if s.presenter != nil {
		s.presenter.SetTitle(title)
	}
}

// logFlusher stands in for the presenter when stdout is not a terminal.
type logFlusher struct {
	flushes atomic.Uint64
}

func (l *logFlusher) Flush(region damage.Rect) error {
	l.flushes.Add(1)
	debugLog.Printf("flush %s", region)
	return nil
}
