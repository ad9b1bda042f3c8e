// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/paint.go
// Summary: Painter hooks implemented by Session.
// Notes: Hooks run on the run-loop goroutine, or on the handshake caller
// before the loop starts.

package session

import (
	"fmt"

	"github.com/framegrace/texelshadow/config"
	"github.com/framegrace/texelshadow/damage"
)

// BeginPaint marks the start of an update batch.
func (s *Session) BeginPaint() {
	s.stats.paints.Add(1)
}

// EndPaint normalizes raw against the current bounds and flushes the result.
// A degenerate rectangle is skipped without calling the flusher.
func (s *Session) EndPaint(raw damage.Rect) (damage.Rect, bool) {
	region, ok := damage.Normalize(raw, s.Bounds())
	if !ok {
		s.stats.skipped.Add(1)
		debugLog.Printf("session %s: skip paint %v", s.id, raw)
		return damage.Rect{}, false
	}
	if s.flusher != nil {
		if err := s.flusher.Flush(region); err != nil {
			debugLog.Printf("session %s: flush %v: %v", s.id, region, err)
		}
	}
	s.stats.flushes.Add(1)
	return region, true
}

// DesktopResize replaces the logical bounds used by later paints.
func (s *Session) DesktopResize(bounds damage.Bounds) error {
	if !bounds.Valid() {
		return fmt.Errorf("%w: resize to %v", config.ErrInvalidBounds, bounds)
	}
	s.bounds.Store(&bounds)
	if r, ok := s.flusher.(Resizer); ok {
		if err := r.Resize(bounds); err != nil {
			return fmt.Errorf("session: resize flusher: %w", err)
		}
	}
	return nil
}

// SurfaceFrameMarker records frame boundaries.
func (s *Session) SurfaceFrameMarker(action FrameAction, frameID uint32) {
	if action == FrameEnd {
		s.stats.frames.Add(1)
	}
	debugLog.Printf("session %s: frame marker action=%d id=%d", s.id, action, frameID)
}
