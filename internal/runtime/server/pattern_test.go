// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"testing"

	"github.com/framegrace/texelshadow/protocol"
)

func TestPatternFirstFrameCoversDesktop(t *testing.T) {
	updates := patternFrame(0, 100, 70)
	if len(updates) != 1 {
		t.Fatalf("updates = %d", len(updates))
	}
	u := updates[0]
	if u.x != 0 || u.y != 0 || u.width != 100 || u.height != 70 {
		t.Fatalf("update = %+v", u)
	}
	if len(u.pixels) != 100*70*protocol.BytesPerPixel {
		t.Fatalf("pixels = %d", len(u.pixels))
	}
}

func TestPatternBlocksStayInside(t *testing.T) {
	const w, h = 100, 70
	for n := uint32(1); n < 20; n++ {
		for _, u := range patternFrame(n, w, h) {
			if u.x < 0 || u.y < 0 || u.x+u.width > w || u.y+u.height > h || u.width <= 0 || u.height <= 0 {
				t.Fatalf("frame %d update out of bounds: %d,%d %dx%d", n, u.x, u.y, u.width, u.height)
			}
			if len(u.pixels) != u.width*u.height*protocol.BytesPerPixel {
				t.Fatalf("frame %d pixel length %d", n, len(u.pixels))
			}
		}
	}
	if patternFrame(3, 0, 10) != nil {
		t.Fatal("expected no updates for an empty desktop")
	}
}
