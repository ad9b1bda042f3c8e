// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package framebuffer

import (
	"errors"
	"image/color"
	"testing"

	"github.com/framegrace/texelshadow/damage"
)

func solid(w, h int, c color.RGBA) []byte {
	out := make([]byte, w*h*BytesPerPixel)
	for i := 0; i < len(out); i += BytesPerPixel {
		out[i], out[i+1], out[i+2], out[i+3] = c.R, c.G, c.B, c.A
	}
	return out
}

func TestBlitClipsToSurface(t *testing.T) {
	s := NewSurface(32, 32)
	red := color.RGBA{R: 255, A: 255}
	written, err := s.Blit(damage.Rect{X: -4, Y: 28, Width: 8, Height: 8}, solid(8, 8, red))
	if err != nil {
		t.Fatalf("blit: %v", err)
	}
	if written != (damage.Rect{X: 0, Y: 28, Width: 4, Height: 4}) {
		t.Fatalf("written = %v", written)
	}
	if got := s.At(0, 31); got != red {
		t.Fatalf("pixel (0,31) = %v", got)
	}
	if got := s.At(4, 31); got != (color.RGBA{}) {
		t.Fatalf("pixel outside blit = %v", got)
	}
}

func TestBlitOutsideSurfaceWritesNothing(t *testing.T) {
	s := NewSurface(16, 16)
	written, err := s.Blit(damage.Rect{X: 100, Y: 100, Width: 2, Height: 2}, solid(2, 2, color.RGBA{G: 9}))
	if err != nil || written.Area() != 0 {
		t.Fatalf("written = %v err = %v", written, err)
	}
}

func TestBlitRejectsShortData(t *testing.T) {
	s := NewSurface(16, 16)
	if _, err := s.Blit(damage.Rect{Width: 4, Height: 4}, make([]byte, 10)); !errors.Is(err, ErrPixelLength) {
		t.Fatalf("err = %v", err)
	}
}

func TestResizeKeepsOverlap(t *testing.T) {
	s := NewSurface(16, 16)
	blue := color.RGBA{B: 200, A: 255}
	if _, err := s.Blit(damage.Rect{X: 2, Y: 2, Width: 1, Height: 1}, solid(1, 1, blue)); err != nil {
		t.Fatalf("blit: %v", err)
	}
	if err := s.Resize(8, 40); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if s.Bounds() != (damage.Bounds{Width: 8, Height: 40}) {
		t.Fatalf("bounds = %v", s.Bounds())
	}
	if got := s.At(2, 2); got != blue {
		t.Fatalf("pixel lost on resize: %v", got)
	}
	if err := s.Resize(0, 4); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestAverage(t *testing.T) {
	s := NewSurface(2, 1)
	if _, err := s.Blit(damage.Rect{Width: 2, Height: 1}, []byte{200, 0, 0, 255, 0, 100, 0, 255}); err != nil {
		t.Fatalf("blit: %v", err)
	}
	got := s.Average(damage.Rect{Width: 4, Height: 4})
	if got != (color.RGBA{R: 100, G: 50, B: 0, A: 255}) {
		t.Fatalf("average = %v", got)
	}
}
