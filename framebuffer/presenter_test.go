// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package framebuffer

import (
	"image/color"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/texelshadow/damage"
)

func newTestScreen(t *testing.T, cols, rows int) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	screen.SetSize(cols, rows)
	t.Cleanup(screen.Fini)
	return screen
}

func readScreenLine(screen tcell.Screen, y, width int) string {
	runes := make([]rune, 0, width)
	for x := 0; x < width; x++ {
		ch, _, _, _ := screen.GetContent(x, y)
		if ch == 0 {
			ch = ' '
		}
		runes = append(runes, ch)
	}
	return string(runes)
}

func TestPresenterFlushPaintsCells(t *testing.T) {
	screen := newTestScreen(t, 10, 5)
	surface := NewSurface(32, 32)
	green := color.RGBA{G: 255, A: 255}
	if _, err := surface.Blit(damage.Rect{X: 16, Y: 0, Width: 16, Height: 16}, solid(16, 16, green)); err != nil {
		t.Fatalf("blit: %v", err)
	}
	p := NewPresenter(screen, surface, 8, 16)

	if err := p.Flush(damage.Rect{X: 0, Y: 0, Width: 32, Height: 16}); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_, _, style, _ := screen.GetContent(2, 1)
	_, bg, _ := style.Decompose()
	if bg != tcell.NewRGBColor(0, 255, 0) {
		t.Fatalf("cell (2,1) background = %v", bg)
	}
	_, _, style, _ = screen.GetContent(0, 1)
	_, bg, _ = style.Decompose()
	if bg != tcell.NewRGBColor(0, 0, 0) {
		t.Fatalf("cell (0,1) background = %v", bg)
	}
	if p.Flushes() != 1 {
		t.Fatalf("flushes = %d", p.Flushes())
	}
}

func TestPresenterRejectsEmptyRegion(t *testing.T) {
	p := NewPresenter(newTestScreen(t, 4, 4), NewSurface(16, 16), 8, 16)
	if err := p.Flush(damage.Rect{X: 3, Y: 3}); err == nil {
		t.Fatal("expected error for empty region")
	}
	if p.Flushes() != 0 {
		t.Fatal("empty region counted as flush")
	}
}

func TestPresenterTitleTruncated(t *testing.T) {
	screen := newTestScreen(t, 8, 3)
	p := NewPresenter(screen, NewSurface(16, 16), 8, 16)
	p.SetTitle("texelshadow session")
	if got := readScreenLine(screen, 0, 8); got != "texelsh…" {
		t.Fatalf("title = %q", got)
	}
}

func TestPresenterResizeRepaints(t *testing.T) {
	screen := newTestScreen(t, 6, 4)
	surface := NewSurface(16, 16)
	p := NewPresenter(screen, surface, 8, 16)
	if err := p.Resize(surface.Bounds()); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if p.Flushes() != 1 {
		t.Fatalf("flushes = %d", p.Flushes())
	}
}
