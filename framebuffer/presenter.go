// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: framebuffer/presenter.go
// Summary: Flushes surface regions to a tcell screen.
// Usage: Passed to session.New as the Flusher; the session hands it
// tile-aligned regions after each paint.
// Notes: Row 0 is the title bar; pixels start on row 1. Each cell shows the
// average color of a CellWidth x CellHeight pixel block.

package framebuffer

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/framegrace/texelshadow/damage"
)

const titleRows = 1

// Presenter maps framebuffer pixels onto terminal cells.
type Presenter struct {
	screen  tcell.Screen
	surface *Surface
	cellW   int
	cellH   int

	mu      sync.Mutex
	title   string
	flushes int
}

// NewPresenter returns a presenter drawing surface onto screen.
func NewPresenter(screen tcell.Screen, surface *Surface, cellWidth, cellHeight int) *Presenter {
	if cellWidth <= 0 {
		cellWidth = 8
	}
	if cellHeight <= 0 {
		cellHeight = 16
	}
	return &Presenter{screen: screen, surface: surface, cellW: cellWidth, cellH: cellHeight}
}

// SetTitle replaces the title row text and redraws it.
func (p *Presenter) SetTitle(title string) {
	p.mu.Lock()
	p.title = title
	p.drawTitleLocked()
	p.mu.Unlock()
	p.screen.Show()
}

// Flushes returns how many regions have been flushed.
func (p *Presenter) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// Flush redraws every cell overlapping region.
func (p *Presenter) Flush(region damage.Rect) error {
	if region.Empty() {
		return fmt.Errorf("framebuffer: flush of empty region %v", region)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cols, rows := p.screen.Size()
	cx0 := region.X / p.cellW
	cy0 := region.Y / p.cellH
	cx1 := min(ceilDiv(region.X+region.Width, p.cellW), cols)
	cy1 := min(ceilDiv(region.Y+region.Height, p.cellH), rows-titleRows)
	for cy := cy0; cy < cy1; cy++ {
		for cx := cx0; cx < cx1; cx++ {
			c := p.surface.Average(damage.Rect{X: cx * p.cellW, Y: cy * p.cellH, Width: p.cellW, Height: p.cellH})
			style := tcell.StyleDefault.Background(tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B)))
			p.screen.SetContent(cx, cy+titleRows, ' ', nil, style)
		}
	}
	p.flushes++
	p.screen.Show()
	return nil
}

// Resize clears the screen and repaints the whole surface at its new size.
func (p *Presenter) Resize(bounds damage.Bounds) error {
	p.mu.Lock()
	p.screen.Clear()
	p.drawTitleLocked()
	p.mu.Unlock()
	if !bounds.Valid() {
		return nil
	}
	return p.Flush(damage.Rect{Width: bounds.Width, Height: bounds.Height})
}

// Redraw repaints the title and the full surface, e.g. after a terminal
// resize.
func (p *Presenter) Redraw() error {
	return p.Resize(p.surface.Bounds())
}

func (p *Presenter) drawTitleLocked() {
	cols, _ := p.screen.Size()
	style := tcell.StyleDefault.Reverse(true)
	text := runewidth.Truncate(p.title, cols, "…")
	x := 0
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		p.screen.SetContent(x, 0, r, nil, style)
		x += w
	}
	for ; x < cols; x++ {
		p.screen.SetContent(x, 0, ' ', nil, style)
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
