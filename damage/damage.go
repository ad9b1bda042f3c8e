// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: damage/damage.go
// Summary: Normalizes remote damage rectangles into tile-aligned flush regions.
// Usage: Called from the paint-end hook before the local framebuffer flush.
// Notes: Pure and stateless; safe from any goroutine.

package damage

import "fmt"

// TileSize is the granularity of the local flush, matching the surface cache.
const TileSize = 16

// Rect is a rectangle in framebuffer coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Bounds is the size of the logical framebuffer.
type Bounds struct {
	Width  int
	Height int
}

// Valid reports whether both dimensions are positive.
func (b Bounds) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

func (b Bounds) String() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}

// Area returns Width*Height, or 0 for degenerate rectangles.
func (r Rect) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Union returns the smallest rectangle covering both r and o. Empty operands
// are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0 := min(r.X, o.X)
	y0 := min(r.Y, o.Y)
	x1 := max(r.X+r.Width, o.X+o.Width)
	y1 := max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// Normalize converts an untrusted rectangle into a tile-aligned region
// inside bounds. The boolean is false when there is nothing to paint, in
// which case the flush must be skipped.
func Normalize(raw Rect, bounds Bounds) (Rect, bool) {
	if !bounds.Valid() || raw.Empty() {
		return Rect{}, false
	}
	x, w := alignAxis(raw.X, raw.Width, bounds.Width)
	y, h := alignAxis(raw.Y, raw.Height, bounds.Height)
	if h > bounds.Height {
		h = bounds.Height
	}
	out := Rect{X: x, Y: y, Width: w, Height: h}
	if out.Area() < 1 {
		return Rect{}, false
	}
	return out, true
}

// alignAxis clamps the origin into [0, limit-1] and the extent to limit,
// grows the extent to cover the tile-aligned origin, rounds it up to a whole
// tile and clips it to the limit.
func alignAxis(pos, extent, limit int) (int, int) {
	if pos < 0 {
		pos = 0
	}
	if pos > limit-1 {
		pos = limit - 1
	}
	if extent > limit {
		extent = limit
	}
	extent += pos % TileSize
	pos -= pos % TileSize
	if rem := extent % TileSize; rem != 0 {
		extent += TileSize - rem
	}
	if pos+extent > limit {
		extent = limit - pos
	}
	return pos, extent
}
