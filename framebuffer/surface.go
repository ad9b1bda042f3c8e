// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: framebuffer/surface.go
// Summary: Primary 32bpp surface that remote updates are blitted into.
// Usage: The protocol engine blits SurfaceBits; the presenter samples regions.
// Notes: Blit clips untrusted rectangles to the surface bounds.

package framebuffer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/framegrace/texelshadow/damage"
)

// BytesPerPixel matches the wire format: R, G, B, A.
const BytesPerPixel = 4

var ErrPixelLength = errors.New("framebuffer: pixel data does not match rectangle")

// Surface is a resizable RGBA framebuffer safe for concurrent use.
type Surface struct {
	mu  sync.RWMutex
	img *image.RGBA
}

// NewSurface allocates a black surface of the given size.
func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))}
}

// Bounds returns the surface size.
func (s *Surface) Bounds() damage.Bounds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.img.Bounds()
	return damage.Bounds{Width: b.Dx(), Height: b.Dy()}
}

// Resize reallocates the surface, keeping the overlapping content.
func (s *Surface) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("framebuffer: invalid size %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img.Bounds().Dx() == width && s.img.Bounds().Dy() == height {
		return nil
	}
	next := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(next, next.Bounds(), s.img, image.Point{}, draw.Src)
	s.img = next
	return nil
}

// Blit copies a width*height block of pixels to dst, dropping the parts
// outside the surface. It returns the rectangle actually written.
func (s *Surface) Blit(dst damage.Rect, pixels []byte) (damage.Rect, error) {
	if dst.Width < 0 || dst.Height < 0 {
		return damage.Rect{}, fmt.Errorf("%w: negative extent %v", ErrPixelLength, dst)
	}
	if len(pixels) != dst.Width*dst.Height*BytesPerPixel {
		return damage.Rect{}, fmt.Errorf("%w: %v with %d bytes", ErrPixelLength, dst, len(pixels))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := image.Rect(dst.X, dst.Y, dst.X+dst.Width, dst.Y+dst.Height)
	clipped := target.Intersect(s.img.Bounds())
	if clipped.Empty() {
		return damage.Rect{}, nil
	}
	stride := dst.Width * BytesPerPixel
	rowBytes := clipped.Dx() * BytesPerPixel
	for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
		src := (y-dst.Y)*stride + (clipped.Min.X-dst.X)*BytesPerPixel
		off := s.img.PixOffset(clipped.Min.X, y)
		copy(s.img.Pix[off:off+rowBytes], pixels[src:src+rowBytes])
	}
	return damage.Rect{X: clipped.Min.X, Y: clipped.Min.Y, Width: clipped.Dx(), Height: clipped.Dy()}, nil
}

// At returns the pixel at (x, y), or transparent black outside the surface.
func (s *Surface) At(x, y int) color.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img.RGBAAt(x, y)
}

// Average returns the mean color of the block r, clipped to the surface.
func (s *Surface) Average(r damage.Rect) color.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	block := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Intersect(s.img.Bounds())
	if block.Empty() {
		return color.RGBA{}
	}
	var sr, sg, sb, sa, n uint64
	for y := block.Min.Y; y < block.Max.Y; y++ {
		off := s.img.PixOffset(block.Min.X, y)
		for x := block.Min.X; x < block.Max.X; x++ {
			sr += uint64(s.img.Pix[off])
			sg += uint64(s.img.Pix[off+1])
			sb += uint64(s.img.Pix[off+2])
			sa += uint64(s.img.Pix[off+3])
			off += BytesPerPixel
			n++
		}
	}
	return color.RGBA{R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n), A: uint8(sa / n)}
}
