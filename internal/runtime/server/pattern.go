// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/pattern.go
// Summary: Test pattern frames streamed to simulated clients.
// Notes: Frame 0 paints the whole desktop; later frames move a block across
// it in reading order.

package server

import "github.com/framegrace/texelshadow/protocol"

const blockSize = 64

// update is one SurfaceBits worth of pattern.
type update struct {
	x, y          int
	width, height int
	pixels        []byte
}

// patternFrame returns the updates making up frame n of a width x height
// desktop.
func patternFrame(n uint32, width, height int) []update {
	if width <= 0 || height <= 0 {
		return nil
	}
	if n == 0 {
		return []update{{width: width, height: height, pixels: fill(width, height, background)}}
	}
	cols := (width + blockSize - 1) / blockSize
	rows := (height + blockSize - 1) / blockSize
	prev := blockOrigin(n-1, cols, rows)
	next := blockOrigin(n, cols, rows)
	return []update{
		clipped(prev[0], prev[1], width, height, background),
		clipped(next[0], next[1], width, height, paletteColor(n)),
	}
}

func blockOrigin(n uint32, cols, rows int) [2]int {
	cell := int(n % uint32(cols*rows))
	return [2]int{(cell % cols) * blockSize, (cell / cols) * blockSize}
}

func clipped(x, y, width, height int, c [4]byte) update {
	w := min(blockSize, width-x)
	h := min(blockSize, height-y)
	return update{x: x, y: y, width: w, height: h, pixels: fill(w, h, c)}
}

var background = [4]byte{16, 24, 32, 255}

var palette = [][4]byte{
	{220, 50, 47, 255},
	{133, 153, 0, 255},
	{38, 139, 210, 255},
	{181, 137, 0, 255},
	{211, 54, 130, 255},
	{42, 161, 152, 255},
}

func paletteColor(n uint32) [4]byte {
	return palette[int(n)%len(palette)]
}

func fill(width, height int, c [4]byte) []byte {
	out := make([]byte, width*height*protocol.BytesPerPixel)
	for i := 0; i < len(out); i += protocol.BytesPerPixel {
		copy(out[i:i+protocol.BytesPerPixel], c[:])
	}
	return out
}
