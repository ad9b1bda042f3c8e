// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/surface_codec.go
// Summary: Pixel payload compression for SurfaceBits.
// Usage: Servers call PackSurface, clients call UnpackSurface.

package protocol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// BytesPerPixel is the size of one 32bpp pixel.
const BytesPerPixel = 4

var (
	ErrUnknownCodec  = errors.New("protocol: unknown surface codec")
	ErrSurfaceLength = errors.New("protocol: surface data does not match dimensions")
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() {
	encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if codecErr != nil {
		return
	}
	decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MaxPayload))
}

// PackSurface builds a SurfaceBits message for raw pixels, compressing them
// when compress is set.
func PackSurface(x, y int32, width, height uint32, pixels []byte, compress bool) (SurfaceBits, error) {
	if uint64(len(pixels)) != uint64(width)*uint64(height)*BytesPerPixel {
		return SurfaceBits{}, fmt.Errorf("%w: %dx%d with %d bytes", ErrSurfaceLength, width, height, len(pixels))
	}
	msg := SurfaceBits{X: x, Y: y, Width: width, Height: height, Codec: CodecRaw, Data: pixels}
	if !compress {
		return msg, nil
	}
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return SurfaceBits{}, codecErr
	}
	msg.Codec = CodecZstd
	msg.Data = encoder.EncodeAll(pixels, make([]byte, 0, len(pixels)/4))
	return msg, nil
}

// UnpackSurface returns the raw 32bpp pixels carried by s.
func UnpackSurface(s SurfaceBits) ([]byte, error) {
	want := uint64(s.Width) * uint64(s.Height) * BytesPerPixel
	if want > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	var pixels []byte
	switch s.Codec {
	case CodecRaw:
		pixels = s.Data
	case CodecZstd:
		codecOnce.Do(initCodec)
		if codecErr != nil {
			return nil, codecErr
		}
		out, err := decoder.DecodeAll(s.Data, make([]byte, 0, want))
		if err != nil {
			return nil, fmt.Errorf("protocol: decompress surface: %w", err)
		}
		pixels = out
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, s.Codec)
	}
	if uint64(len(pixels)) != want {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrSurfaceLength, s.Width, s.Height, len(pixels))
	}
	return pixels, nil
}
