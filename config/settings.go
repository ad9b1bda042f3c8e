// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/settings.go
// Summary: Immutable settings snapshot handed to session collaborators.
// Usage: Built once per session with Snapshot/FromConfig and passed by value.
// Notes: Settings never aliases the config store; Channels is a private copy.

package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidBounds   = errors.New("config: desktop bounds must be positive")
	ErrInvalidSettings = errors.New("config: invalid settings")
)

// maxDesktopDimension is the largest width or height the wire format carries.
const maxDesktopDimension = 0xFFFF

// Order identifies a drawing order in the capability table.
type Order uint8

const (
	OrderDstBlt            Order = 0
	OrderPatBlt            Order = 1
	OrderScrBlt            Order = 2
	OrderMemBlt            Order = 3
	OrderMem3Blt           Order = 4
	OrderDrawNineGrid      Order = 7
	OrderLineTo            Order = 8
	OrderMultiDrawNineGrid Order = 9
	OrderOpaqueRect        Order = 10
	OrderSaveBitmap        Order = 11
	OrderMemBltV2          Order = 13
	OrderMem3BltV2         Order = 14
	OrderMultiDstBlt       Order = 15
	OrderMultiPatBlt       Order = 16
	OrderMultiScrBlt       Order = 17
	OrderMultiOpaqueRect   Order = 18
	OrderFastIndex         Order = 19
	OrderPolygonSC         Order = 20
	OrderPolygonCB         Order = 21
	OrderPolyline          Order = 22
	OrderFastGlyph         Order = 24
	OrderEllipseSC         Order = 25
	OrderEllipseCB         Order = 26
	OrderGlyphIndex        Order = 27

	NumOrders = 32
)

var orderNames = map[string]Order{
	"dstblt":             OrderDstBlt,
	"patblt":             OrderPatBlt,
	"scrblt":             OrderScrBlt,
	"memblt":             OrderMemBlt,
	"mem3blt":            OrderMem3Blt,
	"drawninegrid":       OrderDrawNineGrid,
	"lineto":             OrderLineTo,
	"multi_drawninegrid": OrderMultiDrawNineGrid,
	"opaque_rect":        OrderOpaqueRect,
	"savebitmap":         OrderSaveBitmap,
	"memblt_v2":          OrderMemBltV2,
	"mem3blt_v2":         OrderMem3BltV2,
	"multi_dstblt":       OrderMultiDstBlt,
	"multi_patblt":       OrderMultiPatBlt,
	"multi_scrblt":       OrderMultiScrBlt,
	"multi_opaque_rect":  OrderMultiOpaqueRect,
	"fast_index":         OrderFastIndex,
	"polygon_sc":         OrderPolygonSC,
	"polygon_cb":         OrderPolygonCB,
	"polyline":           OrderPolyline,
	"fast_glyph":         OrderFastGlyph,
	"ellipse_sc":         OrderEllipseSC,
	"ellipse_cb":         OrderEllipseCB,
	"glyph_index":        OrderGlyphIndex,
}

// OrderSupport is the drawing-order capability table. It is an array so the
// settings snapshot copies it by value.
type OrderSupport [NumOrders]bool

// DefaultOrderSupport returns the capability table for a software renderer.
func DefaultOrderSupport(softwareGdi, bitmapCache bool) OrderSupport {
	var o OrderSupport
	o[OrderDstBlt] = true
	o[OrderPatBlt] = true
	o[OrderScrBlt] = true
	o[OrderOpaqueRect] = true
	o[OrderMultiOpaqueRect] = true
	o[OrderLineTo] = true
	o[OrderPolyline] = true
	o[OrderMemBlt] = bitmapCache
	o[OrderMem3Blt] = softwareGdi
	o[OrderMemBltV2] = bitmapCache
	o[OrderGlyphIndex] = true
	o[OrderFastIndex] = true
	o[OrderFastGlyph] = true
	o[OrderPolygonSC] = !softwareGdi
	o[OrderPolygonCB] = !softwareGdi
	return o
}

// Mask packs the table into a bitmask, bit i set when order i is supported.
func (o OrderSupport) Mask() uint32 {
	var mask uint32
	for i, on := range o {
		if on {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// Settings is the read-only configuration snapshot for one session.
type Settings struct {
	Network    string
	Address    string
	ClientName string

	DesktopWidth  int
	DesktopHeight int
	ColorDepth    int

	WaitTimeout      time.Duration
	HandshakeTimeout time.Duration
	KeepAlive        time.Duration
	MaxDescriptors   int

	SoftwareGdi       bool
	BitmapCache       bool
	Compression       bool
	IgnoreCertificate bool
	RdpSecurity       bool
	TlsSecurity       bool
	NlaSecurity       bool
	AutoReconnect     bool
	AsyncTransport    bool
	AsyncChannels     bool
	AsyncUpdate       bool
	AsyncInput        bool

	OrderSupport OrderSupport

	CellWidth  int
	CellHeight int

	JournalEnabled bool
	JournalPath    string

	channels []string
}

// Channels returns a copy of the requested side channel names.
func (s Settings) Channels() []string {
	return append([]string(nil), s.channels...)
}

// WithChannels returns a copy of s requesting the given channels.
func (s Settings) WithChannels(names ...string) Settings {
	s.channels = append([]string(nil), names...)
	return s
}

// Snapshot builds settings from the system config store.
func Snapshot() Settings {
	return FromConfig(System())
}

// FromConfig builds a settings snapshot from cfg.
func FromConfig(cfg Config) Settings {
	s := Settings{
		Network:    cfg.GetString("", "network", "unix"),
		Address:    cfg.GetString("", "address", "/tmp/texelshadow.sock"),
		ClientName: cfg.GetString("", "client_name", "texelshadow"),

		DesktopWidth:  cfg.GetInt("desktop", "width", 1024),
		DesktopHeight: cfg.GetInt("desktop", "height", 768),
		ColorDepth:    cfg.GetInt("desktop", "color_depth", 32),

		WaitTimeout:      cfg.GetMillis("session", "wait_timeout_ms", time.Second),
		HandshakeTimeout: cfg.GetMillis("session", "handshake_timeout_ms", 5*time.Second),
		KeepAlive:        cfg.GetMillis("session", "keepalive_ms", 5*time.Second),
		MaxDescriptors:   cfg.GetInt("session", "max_descriptors", 64),

		SoftwareGdi:       cfg.GetBool("features", "software_gdi", true),
		BitmapCache:       cfg.GetBool("features", "bitmap_cache", false),
		Compression:       cfg.GetBool("features", "compression", true),
		IgnoreCertificate: cfg.GetBool("features", "ignore_certificate", true),
		RdpSecurity:       cfg.GetBool("features", "rdp_security", true),
		TlsSecurity:       cfg.GetBool("features", "tls_security", true),
		NlaSecurity:       cfg.GetBool("features", "nla_security", false),
		AutoReconnect:     cfg.GetBool("features", "auto_reconnect", false),
		AsyncTransport:    cfg.GetBool("features", "async_transport", false),
		AsyncChannels:     cfg.GetBool("features", "async_channels", false),
		AsyncUpdate:       cfg.GetBool("features", "async_update", false),
		AsyncInput:        cfg.GetBool("features", "async_input", false),

		CellWidth:  cfg.GetInt("presenter", "cell_width", 8),
		CellHeight: cfg.GetInt("presenter", "cell_height", 16),

		JournalEnabled: cfg.GetBool("journal", "enabled", true),
		JournalPath:    cfg.GetString("journal", "path", ""),

		channels: cfg.GetStringSlice("", "channels"),
	}

	s.OrderSupport = DefaultOrderSupport(s.SoftwareGdi, s.BitmapCache)
	if orders := cfg.Section("orders"); orders != nil {
		for name := range orders {
			idx, ok := orderNames[name]
			if !ok {
				continue
			}
			s.OrderSupport[idx] = cfg.GetBool("orders", name, s.OrderSupport[idx])
		}
	}
	return s
}

// Validate reports configuration errors that must stop a session before it
// connects.
func (s Settings) Validate() error {
	if s.DesktopWidth <= 0 || s.DesktopHeight <= 0 ||
		s.DesktopWidth > maxDesktopDimension || s.DesktopHeight > maxDesktopDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidBounds, s.DesktopWidth, s.DesktopHeight)
	}
	switch {
	case s.WaitTimeout <= 0:
		return fmt.Errorf("%w: wait timeout %v", ErrInvalidSettings, s.WaitTimeout)
	case s.MaxDescriptors <= 0:
		return fmt.Errorf("%w: max descriptors %d", ErrInvalidSettings, s.MaxDescriptors)
	case s.ColorDepth != 8 && s.ColorDepth != 15 && s.ColorDepth != 16 && s.ColorDepth != 24 && s.ColorDepth != 32:
		return fmt.Errorf("%w: color depth %d", ErrInvalidSettings, s.ColorDepth)
	case s.Network != "unix" && s.Network != "tcp":
		return fmt.Errorf("%w: network %q", ErrInvalidSettings, s.Network)
	case s.Address == "":
		return fmt.Errorf("%w: empty address", ErrInvalidSettings)
	}
	return nil
}
