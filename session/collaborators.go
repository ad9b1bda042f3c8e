// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/collaborators.go
// Summary: Interfaces the session drives and the hooks it exposes back.
// Usage: client.Engine implements Protocol, client.Channels implements
// Channels, framebuffer.Presenter implements Flusher.

package session

import (
	"context"
	"time"

	"github.com/framegrace/texelshadow/config"
	"github.com/framegrace/texelshadow/damage"
)

// Source contributes readiness handles and processes ready data. The run
// loop calls every method from its own goroutine.
type Source interface {
	CollectReadiness(set *DescriptorSet) error
	ProcessReadable() error
	ProcessWritable() error
}

// Protocol is the remote-display protocol collaborator.
type Protocol interface {
	Source
	// Handshake performs the blocking connect exchange. It must report the
	// connection result to subscribed observers before returning.
	Handshake(ctx context.Context, settings config.Settings) error
	// ShallDisconnect reports whether the remote side or the protocol
	// requested the session to end.
	ShallDisconnect() bool
	// Subscribe registers an observer and returns its unsubscribe func.
	Subscribe(obs Observer) func()
	// SetPainter installs the paint hooks. Nil detaches them.
	SetPainter(p Painter)
	Close() error
}

// Channels is the side-channel collaborator.
type Channels interface {
	Source
	Close() error
}

// Housekeeper is implemented by sources that need periodic work, such as
// keepalives, independent of readiness.
type Housekeeper interface {
	Housekeep(now time.Time) error
}

// Observer receives lifecycle notifications. Callbacks run on the goroutine
// that raised the event and must not block.
type Observer interface {
	OnConnectionResult(code uint32)
	OnChannelConnected(name string)
	OnChannelDisconnected(name string)
}

// FrameAction marks the start or end of a server frame.
type FrameAction uint16

const (
	FrameBegin FrameAction = iota
	FrameEnd
)

// Painter is the set of hooks the protocol calls while applying updates.
type Painter interface {
	BeginPaint()
	// EndPaint normalizes the damage rectangle and flushes it. The bool is
	// false when nothing was painted.
	EndPaint(raw damage.Rect) (damage.Rect, bool)
	DesktopResize(bounds damage.Bounds) error
	SurfaceFrameMarker(action FrameAction, frameID uint32)
}

// Flusher pushes a normalized region of the local framebuffer to its
// presentation target.
type Flusher interface {
	Flush(region damage.Rect) error
}

// Resizer is implemented by flushers that track the logical bounds.
type Resizer interface {
	Resize(bounds damage.Bounds) error
}

// Recorder receives session start and end events for persistence.
type Recorder interface {
	SessionStarted(info Info)
	SessionEnded(info Info, summary Summary)
}

// Info identifies a session to a Recorder.
type Info struct {
	ID       string
	Network  string
	Address  string
	Started  time.Time
	Desktop  damage.Bounds
	Channels []string
}

// Summary is the terminal record of a session.
type Summary struct {
	Cause    ExitCause
	Err      error
	Ended    time.Time
	Stats    Stats
	Duration time.Duration
}
