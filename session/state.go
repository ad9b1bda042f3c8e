// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/state.go
// Summary: Lifecycle states and exit causes.

package session

import "fmt"

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ExitCause records why a session reached StateTerminated.
type ExitCause int

const (
	// ExitNone means the session has not terminated yet.
	ExitNone ExitCause = iota
	// ExitStopped is a cooperative stop requested through Stop.
	ExitStopped
	// ExitDisconnected is a disconnect requested by the remote side or the
	// collaborator.
	ExitDisconnected
	// ExitFault is a transport, channel or descriptor failure.
	ExitFault
	// ExitHandshakeFailed means the session never connected.
	ExitHandshakeFailed
	// ExitConfig means the settings were rejected before connecting.
	ExitConfig
)

func (c ExitCause) String() string {
	switch c {
	case ExitNone:
		return "none"
	case ExitStopped:
		return "stopped"
	case ExitDisconnected:
		return "disconnected"
	case ExitFault:
		return "fault"
	case ExitHandshakeFailed:
		return "handshake-failed"
	case ExitConfig:
		return "config"
	}
	return fmt.Sprintf("cause(%d)", int(c))
}

// Clean reports whether the cause is a cooperative termination rather than
// an error.
func (c ExitCause) Clean() bool {
	return c == ExitStopped || c == ExitDisconnected
}
