// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/session.go
// Summary: Client session lifecycle: connect, run loop, cooperative stop.
// Usage: New(settings, protocol, channels, opts) then Start(ctx); Stop ends it.
// Notes: Termination releases collaborators exactly once from whichever
// goroutine reaches it first.

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/framegrace/texelshadow/config"
	"github.com/framegrace/texelshadow/damage"
)

var (
	// ErrInvalidState is returned by Start outside StateIdle.
	ErrInvalidState = errors.New("session: invalid state")
	// ErrHandshakeFailed wraps the protocol's connect error.
	ErrHandshakeFailed = errors.New("session: handshake failed")
	// ErrDisconnectRequested may be returned by collaborators to end the
	// session cleanly.
	ErrDisconnectRequested = errors.New("session: disconnect requested")
)

// Options carries optional session collaborators.
type Options struct {
	Observers []Observer
	Flusher   Flusher
	Recorder  Recorder
	// Go spawns the run loop. Defaults to a plain goroutine.
	Go func(name string, fn func())
	// Now is the clock used for housekeeping and records.
	Now func() time.Time
}

// Stats are counters maintained while the session runs.
type Stats struct {
	Iterations uint64
	Paints     uint64
	Flushes    uint64
	Skipped    uint64
	Frames     uint64
}

type counters struct {
	iterations atomic.Uint64
	paints     atomic.Uint64
	flushes    atomic.Uint64
	skipped    atomic.Uint64
	frames     atomic.Uint64
}

// Session drives one remote-display connection.
type Session struct {
	id       string
	settings config.Settings
	protocol Protocol
	channels Channels
	hub      *Hub
	flusher  Flusher
	recorder Recorder
	spawn    func(name string, fn func())
	now      func() time.Time

	state  atomic.Int32
	bounds atomic.Pointer[damage.Bounds]
	stats  counters

	stopOnce sync.Once
	stopCh   chan struct{}

	termOnce    sync.Once
	done        chan struct{}
	unsubscribe func()
	started     time.Time

	mu    sync.Mutex
	cause ExitCause
	err   error
}

// New returns an idle session. The settings snapshot is copied and never
// changes afterwards.
func New(settings config.Settings, protocol Protocol, channels Channels, opts Options) *Session {
	s := &Session{
		id:       uuid.NewString(),
		settings: settings,
		protocol: protocol,
		channels: channels,
		hub:      NewHub(opts.Observers...),
		flusher:  opts.Flusher,
		recorder: opts.Recorder,
		spawn:    opts.Go,
		now:      opts.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if s.spawn == nil {
		s.spawn = func(_ string, fn func()) { go fn() }
	}
	if s.now == nil {
		s.now = time.Now
	}
	bounds := damage.Bounds{Width: settings.DesktopWidth, Height: settings.DesktopHeight}
	s.bounds.Store(&bounds)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Settings returns the session's settings snapshot.
func (s *Session) Settings() config.Settings { return s.settings }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Bounds returns the current logical framebuffer size.
func (s *Session) Bounds() damage.Bounds { return *s.bounds.Load() }

// AddObserver registers obs. It must be called before Start to see the
// connection result.
func (s *Session) AddObserver(obs Observer) { s.hub.Add(obs) }

// Done is closed once the session reaches StateTerminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Iterations: s.stats.iterations.Load(),
		Paints:     s.stats.paints.Load(),
		Flushes:    s.stats.flushes.Load(),
		Skipped:    s.stats.skipped.Load(),
		Frames:     s.stats.frames.Load(),
	}
}

// Cause returns why the session terminated, or ExitNone while it is live.
func (s *Session) Cause() ExitCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Err returns the terminal error. Clean terminations return nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the session terminates or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start validates the settings, performs the handshake on the calling
// goroutine, checks the readiness set against MaxDescriptors and then spawns
// the run loop. It fails with ErrInvalidState unless the session is idle.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, s.State())
	}
	s.started = s.now()

	if err := s.settings.Validate(); err != nil {
		s.terminate(ExitConfig, err)
		return err
	}
	if s.protocol == nil || s.channels == nil {
		err := fmt.Errorf("%w: missing collaborator", config.ErrInvalidSettings)
		s.terminate(ExitConfig, err)
		return err
	}

	s.unsubscribe = s.protocol.Subscribe(s.hub)
	s.protocol.SetPainter(s)

	hctx := ctx
	if s.settings.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, s.settings.HandshakeTimeout)
		defer cancel()
	}
	if err := s.protocol.Handshake(hctx, s.settings); err != nil {
		err = fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		s.terminate(ExitHandshakeFailed, err)
		return err
	}
	if err := s.checkDescriptorBudget(); err != nil {
		s.terminate(ExitConfig, err)
		return err
	}

	s.state.Store(int32(StateConnected))
	log.Printf("session %s: connected to %s %s (%v)", s.id, s.settings.Network, s.settings.Address, s.Bounds())
	if s.recorder != nil {
		s.recorder.SessionStarted(s.info())
	}
	s.spawn("session-loop", s.run)
	return nil
}

// Stop requests a cooperative stop and returns immediately. It is safe to
// call from any goroutine, repeatedly, and in any state. An idle session
// moves straight to StateTerminated.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.state.CompareAndSwap(int32(StateIdle), int32(StateTerminating)) {
		s.terminate(ExitStopped, nil)
	}
}

func (s *Session) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Session) terminate(cause ExitCause, err error) {
	s.termOnce.Do(func() {
		s.state.Store(int32(StateTerminating))
		s.release()

		s.mu.Lock()
		s.cause = cause
		s.err = err
		s.mu.Unlock()

		s.state.Store(int32(StateTerminated))
		if err != nil {
			log.Printf("session %s: terminated (%s): %v", s.id, cause, err)
		} else {
			log.Printf("session %s: terminated (%s)", s.id, cause)
		}
		if s.recorder != nil && !s.started.IsZero() {
			ended := s.now()
			s.recorder.SessionEnded(s.info(), Summary{
				Cause:    cause,
				Err:      err,
				Ended:    ended,
				Stats:    s.Stats(),
				Duration: ended.Sub(s.started),
			})
		}
		close(s.done)
	})
}

// release detaches the painter, closes both collaborators and only then
// drops the observer subscription, so channel departures caused by the
// close still reach observers.
func (s *Session) release() {
	if s.protocol != nil {
		s.protocol.SetPainter(nil)
	}
	if s.channels != nil {
		if err := s.channels.Close(); err != nil {
			log.Printf("session %s: close channels: %v", s.id, err)
		}
	}
	if s.protocol != nil {
		if err := s.protocol.Close(); err != nil {
			log.Printf("session %s: close protocol: %v", s.id, err)
		}
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Session) info() Info {
	return Info{
		ID:       s.id,
		Network:  s.settings.Network,
		Address:  s.settings.Address,
		Started:  s.started,
		Desktop:  s.Bounds(),
		Channels: s.settings.Channels(),
	}
}
