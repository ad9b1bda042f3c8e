// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestLoopProcessingOrder(t *testing.T) {
	calls := &callLog{}
	proto := newFakeProtocol(calls)
	chans := newFakeSource("channels", calls)
	var s *Session
	chans.onRead = func() { s.Stop() }
	s = New(testSettings(), proto, chans, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	proto.signal()
	if !waitDone(s) {
		t.Fatal("session did not terminate")
	}
	want := []string{
		"transport.read",
		"transport.write",
		"transport.shall-disconnect",
		"channels.read",
	}
	if got := calls.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestLoopDisconnectRequest(t *testing.T) {
	calls := &callLog{}
	proto := newFakeProtocol(calls)
	chans := newFakeSource("channels", calls)
	proto.disconnect.Store(true)
	s := New(testSettings(), proto, chans, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	proto.signal()
	if !waitDone(s) {
		t.Fatal("session did not terminate")
	}
	if s.Cause() != ExitDisconnected || s.Err() != nil {
		t.Fatalf("cause=%s err=%v", s.Cause(), s.Err())
	}
	if chans.reads.Load() != 0 {
		t.Fatal("channels processed after disconnect request")
	}
}

func TestLoopDisconnectErrorIsClean(t *testing.T) {
	proto := newFakeProtocol(nil)
	proto.readErr = ErrDisconnectRequested
	s := New(testSettings(), proto, newFakeSource("channels", nil), Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	proto.signal()
	if !waitDone(s) {
		t.Fatal("session did not terminate")
	}
	if s.Cause() != ExitDisconnected || s.Err() != nil {
		t.Fatalf("cause=%s err=%v", s.Cause(), s.Err())
	}
}

func TestLoopFaults(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name       string
		setup      func(p *fakeProtocol, c *fakeSource)
		collecting bool
	}{
		{"transport collect", func(p *fakeProtocol, _ *fakeSource) { p.collectErr = boom }, true},
		{"channel collect", func(_ *fakeProtocol, c *fakeSource) { c.collectErr = boom }, true},
		{"transport read", func(p *fakeProtocol, _ *fakeSource) { p.readErr = boom }, false},
		{"transport write", func(p *fakeProtocol, _ *fakeSource) { p.writeErr = boom }, false},
		{"channel read", func(_ *fakeProtocol, c *fakeSource) { c.readErr = boom }, false},
		{"channel write", func(_ *fakeProtocol, c *fakeSource) { c.writeErr = boom }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proto := newFakeProtocol(nil)
			chans := newFakeSource("channels", nil)
			tt.setup(proto, chans)
			s := New(testSettings(), proto, chans, Options{})
			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("start: %v", err)
			}
			proto.signal()
			if !waitDone(s) {
				t.Fatal("session did not terminate")
			}
			if s.Cause() != ExitFault {
				t.Fatalf("cause = %s", s.Cause())
			}
			if !errors.Is(s.Err(), boom) {
				t.Fatalf("err = %v, want wrapped boom", s.Err())
			}
			if proto.closes.Load() != 1 || chans.closes.Load() != 1 {
				t.Fatal("collaborators not released after fault")
			}
			if tt.collecting {
				if proto.reads.Load() != 0 || proto.writes.Load() != 0 || chans.reads.Load() != 0 || chans.writes.Load() != 0 {
					t.Fatalf("processing after collect fault: transport %d/%d channels %d/%d",
						proto.reads.Load(), proto.writes.Load(), chans.reads.Load(), chans.writes.Load())
				}
			}
		})
	}
}

func TestDescriptorOverflowFailsStart(t *testing.T) {
	tests := []struct {
		name        string
		max         int
		transport   int
		channelsExt int
	}{
		{name: "transport alone exceeds bound", max: 1, transport: 2},
		{name: "combined sets exceed bound", max: 4, transport: 2, channelsExt: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			settings.MaxDescriptors = tt.max
			proto := newFakeProtocol(nil)
			proto.extra = tt.transport
			chans := newFakeSource("channels", nil)
			chans.extra = tt.channelsExt
			s := New(settings, proto, chans, Options{})

			err := s.Start(context.Background())
			if !errors.Is(err, ErrTooManyDescriptors) {
				t.Fatalf("start err = %v, want ErrTooManyDescriptors", err)
			}
			if s.State() != StateTerminated {
				t.Fatalf("state = %s", s.State())
			}
			if s.Cause() != ExitConfig || !errors.Is(s.Err(), ErrTooManyDescriptors) {
				t.Fatalf("cause=%s err=%v", s.Cause(), s.Err())
			}
			if proto.reads.Load() != 0 || chans.reads.Load() != 0 {
				t.Fatal("processed data after descriptor overflow")
			}
			if proto.closes.Load() != 1 || chans.closes.Load() != 1 {
				t.Fatal("collaborators not released")
			}
			if s.Stats().Iterations != 0 {
				t.Fatalf("loop ran %d iterations", s.Stats().Iterations)
			}
		})
	}
}

func TestLoopDescriptorOverflowBackstop(t *testing.T) {
	settings := testSettings()
	settings.MaxDescriptors = 2
	proto := newFakeProtocol(nil)
	chans := newFakeSource("channels", nil)
	proto.onRead = func() { chans.extra = 4 }
	s := New(settings, proto, chans, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	proto.signal()
	if !waitDone(s) {
		t.Fatal("session did not terminate")
	}
	if s.Cause() != ExitConfig || !errors.Is(s.Err(), ErrTooManyDescriptors) {
		t.Fatalf("cause=%s err=%v", s.Cause(), s.Err())
	}
	if proto.reads.Load() != 1 {
		t.Fatalf("transport reads = %d, want 1", proto.reads.Load())
	}
}

func TestLoopTimeoutStillHousekeeps(t *testing.T) {
	settings := testSettings()
	settings.WaitTimeout = 2 * time.Millisecond
	proto := newFakeProtocol(nil)
	chans := newFakeSource("channels", nil)
	s := New(settings, proto, chans, Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for proto.keeps.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	if !waitDone(s) {
		t.Fatal("session did not terminate")
	}
	if proto.keeps.Load() < 3 || chans.keeps.Load() < 3 {
		t.Fatalf("housekeeping ran %d/%d times", proto.keeps.Load(), chans.keeps.Load())
	}
	if s.Stats().Iterations < 3 {
		t.Fatalf("iterations = %d", s.Stats().Iterations)
	}
}
