// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/framegrace/texelshadow/config"
	"github.com/framegrace/texelshadow/damage"
	"github.com/framegrace/texelshadow/framebuffer"
	"github.com/framegrace/texelshadow/internal/runtime/server"
	"github.com/framegrace/texelshadow/internal/runtime/server/testutil"
	"github.com/framegrace/texelshadow/protocol"
	"github.com/framegrace/texelshadow/session"
)

func integrationSettings() config.Settings {
	return config.Settings{
		Network:          "unix",
		Address:          "mem",
		ClientName:       "integration",
		DesktopWidth:     128,
		DesktopHeight:    96,
		ColorDepth:       32,
		WaitTimeout:      10 * time.Millisecond,
		HandshakeTimeout: 2 * time.Second,
		MaxDescriptors:   8,
		Compression:      true,
	}.WithChannels("cliprdr")
}

// memDialer serves one in-memory connection with srv per dial.
func memDialer(srv *server.Server) Dialer {
	return func(context.Context, string, string) (net.Conn, error) {
		clientConn, serverConn := testutil.NewMemPipe(64)
		go func() { _ = srv.Serve(serverConn) }()
		return clientConn, nil
	}
}

type eventLog struct {
	mu      sync.Mutex
	results []uint32
	joined  []string
	left    []string
	joinCh  chan string
}

func newEventLog() *eventLog {
	return &eventLog{joinCh: make(chan string, 4)}
}

func (l *eventLog) observer() session.Observer {
	return session.ObserverFuncs{
		ConnectionResult: func(code uint32) {
			l.mu.Lock()
			l.results = append(l.results, code)
			l.mu.Unlock()
		},
		ChannelConnected: func(name string) {
			l.mu.Lock()
			l.joined = append(l.joined, name)
			l.mu.Unlock()
			l.joinCh <- name
		},
		ChannelDisconnected: func(name string) {
			l.mu.Lock()
			l.left = append(l.left, name)
			l.mu.Unlock()
		},
	}
}

type countingFlusher struct {
	mu      sync.Mutex
	regions []damage.Rect
}

func (f *countingFlusher) Flush(r damage.Rect) error {
	f.mu.Lock()
	f.regions = append(f.regions, r)
	f.mu.Unlock()
	return nil
}

func (f *countingFlusher) snapshot() []damage.Rect {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]damage.Rect(nil), f.regions...)
}

func TestSessionAgainstSimulatedServer(t *testing.T) {
	srv := server.NewServer("unix", "", server.Options{FrameInterval: 2 * time.Millisecond, Frames: 6, Compress: true})
	surface := framebuffer.NewSurface(1, 1)
	engine := NewEngine(surface, EngineOptions{Dial: memDialer(srv)})
	channels := NewChannels(engine, nil)
	events := newEventLog()
	flusher := &countingFlusher{}

	s := session.New(integrationSettings(), engine, channels, session.Options{
		Observers: []session.Observer{events.observer()},
		Flusher:   flusher,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if s.Cause() != session.ExitDisconnected {
		t.Fatalf("cause = %s (err %v)", s.Cause(), s.Err())
	}

	regions := flusher.snapshot()
	if len(regions) == 0 {
		t.Fatal("no regions flushed")
	}
	if regions[0] != (damage.Rect{X: 0, Y: 0, Width: 128, Height: 96}) {
		t.Fatalf("first flush = %v", regions[0])
	}
	for _, r := range regions {
		if r.X%damage.TileSize != 0 || r.Y%damage.TileSize != 0 || r.X+r.Width > 128 || r.Y+r.Height > 96 {
			t.Fatalf("flushed region %v not normalized", r)
		}
	}
	if got := s.Stats(); got.Frames == 0 {
		t.Fatalf("stats = %+v", got)
	}
	if surface.Bounds() != (damage.Bounds{Width: 128, Height: 96}) {
		t.Fatalf("surface bounds = %v", surface.Bounds())
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.results) != 1 || events.results[0] != protocol.ResultOK {
		t.Fatalf("connection results = %v", events.results)
	}
}

func TestSessionRejectedByServer(t *testing.T) {
	srv := server.NewServer("unix", "", server.Options{Reject: protocol.ResultRejected})
	engine := NewEngine(framebuffer.NewSurface(1, 1), EngineOptions{Dial: memDialer(srv)})
	events := newEventLog()
	s := session.New(integrationSettings(), engine, NewChannels(engine, nil), session.Options{
		Observers: []session.Observer{events.observer()},
	})

	err := s.Start(context.Background())
	if !errors.Is(err, session.ErrHandshakeFailed) || !errors.Is(err, ErrRejected) {
		t.Fatalf("start err = %v", err)
	}
	if s.State() != session.StateTerminated {
		t.Fatalf("state = %s", s.State())
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.results) != 1 || events.results[0] != protocol.ResultRejected {
		t.Fatalf("connection results = %v", events.results)
	}
}

func TestSessionDialFailure(t *testing.T) {
	dialErr := errors.New("no route")
	engine := NewEngine(framebuffer.NewSurface(1, 1), EngineOptions{
		Dial: func(context.Context, string, string) (net.Conn, error) { return nil, dialErr },
	})
	events := newEventLog()
	s := session.New(integrationSettings(), engine, NewChannels(engine, nil), session.Options{
		Observers: []session.Observer{events.observer()},
	})
	if err := s.Start(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("start err = %v", err)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.results) != 1 || events.results[0] != ResultUnreachable {
		t.Fatalf("connection results = %v", events.results)
	}
}

func TestChannelsJoinEchoAndLeave(t *testing.T) {
	srv := server.NewServer("unix", "", server.Options{FrameInterval: time.Hour, Channels: []string{"cliprdr"}})
	engine := NewEngine(framebuffer.NewSurface(1, 1), EngineOptions{Dial: memDialer(srv)})

	received := make(chan []byte, 1)
	channels := NewChannels(engine, ChannelHandlerFunc(func(name string, data []byte) error {
		if name == "cliprdr" {
			received <- append([]byte(nil), data...)
		}
		return nil
	}))
	events := newEventLog()
	s := session.New(integrationSettings(), engine, channels, session.Options{
		Observers: []session.Observer{events.observer()},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case name := <-events.joinCh:
		if name != "cliprdr" {
			t.Fatalf("joined %q", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel never connected")
	}
	if got := channels.Names(); len(got) != 1 || got[0] != "cliprdr" {
		t.Fatalf("names = %v", got)
	}
	if err := channels.Send("rdpsnd", []byte("x")); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("send to unknown channel err = %v", err)
	}
	if err := channels.Send("cliprdr", []byte("clipboard")); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case data := <-received:
		if !bytes.Equal(data, []byte("clipboard")) {
			t.Fatalf("echo = %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}

	s.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if s.Cause() != session.ExitStopped {
		t.Fatalf("cause = %s", s.Cause())
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.left) != 1 || events.left[0] != "cliprdr" {
		t.Fatalf("left = %v", events.left)
	}
	if err := channels.Send("cliprdr", nil); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("send after close err = %v", err)
	}
}

func TestKeepAliveReachesServer(t *testing.T) {
	srv := server.NewServer("unix", "", server.Options{FrameInterval: time.Hour})
	engine := NewEngine(framebuffer.NewSurface(1, 1), EngineOptions{Dial: memDialer(srv)})
	settings := integrationSettings()
	settings.KeepAlive = 5 * time.Millisecond
	s := session.New(settings, engine, NewChannels(engine, nil), session.Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats := srv.Manager().SessionStats()
		if len(stats) == 1 && stats[0].Pings > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never saw a keep-alive ping")
}

func TestServerDesktopOverrideResizesSession(t *testing.T) {
	srv := server.NewServer("unix", "", server.Options{FrameInterval: time.Hour, Width: 320, Height: 200})
	surface := framebuffer.NewSurface(1, 1)
	engine := NewEngine(surface, EngineOptions{Dial: memDialer(srv)})
	s := session.New(integrationSettings(), engine, NewChannels(engine, nil), session.Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	want := damage.Bounds{Width: 320, Height: 200}
	if s.Bounds() != want || surface.Bounds() != want {
		t.Fatalf("session=%v surface=%v", s.Bounds(), surface.Bounds())
	}
}
