// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framegrace/texelshadow/config"
	"github.com/framegrace/texelshadow/damage"
)

func testSettings() config.Settings {
	return config.Settings{
		Network:          "unix",
		Address:          "/tmp/texelshadow-test.sock",
		DesktopWidth:     800,
		DesktopHeight:    600,
		ColorDepth:       32,
		WaitTimeout:      20 * time.Millisecond,
		HandshakeTimeout: time.Second,
		MaxDescriptors:   8,
	}.WithChannels("cliprdr")
}

// callLog records collaborator calls in order across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeSource struct {
	prefix string
	log    *callLog

	ready      chan struct{}
	extra      int
	collectErr error
	readErr    error
	writeErr   error
	onRead     func()

	collects atomic.Int32
	reads    atomic.Int32
	writes   atomic.Int32
	closes   atomic.Int32
	keeps    atomic.Int32
}

func newFakeSource(prefix string, log *callLog) *fakeSource {
	return &fakeSource{prefix: prefix, log: log, ready: make(chan struct{}, 1)}
}

func (f *fakeSource) signal() {
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *fakeSource) CollectReadiness(set *DescriptorSet) error {
	f.collects.Add(1)
	if f.collectErr != nil {
		return f.collectErr
	}
	if err := set.AddReadable(f.ready); err != nil {
		return err
	}
	for i := 0; i < f.extra; i++ {
		if err := set.AddWritable(make(chan struct{})); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) ProcessReadable() error {
	f.reads.Add(1)
	f.log.add(f.prefix + ".read")
	if f.onRead != nil {
		f.onRead()
	}
	return f.readErr
}

func (f *fakeSource) ProcessWritable() error {
	f.writes.Add(1)
	f.log.add(f.prefix + ".write")
	return f.writeErr
}

func (f *fakeSource) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeSource) Housekeep(time.Time) error {
	f.keeps.Add(1)
	return nil
}

type fakeProtocol struct {
	*fakeSource

	handshakeErr error
	result       uint32
	handshakes   atomic.Int32
	disconnect   atomic.Bool

	mu        sync.Mutex
	observer  Observer
	painter   Painter
	unsubbed  atomic.Int32
	onConnect func(p Painter)
}

func newFakeProtocol(log *callLog) *fakeProtocol {
	return &fakeProtocol{fakeSource: newFakeSource("transport", log)}
}

func (p *fakeProtocol) Handshake(ctx context.Context, _ config.Settings) error {
	p.handshakes.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	obs, painter := p.observer, p.painter
	p.mu.Unlock()
	if p.handshakeErr != nil {
		if obs != nil {
			obs.OnConnectionResult(1)
		}
		return p.handshakeErr
	}
	if obs == nil {
		return errors.New("no observer subscribed before handshake")
	}
	obs.OnConnectionResult(p.result)
	if p.onConnect != nil {
		p.onConnect(painter)
	}
	return nil
}

func (p *fakeProtocol) ShallDisconnect() bool {
	p.log.add("transport.shall-disconnect")
	return p.disconnect.Load()
}

func (p *fakeProtocol) Subscribe(obs Observer) func() {
	p.mu.Lock()
	p.observer = obs
	p.mu.Unlock()
	return func() {
		p.unsubbed.Add(1)
		p.mu.Lock()
		p.observer = nil
		p.mu.Unlock()
	}
}

func (p *fakeProtocol) SetPainter(painter Painter) {
	p.mu.Lock()
	p.painter = painter
	p.mu.Unlock()
}

func (p *fakeProtocol) currentPainter() Painter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.painter
}

type recordingObserver struct {
	mu      sync.Mutex
	results []uint32
	joined  []string
	left    []string
}

func (o *recordingObserver) OnConnectionResult(code uint32) {
	o.mu.Lock()
	o.results = append(o.results, code)
	o.mu.Unlock()
}

func (o *recordingObserver) OnChannelConnected(name string) {
	o.mu.Lock()
	o.joined = append(o.joined, name)
	o.mu.Unlock()
}

func (o *recordingObserver) OnChannelDisconnected(name string) {
	o.mu.Lock()
	o.left = append(o.left, name)
	o.mu.Unlock()
}

type recordingFlusher struct {
	mu      sync.Mutex
	regions []damage.Rect
	resized []damage.Bounds
}

func (f *recordingFlusher) Flush(region damage.Rect) error {
	f.mu.Lock()
	f.regions = append(f.regions, region)
	f.mu.Unlock()
	return nil
}

func (f *recordingFlusher) Resize(bounds damage.Bounds) error {
	f.mu.Lock()
	f.resized = append(f.resized, bounds)
	f.mu.Unlock()
	return nil
}

type recordingRecorder struct {
	mu      sync.Mutex
	started []Info
	ended   []Summary
}

func (r *recordingRecorder) SessionStarted(info Info) {
	r.mu.Lock()
	r.started = append(r.started, info)
	r.mu.Unlock()
}

func (r *recordingRecorder) SessionEnded(_ Info, summary Summary) {
	r.mu.Lock()
	r.ended = append(r.ended, summary)
	r.mu.Unlock()
}

func waitDone(s *Session) bool {
	select {
	case <-s.Done():
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}
