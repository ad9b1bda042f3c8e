// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: client/engine.go
// Summary: Remote-display protocol engine driven by the session run loop.
// Usage: NewEngine(surface, opts) is passed to session.New as the Protocol.
// Notes: The connection is yamux-multiplexed; the control stream carries
// the protocol and each side channel gets its own stream.

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"

	"github.com/framegrace/texelshadow/config"
	"github.com/framegrace/texelshadow/damage"
	"github.com/framegrace/texelshadow/framebuffer"
	"github.com/framegrace/texelshadow/protocol"
	"github.com/framegrace/texelshadow/session"
)

var (
	ErrNotConnected      = errors.New("client: not connected")
	ErrRejected          = errors.New("client: connection rejected")
	ErrServerError       = errors.New("client: server reported error")
	ErrUnexpectedMessage = errors.New("client: unexpected message")
)

// ResultUnreachable is published when the handshake fails before the server
// answered with a result code.
const ResultUnreachable uint32 = 0xFFFF

const (
	inboxSize    = 256
	writeTimeout = 5 * time.Second
)

// readyNow is a permanently ready handle.
var readyNow = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Dialer opens the transport connection.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// EngineOptions customises an Engine. Zero values pick defaults.
type EngineOptions struct {
	Dial Dialer
	Go   func(name string, fn func())
	Now  func() time.Time
}

type inbound struct {
	hdr     protocol.Header
	payload []byte
	err     error
}

// ConnectHook runs after a successful connect, before the run loop starts.
type ConnectHook func(mux *yamux.Session, accept protocol.ConnectAccept) error

// Engine implements session.Protocol.
type Engine struct {
	surface *framebuffer.Surface
	events  *PubSub
	dial    Dialer
	spawn   func(name string, fn func())
	now     func() time.Time

	clientID  uuid.UUID
	sessionID [16]byte
	accept    protocol.ConnectAccept
	sequence  atomic.Uint64
	hooks     []ConnectHook

	conn    net.Conn
	mux     *yamux.Session
	control net.Conn

	painterMu sync.RWMutex
	painter   session.Painter

	inbox     chan inbound
	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	outMu  sync.Mutex
	outbox [][]byte

	disconnect atomic.Bool
	keepAlive  time.Duration
	lastPing   time.Time

	inFrame bool
	pending bool
	invalid damage.Rect
}

// NewEngine returns an unconnected engine blitting into surface.
func NewEngine(surface *framebuffer.Surface, opts EngineOptions) *Engine {
	e := &Engine{
		surface:  surface,
		events:   NewPubSub(),
		dial:     opts.Dial,
		spawn:    opts.Go,
		now:      opts.Now,
		clientID: uuid.New(),
		inbox:    make(chan inbound, inboxSize),
		notify:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	if e.dial == nil {
		var d net.Dialer
		e.dial = d.DialContext
	}
	if e.spawn == nil {
		e.spawn = func(_ string, fn func()) { go fn() }
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// ClientID identifies this client to the server.
func (e *Engine) ClientID() uuid.UUID { return e.clientID }

// Events returns the observer registry.
func (e *Engine) Events() *PubSub { return e.events }

// Accepted returns the server's connect answer.
func (e *Engine) Accepted() protocol.ConnectAccept { return e.accept }

// OnConnected registers hook. Hooks must be registered before Handshake.
func (e *Engine) OnConnected(hook ConnectHook) {
	e.hooks = append(e.hooks, hook)
}

func (e *Engine) Subscribe(obs session.Observer) func() {
	return e.events.Subscribe(obs)
}

func (e *Engine) SetPainter(p session.Painter) {
	e.painterMu.Lock()
	e.painter = p
	e.painterMu.Unlock()
}

func (e *Engine) currentPainter() session.Painter {
	e.painterMu.RLock()
	defer e.painterMu.RUnlock()
	return e.painter
}

// Handshake connects to the server and negotiates the session. The
// connection result is published to subscribers before it returns.
func (e *Engine) Handshake(ctx context.Context, settings config.Settings) error {
	code, err := e.handshake(ctx, settings)
	if err == nil {
		err = e.connected(settings)
		if err != nil {
			code = protocol.ResultRejected
		}
	}
	e.events.PublishConnectionResult(code)
	return err
}

func (e *Engine) handshake(ctx context.Context, settings config.Settings) (uint32, error) {
	conn, err := e.dial(ctx, settings.Network, settings.Address)
	if err != nil {
		return ResultUnreachable, fmt.Errorf("client: dial %s %s: %w", settings.Network, settings.Address, err)
	}
	e.conn = conn
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	mux, err := yamux.Client(conn, muxConfig())
	if err != nil {
		return ResultUnreachable, fmt.Errorf("client: start mux: %w", err)
	}
	e.mux = mux
	control, err := mux.Open()
	if err != nil {
		return ResultUnreachable, fmt.Errorf("client: open control stream: %w", err)
	}
	e.control = control
	if deadline, ok := ctx.Deadline(); ok {
		_ = control.SetDeadline(deadline)
		defer control.SetDeadline(time.Time{})
	}

	hello, err := protocol.EncodeHello(protocol.Hello{
		ClientID:     [16]byte(e.clientID),
		ClientName:   settings.ClientName,
		Capabilities: featureMask(settings),
	})
	if err != nil {
		return ResultUnreachable, err
	}
	if err := e.send(protocol.MsgHello, hello); err != nil {
		return ResultUnreachable, fmt.Errorf("client: send hello: %w", err)
	}
	payload, err := e.expect(protocol.MsgWelcome)
	if err != nil {
		return ResultUnreachable, err
	}
	welcome, err := protocol.DecodeWelcome(payload)
	if err != nil {
		return ResultUnreachable, err
	}
	e.sessionID = welcome.SessionID
	debugLog.Printf("client: welcome from %q", welcome.ServerName)

	req, err := protocol.EncodeConnectRequest(connectRequest(settings, e.sessionID))
	if err != nil {
		return ResultUnreachable, err
	}
	if err := e.send(protocol.MsgConnectRequest, req); err != nil {
		return ResultUnreachable, fmt.Errorf("client: send connect request: %w", err)
	}
	payload, err = e.expect(protocol.MsgConnectAccept)
	if err != nil {
		return ResultUnreachable, err
	}
	accept, err := protocol.DecodeConnectAccept(payload)
	if err != nil {
		return ResultUnreachable, err
	}
	e.accept = accept
	if accept.Result != protocol.ResultOK {
		return accept.Result, fmt.Errorf("%w: result %d", ErrRejected, accept.Result)
	}
	if err := ctx.Err(); err != nil {
		return ResultUnreachable, err
	}
	return protocol.ResultOK, nil
}

// connected applies the negotiated desktop, runs the connect hooks and
// starts the reader.
func (e *Engine) connected(settings config.Settings) error {
	bounds := damage.Bounds{Width: int(e.accept.DesktopWidth), Height: int(e.accept.DesktopHeight)}
	if !bounds.Valid() {
		bounds = damage.Bounds{Width: settings.DesktopWidth, Height: settings.DesktopHeight}
	}
	if err := e.resize(bounds); err != nil {
		return err
	}
	for _, hook := range e.hooks {
		if err := hook(e.mux, e.accept); err != nil {
			return err
		}
	}
	e.keepAlive = settings.KeepAlive
	e.lastPing = e.now()
	control := e.control
	e.spawn("engine-reader", func() { e.readLoop(control) })
	log.Printf("client: session %s connected, desktop %v, channels %v", uuid.UUID(e.sessionID), bounds, e.accept.Channels)
	return nil
}

// expect reads the next frame and fails unless it has type want. A server
// Error frame is reported as a rejection.
func (e *Engine) expect(want protocol.MessageType) ([]byte, error) {
	hdr, payload, err := protocol.ReadMessage(e.control)
	if err != nil {
		return nil, fmt.Errorf("client: read %s: %w", want, err)
	}
	switch hdr.Type {
	case want:
		return payload, nil
	case protocol.MsgError:
		frame, derr := protocol.DecodeErrorFrame(payload)
		if derr != nil {
			return nil, derr
		}
		return nil, fmt.Errorf("%w: %s (code %d)", ErrRejected, frame.Message, frame.Code)
	}
	return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessage, hdr.Type, want)
}

func (e *Engine) frame(t protocol.MessageType, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	hdr := protocol.Header{
		Version:   protocol.Version,
		Type:      t,
		Flags:     protocol.FlagChecksum,
		SessionID: e.sessionID,
		Sequence:  e.sequence.Add(1),
	}
	if err := protocol.WriteMessage(&buf, hdr, payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) send(t protocol.MessageType, payload []byte) error {
	b, err := e.frame(t, payload)
	if err != nil {
		return err
	}
	_, err = e.control.Write(b)
	return err
}

func (e *Engine) enqueue(t protocol.MessageType, payload []byte) error {
	b, err := e.frame(t, payload)
	if err != nil {
		return err
	}
	e.outMu.Lock()
	e.outbox = append(e.outbox, b)
	e.outMu.Unlock()
	return nil
}

func (e *Engine) pendingOutbound() int {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	return len(e.outbox)
}

func (e *Engine) takeOutbound() [][]byte {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	out := e.outbox
	e.outbox = nil
	return out
}

func (e *Engine) readLoop(r io.Reader) {
	for {
		hdr, payload, err := protocol.ReadMessage(r)
		if !e.push(inbound{hdr: hdr, payload: payload, err: err}) || err != nil {
			return
		}
	}
}

func (e *Engine) push(in inbound) bool {
	select {
	case e.inbox <- in:
	case <-e.closed:
		return false
	}
	select {
	case e.notify <- struct{}{}:
	default:
	}
	return true
}

// CollectReadiness offers the inbound signal, plus a writable handle while
// frames are queued.
func (e *Engine) CollectReadiness(set *session.DescriptorSet) error {
	if e.control == nil {
		return ErrNotConnected
	}
	if err := set.AddReadable(e.notify); err != nil {
		return err
	}
	if e.pendingOutbound() > 0 {
		return set.AddWritable(readyNow)
	}
	return nil
}

// ProcessReadable applies every frame queued when it was called.
func (e *Engine) ProcessReadable() error {
	for n := len(e.inbox); n > 0; n-- {
		in := <-e.inbox
		if in.err != nil {
			return e.readFailure(in.err)
		}
		if err := e.handle(in.hdr, in.payload); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) readFailure(err error) error {
	if isClosed(err) {
		log.Printf("client: server closed the control stream")
		e.disconnect.Store(true)
		return session.ErrDisconnectRequested
	}
	return fmt.Errorf("client: read control stream: %w", err)
}

func (e *Engine) handle(hdr protocol.Header, payload []byte) error {
	debugLog.Printf("client: recv %s seq=%d len=%d", hdr.Type, hdr.Sequence, len(payload))
	switch hdr.Type {
	case protocol.MsgSurfaceBits:
		bits, err := protocol.DecodeSurfaceBits(payload)
		if err != nil {
			return err
		}
		return e.applySurface(bits)
	case protocol.MsgFrameMarker:
		marker, err := protocol.DecodeFrameMarker(payload)
		if err != nil {
			return err
		}
		e.applyMarker(marker)
	case protocol.MsgDesktopResize:
		msg, err := protocol.DecodeDesktopResize(payload)
		if err != nil {
			return err
		}
		return e.resize(damage.Bounds{Width: int(msg.Width), Height: int(msg.Height)})
	case protocol.MsgPing:
		ping, err := protocol.DecodePing(payload)
		if err != nil {
			return err
		}
		pong, err := protocol.EncodePong(protocol.Pong{Timestamp: ping.Timestamp})
		if err != nil {
			return err
		}
		return e.enqueue(protocol.MsgPong, pong)
	case protocol.MsgPong:
		pong, err := protocol.DecodePong(payload)
		if err != nil {
			return err
		}
		debugLog.Printf("client: pong rtt=%v", e.now().Sub(time.Unix(0, pong.Timestamp)))
	case protocol.MsgDisconnectNotice:
		notice, err := protocol.DecodeDisconnectNotice(payload)
		if err != nil {
			return err
		}
		log.Printf("client: server requested disconnect (%d): %s", notice.ReasonCode, notice.Message)
		e.disconnect.Store(true)
	case protocol.MsgError:
		frame, err := protocol.DecodeErrorFrame(payload)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s (code %d)", ErrServerError, frame.Message, frame.Code)
	default:
		debugLog.Printf("client: ignoring %s on control stream", hdr.Type)
	}
	return nil
}

func (e *Engine) applySurface(bits protocol.SurfaceBits) error {
	pixels, err := protocol.UnpackSurface(bits)
	if err != nil {
		return err
	}
	raw := damage.Rect{X: int(bits.X), Y: int(bits.Y), Width: int(bits.Width), Height: int(bits.Height)}
	if _, err := e.surface.Blit(raw, pixels); err != nil {
		return err
	}
	e.invalid = e.invalid.Union(raw)
	e.pending = true
	if !e.inFrame {
		e.paint()
	}
	return nil
}

func (e *Engine) applyMarker(marker protocol.FrameMarker) {
	if p := e.currentPainter(); p != nil {
		p.SurfaceFrameMarker(session.FrameAction(marker.Action), marker.FrameID)
	}
	switch marker.Action {
	case protocol.FrameBegin:
		e.inFrame = true
	case protocol.FrameEnd:
		e.inFrame = false
		e.paint()
	}
}

// paint hands the accumulated invalid region to the painter.
func (e *Engine) paint() {
	if !e.pending {
		return
	}
	region := e.invalid
	e.pending = false
	e.invalid = damage.Rect{}
	p := e.currentPainter()
	if p == nil {
		return
	}
	p.BeginPaint()
	if _, ok := p.EndPaint(region); !ok {
		debugLog.Printf("client: nothing to paint for %v", region)
	}
}

func (e *Engine) resize(bounds damage.Bounds) error {
	if err := e.surface.Resize(bounds.Width, bounds.Height); err != nil {
		return err
	}
	if p := e.currentPainter(); p != nil {
		return p.DesktopResize(bounds)
	}
	return nil
}

// ProcessWritable writes every queued frame to the control stream.
func (e *Engine) ProcessWritable() error {
	frames := e.takeOutbound()
	if len(frames) == 0 {
		return nil
	}
	_ = e.control.SetWriteDeadline(time.Now().Add(writeTimeout))
	for _, b := range frames {
		if _, err := e.control.Write(b); err != nil {
			if isClosed(err) {
				e.disconnect.Store(true)
				return session.ErrDisconnectRequested
			}
			return fmt.Errorf("client: write control stream: %w", err)
		}
	}
	return nil
}

func (e *Engine) ShallDisconnect() bool {
	return e.disconnect.Load()
}

// Housekeep queues a keep-alive ping once per KeepAlive interval.
func (e *Engine) Housekeep(now time.Time) error {
	if e.keepAlive <= 0 || now.Sub(e.lastPing) < e.keepAlive {
		return nil
	}
	e.lastPing = now
	ping, err := protocol.EncodePing(protocol.Ping{Timestamp: now.UnixNano()})
	if err != nil {
		return err
	}
	return e.enqueue(protocol.MsgPing, ping)
}

// Close tears down the control stream, the mux session and the connection.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		if e.control != nil {
			_ = e.control.Close()
		}
		switch {
		case e.mux != nil:
			err = e.mux.Close()
		case e.conn != nil:
			err = e.conn.Close()
		}
	})
	return err
}

func connectRequest(s config.Settings, sessionID [16]byte) protocol.ConnectRequest {
	return protocol.ConnectRequest{
		SessionID:     sessionID,
		DesktopWidth:  uint16(s.DesktopWidth),
		DesktopHeight: uint16(s.DesktopHeight),
		ColorDepth:    uint8(s.ColorDepth),
		Features:      featureMask(s),
		OrderMask:     s.OrderSupport.Mask(),
		Channels:      s.Channels(),
	}
}

func featureMask(s config.Settings) uint32 {
	flags := []struct {
		on  bool
		bit uint32
	}{
		{s.SoftwareGdi, protocol.FeatureSoftwareGdi},
		{s.BitmapCache, protocol.FeatureBitmapCache},
		{s.Compression, protocol.FeatureCompression},
		{s.IgnoreCertificate, protocol.FeatureIgnoreCertificate},
		{s.RdpSecurity, protocol.FeatureRdpSecurity},
		{s.TlsSecurity, protocol.FeatureTlsSecurity},
		{s.NlaSecurity, protocol.FeatureNlaSecurity},
		{s.AutoReconnect, protocol.FeatureAutoReconnect},
		{s.AsyncTransport, protocol.FeatureAsyncTransport},
		{s.AsyncChannels, protocol.FeatureAsyncChannels},
		{s.AsyncUpdate, protocol.FeatureAsyncUpdate},
		{s.AsyncInput, protocol.FeatureAsyncInput},
	}
	var mask uint32
	for _, f := range flags {
		if f.on {
			mask |= f.bit
		}
	}
	return mask
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, yamux.ErrStreamClosed) ||
		errors.Is(err, yamux.ErrSessionShutdown) ||
		errors.Is(err, yamux.ErrConnectionReset)
}
