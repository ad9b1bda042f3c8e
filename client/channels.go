// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: client/channels.go
// Summary: Side-channel subsystem; one yamux stream per accepted channel.
// Usage: NewChannels(engine, handler, opts) attaches itself to the engine's
// connect hook and is passed to session.New as the Channels collaborator.
// Notes: Payload semantics belong to the ChannelHandler; this layer only
// frames, joins and routes.

package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/framegrace/texelshadow/protocol"
	"github.com/framegrace/texelshadow/session"
)

var (
	ErrUnknownChannel = errors.New("client: unknown channel")
	ErrChannelClosed  = errors.New("client: channel subsystem closed")
)

// ChannelHandler consumes inbound channel payloads.
type ChannelHandler interface {
	HandleChannelData(name string, data []byte) error
}

// ChannelHandlerFunc adapts a function to ChannelHandler.
type ChannelHandlerFunc func(name string, data []byte) error

func (f ChannelHandlerFunc) HandleChannelData(name string, data []byte) error {
	return f(name, data)
}

// LogHandler logs payload sizes and drops the data.
var LogHandler = ChannelHandlerFunc(func(name string, data []byte) error {
	debugLog.Printf("client: channel %s: %d bytes", name, len(data))
	return nil
})

type channelEventKind int

const (
	channelAck channelEventKind = iota
	channelData
	channelLeave
	channelFailed
)

type channelEvent struct {
	name     string
	kind     channelEventKind
	accepted bool
	data     []byte
	err      error
}

type channel struct {
	name   string
	stream net.Conn
	joined bool
}

type outbound struct {
	name  string
	frame []byte
}

// Channels implements session.Channels.
type Channels struct {
	events  *PubSub
	handler ChannelHandler
	spawn   func(name string, fn func())

	mu       sync.Mutex
	channels map[string]*channel
	outbox   []outbound

	inbox     chan channelEvent
	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannels returns a channel subsystem that opens its streams when the
// engine connects. A nil handler selects LogHandler.
func NewChannels(engine *Engine, handler ChannelHandler) *Channels {
	if handler == nil {
		handler = LogHandler
	}
	c := &Channels{
		events:   engine.Events(),
		handler:  handler,
		spawn:    engine.spawn,
		channels: make(map[string]*channel),
		inbox:    make(chan channelEvent, inboxSize),
		notify:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	engine.OnConnected(c.Attach)
	return c
}

// Attach opens and joins one stream per channel the server accepted.
func (c *Channels) Attach(mux *yamux.Session, accept protocol.ConnectAccept) error {
	for _, name := range accept.Channels {
		stream, err := mux.Open()
		if err != nil {
			return fmt.Errorf("client: open channel %s: %w", name, err)
		}
		join, err := protocol.EncodeChannelJoin(protocol.ChannelJoin{Name: name})
		if err != nil {
			_ = stream.Close()
			return err
		}
		if err := writeFrame(stream, protocol.MsgChannelJoin, join); err != nil {
			_ = stream.Close()
			return fmt.Errorf("client: join channel %s: %w", name, err)
		}
		c.mu.Lock()
		c.channels[name] = &channel{name: name, stream: stream}
		c.mu.Unlock()
		c.spawn("channel-"+name, func() { c.readLoop(name, stream) })
	}
	return nil
}

// Names returns the joined channel names, sorted.
func (c *Channels) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for name, ch := range c.channels {
		if ch.joined {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Send queues data for the named channel. It is safe from any goroutine.
func (c *Channels) Send(name string, data []byte) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	c.mu.Lock()
	ch, ok := c.channels[name]
	if !ok || !ch.joined {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	payload, err := protocol.EncodeChannelData(protocol.ChannelData{Data: data})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	frame, err := encodeFrame(protocol.MsgChannelData, payload)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.outbox = append(c.outbox, outbound{name: name, frame: frame})
	c.mu.Unlock()
	c.wake()
	return nil
}

func (c *Channels) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channels) readLoop(name string, r io.Reader) {
	for {
		hdr, payload, err := protocol.ReadMessage(r)
		if err != nil {
			if isClosed(err) {
				c.push(channelEvent{name: name, kind: channelLeave})
			} else {
				c.push(channelEvent{name: name, kind: channelFailed, err: err})
			}
			return
		}
		ev, ok := decodeChannelEvent(name, hdr, payload)
		if !ok {
			continue
		}
		if !c.push(ev) || ev.kind == channelLeave || ev.kind == channelFailed {
			return
		}
	}
}

func decodeChannelEvent(name string, hdr protocol.Header, payload []byte) (channelEvent, bool) {
	switch hdr.Type {
	case protocol.MsgChannelJoinAck:
		ack, err := protocol.DecodeChannelJoinAck(payload)
		if err != nil {
			return channelEvent{name: name, kind: channelFailed, err: err}, true
		}
		return channelEvent{name: name, kind: channelAck, accepted: ack.Accepted}, true
	case protocol.MsgChannelData:
		data, err := protocol.DecodeChannelData(payload)
		if err != nil {
			return channelEvent{name: name, kind: channelFailed, err: err}, true
		}
		return channelEvent{name: name, kind: channelData, data: data.Data}, true
	case protocol.MsgChannelLeave:
		return channelEvent{name: name, kind: channelLeave}, true
	}
	debugLog.Printf("client: channel %s: ignoring %s", name, hdr.Type)
	return channelEvent{}, false
}

func (c *Channels) push(ev channelEvent) bool {
	select {
	case c.inbox <- ev:
	case <-c.closed:
		return false
	}
	c.wake()
	return true
}

func (c *Channels) CollectReadiness(set *session.DescriptorSet) error {
	if err := set.AddReadable(c.notify); err != nil {
		return err
	}
	c.mu.Lock()
	pending := len(c.outbox)
	c.mu.Unlock()
	if pending > 0 {
		return set.AddWritable(readyNow)
	}
	return nil
}

// ProcessReadable applies queued joins, payloads and departures.
func (c *Channels) ProcessReadable() error {
	for n := len(c.inbox); n > 0; n-- {
		if err := c.apply(<-c.inbox); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channels) apply(ev channelEvent) error {
	c.mu.Lock()
	ch, ok := c.channels[ev.name]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	switch ev.kind {
	case channelAck:
		if !ev.accepted {
			log.Printf("client: channel %s refused by server", ev.name)
			c.drop(ch)
			return nil
		}
		c.mu.Lock()
		ch.joined = true
		c.mu.Unlock()
		c.events.PublishChannelConnected(ev.name)
	case channelData:
		if err := c.handler.HandleChannelData(ev.name, ev.data); err != nil {
			return fmt.Errorf("client: channel %s handler: %w", ev.name, err)
		}
	case channelLeave:
		c.drop(ch)
	case channelFailed:
		c.drop(ch)
		return fmt.Errorf("client: channel %s: %w", ev.name, ev.err)
	}
	return nil
}

// drop forgets ch, closes its stream and reports the departure if it had
// joined.
func (c *Channels) drop(ch *channel) {
	c.mu.Lock()
	delete(c.channels, ch.name)
	joined := ch.joined
	ch.joined = false
	c.mu.Unlock()
	_ = ch.stream.Close()
	if joined {
		c.events.PublishChannelDisconnected(ch.name)
	}
}

// ProcessWritable writes queued payloads to their streams. Payloads for
// channels that left meanwhile are discarded.
func (c *Channels) ProcessWritable() error {
	c.mu.Lock()
	queued := c.outbox
	c.outbox = nil
	c.mu.Unlock()
	for _, out := range queued {
		c.mu.Lock()
		ch, ok := c.channels[out.name]
		c.mu.Unlock()
		if !ok {
			continue
		}
		_ = ch.stream.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := ch.stream.Write(out.frame); err != nil {
			if isClosed(err) {
				c.drop(ch)
				continue
			}
			return fmt.Errorf("client: channel %s write: %w", out.name, err)
		}
	}
	return nil
}

// Close leaves every channel and stops the readers.
func (c *Channels) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		open := make([]*channel, 0, len(c.channels))
		for _, ch := range c.channels {
			open = append(open, ch)
		}
		c.mu.Unlock()
		for _, ch := range open {
			if ch.joined {
				if leave, err := protocol.EncodeChannelLeave(protocol.ChannelLeave{Name: ch.name}); err == nil {
					_ = ch.stream.SetWriteDeadline(time.Now().Add(time.Second))
					_ = writeFrame(ch.stream, protocol.MsgChannelLeave, leave)
				}
			}
			c.drop(ch)
		}
	})
	return nil
}

func encodeFrame(t protocol.MessageType, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	hdr := protocol.Header{Version: protocol.Version, Type: t, Flags: protocol.FlagChecksum}
	if err := protocol.WriteMessage(&buf, hdr, payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFrame(w io.Writer, t protocol.MessageType, payload []byte) error {
	frame, err := encodeFrame(t, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
