// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/connection.go
// Summary: Control-stream loop for one simulated client.
// Usage: Started by Server.Serve after a successful handshake.
// Notes: A reader goroutine feeds incoming frames; the loop interleaves them
// with pattern frames on a ticker.

package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/framegrace/texelshadow/protocol"
)

// Disconnect reason codes sent in DisconnectNotice.
const (
	ReasonShutdown uint16 = 1
	ReasonComplete uint16 = 2
)

type connection struct {
	conn     net.Conn
	session  *Session
	opts     Options
	compress bool
	quit     <-chan struct{}

	writeMu  sync.Mutex
	sequence uint64

	incoming chan protocolMessage
	readErr  chan error
	stop     chan struct{}
	frame    uint32
}

type protocolMessage struct {
	header  protocol.Header
	payload []byte
}

func newConnection(conn net.Conn, session *Session, accept protocol.ConnectAccept, opts Options, quit <-chan struct{}) *connection {
	c := &connection{
		conn:     conn,
		session:  session,
		opts:     opts,
		compress: accept.Features&protocol.FeatureCompression != 0,
		quit:     quit,
		sequence: 2,
		incoming: make(chan protocolMessage, 32),
		readErr:  make(chan error, 1),
		stop:     make(chan struct{}),
	}
	go c.readMessages()
	return c
}

func (c *connection) serve() (retErr error) {
	id := c.session.ID()
	prefix := fmt.Sprintf("connection %x", id[:4])
	defer close(c.stop)
	defer func() {
		if retErr != nil {
			debugLog.Printf("%s exiting with error: %v", prefix, retErr)
		} else {
			debugLog.Printf("%s exiting cleanly", prefix)
		}
	}()

	ticker := time.NewTicker(c.opts.FrameInterval)
	defer ticker.Stop()
	if err := c.sendFrame(); err != nil {
		return err
	}
	for {
		select {
		case <-c.quit:
			return c.sendDisconnect(ReasonShutdown, "server shutting down")
		case err := <-c.readErr:
			if errors.Is(err, io.EOF) {
				debugLog.Printf("%s read EOF", prefix)
				return nil
			}
			log.Printf("%s read error: %v", prefix, err)
			return err
		case msg := <-c.incoming:
			done, err := c.handleMessage(msg)
			if err != nil || done {
				return err
			}
		case <-ticker.C:
			if c.opts.Frames > 0 && c.frame >= uint32(c.opts.Frames) {
				return c.sendDisconnect(ReasonComplete, "pattern complete")
			}
			if err := c.sendFrame(); err != nil {
				return err
			}
		}
	}
}

func (c *connection) readMessages() {
	for {
		hdr, payload, err := protocol.ReadMessage(c.conn)
		if err != nil {
			c.readErr <- err
			return
		}
		select {
		case c.incoming <- protocolMessage{header: hdr, payload: payload}:
		case <-c.stop:
			return
		}
	}
}

// handleMessage applies one client frame. It reports done when the client
// asked to leave.
func (c *connection) handleMessage(msg protocolMessage) (bool, error) {
	switch msg.header.Type {
	case protocol.MsgPing:
		ping, err := protocol.DecodePing(msg.payload)
		if err != nil {
			return false, err
		}
		c.session.pings.Add(1)
		pong, err := protocol.EncodePong(protocol.Pong{Timestamp: ping.Timestamp})
		if err != nil {
			return false, err
		}
		return false, c.write(protocol.MsgPong, pong)
	case protocol.MsgPong:
		return false, nil
	case protocol.MsgDisconnectNotice:
		notice, err := protocol.DecodeDisconnectNotice(msg.payload)
		if err != nil {
			return false, err
		}
		debugLog.Printf("server: client left (%d): %s", notice.ReasonCode, notice.Message)
		return true, nil
	case protocol.MsgDesktopResize:
		resize, err := protocol.DecodeDesktopResize(msg.payload)
		if err != nil {
			return false, err
		}
		return false, c.resize(int(resize.Width), int(resize.Height))
	}
	debugLog.Printf("server: ignoring %s", msg.header.Type)
	return false, nil
}

// resize switches the session desktop and repaints it from frame 0.
func (c *connection) resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	c.session.resize(width, height)
	payload, err := protocol.EncodeDesktopResize(protocol.DesktopResize{Width: uint16(width), Height: uint16(height)})
	if err != nil {
		return err
	}
	if err := c.write(protocol.MsgDesktopResize, payload); err != nil {
		return err
	}
	c.frame = 0
	return c.sendFrame()
}

// sendFrame streams the next pattern frame between frame markers.
func (c *connection) sendFrame() error {
	width, height := c.session.Desktop()
	id := c.frame
	if err := c.marker(protocol.FrameBegin, id); err != nil {
		return err
	}
	sent := 0
	for _, u := range patternFrame(id, width, height) {
		bits, err := protocol.PackSurface(int32(u.x), int32(u.y), uint32(u.width), uint32(u.height), u.pixels, c.compress)
		if err != nil {
			return err
		}
		payload, err := protocol.EncodeSurfaceBits(bits)
		if err != nil {
			return err
		}
		if err := c.write(protocol.MsgSurfaceBits, payload); err != nil {
			return err
		}
		sent += len(payload)
	}
	if err := c.marker(protocol.FrameEnd, id); err != nil {
		return err
	}
	c.session.recordFrame(sent)
	c.frame++
	return nil
}

func (c *connection) marker(action uint16, id uint32) error {
	payload, err := protocol.EncodeFrameMarker(protocol.FrameMarker{Action: action, FrameID: id})
	if err != nil {
		return err
	}
	return c.write(protocol.MsgFrameMarker, payload)
}

func (c *connection) sendDisconnect(reason uint16, message string) error {
	payload, err := protocol.EncodeDisconnectNotice(protocol.DisconnectNotice{ReasonCode: reason, Message: message})
	if err != nil {
		return err
	}
	return c.write(protocol.MsgDisconnectNotice, payload)
}

func (c *connection) write(t protocol.MessageType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.sequence++
	return writeFrame(c.conn, c.session.ID(), c.sequence, t, payload)
}
