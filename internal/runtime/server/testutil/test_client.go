// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/testutil/test_client.go
// Summary: Raw protocol client for exercising the simulation server.
// Usage: Used in server tests to drive the handshake and inspect frames.
// Notes: Speaks the wire protocol directly over yamux, without the session
// driver.

package testutil

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/framegrace/texelshadow/protocol"
)

// Message is one frame received on the control stream.
type Message struct {
	Header  protocol.Header
	Payload []byte
}

// TestClient wraps a yamux client session and its control stream.
type TestClient struct {
	t       *testing.T
	conn    net.Conn
	mux     *yamux.Session
	control net.Conn

	Welcome protocol.Welcome
	Accept  protocol.ConnectAccept

	writeMu  sync.Mutex
	sequence uint64

	messages chan Message
	errors   chan error
	doneCh   chan struct{}
}

// NewTestClient runs the handshake over conn with req and starts reading
// the control stream. It fails the test if the handshake cannot complete;
// a rejected ConnectAccept is returned to the caller for inspection.
func NewTestClient(t *testing.T, conn net.Conn, req protocol.ConnectRequest) *TestClient {
	t.Helper()
	mux, err := yamux.Client(conn, nil)
	if err != nil {
		t.Fatalf("start mux: %v", err)
	}
	control, err := mux.Open()
	if err != nil {
		t.Fatalf("open control stream: %v", err)
	}
	tc := &TestClient{
		t:        t,
		conn:     conn,
		mux:      mux,
		control:  control,
		messages: make(chan Message, 256),
		errors:   make(chan error, 1),
		doneCh:   make(chan struct{}),
	}
	if err := tc.handshake(req); err != nil {
		tc.Close()
		t.Fatalf("handshake failed: %v", err)
	}
	go tc.readLoop()
	return tc
}

func (tc *TestClient) handshake(req protocol.ConnectRequest) error {
	_ = tc.control.SetDeadline(time.Now().Add(5 * time.Second))
	defer tc.control.SetDeadline(time.Time{})

	hello, err := protocol.EncodeHello(protocol.Hello{ClientName: "test-client"})
	if err != nil {
		return fmt.Errorf("encode hello: %w", err)
	}
	if err := tc.Send(protocol.MsgHello, hello); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}
	hdr, payload, err := protocol.ReadMessage(tc.control)
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	if hdr.Type != protocol.MsgWelcome {
		return fmt.Errorf("expected welcome, got %v", hdr.Type)
	}
	if tc.Welcome, err = protocol.DecodeWelcome(payload); err != nil {
		return err
	}

	req.SessionID = tc.Welcome.SessionID
	connect, err := protocol.EncodeConnectRequest(req)
	if err != nil {
		return fmt.Errorf("encode connect: %w", err)
	}
	if err := tc.Send(protocol.MsgConnectRequest, connect); err != nil {
		return fmt.Errorf("write connect: %w", err)
	}
	hdr, payload, err = protocol.ReadMessage(tc.control)
	if err != nil {
		return fmt.Errorf("read connect accept: %w", err)
	}
	if hdr.Type != protocol.MsgConnectAccept {
		return fmt.Errorf("expected connect accept, got %v", hdr.Type)
	}
	tc.Accept, err = protocol.DecodeConnectAccept(payload)
	return err
}

func (tc *TestClient) readLoop() {
	defer close(tc.doneCh)
	for {
		hdr, payload, err := protocol.ReadMessage(tc.control)
		if err != nil {
			tc.errors <- err
			return
		}
		tc.messages <- Message{Header: hdr, Payload: payload}
	}
}

// Send writes one frame on the control stream.
func (tc *TestClient) Send(t protocol.MessageType, payload []byte) error {
	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()
	tc.sequence++
	return protocol.WriteMessage(tc.control, protocol.Header{
		Version:   protocol.Version,
		Type:      t,
		Flags:     protocol.FlagChecksum,
		SessionID: tc.Welcome.SessionID,
		Sequence:  tc.sequence,
	}, payload)
}

// Next returns the next control frame.
func (tc *TestClient) Next(timeout time.Duration) (Message, error) {
	select {
	case msg := <-tc.messages:
		return msg, nil
	case err := <-tc.errors:
		return Message{}, err
	case <-time.After(timeout):
		return Message{}, fmt.Errorf("timeout waiting for message")
	}
}

// WaitFor skips frames until one of type want arrives.
func (tc *TestClient) WaitFor(want protocol.MessageType, timeout time.Duration) (Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Message{}, fmt.Errorf("timeout waiting for %v", want)
		}
		msg, err := tc.Next(remaining)
		if err != nil {
			return Message{}, err
		}
		if msg.Header.Type == want {
			return msg, nil
		}
	}
}

// OpenChannel opens a side-channel stream and joins name.
func (tc *TestClient) OpenChannel(name string) (net.Conn, protocol.ChannelJoinAck, error) {
	stream, err := tc.mux.Open()
	if err != nil {
		return nil, protocol.ChannelJoinAck{}, err
	}
	join, err := protocol.EncodeChannelJoin(protocol.ChannelJoin{Name: name})
	if err != nil {
		stream.Close()
		return nil, protocol.ChannelJoinAck{}, err
	}
	if err := protocol.WriteMessage(stream, protocol.Header{Version: protocol.Version, Type: protocol.MsgChannelJoin, Flags: protocol.FlagChecksum}, join); err != nil {
		stream.Close()
		return nil, protocol.ChannelJoinAck{}, err
	}
	_ = stream.SetReadDeadline(time.Now().Add(5 * time.Second))
	hdr, payload, err := protocol.ReadMessage(stream)
	_ = stream.SetReadDeadline(time.Time{})
	if err != nil {
		stream.Close()
		return nil, protocol.ChannelJoinAck{}, err
	}
	if hdr.Type != protocol.MsgChannelJoinAck {
		stream.Close()
		return nil, protocol.ChannelJoinAck{}, fmt.Errorf("expected join ack, got %v", hdr.Type)
	}
	ack, err := protocol.DecodeChannelJoinAck(payload)
	return stream, ack, err
}

// Close tears down the control stream, the mux and the connection.
func (tc *TestClient) Close() {
	_ = tc.control.Close()
	_ = tc.mux.Close()
	_ = tc.conn.Close()
}
