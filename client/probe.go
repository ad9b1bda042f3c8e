// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: client/probe.go
// Summary: Liveness probe for shadow servers.
// Usage: `texelshadow -probe` checks the configured server before connecting.
// Notes: Stops after Welcome; the server drops the half-open session.

package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"

	"github.com/framegrace/texelshadow/protocol"
)

// Prober verifies a server answers the first handshake step.
type Prober struct {
	Timeout time.Duration
	Dial    Dialer
}

// Probe dials address, sends Hello and returns the server's Welcome.
func (p Prober) Probe(ctx context.Context, network, address string) (protocol.Welcome, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := p.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	conn, err := dial(ctx, network, address)
	if err != nil {
		return protocol.Welcome{}, fmt.Errorf("client: probe dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	mux, err := yamux.Client(conn, muxConfig())
	if err != nil {
		return protocol.Welcome{}, err
	}
	defer mux.Close()
	control, err := mux.Open()
	if err != nil {
		return protocol.Welcome{}, fmt.Errorf("client: probe open stream: %w", err)
	}
	defer control.Close()
	deadline, _ := ctx.Deadline()
	_ = control.SetDeadline(deadline)

	hello, err := protocol.EncodeHello(protocol.Hello{ClientID: [16]byte(uuid.New()), ClientName: "probe"})
	if err != nil {
		return protocol.Welcome{}, err
	}
	if err := writeFrame(control, protocol.MsgHello, hello); err != nil {
		return protocol.Welcome{}, fmt.Errorf("client: probe hello: %w", err)
	}
	hdr, payload, err := protocol.ReadMessage(control)
	if err != nil {
		return protocol.Welcome{}, fmt.Errorf("client: probe read: %w", err)
	}
	if hdr.Type != protocol.MsgWelcome {
		return protocol.Welcome{}, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessage, hdr.Type, protocol.MsgWelcome)
	}
	return protocol.DecodeWelcome(payload)
}
