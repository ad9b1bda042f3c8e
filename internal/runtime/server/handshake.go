// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/handshake.go
// Summary: Server half of the Hello/Welcome and Connect exchange.
// Usage: Run on the control stream before the connection loop starts.

package server

import (
	"errors"
	"io"
	"slices"

	"github.com/framegrace/texelshadow/protocol"
)

var (
	errUnexpectedMessage = errors.New("server: unexpected message type")
	errRejected          = errors.New("server: connection rejected")
)

const maxDesktopDimension = 0xFFFF

// handleHandshake performs the initial client/server negotiation. A
// rejected connection still receives its ConnectAccept before the error is
// returned.
func handleHandshake(rw io.ReadWriter, mgr *Manager, opts Options) (*Session, protocol.ConnectAccept, error) {
	hdr, payload, err := protocol.ReadMessage(rw)
	if err != nil {
		return nil, protocol.ConnectAccept{}, err
	}
	if hdr.Type != protocol.MsgHello {
		return nil, protocol.ConnectAccept{}, errUnexpectedMessage
	}
	hello, err := protocol.DecodeHello(payload)
	if err != nil {
		return nil, protocol.ConnectAccept{}, err
	}
	session := mgr.NewSession(hello)

	welcomePayload, err := protocol.EncodeWelcome(protocol.Welcome{SessionID: session.ID(), ServerName: opts.Name})
	if err != nil {
		return session, protocol.ConnectAccept{}, err
	}
	if err := writeFrame(rw, session.ID(), 1, protocol.MsgWelcome, welcomePayload); err != nil {
		return session, protocol.ConnectAccept{}, err
	}

	hdr, payload, err = protocol.ReadMessage(rw)
	if err != nil {
		return session, protocol.ConnectAccept{}, err
	}
	if hdr.Type != protocol.MsgConnectRequest {
		return session, protocol.ConnectAccept{}, errUnexpectedMessage
	}
	req, err := protocol.DecodeConnectRequest(payload)
	if err != nil {
		return session, protocol.ConnectAccept{}, err
	}

	accept := negotiate(req, session.ID(), opts)
	session.negotiate(int(accept.DesktopWidth), int(accept.DesktopHeight), accept.Channels)
	acceptPayload, err := protocol.EncodeConnectAccept(accept)
	if err != nil {
		return session, accept, err
	}
	if err := writeFrame(rw, session.ID(), 2, protocol.MsgConnectAccept, acceptPayload); err != nil {
		return session, accept, err
	}
	if accept.Result != protocol.ResultOK {
		return session, accept, errRejected
	}
	return session, accept, nil
}

// negotiate answers a connect request: the requested desktop when it is
// usable, the channels both sides know and the features both sides enable.
func negotiate(req protocol.ConnectRequest, id [16]byte, opts Options) protocol.ConnectAccept {
	accept := protocol.ConnectAccept{
		SessionID:     id,
		Result:        protocol.ResultOK,
		DesktopWidth:  req.DesktopWidth,
		DesktopHeight: req.DesktopHeight,
	}
	if opts.Reject != protocol.ResultOK {
		accept.Result = opts.Reject
		return accept
	}
	if req.DesktopWidth == 0 || req.DesktopHeight == 0 {
		accept.Result = protocol.ResultBadDesktop
		return accept
	}
	if req.ColorDepth != 32 && req.ColorDepth != 24 {
		accept.Result = protocol.ResultUnsupported
		return accept
	}
	if opts.Width > 0 && opts.Height > 0 && opts.Width <= maxDesktopDimension && opts.Height <= maxDesktopDimension {
		accept.DesktopWidth = uint16(opts.Width)
		accept.DesktopHeight = uint16(opts.Height)
	}
	for _, name := range req.Channels {
		if slices.Contains(opts.Channels, name) && !slices.Contains(accept.Channels, name) {
			accept.Channels = append(accept.Channels, name)
		}
	}
	accept.Features = req.Features &^ protocol.FeatureCompression
	if opts.Compress && req.Features&protocol.FeatureCompression != 0 {
		accept.Features |= protocol.FeatureCompression
	}
	return accept
}

func writeFrame(w io.Writer, id [16]byte, seq uint64, t protocol.MessageType, payload []byte) error {
	hdr := protocol.Header{
		Version:   protocol.Version,
		Type:      t,
		Flags:     protocol.FlagChecksum,
		SessionID: id,
		Sequence:  seq,
	}
	return protocol.WriteMessage(w, hdr, payload)
}
