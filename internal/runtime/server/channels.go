// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/channels.go
// Summary: Side-channel streams of a simulated session.
// Notes: Accepted channels echo every ChannelData payload back to the client.

package server

import (
	"errors"
	"io"
	"net"
	"slices"

	"github.com/hashicorp/yamux"

	"github.com/framegrace/texelshadow/protocol"
)

// acceptChannels serves every stream the client opens after the control
// stream until the mux shuts down.
func acceptChannels(mux *yamux.Session, session *Session, accepted []string) {
	for {
		stream, err := mux.Accept()
		if err != nil {
			return
		}
		go serveChannel(stream, session, accepted)
	}
}

func serveChannel(stream net.Conn, session *Session, accepted []string) {
	defer stream.Close()
	id := session.ID()

	hdr, payload, err := protocol.ReadMessage(stream)
	if err != nil || hdr.Type != protocol.MsgChannelJoin {
		debugLog.Printf("server: channel stream without join: %v %v", hdr.Type, err)
		return
	}
	join, err := protocol.DecodeChannelJoin(payload)
	if err != nil {
		return
	}
	ok := slices.Contains(accepted, join.Name)
	ack, err := protocol.EncodeChannelJoinAck(protocol.ChannelJoinAck{Name: join.Name, Accepted: ok})
	if err != nil {
		return
	}
	var seq uint64 = 1
	if err := writeFrame(stream, id, seq, protocol.MsgChannelJoinAck, ack); err != nil || !ok {
		return
	}
	debugLog.Printf("server: channel %s joined", join.Name)

	for {
		hdr, payload, err := protocol.ReadMessage(stream)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				debugLog.Printf("server: channel %s read: %v", join.Name, err)
			}
			return
		}
		switch hdr.Type {
		case protocol.MsgChannelData:
			seq++
			if err := writeFrame(stream, id, seq, protocol.MsgChannelData, payload); err != nil {
				return
			}
		case protocol.MsgChannelLeave:
			debugLog.Printf("server: channel %s left", join.Name)
			return
		}
	}
}
