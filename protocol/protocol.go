// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/protocol.go
// Summary: Frame header codec shared by the shadow client and server.
// Notes: The header layout is tied to Version; change both together.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame header layout. All integers are big-endian.
const (
	magic uint32 = 0x53484457 // "SHDW"

	offMagic    = 0
	offVersion  = 4
	offType     = 5
	offFlags    = 6
	offSession  = 7
	offSequence = 23
	offLength   = 31
	offChecksum = 35
	headerSize  = 39

	// MaxPayload bounds a single frame so an untrusted length cannot force a
	// huge allocation. A full 4096x4096 32bpp surface update fits.
	MaxPayload = 64 << 20
)

// Flag bits for the header Flags byte.
const (
	FlagChecksum uint8 = 0x01
)

// Version is the negotiated protocol version implemented by this package.
const Version uint8 = 0

// MessageType enumerates the canonical message categories exchanged between
// client and server.
type MessageType uint8

const (
	MsgHello MessageType = iota
	MsgWelcome
	MsgConnectRequest
	MsgConnectAccept
	MsgDisconnectNotice
	MsgPing
	MsgPong
	MsgError
	MsgSurfaceBits
	MsgFrameMarker
	MsgDesktopResize
	MsgChannelJoin
	MsgChannelJoinAck
	MsgChannelData
	MsgChannelLeave
)

var messageNames = [...]string{
	MsgHello:            "hello",
	MsgWelcome:          "welcome",
	MsgConnectRequest:   "connect-request",
	MsgConnectAccept:    "connect-accept",
	MsgDisconnectNotice: "disconnect",
	MsgPing:             "ping",
	MsgPong:             "pong",
	MsgError:            "error",
	MsgSurfaceBits:      "surface-bits",
	MsgFrameMarker:      "frame-marker",
	MsgDesktopResize:    "desktop-resize",
	MsgChannelJoin:      "channel-join",
	MsgChannelJoinAck:   "channel-join-ack",
	MsgChannelData:      "channel-data",
	MsgChannelLeave:     "channel-leave",
}

func (t MessageType) String() string {
	if int(t) < len(messageNames) && messageNames[t] != "" {
		return messageNames[t]
	}
	return fmt.Sprintf("msg(%d)", uint8(t))
}

// Header is the fixed prefix of every frame. PayloadLen and Checksum are
// filled in by WriteMessage.
type Header struct {
	Version    uint8
	Type       MessageType
	Flags      uint8
	SessionID  [16]byte
	Sequence   uint64
	PayloadLen uint32
	Checksum   uint32
}

var (
	ErrInvalidMagic     = errors.New("protocol: invalid magic")
	ErrUnsupportedVer   = errors.New("protocol: unsupported version")
	ErrShortPayload     = errors.New("protocol: payload shorter than declared length")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("protocol: payload exceeds frame limit")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// frameChecksum covers everything after the magic up to the checksum field,
// followed by the payload.
func frameChecksum(head, payload []byte) uint32 {
	sum := crc32.Update(0, castagnoli, head[offVersion:offChecksum])
	return crc32.Update(sum, castagnoli, payload)
}

func (h Header) checksummed() bool { return h.Flags&FlagChecksum != 0 }

func (h Header) put(b []byte) {
	binary.BigEndian.PutUint32(b[offMagic:], magic)
	b[offVersion] = h.Version
	b[offType] = byte(h.Type)
	b[offFlags] = h.Flags
	copy(b[offSession:offSequence], h.SessionID[:])
	binary.BigEndian.PutUint64(b[offSequence:], h.Sequence)
	binary.BigEndian.PutUint32(b[offLength:], h.PayloadLen)
	binary.BigEndian.PutUint32(b[offChecksum:], h.Checksum)
}

func parseHeader(b []byte) (Header, error) {
	var h Header
	if binary.BigEndian.Uint32(b[offMagic:]) != magic {
		return h, ErrInvalidMagic
	}
	h.Version = b[offVersion]
	h.Type = MessageType(b[offType])
	h.Flags = b[offFlags]
	copy(h.SessionID[:], b[offSession:offSequence])
	h.Sequence = binary.BigEndian.Uint64(b[offSequence:])
	h.PayloadLen = binary.BigEndian.Uint32(b[offLength:])
	h.Checksum = binary.BigEndian.Uint32(b[offChecksum:])
	switch {
	case h.Version != Version:
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVer, h.Version)
	case h.PayloadLen > MaxPayload:
		return h, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.PayloadLen)
	}
	return h, nil
}

// WriteMessage writes one frame as a single Write call so concurrent writers
// sharing a stream never interleave partial frames. The payload is copied.
func WriteMessage(w io.Writer, hdr Header, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	hdr.PayloadLen = uint32(len(payload))

	frame := make([]byte, headerSize+len(payload))
	copy(frame[headerSize:], payload)
	hdr.put(frame)
	if hdr.checksummed() {
		binary.BigEndian.PutUint32(frame[offChecksum:], frameChecksum(frame[:headerSize], payload))
	}
	_, err := w.Write(frame)
	return err
}

// ReadMessage reads one frame. A clean end of stream before any header byte
// is reported as io.EOF.
func ReadMessage(r io.Reader) (Header, []byte, error) {
	head := make([]byte, headerSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return Header{}, nil, err
	}
	hdr, err := parseHeader(head)
	if err != nil {
		return hdr, nil, err
	}

	payload := make([]byte, hdr.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return hdr, nil, ErrShortPayload
		}
		return hdr, nil, err
	}

	if hdr.checksummed() && frameChecksum(head, payload) != hdr.Checksum {
		return hdr, nil, ErrChecksumMismatch
	}
	return hdr, payload, nil
}
