// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/messages.go
// Summary: Payload codecs for handshake, surface and channel messages.
// Notes: Keep changes backward-compatible; any additions require coordinated version bumps.

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

var (
	errStringTooLong = errors.New("protocol: string exceeds 64KB limit")
	errPayloadShort  = errors.New("protocol: payload too short")
	errTooMany       = errors.New("protocol: list exceeds 64K entries")
	errSurfaceSize   = errors.New("protocol: surface dimensions out of range")
)

// Feature bits negotiated in ConnectRequest / ConnectAccept.
const (
	FeatureSoftwareGdi uint32 = 1 << iota
	FeatureBitmapCache
	FeatureCompression
	FeatureIgnoreCertificate
	FeatureRdpSecurity
	FeatureTlsSecurity
	FeatureNlaSecurity
	FeatureAutoReconnect
	FeatureAsyncTransport
	FeatureAsyncChannels
	FeatureAsyncUpdate
	FeatureAsyncInput
)

// Connection result codes carried by ConnectAccept.
const (
	ResultOK uint32 = iota
	ResultRejected
	ResultBadDesktop
	ResultUnsupported
)

// Surface codecs.
const (
	CodecRaw  uint8 = 0
	CodecZstd uint8 = 1
)

// Frame marker actions.
const (
	FrameBegin uint16 = 0
	FrameEnd   uint16 = 1
)

// Hello initiates the handshake from client to server.
type Hello struct {
	ClientID     [16]byte
	ClientName   string
	Capabilities uint32
}

// Welcome is returned by the server acknowledging the handshake.
type Welcome struct {
	SessionID  [16]byte
	ServerName string
}

// ConnectRequest carries the client's settings snapshot.
type ConnectRequest struct {
	SessionID     [16]byte
	DesktopWidth  uint16
	DesktopHeight uint16
	ColorDepth    uint8
	Features      uint32
	OrderMask     uint32
	Channels      []string
}

// ConnectAccept reports the negotiation result.
type ConnectAccept struct {
	SessionID     [16]byte
	Result        uint32
	DesktopWidth  uint16
	DesktopHeight uint16
	Features      uint32
	Channels      []string
}

// DisconnectNotice informs the peer that the session is closing.
type DisconnectNotice struct {
	ReasonCode uint16
	Message    string
}

// Ping/Pong keep the connection alive.
type Ping struct {
	Timestamp int64
}

type Pong struct {
	Timestamp int64
}

// ErrorFrame communicates protocol-level errors.
type ErrorFrame struct {
	Code    uint16
	Message string
}

// SurfaceBits delivers 32bpp pixels for a destination rectangle. The
// rectangle comes straight from the remote side and is not trusted.
type SurfaceBits struct {
	X      int32
	Y      int32
	Width  uint32
	Height uint32
	Codec  uint8
	Data   []byte
}

// FrameMarker brackets a group of surface updates that form one frame.
type FrameMarker struct {
	Action  uint16
	FrameID uint32
}

// DesktopResize announces a new framebuffer size.
type DesktopResize struct {
	Width  uint16
	Height uint16
}

// ChannelJoin opens a side channel; it is the first frame on a channel stream.
type ChannelJoin struct {
	Name string
}

// ChannelJoinAck answers a ChannelJoin.
type ChannelJoinAck struct {
	Name     string
	Accepted bool
}

// ChannelData carries an opaque channel payload.
type ChannelData struct {
	Data []byte
}

// ChannelLeave closes a side channel.
type ChannelLeave struct {
	Name string
}

func encodeString(buf *bytes.Buffer, value string) error {
	if len(value) > 0xFFFF {
		return errStringTooLong
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(value))); err != nil {
		return err
	}
	if len(value) > 0 {
		if _, err := buf.WriteString(value); err != nil {
			return err
		}
	}
	return nil
}

func decodeString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errPayloadShort
	}
	length := binary.LittleEndian.Uint16(b[:2])
	b = b[2:]
	if len(b) < int(length) {
		return "", nil, errPayloadShort
	}
	return string(b[:length]), b[length:], nil
}

func encodeStrings(buf *bytes.Buffer, values []string) error {
	if len(values) > math.MaxUint16 {
		return errTooMany
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := encodeString(buf, v); err != nil {
			return err
		}
	}
	return nil
}

func decodeStrings(b []byte) ([]string, []byte, error) {
	if len(b) < 2 {
		return nil, nil, errPayloadShort
	}
	count := int(binary.LittleEndian.Uint16(b[:2]))
	b = b[2:]
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s, rest, err := decodeString(b)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, s)
		b = rest
	}
	return out, b, nil
}

func EncodeHello(h Hello) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 32+len(h.ClientName)))
	buf.Write(h.ClientID[:])
	if err := encodeString(buf, h.ClientName); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, h.Capabilities); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeHello(b []byte) (Hello, error) {
	var h Hello
	if len(b) < 16 {
		return h, errPayloadShort
	}
	copy(h.ClientID[:], b[:16])
	name, rest, err := decodeString(b[16:])
	if err != nil {
		return h, err
	}
	h.ClientName = name
	if len(rest) < 4 {
		return h, errPayloadShort
	}
	h.Capabilities = binary.LittleEndian.Uint32(rest[:4])
	return h, nil
}

func EncodeWelcome(w Welcome) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 32+len(w.ServerName)))
	buf.Write(w.SessionID[:])
	if err := encodeString(buf, w.ServerName); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeWelcome(b []byte) (Welcome, error) {
	var w Welcome
	if len(b) < 16 {
		return w, errPayloadShort
	}
	copy(w.SessionID[:], b[:16])
	name, _, err := decodeString(b[16:])
	if err != nil {
		return w, err
	}
	w.ServerName = name
	return w, nil
}

func EncodeConnectRequest(c ConnectRequest) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 32))
	buf.Write(c.SessionID[:])
	for _, v := range []interface{}{c.DesktopWidth, c.DesktopHeight, c.ColorDepth, c.Features, c.OrderMask} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if err := encodeStrings(buf, c.Channels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeConnectRequest(b []byte) (ConnectRequest, error) {
	var c ConnectRequest
	if len(b) < 29 {
		return c, errPayloadShort
	}
	copy(c.SessionID[:], b[:16])
	c.DesktopWidth = binary.LittleEndian.Uint16(b[16:18])
	c.DesktopHeight = binary.LittleEndian.Uint16(b[18:20])
	c.ColorDepth = b[20]
	c.Features = binary.LittleEndian.Uint32(b[21:25])
	c.OrderMask = binary.LittleEndian.Uint32(b[25:29])
	channels, _, err := decodeStrings(b[29:])
	if err != nil {
		return c, err
	}
	c.Channels = channels
	return c, nil
}

func EncodeConnectAccept(c ConnectAccept) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 32))
	buf.Write(c.SessionID[:])
	for _, v := range []interface{}{c.Result, c.DesktopWidth, c.DesktopHeight, c.Features} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if err := encodeStrings(buf, c.Channels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeConnectAccept(b []byte) (ConnectAccept, error) {
	var c ConnectAccept
	if len(b) < 28 {
		return c, errPayloadShort
	}
	copy(c.SessionID[:], b[:16])
	c.Result = binary.LittleEndian.Uint32(b[16:20])
	c.DesktopWidth = binary.LittleEndian.Uint16(b[20:22])
	c.DesktopHeight = binary.LittleEndian.Uint16(b[22:24])
	c.Features = binary.LittleEndian.Uint32(b[24:28])
	channels, _, err := decodeStrings(b[28:])
	if err != nil {
		return c, err
	}
	c.Channels = channels
	return c, nil
}

func EncodeDisconnectNotice(d DisconnectNotice) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 4+len(d.Message)))
	if err := binary.Write(buf, binary.LittleEndian, d.ReasonCode); err != nil {
		return nil, err
	}
	if err := encodeString(buf, d.Message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeDisconnectNotice(b []byte) (DisconnectNotice, error) {
	var d DisconnectNotice
	if len(b) < 2 {
		return d, errPayloadShort
	}
	d.ReasonCode = binary.LittleEndian.Uint16(b[:2])
	msg, _, err := decodeString(b[2:])
	if err != nil {
		return d, err
	}
	d.Message = msg
	return d, nil
}

func EncodePing(p Ping) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 8))
	if err := binary.Write(buf, binary.LittleEndian, p.Timestamp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodePing(b []byte) (Ping, error) {
	var p Ping
	if len(b) < 8 {
		return p, errPayloadShort
	}
	p.Timestamp = int64(binary.LittleEndian.Uint64(b[:8]))
	return p, nil
}

func EncodePong(p Pong) ([]byte, error) {
	return EncodePing(Ping{Timestamp: p.Timestamp})
}

func DecodePong(b []byte) (Pong, error) {
	ping, err := DecodePing(b)
	if err != nil {
		return Pong{}, err
	}
	return Pong{Timestamp: ping.Timestamp}, nil
}

func EncodeErrorFrame(e ErrorFrame) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 4+len(e.Message)))
	if err := binary.Write(buf, binary.LittleEndian, e.Code); err != nil {
		return nil, err
	}
	if err := encodeString(buf, e.Message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeErrorFrame(b []byte) (ErrorFrame, error) {
	var e ErrorFrame
	if len(b) < 2 {
		return e, errPayloadShort
	}
	e.Code = binary.LittleEndian.Uint16(b[:2])
	msg, _, err := decodeString(b[2:])
	if err != nil {
		return e, err
	}
	e.Message = msg
	return e, nil
}

func EncodeSurfaceBits(s SurfaceBits) ([]byte, error) {
	if s.Width > math.MaxUint16 || s.Height > math.MaxUint16 {
		return nil, errSurfaceSize
	}
	buf := bytes.NewBuffer(make([]byte, 0, 21+len(s.Data)))
	for _, v := range []interface{}{s.X, s.Y, s.Width, s.Height, s.Codec, uint32(len(s.Data))} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	buf.Write(s.Data)
	return buf.Bytes(), nil
}

func DecodeSurfaceBits(b []byte) (SurfaceBits, error) {
	var s SurfaceBits
	if len(b) < 21 {
		return s, errPayloadShort
	}
	s.X = int32(binary.LittleEndian.Uint32(b[0:4]))
	s.Y = int32(binary.LittleEndian.Uint32(b[4:8]))
	s.Width = binary.LittleEndian.Uint32(b[8:12])
	s.Height = binary.LittleEndian.Uint32(b[12:16])
	s.Codec = b[16]
	if s.Width > math.MaxUint16 || s.Height > math.MaxUint16 {
		return s, errSurfaceSize
	}
	dataLen := binary.LittleEndian.Uint32(b[17:21])
	rest := b[21:]
	if uint64(len(rest)) < uint64(dataLen) {
		return s, errPayloadShort
	}
	s.Data = append([]byte(nil), rest[:dataLen]...)
	return s, nil
}

func EncodeFrameMarker(f FrameMarker) ([]byte, error) {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], f.Action)
	binary.LittleEndian.PutUint32(buf[2:6], f.FrameID)
	return buf, nil
}

func DecodeFrameMarker(b []byte) (FrameMarker, error) {
	var f FrameMarker
	if len(b) < 6 {
		return f, errPayloadShort
	}
	f.Action = binary.LittleEndian.Uint16(b[0:2])
	f.FrameID = binary.LittleEndian.Uint32(b[2:6])
	return f, nil
}

func EncodeDesktopResize(r DesktopResize) ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], r.Width)
	binary.LittleEndian.PutUint16(buf[2:4], r.Height)
	return buf, nil
}

func DecodeDesktopResize(b []byte) (DesktopResize, error) {
	var r DesktopResize
	if len(b) < 4 {
		return r, errPayloadShort
	}
	r.Width = binary.LittleEndian.Uint16(b[0:2])
	r.Height = binary.LittleEndian.Uint16(b[2:4])
	return r, nil
}

func EncodeChannelJoin(j ChannelJoin) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 2+len(j.Name)))
	if err := encodeString(buf, j.Name); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeChannelJoin(b []byte) (ChannelJoin, error) {
	name, _, err := decodeString(b)
	return ChannelJoin{Name: name}, err
}

func EncodeChannelJoinAck(a ChannelJoinAck) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 3+len(a.Name)))
	if err := encodeString(buf, a.Name); err != nil {
		return nil, err
	}
	if a.Accepted {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

func DecodeChannelJoinAck(b []byte) (ChannelJoinAck, error) {
	var a ChannelJoinAck
	name, rest, err := decodeString(b)
	if err != nil {
		return a, err
	}
	if len(rest) < 1 {
		return a, errPayloadShort
	}
	a.Name = name
	a.Accepted = rest[0] != 0
	return a, nil
}

func EncodeChannelData(d ChannelData) ([]byte, error) {
	return append([]byte(nil), d.Data...), nil
}

func DecodeChannelData(b []byte) (ChannelData, error) {
	return ChannelData{Data: append([]byte(nil), b...)}, nil
}

func EncodeChannelLeave(l ChannelLeave) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 2+len(l.Name)))
	if err := encodeString(buf, l.Name); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeChannelLeave(b []byte) (ChannelLeave, error) {
	name, _, err := decodeString(b)
	return ChannelLeave{Name: name}, err
}
