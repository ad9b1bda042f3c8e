// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/messages_test.go
// Summary: Exercises messages behaviour to ensure the protocol definitions remains reliable.
// Usage: Executed during `go test` to guard against regressions.
// Notes: Keep changes backward-compatible; any additions require coordinated version bumps.

package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestHelloRoundTrip(t *testing.T) {
	var id [16]byte
	copy(id[:], []byte("client-abcdefghi"))
	hello := Hello{ClientID: id, ClientName: "shadow-client", Capabilities: 0xdeadbeef}
	payload, err := EncodeHello(hello)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeHello(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.ClientName != hello.ClientName || decoded.Capabilities != hello.Capabilities {
		t.Fatalf("mismatch: %#v vs %#v", decoded, hello)
	}
}

func TestDisconnectNoticeRoundTrip(t *testing.T) {
	notice := DisconnectNotice{ReasonCode: 3, Message: "server shutdown"}
	payload, err := EncodeDisconnectNotice(notice)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeDisconnectNotice(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.ReasonCode != notice.ReasonCode || decoded.Message != notice.Message {
		t.Fatalf("mismatch: %#v vs %#v", decoded, notice)
	}
}

func TestErrorFrameRoundTrip(t *testing.T) {
	frame := ErrorFrame{Code: 500, Message: "bad things"}
	payload, err := EncodeErrorFrame(frame)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeErrorFrame(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Code != frame.Code || decoded.Message != frame.Message {
		t.Fatalf("mismatch: %#v vs %#v", decoded, frame)
	}
}

func TestConnectRequestRoundTrip(t *testing.T) {
	req := ConnectRequest{
		SessionID:     [16]byte{9},
		DesktopWidth:  1024,
		DesktopHeight: 768,
		ColorDepth:    32,
		Features:      FeatureSoftwareGdi | FeatureCompression,
		OrderMask:     0x0BF80707,
		Channels:      []string{"cliprdr", "rdpsnd"},
	}
	payload, err := EncodeConnectRequest(req)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeConnectRequest(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.DesktopWidth != 1024 || decoded.DesktopHeight != 768 || decoded.ColorDepth != 32 {
		t.Fatalf("desktop mismatch: %#v", decoded)
	}
	if decoded.Features != req.Features || decoded.OrderMask != req.OrderMask {
		t.Fatalf("flags mismatch: %#v", decoded)
	}
	if len(decoded.Channels) != 2 || decoded.Channels[1] != "rdpsnd" {
		t.Fatalf("channels mismatch: %#v", decoded.Channels)
	}
}

func TestConnectAcceptRoundTrip(t *testing.T) {
	accept := ConnectAccept{SessionID: [16]byte{1, 2}, Result: ResultOK, DesktopWidth: 800, DesktopHeight: 600, Features: FeatureCompression, Channels: []string{"cliprdr"}}
	payload, err := EncodeConnectAccept(accept)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeConnectAccept(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.SessionID != accept.SessionID || decoded.DesktopWidth != 800 || decoded.Features != FeatureCompression {
		t.Fatalf("mismatch: %#v vs %#v", decoded, accept)
	}
	if len(decoded.Channels) != 1 || decoded.Channels[0] != "cliprdr" {
		t.Fatalf("channels mismatch: %#v", decoded.Channels)
	}
}

func TestConnectAcceptTruncated(t *testing.T) {
	payload, _ := EncodeConnectAccept(ConnectAccept{Channels: []string{"cliprdr"}})
	if _, err := DecodeConnectAccept(payload[:len(payload)-3]); !errors.Is(err, errPayloadShort) {
		t.Fatalf("expected short payload, got %v", err)
	}
}

func TestSurfaceBitsKeepsSignedOrigin(t *testing.T) {
	bits := SurfaceBits{X: -12, Y: 40, Width: 2, Height: 1, Codec: CodecRaw, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	payload, err := EncodeSurfaceBits(bits)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeSurfaceBits(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.X != -12 || decoded.Y != 40 || !bytes.Equal(decoded.Data, bits.Data) {
		t.Fatalf("mismatch: %#v", decoded)
	}
}

func TestSurfaceBitsRejectsHugeDimensions(t *testing.T) {
	if _, err := EncodeSurfaceBits(SurfaceBits{Width: 1 << 20, Height: 1}); !errors.Is(err, errSurfaceSize) {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestPackUnpackSurface(t *testing.T) {
	pixels := bytes.Repeat([]byte{0x10, 0x20, 0x30, 0xFF}, 16*8)
	for _, compress := range []bool{false, true} {
		msg, err := PackSurface(4, 4, 16, 8, pixels, compress)
		if err != nil {
			t.Fatalf("pack (compress=%v): %v", compress, err)
		}
		if compress && (msg.Codec != CodecZstd || len(msg.Data) >= len(pixels)) {
			t.Fatalf("expected compressed payload, codec=%d len=%d", msg.Codec, len(msg.Data))
		}
		out, err := UnpackSurface(msg)
		if err != nil {
			t.Fatalf("unpack (compress=%v): %v", compress, err)
		}
		if !bytes.Equal(out, pixels) {
			t.Fatalf("pixels mismatch (compress=%v)", compress)
		}
	}
}

func TestUnpackSurfaceLengthMismatch(t *testing.T) {
	msg := SurfaceBits{Width: 4, Height: 4, Codec: CodecRaw, Data: make([]byte, 10)}
	if _, err := UnpackSurface(msg); !errors.Is(err, ErrSurfaceLength) {
		t.Fatalf("expected length error, got %v", err)
	}
	msg.Codec = 9
	if _, err := UnpackSurface(msg); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected codec error, got %v", err)
	}
}

func TestChannelMessagesRoundTrip(t *testing.T) {
	payload, _ := EncodeChannelJoinAck(ChannelJoinAck{Name: "cliprdr", Accepted: true})
	ack, err := DecodeChannelJoinAck(payload)
	if err != nil || ack.Name != "cliprdr" || !ack.Accepted {
		t.Fatalf("join ack mismatch: %#v %v", ack, err)
	}
	payload, _ = EncodeChannelJoin(ChannelJoin{Name: "rdpsnd"})
	join, err := DecodeChannelJoin(payload)
	if err != nil || join.Name != "rdpsnd" {
		t.Fatalf("join mismatch: %#v %v", join, err)
	}
	payload, _ = EncodeFrameMarker(FrameMarker{Action: FrameEnd, FrameID: 77})
	marker, err := DecodeFrameMarker(payload)
	if err != nil || marker.Action != FrameEnd || marker.FrameID != 77 {
		t.Fatalf("marker mismatch: %#v %v", marker, err)
	}
}
