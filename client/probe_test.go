// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/framegrace/texelshadow/internal/runtime/server"
)

func TestProbeReadsWelcome(t *testing.T) {
	srv := server.NewServer("unix", "", server.Options{Name: "probe-target"})
	welcome, err := Prober{Dial: memDialer(srv)}.Probe(context.Background(), "unix", "mem")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if welcome.ServerName != "probe-target" {
		t.Fatalf("server name = %q", welcome.ServerName)
	}
	if welcome.SessionID == [16]byte{} {
		t.Fatal("welcome carried no session id")
	}
}

func TestProbeDialFailure(t *testing.T) {
	refused := errors.New("refused")
	_, err := Prober{
		Timeout: 50 * time.Millisecond,
		Dial:    func(context.Context, string, string) (net.Conn, error) { return nil, refused },
	}.Probe(context.Background(), "tcp", "127.0.0.1:1")
	if !errors.Is(err, refused) {
		t.Fatalf("probe err = %v", err)
	}
}

func TestProbeTimesOutOnSilentPeer(t *testing.T) {
	_, err := Prober{
		Timeout: 50 * time.Millisecond,
		Dial: func(context.Context, string, string) (net.Conn, error) {
			c, _ := net.Pipe()
			return c, nil
		},
	}.Probe(context.Background(), "unix", "silent")
	if err == nil {
		t.Fatal("probe of a silent peer succeeded")
	}
}
