// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/shadow-server-sim/main.go
// Summary: Simulated shadow server streaming a moving test pattern.
// Usage: `shadow-server-sim -addr /tmp/texelshadow.sock -frames 0`.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/framegrace/texelshadow/internal/runtime/server"
)

func main() {
	network := flag.String("network", "unix", "Listen network: unix or tcp")
	addr := flag.String("addr", "/tmp/texelshadow.sock", "Listen address or socket path")
	width := flag.Int("width", 0, "Force the desktop width (0 keeps the client's)")
	height := flag.Int("height", 0, "Force the desktop height (0 keeps the client's)")
	interval := flag.Duration("interval", 100*time.Millisecond, "Pattern frame interval")
	frames := flag.Int("frames", 0, "Disconnect clients after this many frames (0 streams forever)")
	compress := flag.Bool("compress", true, "Send zstd surfaces to clients offering compression")
	channels := flag.String("channels", "cliprdr,rdpsnd", "Comma separated side channels to accept")
	reject := flag.Uint("reject", 0, "Refuse every client with this result code")
	verbose := flag.Bool("verbose", false, "Log frame and channel tracing")
	flag.Parse()

	server.SetVerboseLogging(*verbose)

	srv := server.NewServer(*network, *addr, server.Options{
		Width:         *width,
		Height:        *height,
		FrameInterval: *interval,
		Frames:        *frames,
		Compress:      *compress,
		Channels:      strings.Split(*channels, ","),
		Reject:        uint32(*reject),
	})
	totals := &server.StatsTotals{}
	srv.Manager().SetStatsObserver(server.ObserveAll(server.NewSessionStatsLogger(log.Default()), totals))

	if *network == "unix" {
		_ = os.Remove(*addr)
	}
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Shadow server simulator listening on %s %s\n", *network, srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
	}
	totalSessions, totalFrames, totalBytes := totals.Totals()
	fmt.Printf("Server stopped: sessions=%d frames=%d bytes=%d\n", totalSessions, totalFrames, totalBytes)
}
