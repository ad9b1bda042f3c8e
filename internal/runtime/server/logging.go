// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/logging.go
// Summary: Debug logger and stream multiplexer settings for the simulator.

package server

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/hashicorp/yamux"
)

var debugLog = log.New(io.Discard, "shadow-sim: ", log.LstdFlags|log.Lmicroseconds)

// SetVerboseLogging routes frame and channel tracing to stderr. Tracing is
// discarded by default.
func SetVerboseLogging(enable bool) {
	out := io.Writer(io.Discard)
	if enable {
		out = os.Stderr
	}
	debugLog.SetOutput(out)
}

// muxConfig disables yamux keepalives; clients send Ping frames instead.
func muxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = debugLog.Writer()
	cfg.EnableKeepAlive = false
	cfg.ConnectionWriteTimeout = 5 * time.Second
	cfg.MaxStreamWindowSize = 4 << 20
	return cfg
}
