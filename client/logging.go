// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"io"
	"log"
	"os"

	"github.com/hashicorp/yamux"
)

var debugLog = log.New(io.Discard, "", log.LstdFlags|log.Lmicroseconds)

// SetVerboseLogging toggles protocol and channel frame tracing.
func SetVerboseLogging(enable bool) {
	if enable {
		debugLog.SetOutput(os.Stderr)
	} else {
		debugLog.SetOutput(io.Discard)
	}
}

// SetDebugOutput routes frame tracing to w.
func SetDebugOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	debugLog.SetOutput(w)
}

func muxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = debugLog.Writer()
	cfg.EnableKeepAlive = false
	return cfg
}
