// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/defaults.go
// Summary: Default values for the system configuration file.
// The embedded JSON in defaults/ is the source of truth for first-run files;
// applySystemDefaults fills keys that older files are missing.

package config

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/framegrace/texelshadow/defaults"
)

var (
	embeddedOnce sync.Once
	embedded     Config
)

func applySystemDefaults(cfg Config) {
	if cfg == nil {
		return
	}
	cfg.RegisterDefaults("", Section{
		"network":     "unix",
		"address":     "/tmp/texelshadow.sock",
		"client_name": "texelshadow",
		"channels":    []interface{}{},
	})
	cfg.RegisterDefaults("desktop", Section{
		"width":       1024,
		"height":      768,
		"color_depth": 32,
	})
	cfg.RegisterDefaults("session", Section{
		"wait_timeout_ms":      1000,
		"handshake_timeout_ms": 5000,
		"keepalive_ms":         5000,
		"max_descriptors":      64,
	})
	cfg.RegisterDefaults("features", Section{
		"software_gdi":       true,
		"bitmap_cache":       false,
		"compression":        true,
		"ignore_certificate": true,
		"rdp_security":       true,
		"tls_security":       true,
		"nla_security":       false,
		"auto_reconnect":     false,
		"async_transport":    false,
		"async_channels":     false,
		"async_update":       false,
		"async_input":        false,
	})
	cfg.RegisterDefaults("orders", Section{})
	cfg.RegisterDefaults("presenter", Section{
		"cell_width":  8,
		"cell_height": 16,
	})
	cfg.RegisterDefaults("journal", Section{
		"enabled": true,
		"path":    "",
	})
}

// defaultSystemConfig returns a clone of the embedded system defaults.
func defaultSystemConfig() Config {
	embeddedOnce.Do(func() {
		var cfg Config
		if err := json.Unmarshal(defaults.SystemConfig(), &cfg); err != nil {
			log.Printf("Config: Embedded defaults are invalid: %v", err)
			return
		}
		embedded = cfg
	})
	return Clone(embedded)
}
