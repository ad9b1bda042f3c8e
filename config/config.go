// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/config.go
// Summary: JSON document model and file IO for texelshadow configuration.
// Notes: Files are replaced atomically so a crashed save never leaves a
// truncated texelshadow.json behind.

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config is a decoded configuration document. Top-level keys hold either
// scalar settings or named sections.
type Config map[string]interface{}

// Section is one named group of settings inside a Config.
type Section map[string]interface{}

// ErrMalformed wraps JSON decoding failures so callers can tell a broken file
// from a missing or unreadable one.
var ErrMalformed = errors.New("config: malformed document")

// LoadFile reads the document at path and fills in every key the file does
// not set. The shared store is not consulted or modified.
func LoadFile(path string) (Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	applySystemDefaults(cfg)
	return cfg, nil
}

// decodeFile returns os.ErrNotExist (wrapped) for a missing file and
// ErrMalformed for bad JSON. An empty or "null" document decodes to an empty
// Config.
func decodeFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := make(Config)
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if cfg == nil {
		cfg = make(Config)
	}
	return cfg, nil
}

// encodeFile writes cfg next to path and renames it into place.
func encodeFile(path string, cfg Config) error {
	if cfg == nil {
		cfg = make(Config)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".texelshadow-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
