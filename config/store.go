// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/store.go
// Summary: File-backed configuration store with first-run seeding.
// Usage: The process-wide store backs System/Snapshot; tests and tools can
// build their own with NewStore.

package config

import (
	"errors"
	"io/fs"
	"log"
	"sync"
)

// Store owns one configuration file. The first Load of a missing or empty
// file seeds it from the embedded defaults.
type Store struct {
	path string

	mu     sync.RWMutex
	cfg    Config
	err    error
	loaded bool
}

// NewStore returns a store for the file at path. Nothing is read until the
// first access.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Config returns the current document, loading it on first use. Callers must
// treat the result as read-only; use Replace to change it.
func (s *Store) Config() Config {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Err returns the error from the most recent load.
func (s *Store) Err() error {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Load re-reads the file. On failure the store falls back to defaults and
// the error is also reported by Err.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.err
}

// Replace swaps the in-memory document for a copy of cfg with defaults
// applied. The file is untouched until Save.
func (s *Store) Replace(cfg Config) {
	next := Clone(cfg)
	if next == nil {
		next = make(Config)
	}
	applySystemDefaults(next)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = next
	s.loaded = true
}

// Save writes the in-memory document to the backing file.
func (s *Store) Save() error {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.path == "" {
		return errNoPath
	}
	if err := encodeFile(s.path, s.cfg); err != nil {
		log.Printf("Config: Failed to write %s: %v", s.path, err)
		return err
	}
	return nil
}

var errNoPath = errors.New("config: store has no backing file")

func (s *Store) ensureLoaded() {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loadLocked()
	}
}

func (s *Store) loadLocked() {
	s.loaded = true
	s.err = nil
	if s.path == "" {
		s.cfg = seedConfig()
		s.err = errNoPath
		return
	}

	cfg, err := decodeFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && len(cfg) == 0:
		s.cfg = seedConfig()
		if werr := encodeFile(s.path, s.cfg); werr != nil {
			log.Printf("Config: Failed to seed %s: %v", s.path, werr)
			s.err = werr
			return
		}
		log.Printf("Config: Wrote default config to %s", s.path)
	case err != nil:
		log.Printf("Config: Failed to read %s: %v", s.path, err)
		s.cfg = seedConfig()
		s.err = err
	default:
		applySystemDefaults(cfg)
		s.cfg = cfg
		log.Printf("Config: Loaded %s", s.path)
	}
}

// seedConfig is the embedded first-run document with any keys it lacks
// filled from applySystemDefaults.
func seedConfig() Config {
	cfg := defaultSystemConfig()
	if cfg == nil {
		cfg = make(Config)
	}
	applySystemDefaults(cfg)
	return cfg
}

var (
	systemOnce  sync.Once
	systemStore *Store
)

// SystemStore returns the process-wide store for texelshadow.json. Its path
// honours TEXELSHADOW_CONFIG before the user config directory.
func SystemStore() *Store {
	systemOnce.Do(func() {
		path, err := systemConfigPath()
		if err != nil {
			log.Printf("Config: Failed to resolve config path: %v", err)
		}
		systemStore = NewStore(path)
	})
	return systemStore
}

// System returns the process-wide configuration document.
func System() Config { return SystemStore().Config() }

// Err returns the process-wide store's load error.
func Err() error { return SystemStore().Err() }

// SetSystem replaces the process-wide document in memory.
func SetSystem(cfg Config) { SystemStore().Replace(cfg) }

// SaveSystem writes the process-wide document to disk.
func SaveSystem() error { return SystemStore().Save() }
