// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/types.go
// Summary: Typed getters over decoded config documents.
// Notes: Section "" addresses the top level. Values that cannot be coerced
// to the requested type yield the caller's fallback.

package config

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Section returns the named section, or the top level for "". Missing or
// non-object entries give nil.
func (c Config) Section(name string) Section {
	if c == nil {
		return nil
	}
	if name == "" {
		return Section(c)
	}
	switch v := c[name].(type) {
	case Section:
		return v
	case map[string]interface{}:
		return Section(v)
	}
	return nil
}

// RegisterDefaults copies every key of defaults that the section lacks.
// A missing section is created.
func (c Config) RegisterDefaults(name string, defaults Section) {
	if c == nil || defaults == nil {
		return
	}
	target := c.Section(name)
	if target == nil {
		target = make(Section, len(defaults))
		c[name] = target
	}
	for key, value := range defaults {
		if _, ok := target[key]; !ok {
			target[key] = cloneValue(value)
		}
	}
}

func (c Config) lookup(section, key string) (interface{}, bool) {
	s := c.Section(section)
	if s == nil {
		return nil, false
	}
	v, ok := s[key]
	return v, ok
}

// GetString returns a string value or fallback.
func (c Config) GetString(section, key, fallback string) string {
	if v, ok := c.lookup(section, key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// GetInt returns an integer value or fallback. Floats are truncated and
// numeric strings are parsed.
func (c Config) GetInt(section, key string, fallback int) int {
	v, ok := c.lookup(section, key)
	if !ok {
		return fallback
	}
	if f, ok := asFloat(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	return fallback
}

// GetFloat returns a floating point value or fallback.
func (c Config) GetFloat(section, key string, fallback float64) float64 {
	v, ok := c.lookup(section, key)
	if !ok {
		return fallback
	}
	if f, ok := asFloat(v); ok {
		return f
	}
	return fallback
}

// GetBool returns a boolean value or fallback. Numbers are true when non-zero.
func (c Config) GetBool(section, key string, fallback bool) bool {
	v, ok := c.lookup(section, key)
	if !ok {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
		return fallback
	}
	if f, ok := asFloat(v); ok {
		return f != 0
	}
	return fallback
}

// GetMillis reads an integer millisecond count as a duration.
func (c Config) GetMillis(section, key string, fallback time.Duration) time.Duration {
	ms := c.GetInt(section, key, int(fallback/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

// GetStringSlice returns the non-empty strings of a list value. A bare
// string is treated as a one-element list.
func (c Config) GetStringSlice(section, key string) []string {
	v, _ := c.lookup(section, key)
	var out []string
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			if s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case string:
		if list != "" {
			out = []string{list}
		}
	}
	return out
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
