// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/clone.go
// Summary: Deep copy for decoded config documents.

package config

// Clone returns a deep copy of cfg. Nested objects come back as Section and
// lists as []interface{} or []string, never sharing storage with cfg.
func Clone(cfg Config) Config {
	if cfg == nil {
		return nil
	}
	return Config(copySection(cfg))
}

func copySection[M ~map[string]interface{}](in M) Section {
	out := make(Section, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case Section:
		return copySection(x)
	case map[string]interface{}:
		return copySection(x)
	case Config:
		return copySection(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	case []string:
		return append([]string(nil), x...)
	}
	return v
}
