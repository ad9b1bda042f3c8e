// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/paths.go
// Summary: Filesystem locations for texelshadow config, logs and journal.

package config

import (
	"os"
	"path/filepath"

	"github.com/framegrace/texelshadow/defaults"
)

const (
	systemConfigName = defaults.SystemConfigName

	// EnvConfigPath overrides the location of the system config file.
	EnvConfigPath = "TEXELSHADOW_CONFIG"
)

// Root returns the texelshadow directory under the user config dir.
func Root() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "texelshadow"), nil
}

func systemConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	return underRoot(systemConfigName)
}

// LogPath returns the default client log file location.
func LogPath() (string, error) {
	return underRoot("logs", "client.log")
}

// JournalPath returns the default session journal database location.
func JournalPath() (string, error) {
	return underRoot("journal.db")
}

func underRoot(elem ...string) (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{root}, elem...)...), nil
}
