// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: defaults/embedded.go
// Summary: First-run texelshadow.json shipped inside the binary.

package defaults

import (
	"bytes"
	_ "embed"
)

//go:embed texelshadow.json
var systemConfig []byte

// SystemConfigName is the file name the document is written under.
const SystemConfigName = "texelshadow.json"

// SystemConfig returns a private copy of the embedded document.
func SystemConfig() []byte {
	return bytes.Clone(systemConfig)
}
