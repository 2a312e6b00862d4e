// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const appName = "lawdesk"

// Dir returns the lawdesk config directory. XDG_CONFIG_HOME wins, then
// ~/.config.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultFile returns Dir()/config.yaml when that file exists, or "".
func DefaultFile() string {
	path := filepath.Join(Dir(), "config.yaml")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return path
}
