// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg resolves the XDG base directories used by qlnb. Directories
// are created with private permissions on first use.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name under every XDG base.
const AppName = "qlnb"

// ConfigDir returns $XDG_CONFIG_HOME/qlnb, falling back to ~/.config/qlnb.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns $XDG_STATE_HOME/qlnb, falling back to ~/.local/state/qlnb.
func StateDir() (string, error) {
	return dir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// ResultsDir returns the default directory for results files.
func ResultsDir() (string, error) {
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	d := filepath.Join(state, "results")
	if err := os.MkdirAll(d, 0o700); err != nil {
		return "", err
	}
	return d, nil
}

func dir(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	d := filepath.Join(base, AppName)
	if err := os.MkdirAll(d, 0o700); err != nil {
		return "", err
	}
	return d, nil
}
