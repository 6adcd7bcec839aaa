// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pterm/pterm"
)

// ParseLevel maps a config level name to a pterm log level.
func ParseLevel(s string) (pterm.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return pterm.LogLevelTrace, nil
	case "debug":
		return pterm.LogLevelDebug, nil
	case "", "info":
		return pterm.LogLevelInfo, nil
	case "warn", "warning":
		return pterm.LogLevelWarn, nil
	case "error":
		return pterm.LogLevelError, nil
	case "off", "disabled":
		return pterm.LogLevelDisabled, nil
	default:
		return pterm.LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a structured logger that writes through pterm at the given
// level. Unknown levels fall back to info.
func New(level string, w io.Writer) *slog.Logger {
	lvl, _ := ParseLevel(level)
	pl := pterm.DefaultLogger.WithLevel(lvl).WithWriter(w)
	return slog.New(pterm.NewSlogHandler(pl))
}
