// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pterm/pterm"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    pterm.LogLevel
		wantErr bool
	}{
		{in: "debug", want: pterm.LogLevelDebug},
		{in: " INFO ", want: pterm.LogLevelInfo},
		{in: "", want: pterm.LogLevelInfo},
		{in: "warning", want: pterm.LogLevelWarn},
		{in: "off", want: pterm.LogLevelDisabled},
		{in: "loud", want: pterm.LogLevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	var buf bytes.Buffer
	logger := New("warn", &buf)
	logger.Info("hidden message")
	logger.Warn("visible message", "cell", 2)

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("info line written at warn level:\n%s", out)
	}
	if !strings.Contains(out, "visible message") {
		t.Errorf("warn line missing:\n%s", out)
	}
}
