// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"strings"
	"testing"
)

func TestParseRemoteError(t *testing.T) {
	tests := []struct {
		msg  string
		want RemoteErrorType
	}{
		{"Unauthenticated: missing or invalid bearer token", RemoteErrorAuth},
		{"DeadlineExceeded: context deadline exceeded", RemoteErrorTimeout},
		{"Unavailable: connection error", RemoteErrorUnavailable},
		{"dial tcp: connection refused", RemoteErrorNetwork},
		{"no such table: t", RemoteErrorUnknown},
	}
	for _, tt := range tests {
		if got := ParseRemoteError(tt.msg); got != tt.want {
			t.Errorf("ParseRemoteError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestFormatRemoteErrorMasks(t *testing.T) {
	out := FormatRemoteError("host:7000", "Unauthenticated: token=abc123")
	if strings.Contains(out, "abc123") {
		t.Errorf("token leaked:\n%s", out)
	}
	if !strings.Contains(out, "qlnb connect --remote host:7000") {
		t.Errorf("missing hint:\n%s", out)
	}
}
