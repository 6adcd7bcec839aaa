// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"strings"

	"github.com/pterm/pterm"
)

// RemoteErrorType is the category of a remote engine failure.
type RemoteErrorType int

const (
	RemoteErrorUnknown RemoteErrorType = iota
	RemoteErrorNetwork
	RemoteErrorAuth
	RemoteErrorTimeout
	RemoteErrorUnavailable
)

// ParseRemoteError categorizes a remote engine error message.
func ParseRemoteError(errMsg string) RemoteErrorType {
	lower := strings.ToLower(errMsg)
	switch {
	case strings.Contains(lower, "unauthenticated") || strings.Contains(lower, "bearer token"):
		return RemoteErrorAuth
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout"):
		return RemoteErrorTimeout
	case strings.Contains(lower, "unavailable"):
		return RemoteErrorUnavailable
	case strings.Contains(lower, "connection reset") || strings.Contains(lower, "connection refused") || strings.Contains(lower, "rst_stream"):
		return RemoteErrorNetwork
	}
	return RemoteErrorUnknown
}

// IsRemoteTransportError reports whether a cell error message came from the
// transport rather than from query evaluation.
func IsRemoteTransportError(errMsg string) bool {
	return ParseRemoteError(errMsg) != RemoteErrorUnknown
}

// FormatRemoteError explains a remote engine failure and how to fix it.
func FormatRemoteError(addr, errMsg string) string {
	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Remote engine error"))
	b.WriteString("\n\n")

	switch ParseRemoteError(errMsg) {
	case RemoteErrorAuth:
		b.WriteString("The remote engine rejected the access token.\n")
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'qlnb connect --remote " + addr + " --token ...' again"))
	case RemoteErrorTimeout:
		b.WriteString("The remote engine did not answer in time.\n")
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Check the network path to " + addr))
	case RemoteErrorUnavailable, RemoteErrorNetwork:
		b.WriteString("The remote engine at " + addr + " could not be reached.\n")
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Make sure 'qlnb serve' is running there"))
	default:
		b.WriteString("The remote engine failed to evaluate the query.\n")
	}
	b.WriteString("\n")

	if strings.TrimSpace(errMsg) != "" {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(errMsg)))
	}
	return b.String()
}
