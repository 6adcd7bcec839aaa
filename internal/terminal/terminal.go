// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal reports terminal geometry and clears prompt lines.
package terminal

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 80

// Width returns the column count of stdout.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return DefaultWidth
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// LinesFor returns how many rows text of the given length occupies at width.
func LinesFor(textLength, width int) int {
	if width <= 0 {
		width = DefaultWidth
	}
	n := (textLength + width - 1) / width
	if n < 1 {
		n = 1
	}
	return n
}

// ClearPreviousLines erases a prompt and its echoed input. The cursor is on
// the empty line below the input, so one extra line is cleared.
func ClearPreviousLines(w io.Writer, textLength int) {
	lines := LinesFor(textLength, Width()) + 1
	for i := 0; i < lines; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < lines-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}
