// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"qlnotebook/cli/internal/terminal"

	"atomicgo.dev/cursor"
	"github.com/mattn/go-runewidth"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// spinner draws a one-line animation followed by a status text that can be
// replaced while it runs. On a non-interactive writer it draws nothing.
type spinner struct {
	w        io.Writer
	interval time.Duration

	mu   sync.Mutex
	text string
	last int

	stop chan struct{}
	wg   sync.WaitGroup
}

func startSpinner(w io.Writer, text string) *spinner {
	s := &spinner{w: w, interval: 120 * time.Millisecond, text: text, stop: make(chan struct{})}
	if !terminal.IsInteractive() {
		return s
	}
	cursor.Hide()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.interval)
		defer t.Stop()
		width := terminal.Width() - 3
		for i := 0; ; i++ {
			select {
			case <-s.stop:
				s.mu.Lock()
				s.clear()
				s.mu.Unlock()
				return
			case <-t.C:
				s.mu.Lock()
				line := runewidth.Truncate(spinnerFrames[i%len(spinnerFrames)]+" "+s.text, width, "…")
				pad := s.last - runewidth.StringWidth(line)
				if pad < 0 {
					pad = 0
				}
				fmt.Fprintf(s.w, "\r%s%*s", line, pad, "")
				s.last = runewidth.StringWidth(line)
				s.mu.Unlock()
			}
		}
	}()
	return s
}

// clear erases the spinner line. Callers hold s.mu.
func (s *spinner) clear() {
	if s.last > 0 {
		fmt.Fprintf(s.w, "\r%*s\r", s.last, "")
		s.last = 0
	}
}

// Println writes a line above the spinner.
func (s *spinner) Println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	fmt.Fprintln(s.w, line)
}

// Update replaces the status text.
func (s *spinner) Update(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
}

// Stop clears the spinner line. It is safe to call more than once.
func (s *spinner) Stop() {
	select {
	case <-s.stop:
		return
	default:
	}
	close(s.stop)
	s.wg.Wait()
	if terminal.IsInteractive() {
		cursor.Show()
	}
}
