// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"qlnotebook/cli/internal/execution"
	"qlnotebook/cli/internal/notebook"
	"qlnotebook/cli/internal/xdg"

	"github.com/peterh/liner"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const replHelp = `Enter a query to append it as a new cell and run it together with the
cells above it. Commands:
  .cells            list cells
  .show N [LINK]    print the output of cell N, optionally following LINK
  .run N            re-run cell N
  .save [PATH]      save the notebook (in place, or to PATH)
  .help             show this help
  .exit             save and quit`

var replCommands = []string{".cells", ".show", ".run", ".save", ".help", ".exit", ".quit"}

// replCmd is an interactive notebook session.
var replCmd = &cobra.Command{
	Use:   "repl NOTEBOOK",
	Short: "Interactively append and run cells",
	Long: `The repl command opens a notebook (creating it when it does not exist) and reads
queries from the terminal. Each query becomes a new code cell that runs
cumulatively; its result table is printed right away. The notebook is saved on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), args[0], true, true)
		if err != nil {
			return err
		}
		defer s.Close()

		ctl := s.controller(execution.Options{})
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)
		line.SetCompleter(func(l string) []string {
			var out []string
			for _, c := range replCommands {
				if strings.HasPrefix(c, l) {
					out = append(out, c)
				}
			}
			return out
		})
		history := historyPath()
		if f, err := os.Open(history); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(history); err == nil {
				_, _ = line.WriteHistory(f)
				f.Close()
			}
		}()

		pterm.Info.Printf("%s (%s engine). Type .help for commands.\n", args[0], cfg.Engine)
		for {
			input, err := line.Prompt("ql> ")
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			if errors.Is(err, io.EOF) {
				pterm.Println()
				return s.save(cmd.Context(), "")
			}
			if err != nil {
				return err
			}
			input = strings.TrimSpace(input)
			if input == "" {
				continue
			}
			line.AppendHistory(input)

			name, rest := parseReplCommand(input)
			switch name {
			case "":
				if err := replAppendAndRun(cmd.Context(), s, ctl, input); err != nil {
					pterm.Error.Println(err)
				}
			case ".exit", ".quit":
				return s.save(cmd.Context(), "")
			case ".help":
				pterm.Println(replHelp)
			case ".save":
				target := ""
				if len(rest) > 0 {
					target = rest[0]
				}
				if err := s.save(cmd.Context(), target); err != nil {
					pterm.Error.Println(err)
				} else {
					pterm.Success.Println("saved")
				}
			case ".cells":
				doc, err := s.snapshot()
				if err == nil {
					err = printCells(doc)
				}
				if err != nil {
					pterm.Error.Println(err)
				}
			case ".show", ".run":
				if err := replCellCommand(cmd.Context(), s, ctl, name, rest); err != nil {
					pterm.Error.Println(err)
				}
			default:
				pterm.Warning.Printf("unknown command %s\n", name)
			}
		}
	},
}

// parseReplCommand splits a dot command into its name and arguments. Input
// that is not a dot command yields an empty name.
func parseReplCommand(input string) (string, []string) {
	if !strings.HasPrefix(input, ".") {
		return "", nil
	}
	fields := strings.Fields(input)
	return strings.ToLower(fields[0]), fields[1:]
}

func replAppendAndRun(ctx context.Context, s *session, ctl *execution.Controller, source string) error {
	var index int
	err := s.store.Edit(s.uri, func(cells []notebook.Cell) ([]notebook.Cell, error) {
		index = len(cells)
		return append(cells, notebook.NewCode(source, "")), nil
	})
	if err != nil {
		return err
	}
	return replRun(ctx, s, ctl, index)
}

func replRun(ctx context.Context, s *session, ctl *execution.Controller, index int) error {
	rctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	report, err := ctl.RunCell(rctx, s.uri, index)
	if err != nil {
		return err
	}
	doc, err := s.snapshot()
	if err != nil {
		return err
	}
	for _, t := range report.Tasks {
		if t.Outcome == execution.Succeeded {
			if err := printCellOutput(doc.Cells[t.CellIndex], 0); err != nil {
				return err
			}
			continue
		}
		pterm.Println(taskLine(*t))
	}
	return nil
}

func replCellCommand(ctx context.Context, s *session, ctl *execution.Controller, name string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s N", name)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid cell index %q", args[0])
	}
	doc, err := s.snapshot()
	if err != nil {
		return err
	}
	if n < 0 || n >= len(doc.Cells) {
		return fmt.Errorf("cell %d does not exist (notebook has %d cells)", n, len(doc.Cells))
	}
	if name == ".run" {
		return replRun(ctx, s, ctl, n)
	}
	link := 0
	if len(args) > 1 {
		if link, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid link number %q", args[1])
		}
	}
	return printCellOutput(doc.Cells[n], link)
}

func historyPath() string {
	dir, err := xdg.StateDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "qlnb_history")
	}
	_ = os.MkdirAll(dir, 0o700)
	return filepath.Join(dir, "history")
}

func init() {
	rootCmd.AddCommand(replCmd)
}
