// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"qlnotebook/cli/internal/config"
	"qlnotebook/cli/internal/engine"
	"qlnotebook/cli/internal/execution"
	"qlnotebook/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	runCells        []int
	runNoCumulative bool
	runOut          string
	runShow         bool
)

// runCmd executes notebook cells and saves their outputs.
var runCmd = &cobra.Command{
	Use:   "run NOTEBOOK",
	Short: "Run notebook cells and save their results",
	Long: `The run command evaluates the code cells of a notebook in order and records a
result table (or an error) as each cell's output. By default every code cell runs
and each is evaluated together with the code cells above it; pass --no-cumulative
to evaluate cells on their own.

Interrupting the command cancels the cell in flight; cells that have not started
keep their previous outputs. The notebook is saved in place unless --out is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		s, err := openSession(ctx, args[0], false, true)
		if err != nil {
			pterm.Error.Println("Could not open notebook or engine")
			return err
		}
		defer s.Close()

		doc, err := s.snapshot()
		if err != nil {
			return err
		}
		indices := runCells
		if len(indices) == 0 {
			for i := range doc.Cells {
				indices = append(indices, i)
			}
		}

		sp := startSpinner(os.Stderr, "running "+args[0])
		ctl := s.controller(execution.Options{
			NoCumulative: !cfg.Cumulative || runNoCumulative,
			Progress: func(cell int, p engine.Progress) {
				sp.Update(fmt.Sprintf("cell %d: %s (%d/%d)", cell, p.Message, p.Step, p.Steps))
			},
			OnTask: func(t execution.Task) {
				sp.Println(taskLine(t))
			},
		})
		report, runErr := ctl.Run(ctx, s.uri, indices)
		sp.Stop()
		if runErr != nil {
			return runErr
		}

		// Save even after an interrupt so finished cells keep their outputs.
		if err := s.save(context.WithoutCancel(ctx), runOut); err != nil {
			pterm.Error.Println("Could not save notebook")
			return err
		}

		if runShow {
			if err := showOutputs(s, report); err != nil {
				return err
			}
		}
		return summarize(report)
	},
}

func taskLine(t execution.Task) string {
	label := fmt.Sprintf("cell %d", t.CellIndex)
	switch t.Outcome {
	case execution.Succeeded:
		return pterm.Green("✓ ") + label + pterm.Gray(fmt.Sprintf(" (%s)", t.Duration().Round(time.Millisecond)))
	case execution.Failed:
		msg := ""
		if t.Err != nil {
			msg = ": " + logging.Mask(t.Err.Error())
		}
		return pterm.Red("✗ ") + label + msg
	case execution.Cancelled:
		return pterm.Yellow("■ ") + label + " cancelled"
	case execution.Skipped:
		return pterm.Gray("· " + label + " not started")
	}
	return label
}

// summarize prints the run totals and returns an error when a cell did not
// succeed.
func summarize(r *execution.Report) error {
	ok := r.Count(execution.Succeeded)
	pterm.Println()
	pterm.Printf("%d cells: %d succeeded, %d failed, %d cancelled, %d not started\n",
		len(r.Tasks), ok, r.Count(execution.Failed), r.Count(execution.Cancelled), r.Count(execution.Skipped))

	if cfg.Engine == config.EngineRemote {
		for _, t := range r.Tasks {
			if t.Err != nil && logging.IsRemoteTransportError(t.Err.Error()) {
				pterm.Println(logging.FormatRemoteError(cfg.Remote.Addr, t.Err.Error()))
				break
			}
		}
	}
	if r.OK() {
		return nil
	}
	return errors.New(pterm.Sprintf("%d of %d cells did not succeed", len(r.Tasks)-ok, len(r.Tasks)))
}

// showOutputs renders the result table of every successful task.
func showOutputs(s *session, r *execution.Report) error {
	doc, err := s.snapshot()
	if err != nil {
		return err
	}
	for _, t := range r.Tasks {
		if t.Outcome != execution.Succeeded {
			continue
		}
		pterm.DefaultSection.Printf("Cell %d", t.CellIndex)
		if err := printCellOutput(doc.Cells[t.CellIndex], -1); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntSliceVarP(&runCells, "cell", "c", nil, "Cell index to run (repeatable; default all code cells)")
	runCmd.Flags().BoolVar(&runNoCumulative, "no-cumulative", false, "Evaluate each cell without the code cells above it")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "Write the notebook to this path instead of in place")
	runCmd.Flags().BoolVar(&runShow, "show", false, "Print result tables after the run")
}
