// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strconv"
	"strings"

	"qlnotebook/cli/internal/notebook"
	"qlnotebook/cli/internal/output"
	"qlnotebook/cli/internal/terminal"

	"github.com/mattn/go-runewidth"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// cellsCmd lists the cells of a notebook.
var cellsCmd = &cobra.Command{
	Use:   "cells NOTEBOOK",
	Short: "List notebook cells and their execution state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), args[0], false, false)
		if err != nil {
			return err
		}
		defer s.Close()
		doc, err := s.snapshot()
		if err != nil {
			return err
		}
		return printCells(doc)
	},
}

func printCells(doc *notebook.Document) error {
	if len(doc.Cells) == 0 {
		pterm.Println(pterm.Gray("(empty notebook)"))
		return nil
	}
	srcWidth := terminal.Width() - 40
	if srcWidth < 20 {
		srcWidth = 20
	}
	data := pterm.TableData{{"#", "kind", "lang", "order", "output", "source"}}
	for i, c := range doc.Cells {
		order := ""
		if c.ExecutionOrder != nil {
			order = strconv.Itoa(*c.ExecutionOrder)
		}
		first, _, _ := strings.Cut(strings.TrimSpace(c.Source), "\n")
		data = append(data, []string{
			strconv.Itoa(i),
			c.Kind.String(),
			c.Language,
			order,
			outputSummary(c),
			runewidth.Truncate(first, srcWidth, "…"),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// outputSummary describes the outputs of a cell in a few words.
func outputSummary(c notebook.Cell) string {
	if c.Kind != notebook.Code || len(c.Outputs) == 0 {
		return ""
	}
	switch o := c.Outputs[0].(type) {
	case output.Error:
		return pterm.Red(o.Name)
	case output.Display:
		ref, ok, err := o.ResultReference()
		if err != nil || !ok {
			return "display"
		}
		return pterm.Green(strconv.Itoa(max(ref.ResultSet.TotalRows, len(ref.ResultSet.Rows))) + " rows")
	case output.Stream:
		return "stream"
	}
	return ""
}

func init() {
	rootCmd.AddCommand(cellsCmd)
}
