// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/pterm/pterm"
)

const minColumnWidth = 4

// Print draws the view as a table no wider than width. Link cells carry
// their link number so a host can activate them by number.
func Print(w io.Writer, v *View, width int) error {
	if len(v.Columns) == 0 && len(v.Rows) == 0 {
		_, err := fmt.Fprintln(w, pterm.Gray("(no results)"))
		return err
	}

	colWidth := columnWidth(width, len(v.Columns))
	data := pterm.TableData{make([]string, len(v.Columns))}
	for i, c := range v.Columns {
		data[0][i] = runewidth.Truncate(c, colWidth, "…")
	}

	link := 0
	for _, row := range v.Rows {
		line := make([]string, len(row))
		for j, c := range row {
			if c.IsLink() {
				link++
				tag := " [" + strconv.Itoa(link) + "]"
				text := runewidth.Truncate(c.Text, colWidth-runewidth.StringWidth(tag), "…")
				line[j] = pterm.FgCyan.Sprint(text) + pterm.Gray(tag)
				continue
			}
			line[j] = runewidth.Truncate(c.Text, colWidth, "…")
		}
		data = append(data, line)
	}

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, out); err != nil {
		return err
	}
	if v.TotalRows > len(v.Rows) {
		_, err = fmt.Fprintln(w, pterm.Gray(fmt.Sprintf("showing %d of %d rows", len(v.Rows), v.TotalRows)))
	}
	return err
}

// columnWidth splits width across n columns, accounting for the " | "
// separators pterm draws between them.
func columnWidth(width, n int) int {
	if n <= 0 {
		return width
	}
	cw := (width - 3*(n-1)) / n
	if cw < minColumnWidth {
		cw = minColumnWidth
	}
	return cw
}
