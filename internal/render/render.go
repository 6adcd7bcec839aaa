// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package render turns a stored result reference into a table view whose
// entity cells are links. Activating a link hands a navigation message to the
// host; the view itself never navigates.
package render

import (
	"errors"
	"fmt"

	"qlnotebook/cli/internal/resultset"
)

// ErrNotActivatable is returned when a non-link cell is activated.
var ErrNotActivatable = errors.New("cell is not a link")

// Navigation asks the host to open a source location.
type Navigation struct {
	URL              resultset.Location
	DatabaseIdentity string
}

// ActivationFunc receives navigation messages from a view.
type ActivationFunc func(Navigation)

// ViewCell is one rendered value. Link is set for entity values.
type ViewCell struct {
	Text string
	Link *resultset.Location
}

// IsLink reports whether the cell can be activated.
func (c ViewCell) IsLink() bool { return c.Link != nil }

// LinkRef locates an activatable cell. Number is 1-based and stable for a view.
type LinkRef struct {
	Number int
	Row    int
	Col    int
	Label  string
	URL    resultset.Location
}

// View is a rendered result set.
type View struct {
	Columns   []string
	Rows      [][]ViewCell
	TotalRows int
	Database  string

	onActivate ActivationFunc
}

// Render builds the view for ref. onActivate may be nil, in which case
// activations are accepted and dropped.
func Render(ref resultset.Reference, onActivate ActivationFunc) *View {
	rs := ref.ResultSet
	v := &View{
		Columns:    make([]string, len(rs.Columns)),
		Rows:       make([][]ViewCell, 0, len(rs.Rows)),
		TotalRows:  rs.TotalRows,
		Database:   ref.ExecutionMetadata.Database,
		onActivate: onActivate,
	}
	for i, c := range rs.Columns {
		v.Columns[i] = c.Name
	}
	for _, row := range rs.Rows {
		cells := make([]ViewCell, len(row))
		for j, val := range row {
			cells[j] = cellFor(val)
		}
		v.Rows = append(v.Rows, cells)
	}
	if v.TotalRows < len(v.Rows) {
		v.TotalRows = len(v.Rows)
	}
	return v
}

func cellFor(v resultset.Value) ViewCell {
	if v.Kind == resultset.KindEntity {
		loc := v.Entity.URL
		return ViewCell{Text: v.Entity.Label, Link: &loc}
	}
	return ViewCell{Text: v.Text()}
}

// Activate emits one navigation message for the link at row, col.
func (v *View) Activate(row, col int) error {
	if row < 0 || row >= len(v.Rows) || col < 0 || col >= len(v.Rows[row]) {
		return fmt.Errorf("no cell at row %d column %d", row, col)
	}
	cell := v.Rows[row][col]
	if !cell.IsLink() {
		return ErrNotActivatable
	}
	if v.onActivate != nil {
		v.onActivate(Navigation{URL: *cell.Link, DatabaseIdentity: v.Database})
	}
	return nil
}

// Links lists the activatable cells in row-major order.
func (v *View) Links() []LinkRef {
	var out []LinkRef
	for i, row := range v.Rows {
		for j, c := range row {
			if c.IsLink() {
				out = append(out, LinkRef{Number: len(out) + 1, Row: i, Col: j, Label: c.Text, URL: *c.Link})
			}
		}
	}
	return out
}

// ActivateLink activates the link with the given 1-based number.
func (v *View) ActivateLink(number int) error {
	links := v.Links()
	if number < 1 || number > len(links) {
		return fmt.Errorf("no link %d (view has %d)", number, len(links))
	}
	l := links[number-1]
	return v.Activate(l.Row, l.Col)
}
