// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package notebook holds the in-memory notebook document model and the codec
// that round-trips it to the JSON-on-disk notebook format.
//
// The on-disk format is a JSON object with a cells array and a metadata
// object. Top-level keys the model does not understand are never dropped:
// Encode merges the new cells into the previously loaded bytes.
package notebook

import (
	"encoding/json"
	"fmt"

	"qlnotebook/cli/internal/output"
)

// DefaultLanguage is the language tag of code cells that do not name one.
const DefaultLanguage = "ql"

// MarkupLanguage is the language tag of markup cells.
const MarkupLanguage = "markdown"

// CellKind distinguishes explanatory text from executable source.
type CellKind int

const (
	Markup CellKind = iota + 1
	Code
)

func (k CellKind) String() string {
	switch k {
	case Markup:
		return "markup"
	case Code:
		return "code"
	default:
		return fmt.Sprintf("CellKind(%d)", int(k))
	}
}

// Cell is one unit of a notebook.
type Cell struct {
	Kind     CellKind
	Source   string
	Language string
	// Outputs and ExecutionOrder are only meaningful for code cells.
	Outputs        []output.Output
	ExecutionOrder *int
}

// NewMarkup returns a markup cell.
func NewMarkup(source string) Cell {
	return Cell{Kind: Markup, Source: source, Language: MarkupLanguage}
}

// NewCode returns a code cell with no outputs.
func NewCode(source, language string) Cell {
	if language == "" {
		language = DefaultLanguage
	}
	return Cell{Kind: Code, Source: source, Language: language}
}

// Clone returns a deep copy of the cell. Outputs are values, so copying the
// slice is enough.
func (c Cell) Clone() Cell {
	cp := c
	if c.Outputs != nil {
		cp.Outputs = append([]output.Output(nil), c.Outputs...)
	}
	if c.ExecutionOrder != nil {
		n := *c.ExecutionOrder
		cp.ExecutionOrder = &n
	}
	return cp
}

// Document is an open notebook.
type Document struct {
	URI   string
	Cells []Cell
	// Metadata is the notebook-level metadata object as loaded.
	Metadata json.RawMessage
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	cp := &Document{URI: d.URI, Cells: make([]Cell, len(d.Cells))}
	for i, c := range d.Cells {
		cp.Cells[i] = c.Clone()
	}
	if d.Metadata != nil {
		cp.Metadata = append(json.RawMessage(nil), d.Metadata...)
	}
	return cp
}

// Validate checks the model invariants.
func (d *Document) Validate() error {
	for i, c := range d.Cells {
		switch c.Kind {
		case Markup:
			if len(c.Outputs) > 0 || c.ExecutionOrder != nil {
				return fmt.Errorf("cell %d: markup cells cannot carry outputs or an execution order", i)
			}
		case Code:
		default:
			return fmt.Errorf("cell %d: invalid kind %v", i, c.Kind)
		}
	}
	return nil
}

// CodeSources returns the source of every code cell from index 0 through
// upto inclusive, in order. Markup cells contribute nothing.
func (d *Document) CodeSources(upto int) []string {
	var out []string
	for i := 0; i <= upto && i < len(d.Cells); i++ {
		if d.Cells[i].Kind == Code {
			out = append(out, d.Cells[i].Source)
		}
	}
	return out
}
