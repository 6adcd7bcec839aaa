// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"

	qlerrors "qlnotebook/cli/internal/errors"
	"qlnotebook/cli/internal/output"

	"github.com/xeipuuv/gojsonschema"
)

// indent is the on-disk indentation. External tools diff and hand-edit these
// files, so it must stay stable.
const indent = "    "

// shapeSchema is the minimal shape a notebook file must have to be opened.
// Individual cells are checked by Decode so that one bad cell does not stop
// the load.
const shapeSchema = `{
	"type": "object",
	"required": ["cells"],
	"properties": {
		"cells": {"type": "array"},
		"metadata": {"type": ["object", "null"]}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(shapeSchema)

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// Diagnostic reports a problem with a single cell that did not stop the load.
type Diagnostic struct {
	Cell    int
	Kind    qlerrors.Kind
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("cell %d: %s: %s", d.Cell, d.Kind, d.Message)
}

// Diagnostic kinds for problems that did not stop the load.
const (
	// UnsupportedCell marks a cell that was omitted: it is not an object or
	// its cell_type is unknown.
	UnsupportedCell qlerrors.Kind = "unsupported_cell"
	// InvalidField marks a cell field that was dropped while the cell was kept.
	InvalidField qlerrors.Kind = "invalid_field"
)

type languageInfo struct {
	Name string `json:"name,omitempty"`
}

type cellMetadata struct {
	LanguageInfo   *languageInfo `json:"language_info,omitempty"`
	ExecutionOrder *int          `json:"executionOrder,omitempty"`
}

type notebookMetadata struct {
	LanguageInfo *languageInfo `json:"language_info,omitempty"`
}

// encodedCell fixes the key order of a persisted cell.
type encodedCell struct {
	Source         []string           `json:"source"`
	Metadata       cellMetadata       `json:"metadata"`
	CellType       string             `json:"cell_type"`
	Outputs        *[]json.RawMessage `json:"outputs,omitempty"`
	ExecutionCount *int               `json:"execution_count,omitempty"`
}

// Decode parses notebook bytes into a document. Problems with individual
// cells are returned as diagnostics; only a malformed file is an error.
func Decode(uri string, data []byte) (*Document, []Diagnostic, error) {
	if !json.Valid(data) {
		return nil, nil, qlerrors.New(qlerrors.MalformedNotebook, "notebook is not valid JSON")
	}
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, nil, qlerrors.Wrap(qlerrors.MalformedNotebook, "notebook could not be validated", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, nil, qlerrors.New(qlerrors.MalformedNotebook, strings.Join(msgs, "; "))
	}

	var top struct {
		Cells    []json.RawMessage `json:"cells"`
		Metadata json.RawMessage   `json:"metadata"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, qlerrors.Wrap(qlerrors.MalformedNotebook, "notebook has an invalid layout", err)
	}

	doc := &Document{URI: uri, Cells: make([]Cell, 0, len(top.Cells))}
	codeLanguage := DefaultLanguage
	if meta := compactMetadata(top.Metadata); meta != nil {
		doc.Metadata = meta
		var nm notebookMetadata
		if err := json.Unmarshal(meta, &nm); err == nil && nm.LanguageInfo != nil && nm.LanguageInfo.Name != "" {
			codeLanguage = nm.LanguageInfo.Name
		}
	}

	var diags []Diagnostic
	for i, raw := range top.Cells {
		cell, cellDiags, ok, err := decodeCell(raw, codeLanguage)
		if err != nil {
			return nil, nil, qlerrors.Wrap(qlerrors.MalformedNotebook, fmt.Sprintf("cell %d", i), err)
		}
		for _, d := range cellDiags {
			d.Cell = i
			diags = append(diags, d)
		}
		if ok {
			doc.Cells = append(doc.Cells, cell)
		}
	}
	return doc, diags, nil
}

// decodeCell reads one cell field by field. A cell that is not an object or
// has an unknown cell_type is omitted; a known cell with a badly typed
// optional field keeps its source and loses only that field. A source that
// cannot be read is an error, since saving would otherwise drop the cell.
func decodeCell(raw json.RawMessage, codeLanguage string) (Cell, []Diagnostic, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Cell{}, []Diagnostic{{Kind: UnsupportedCell, Message: "cell is not an object"}}, false, nil
	}
	var cellType string
	if err := json.Unmarshal(fields["cell_type"], &cellType); err != nil || (cellType != "markdown" && cellType != "code") {
		return Cell{}, []Diagnostic{{Kind: UnsupportedCell, Message: fmt.Sprintf("unexpected cell_type %s", orDefault(string(fields["cell_type"]), "(missing)"))}}, false, nil
	}
	source, err := joinSource(fields["source"])
	if err != nil {
		return Cell{}, nil, false, err
	}

	var diags []Diagnostic
	drop := func(field string, err error) {
		diags = append(diags, Diagnostic{Kind: InvalidField, Message: fmt.Sprintf("%s dropped: %v", field, err)})
	}

	language := ""
	var metaOrder *int
	if rawMeta, ok := fields["metadata"]; ok && !isNull(rawMeta) {
		var meta map[string]json.RawMessage
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			drop("metadata", err)
		}
		if li, ok := meta["language_info"]; ok && !isNull(li) {
			var info languageInfo
			if err := json.Unmarshal(li, &info); err != nil {
				drop("metadata.language_info", err)
			} else {
				language = info.Name
			}
		}
		if eo, ok := meta["executionOrder"]; ok && !isNull(eo) {
			if n, err := decodeOrder(eo); err != nil {
				drop("metadata.executionOrder", err)
			} else {
				metaOrder = &n
			}
		}
	}

	if cellType == "markdown" {
		if language == "" {
			language = MarkupLanguage
		}
		return Cell{Kind: Markup, Source: source, Language: language}, diags, true, nil
	}

	if language == "" {
		language = codeLanguage
	}
	cell := Cell{Kind: Code, Source: source, Language: language}
	if ec, ok := fields["execution_count"]; ok && !isNull(ec) {
		if n, err := decodeOrder(ec); err != nil {
			drop("execution_count", err)
		} else {
			cell.ExecutionOrder = &n
		}
	}
	if cell.ExecutionOrder == nil {
		cell.ExecutionOrder = metaOrder
	}

	if ro, ok := fields["outputs"]; ok && !isNull(ro) {
		var outputs []json.RawMessage
		if err := json.Unmarshal(ro, &outputs); err != nil {
			drop("outputs", err)
		}
		for _, o := range outputs {
			out, err := output.Deserialize(o)
			if err != nil {
				kind := qlerrors.KindOf(err)
				if kind == "" {
					kind = qlerrors.UnknownOutputKind
				}
				diags = append(diags, Diagnostic{Kind: kind, Message: "outputs dropped: " + err.Error()})
				cell.Outputs = nil
				break
			}
			cell.Outputs = append(cell.Outputs, out)
		}
	}
	return cell, diags, true, nil
}

// decodeOrder reads an execution order. Integral numbers written as floats
// (1.0) are accepted.
func decodeOrder(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s is not a non-negative integer", raw)
	}
	return int(f), nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// joinSource accepts a line array or a scalar string.
func joinSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "\n"), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return "", fmt.Errorf("source must be a string or an array of strings")
}

// SplitSource splits source text into its persisted line form.
func SplitSource(source string) []string {
	return lineBreak.Split(source, -1)
}

// compactMetadata returns nil for absent, null or empty metadata.
func compactMetadata(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	if s := buf.String(); s == "null" || s == "{}" {
		return nil
	}
	return json.RawMessage(buf.Bytes())
}

// Encode serialises doc. When prior holds the previously loaded bytes, only
// its cells member is replaced and every other top-level key keeps its place
// and value.
func Encode(doc *Document, prior []byte) ([]byte, error) {
	cells, err := encodeCells(doc.Cells)
	if err != nil {
		return nil, err
	}

	members, err := topLevelMembers(prior)
	if err != nil || members == nil {
		meta := doc.Metadata
		if len(meta) == 0 {
			meta = json.RawMessage("{}")
		}
		members = []member{{key: "cells"}, {key: "metadata", value: meta}}
	}
	replaced := false
	for i := range members {
		if members[i].key == "cells" {
			members[i].value = cells
			replaced = true
		}
	}
	if !replaced {
		members = append([]member{{key: "cells", value: cells}}, members...)
	}
	return writeObject(members)
}

func encodeCells(cells []Cell) (json.RawMessage, error) {
	out := make([]encodedCell, 0, len(cells))
	for i, c := range cells {
		ec := encodedCell{Source: SplitSource(c.Source)}
		switch c.Kind {
		case Markup:
			ec.CellType = "markdown"
			ec.Metadata.LanguageInfo = &languageInfo{Name: orDefault(c.Language, MarkupLanguage)}
		case Code:
			ec.CellType = "code"
			ec.Metadata.LanguageInfo = &languageInfo{Name: orDefault(c.Language, DefaultLanguage)}
			outs := make([]json.RawMessage, 0, len(c.Outputs))
			for _, o := range c.Outputs {
				raw, err := output.Serialize(o)
				if err != nil {
					return nil, fmt.Errorf("cell %d: %w", i, err)
				}
				outs = append(outs, raw)
			}
			ec.Outputs = &outs
			ec.ExecutionCount = c.ExecutionOrder
		default:
			return nil, fmt.Errorf("cell %d: invalid kind %v", i, c.Kind)
		}
		out = append(out, ec)
	}
	return marshal(out)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type member struct {
	key   string
	value json.RawMessage
}

// topLevelMembers lists the members of a JSON object in document order.
// It returns nil when prior is empty or not an object.
func topLevelMembers(prior []byte) ([]member, error) {
	if len(bytes.TrimSpace(prior)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(prior))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil
	}
	var members []member
	seen := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if i, dup := seen[key]; dup {
			members[i].value = value
			continue
		}
		seen[key] = len(members)
		members = append(members, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return members, nil
}

func writeObject(members []member) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, m := range members {
		key, err := marshal(m.key)
		if err != nil {
			return nil, err
		}
		buf.WriteString(indent)
		buf.Write(key)
		buf.WriteString(": ")
		if err := json.Indent(&buf, m.value, indent, indent); err != nil {
			return nil, fmt.Errorf("member %q: %w", m.key, err)
		}
		if i < len(members)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
