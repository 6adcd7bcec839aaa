// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package notebook

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	qlerrors "qlnotebook/cli/internal/errors"
	"qlnotebook/cli/internal/output"
	"qlnotebook/cli/internal/resultset"
)

func intPtr(n int) *int { return &n }

func sampleDocument(t *testing.T) *Document {
	t.Helper()
	ref, err := output.NewResultReference(resultset.Reference{
		ResultSet: resultset.ResultSet{
			Kind:    resultset.RawResultSetKind,
			Columns: []resultset.Column{{Name: "n"}},
			Rows:    [][]resultset.Value{{resultset.Int(1)}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	code := NewCode("select 1\nfrom t", "ql")
	code.Outputs = []output.Output{ref}
	code.ExecutionOrder = intPtr(1)

	failed := NewCode("select boom", "sql")
	failed.Outputs = []output.Output{output.Error{Name: "EngineFailure", Message: "no such column", Traceback: []string{}}}
	failed.ExecutionOrder = intPtr(2)

	return &Document{
		URI: "file:///nb.qlnb",
		Cells: []Cell{
			NewMarkup("# Title\n\nSome text"),
			code,
			failed,
			NewCode("", "ql"),
		},
	}
}

func TestDecodeScenario(t *testing.T) {
	in := `{"cells":[{"cell_type":"markdown","source":["# Title"]},{"cell_type":"code","source":["select 1"],"metadata":{"language_info":{"name":"ql"}}}]}`
	doc, diags, err := Decode("file:///a.qlnb", []byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %v", diags)
	}
	want := []Cell{
		{Kind: Markup, Source: "# Title", Language: "markdown"},
		{Kind: Code, Source: "select 1", Language: "ql"},
	}
	if !reflect.DeepEqual(doc.Cells, want) {
		t.Errorf("cells = %#v, want %#v", doc.Cells, want)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "not json", in: `{"cells": [`},
		{name: "missing cells", in: `{"metadata": {}}`},
		{name: "cells not array", in: `{"cells": {"a": 1}}`},
		{name: "top level array", in: `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode("x", []byte(tt.in))
			if !qlerrors.Is(err, qlerrors.MalformedNotebook) {
				t.Errorf("err = %v, want MalformedNotebook", err)
			}
		})
	}
}

func TestDecodeReportsUnsupportedCells(t *testing.T) {
	in := `{"cells":[{"cell_type":"raw","source":"x"},{"cell_type":"code","source":"select 2"},42]}`
	doc, diags, err := Decode("x", []byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Cells) != 1 || doc.Cells[0].Source != "select 2" {
		t.Fatalf("cells = %#v", doc.Cells)
	}
	if len(diags) != 2 {
		t.Fatalf("diagnostics = %v, want 2", diags)
	}
	if diags[0].Cell != 0 || diags[1].Cell != 2 {
		t.Errorf("diagnostic cells = %d,%d want 0,2", diags[0].Cell, diags[1].Cell)
	}
}

func TestDecodeKeepsCellsWithBadFields(t *testing.T) {
	in := `{"cells":[` +
		`{"cell_type":"markdown","source":["# t"]},` +
		`{"cell_type":"code","source":["select 1"],"metadata":{"language_info":"ql"}},` +
		`{"cell_type":"code","source":["select 2"],"execution_count":1.0},` +
		`{"cell_type":"code","source":["select 3"],"execution_count":"x","outputs":{"a":1}}]}`
	doc, diags, err := Decode("x", []byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Cells) != 4 {
		t.Fatalf("cells = %d, want 4 (diagnostics %v)", len(doc.Cells), diags)
	}
	if c := doc.Cells[1]; c.Source != "select 1" || c.Language != DefaultLanguage {
		t.Errorf("cell 1 = %+v", c)
	}
	if o := doc.Cells[2].ExecutionOrder; o == nil || *o != 1 {
		t.Errorf("cell 2 order = %v, want 1", o)
	}
	if c := doc.Cells[3]; c.ExecutionOrder != nil || c.Outputs != nil {
		t.Errorf("cell 3 = %+v, want no order and no outputs", c)
	}

	tests := []struct {
		cell  int
		field string
	}{
		{1, "metadata.language_info"},
		{3, "execution_count"},
		{3, "outputs"},
	}
	if len(diags) != len(tests) {
		t.Fatalf("diagnostics = %v, want %d", diags, len(tests))
	}
	for i, tt := range tests {
		d := diags[i]
		if d.Cell != tt.cell || d.Kind != InvalidField || !strings.HasPrefix(d.Message, tt.field+" dropped") {
			t.Errorf("diagnostic %d = %v, want cell %d field %s", i, d, tt.cell, tt.field)
		}
	}

	data, err := Encode(doc, []byte(in))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"select 1", "select 2", "select 3"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("saved notebook lost %q:\n%s", want, data)
		}
	}
}

func TestDecodeUnreadableSourceFailsLoad(t *testing.T) {
	in := `{"cells":[{"cell_type":"code","source":{"text":"select 1"}}]}`
	_, _, err := Decode("x", []byte(in))
	if !qlerrors.Is(err, qlerrors.MalformedNotebook) {
		t.Errorf("err = %v, want MalformedNotebook", err)
	}
}

func TestDecodeUnknownOutputKind(t *testing.T) {
	in := `{"cells":[{"cell_type":"code","source":["q"],"outputs":[{"output_type":"stream","text":"a"},{"output_type":"widget"}]}]}`
	doc, diags, err := Decode("x", []byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Cells) != 1 {
		t.Fatalf("cells = %d, want 1", len(doc.Cells))
	}
	if doc.Cells[0].Outputs != nil {
		t.Errorf("outputs = %v, want none", doc.Cells[0].Outputs)
	}
	if len(diags) != 1 || diags[0].Kind != qlerrors.UnknownOutputKind {
		t.Errorf("diagnostics = %v", diags)
	}
}

func TestDecodeLanguageDefaults(t *testing.T) {
	in := `{"metadata":{"language_info":{"name":"sql"}},"cells":[{"cell_type":"code","source":"a"},{"cell_type":"markdown","source":"b"},{"cell_type":"code","source":"c","metadata":{"language_info":{"name":"ql"}}}]}`
	doc, _, err := Decode("x", []byte(in))
	if err != nil {
		t.Fatal(err)
	}
	got := []string{doc.Cells[0].Language, doc.Cells[1].Language, doc.Cells[2].Language}
	want := []string{"sql", "markdown", "ql"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("languages = %v, want %v", got, want)
	}

	doc, _, err = Decode("x", []byte(`{"cells":[{"cell_type":"code","source":"a"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Cells[0].Language != DefaultLanguage {
		t.Errorf("language = %q, want %q", doc.Cells[0].Language, DefaultLanguage)
	}
}

func TestDecodeExecutionOrder(t *testing.T) {
	in := `{"cells":[{"cell_type":"code","source":"a","execution_count":3},{"cell_type":"code","source":"b","metadata":{"executionOrder":5}}]}`
	doc, _, err := Decode("x", []byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if o := doc.Cells[0].ExecutionOrder; o == nil || *o != 3 {
		t.Errorf("cell 0 order = %v, want 3", o)
	}
	if o := doc.Cells[1].ExecutionOrder; o == nil || *o != 5 {
		t.Errorf("cell 1 order = %v, want 5", o)
	}
}

func TestRoundTrip(t *testing.T) {
	doc := sampleDocument(t)
	data, err := Encode(doc, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, diags, err := Decode(doc.URI, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("diagnostics: %v", diags)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("round trip mismatch\n got: %#v\nwant: %#v", got, doc)
	}
}

func TestEncodeIdempotent(t *testing.T) {
	first, err := Encode(sampleDocument(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	doc, _, err := Decode("x", first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Encode(doc, first)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("second encoding differs\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestEncodeFormat(t *testing.T) {
	doc := &Document{Cells: []Cell{NewMarkup("a\r\nb\rc"), NewCode("q", "ql")}}
	data, err := Encode(doc, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := `{
    "cells": [
        {
            "source": [
                "a",
                "b",
                "c"
            ],
            "metadata": {
                "language_info": {
                    "name": "markdown"
                }
            },
            "cell_type": "markdown"
        },
        {
            "source": [
                "q"
            ],
            "metadata": {
                "language_info": {
                    "name": "ql"
                }
            },
            "cell_type": "code",
            "outputs": []
        }
    ],
    "metadata": {}
}
`
	if string(data) != want {
		t.Errorf("Encode() =\n%s\nwant:\n%s", data, want)
	}
}

func TestEncodePreservesUnmodeledKeys(t *testing.T) {
	prior := []byte(`{"nbformat": 4, "cells": [], "metadata": {"kernel": {"x": [1, 2]}}, "zz_custom": "<keep>"}`)
	doc, _, err := Decode("x", prior)
	if err != nil {
		t.Fatal(err)
	}
	doc.Cells = append(doc.Cells, NewCode("select 1", "ql"))
	data, err := Encode(doc, prior)
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		t.Fatal(err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			t.Fatal(err)
		}
	}
	if want := []string{"nbformat", "cells", "metadata", "zz_custom"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if !strings.Contains(string(data), `"zz_custom": "<keep>"`) {
		t.Errorf("custom key not preserved:\n%s", data)
	}
	if !strings.Contains(string(data), `"select 1"`) {
		t.Errorf("new cell missing:\n%s", data)
	}
}

func TestValidate(t *testing.T) {
	doc := &Document{Cells: []Cell{NewMarkup("x")}}
	if err := doc.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	doc.Cells[0].Outputs = []output.Output{output.Stream{Text: "x"}}
	if err := doc.Validate(); err == nil {
		t.Error("Validate() accepted a markup cell with outputs")
	}
}

func TestCodeSources(t *testing.T) {
	doc := &Document{Cells: []Cell{NewCode("a\nb", ""), NewMarkup("m"), NewCode("c", ""), NewCode("d", "")}}
	got := doc.CodeSources(2)
	if want := []string{"a\nb", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("CodeSources(2) = %v, want %v", got, want)
	}
}
