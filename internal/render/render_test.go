package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"qlnotebook/cli/internal/resultset"

	"github.com/pterm/pterm"
)

func sampleReference() resultset.Reference {
	loc := resultset.Location{URI: "file:///src/a.ql", StartLine: 4, StartColumn: 2, EndLine: 4, EndColumn: 9}
	return resultset.Reference{
		ResultSet: resultset.ResultSet{
			Kind:    resultset.RawResultSetKind,
			Columns: []resultset.Column{{Name: "count"}, {Name: "function"}},
			Rows: [][]resultset.Value{
				{resultset.Int(3), resultset.EntityValue("f", loc)},
			},
		},
		ExecutionMetadata: resultset.ExecutionMetadata{Database: "db/python"},
	}
}

func TestRenderScenario(t *testing.T) {
	var got []Navigation
	v := Render(sampleReference(), func(n Navigation) { got = append(got, n) })

	if len(v.Rows) != 1 || len(v.Rows[0]) != 2 {
		t.Fatalf("rows = %+v", v.Rows)
	}
	if c := v.Rows[0][0]; c.Text != "3" || c.IsLink() {
		t.Errorf("scalar cell = %+v", c)
	}
	if c := v.Rows[0][1]; c.Text != "f" || !c.IsLink() {
		t.Errorf("entity cell = %+v", c)
	}

	if err := v.Activate(0, 0); !errors.Is(err, ErrNotActivatable) {
		t.Errorf("Activate(scalar) = %v, want ErrNotActivatable", err)
	}
	if len(got) != 0 {
		t.Fatalf("scalar activation emitted %d messages", len(got))
	}
	if err := v.Activate(0, 1); err != nil {
		t.Fatalf("Activate(entity) = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("navigation messages = %d, want 1", len(got))
	}
	want := Navigation{URL: sampleReference().ResultSet.Rows[0][1].Entity.URL, DatabaseIdentity: "db/python"}
	if got[0] != want {
		t.Errorf("navigation = %+v, want %+v", got[0], want)
	}
}

func TestRenderRowGroupOfScalarAndEntity(t *testing.T) {
	loc := resultset.Location{URI: "file:///a.ql", StartLine: 1, StartColumn: 1, EndLine: 1, EndColumn: 5}
	ref := resultset.Reference{
		ResultSet: resultset.ResultSet{
			Kind: resultset.RawResultSetKind,
			Rows: [][]resultset.Value{
				{resultset.String("x"), resultset.EntityValue("f", loc)},
			},
		},
		ExecutionMetadata: resultset.ExecutionMetadata{Database: "db"},
	}

	var got []Navigation
	v := Render(ref, func(n Navigation) { got = append(got, n) })
	if len(v.Rows) != 1 || len(v.Rows[0]) != 2 {
		t.Fatalf("rows = %+v, want one row of two cells", v.Rows)
	}
	if c := v.Rows[0][0]; c.Text != "x" || c.IsLink() {
		t.Errorf("first cell = %+v, want plain x", c)
	}
	if c := v.Rows[0][1]; c.Text != "f" || !c.IsLink() {
		t.Errorf("second cell = %+v, want link f", c)
	}

	for col := range v.Rows[0] {
		_ = v.Activate(0, col)
	}
	if len(got) != 1 {
		t.Fatalf("navigation messages = %d, want 1", len(got))
	}
	if got[0].URL != loc || got[0].DatabaseIdentity != "db" {
		t.Errorf("navigation = %+v", got[0])
	}
}

func TestRenderUnknownValue(t *testing.T) {
	ref := resultset.Reference{ResultSet: resultset.ResultSet{
		Columns: []resultset.Column{{Name: "x"}},
		Rows:    [][]resultset.Value{{resultset.Unknown([]byte(`[1,2]`))}},
	}}
	v := Render(ref, nil)
	if c := v.Rows[0][0]; c.Text != "[1,2]" || c.IsLink() {
		t.Errorf("unknown cell = %+v", c)
	}
}

func TestActivateOutOfRange(t *testing.T) {
	v := Render(sampleReference(), nil)
	for _, rc := range [][2]int{{-1, 0}, {1, 0}, {0, 2}} {
		if err := v.Activate(rc[0], rc[1]); err == nil || errors.Is(err, ErrNotActivatable) {
			t.Errorf("Activate(%d, %d) = %v, want range error", rc[0], rc[1], err)
		}
	}
	if err := v.Activate(0, 1); err != nil {
		t.Errorf("nil callback activation = %v", err)
	}
}

func TestLinks(t *testing.T) {
	var got []Navigation
	v := Render(sampleReference(), func(n Navigation) { got = append(got, n) })
	links := v.Links()
	if len(links) != 1 || links[0].Number != 1 || links[0].Row != 0 || links[0].Col != 1 || links[0].Label != "f" {
		t.Fatalf("links = %+v", links)
	}
	if err := v.ActivateLink(2); err == nil {
		t.Error("ActivateLink(2) should fail")
	}
	if err := v.ActivateLink(1); err != nil || len(got) != 1 {
		t.Errorf("ActivateLink(1) err = %v messages = %d", err, len(got))
	}
}

func TestPrint(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()

	ref := sampleReference()
	ref.ResultSet.TotalRows = 10
	ref.ResultSet.Rows = append(ref.ResultSet.Rows, []resultset.Value{
		resultset.String(strings.Repeat("x", 200)), resultset.String("y"),
	})

	var buf bytes.Buffer
	if err := Print(&buf, Render(ref, nil), 40); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"count", "function", "[1]", "showing 2 of 10 rows", "…"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 50)) {
		t.Errorf("long value not truncated:\n%s", out)
	}
}

func TestPrintEmpty(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()
	var buf bytes.Buffer
	if err := Print(&buf, Render(resultset.Reference{}, nil), 80); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no results") {
		t.Errorf("output = %q", buf.String())
	}
}
