package resultset

import (
	"encoding/json"
	"testing"
)

func TestValueUnmarshalClassifies(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ValueKind
		text string
	}{
		{name: "string", in: `"x"`, want: KindScalar, text: "x"},
		{name: "number", in: `42`, want: KindScalar, text: "42"},
		{name: "bool", in: `true`, want: KindScalar, text: "true"},
		{name: "entity", in: `{"label":"f","url":{"uri":"file:///a.ql","startLine":1,"startColumn":2,"endLine":1,"endColumn":5}}`, want: KindEntity, text: "f"},
		{name: "object without url", in: `{"label":"f"}`, want: KindUnknown, text: `{"label":"f"}`},
		{name: "array", in: `[1, 2]`, want: KindUnknown, text: `[1,2]`},
		{name: "null", in: `null`, want: KindUnknown, text: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			if err := json.Unmarshal([]byte(tt.in), &v); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if v.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", v.Kind, tt.want)
			}
			if got := v.Text(); got != tt.text {
				t.Errorf("Text() = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestEntityLocation(t *testing.T) {
	var v Value
	in := `{"label":"f","url":{"uri":"file:///a.ql","startLine":3,"startColumn":4,"endLine":3,"endColumn":9,"extra":true}}`
	if err := json.Unmarshal([]byte(in), &v); err != nil {
		t.Fatal(err)
	}
	want := Location{URI: "file:///a.ql", StartLine: 3, StartColumn: 4, EndLine: 3, EndColumn: 9}
	if v.Entity.URL != want {
		t.Errorf("URL = %+v, want %+v", v.Entity.URL, want)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != in {
		t.Errorf("re-encoded = %s, want %s", out, in)
	}
}

func TestValueOf(t *testing.T) {
	if v := ValueOf(int64(7)); v.Kind != KindScalar || v.Text() != "7" {
		t.Errorf("int64: got %+v", v)
	}
	if v := ValueOf(nil); v.Kind != KindUnknown {
		t.Errorf("nil: got kind %v", v.Kind)
	}
	ent := ValueOf([]byte(`{"label":"main","url":{"uri":"file:///m.ql"}}`))
	if ent.Kind != KindEntity || ent.Entity.Label != "main" {
		t.Errorf("entity bytes: got %+v", ent)
	}
	if v := ValueOf(map[string]any{"a": 1}); v.Kind != KindUnknown {
		t.Errorf("map: got kind %v", v.Kind)
	}
}

func TestPage(t *testing.T) {
	rs := New("#select", []Column{{Name: "a"}})
	for i := 0; i < 5; i++ {
		rs.Rows = append(rs.Rows, []Value{Int(int64(i))})
	}
	p := rs.Page(2)
	if len(p.Rows) != 2 {
		t.Errorf("len(rows) = %d, want 2", len(p.Rows))
	}
	if p.TotalRows != 5 {
		t.Errorf("TotalRows = %d, want 5", p.TotalRows)
	}
	if all := rs.Page(0); len(all.Rows) != 5 {
		t.Errorf("Page(0) rows = %d, want 5", len(all.Rows))
	}
}
