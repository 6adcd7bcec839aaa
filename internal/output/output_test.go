package output

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	qlerrors "qlnotebook/cli/internal/errors"
	"qlnotebook/cli/internal/resultset"
)

func mustReference(t *testing.T) Display {
	t.Helper()
	rs := resultset.New("#select", []resultset.Column{{Name: "name", Kind: "s"}, {Name: "def", Kind: "e"}})
	rs.Rows = append(rs.Rows, []resultset.Value{
		resultset.String("x"),
		resultset.EntityValue("f", resultset.Location{URI: "file:///a.ql", StartLine: 1, StartColumn: 1, EndLine: 1, EndColumn: 4}),
	})
	d, err := NewResultReference(resultset.Reference{
		ResultSet: *rs,
		ExecutionMetadata: resultset.ExecutionMetadata{
			Database:  "db-1",
			StartTime: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			EndTime:   time.Date(2025, 1, 2, 3, 4, 6, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("NewResultReference: %v", err)
	}
	return d
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		out  Output
	}{
		{name: "stream", out: Stream{Text: "compiling...\ndone"}},
		{name: "error", out: Error{Name: "Boom", Message: "failed", Traceback: []string{"l1", "l2"}}},
		{name: "error empty traceback", out: Error{Name: "E", Message: "m", Traceback: []string{}}},
		{name: "display text", out: Display{Data: map[string]json.RawMessage{MIMEText: json.RawMessage(`"<b>hello</b>"`)}}},
		{name: "display structured", out: Display{Data: map[string]json.RawMessage{
			"application/json": json.RawMessage(`{"a":[1,2,3]}`),
			MIMEText:           json.RawMessage(`"a & b"`),
		}}},
		{name: "result reference", out: mustReference(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Serialize(tt.out)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			got, err := Deserialize(raw)
			if err != nil {
				t.Fatalf("Deserialize(%s): %v", raw, err)
			}
			if !reflect.DeepEqual(got, tt.out) {
				t.Errorf("round trip mismatch\n got: %#v\nwant: %#v", got, tt.out)
			}
		})
	}
}

func TestSerializeShapes(t *testing.T) {
	raw, err := Serialize(Error{Name: "E", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(raw), `{"output_type":"error","ename":"E","evalue":"m","traceback":[]}`; got != want {
		t.Errorf("Serialize(Error) = %s, want %s", got, want)
	}
	raw, err = Serialize(Stream{Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(raw), `{"output_type":"stream","text":"hi"}`; got != want {
		t.Errorf("Serialize(Stream) = %s, want %s", got, want)
	}
}

func TestDeserializeErrorScenario(t *testing.T) {
	raw := json.RawMessage(`{"output_type":"error","ename":"Boom","evalue":"failed","traceback":["l1","l2"]}`)
	out, err := Deserialize(raw)
	if err != nil {
		t.Fatal(err)
	}
	e, ok := out.(Error)
	if !ok {
		t.Fatalf("got %T, want Error", out)
	}
	var asErr error = e
	if asErr.Error() != "failed" {
		t.Errorf("message = %q, want %q", asErr.Error(), "failed")
	}
	if e.Name != "Boom" {
		t.Errorf("ename = %q, want Boom", e.Name)
	}
	if len(e.Traceback) != 2 {
		t.Errorf("traceback has %d lines, want 2", len(e.Traceback))
	}
}

func TestDeserializeUnknownKind(t *testing.T) {
	_, err := Deserialize(json.RawMessage(`{"output_type":"execute_result","data":{}}`))
	if !qlerrors.Is(err, qlerrors.UnknownOutputKind) {
		t.Errorf("err = %v, want UnknownOutputKind", err)
	}
}

func TestSerializeRejectsBinaryPayload(t *testing.T) {
	_, err := Serialize(Display{Data: map[string]json.RawMessage{"image/png": json.RawMessage{0x89, 0x50, 0xff}}})
	if err == nil {
		t.Fatal("expected error for binary payload")
	}
}

func TestResultReference(t *testing.T) {
	d := mustReference(t)
	ref, ok, err := d.ResultReference()
	if err != nil || !ok {
		t.Fatalf("ResultReference() ok=%v err=%v", ok, err)
	}
	if ref.ResultSet.Kind != resultset.RawResultSetKind {
		t.Errorf("kind = %q", ref.ResultSet.Kind)
	}
	if got := ref.ResultSet.Rows[0][1].Kind; got != resultset.KindEntity {
		t.Errorf("second value kind = %v, want entity", got)
	}
	if _, ok, _ := (Display{Data: map[string]json.RawMessage{MIMEText: json.RawMessage(`"x"`)}}).ResultReference(); ok {
		t.Error("text display reported a result reference")
	}
}

func TestFromError(t *testing.T) {
	e := FromError("EngineFailure", nil, "query evaluation failed")
	if e.Message != "query evaluation failed" {
		t.Errorf("fallback message = %q", e.Message)
	}
	inner := Error{Name: "Compile", Message: "syntax", Traceback: []string{"a"}}
	wrapped := qlerrors.Wrap(qlerrors.EngineFailure, "run", inner)
	if got := FromError("X", wrapped, ""); !reflect.DeepEqual(got, inner) {
		t.Errorf("FromError(wrapped) = %#v, want %#v", got, inner)
	}
}
