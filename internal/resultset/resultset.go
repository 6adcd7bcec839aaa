// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package resultset defines the tabular payload carried by a result-reference
// output: a decoded result set, its rows of tagged values and the metadata of
// the execution that produced it.
//
// Row values are modelled as an explicit variant (scalar, entity or unknown)
// instead of being inspected at runtime by the consumers. Values keep the JSON
// they were decoded from, so re-encoding a payload never loses fields the
// model does not know about.
package resultset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RawResultSetKind is the kind tag every ResultSet carries on the wire.
const RawResultSetKind = "RawResultSet"

// Location is a navigable source range.
type Location struct {
	URI         string `json:"uri"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	EndLine     int    `json:"endLine"`
	EndColumn   int    `json:"endColumn"`
}

// String renders the location as uri:line:col.
func (l Location) String() string {
	if l.StartLine == 0 {
		return l.URI
	}
	return l.URI + ":" + strconv.Itoa(l.StartLine) + ":" + strconv.Itoa(l.StartColumn)
}

// Entity is a result value with a display label and a source location.
type Entity struct {
	Label string   `json:"label"`
	URL   Location `json:"url"`
}

// ValueKind discriminates the Value variants.
type ValueKind int

const (
	// KindUnknown is anything that is neither a scalar nor entity-shaped.
	KindUnknown ValueKind = iota
	// KindScalar is a string, number or boolean.
	KindScalar
	// KindEntity is an Entity.
	KindEntity
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// Value is one cell of a result row.
type Value struct {
	Kind ValueKind
	// Scalar holds a string, bool or json.Number when Kind is KindScalar.
	Scalar any
	// Entity is set when Kind is KindEntity.
	Entity Entity
	// Raw is the JSON the value was decoded from, if any.
	Raw json.RawMessage
}

// String builds a scalar string value.
func String(s string) Value { return Value{Kind: KindScalar, Scalar: s} }

// Bool builds a scalar boolean value.
func Bool(b bool) Value { return Value{Kind: KindScalar, Scalar: b} }

// Int builds a scalar integer value.
func Int(n int64) Value {
	return Value{Kind: KindScalar, Scalar: json.Number(strconv.FormatInt(n, 10))}
}

// Float builds a scalar floating point value.
func Float(f float64) Value {
	return Value{Kind: KindScalar, Scalar: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// EntityValue builds an entity value.
func EntityValue(label string, url Location) Value {
	return Value{Kind: KindEntity, Entity: Entity{Label: label, URL: url}}
}

// Unknown wraps arbitrary JSON as a fallback value.
func Unknown(raw json.RawMessage) Value {
	return Value{Kind: KindUnknown, Raw: raw}
}

// ValueOf converts a value produced by a database driver into a Value.
// Entity-shaped JSON documents (maps, strings or byte slices) become entities.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Unknown(json.RawMessage("null"))
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case json.Number:
		return Value{Kind: KindScalar, Scalar: x}
	case time.Time:
		return String(x.UTC().Format(time.RFC3339Nano))
	case []byte:
		if json.Valid(x) {
			var out Value
			if err := out.UnmarshalJSON(x); err == nil && out.Kind == KindEntity {
				return out
			}
		}
		return String(string(x))
	case fmt.Stringer:
		return String(x.String())
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return String(fmt.Sprint(x))
		}
		var out Value
		if err := out.UnmarshalJSON(b); err != nil {
			return Unknown(b)
		}
		return out
	}
}

// Text is a best-effort textual rendering of the value.
func (v Value) Text() string {
	switch v.Kind {
	case KindScalar:
		return fmt.Sprint(v.Scalar)
	case KindEntity:
		return v.Entity.Label
	default:
		if len(v.Raw) == 0 || string(v.Raw) == "null" {
			return ""
		}
		return string(v.Raw)
	}
}

// MarshalJSON writes the original JSON when available.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.Raw) > 0 {
		return v.Raw, nil
	}
	switch v.Kind {
	case KindScalar:
		return json.Marshal(v.Scalar)
	case KindEntity:
		return json.Marshal(v.Entity)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON classifies the JSON into one of the three variants.
func (v *Value) UnmarshalJSON(data []byte) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	raw := json.RawMessage(compact.Bytes())

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return err
	}

	switch x := decoded.(type) {
	case string, bool, json.Number:
		*v = Value{Kind: KindScalar, Scalar: x, Raw: raw}
		return nil
	case map[string]any:
		if ent, ok := entityFrom(x); ok {
			*v = Value{Kind: KindEntity, Entity: ent, Raw: raw}
			return nil
		}
	}
	*v = Value{Kind: KindUnknown, Raw: raw}
	return nil
}

// entityFrom accepts objects with a string label and a url object carrying a uri.
func entityFrom(m map[string]any) (Entity, bool) {
	label, ok := m["label"].(string)
	if !ok {
		return Entity{}, false
	}
	url, ok := m["url"].(map[string]any)
	if !ok {
		return Entity{}, false
	}
	uri, ok := url["uri"].(string)
	if !ok {
		return Entity{}, false
	}
	return Entity{
		Label: label,
		URL: Location{
			URI:         uri,
			StartLine:   intField(url, "startLine"),
			StartColumn: intField(url, "startColumn"),
			EndLine:     intField(url, "endLine"),
			EndColumn:   intField(url, "endColumn"),
		},
	}, true
}

func intField(m map[string]any, key string) int {
	n, ok := m[key].(json.Number)
	if !ok {
		return 0
	}
	i, err := n.Int64()
	if err != nil {
		return 0
	}
	return int(i)
}

// Column describes one column of a result set.
type Column struct {
	Name string `json:"name,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// ResultSet is a decoded page of one result set.
type ResultSet struct {
	Kind    string    `json:"kind"`
	Name    string    `json:"name,omitempty"`
	Columns []Column  `json:"columns"`
	Rows    [][]Value `json:"rows"`
	// TotalRows counts the rows before paging was applied.
	TotalRows int `json:"totalRows,omitempty"`
}

// New returns an empty result set with the kind tag set.
func New(name string, columns []Column) *ResultSet {
	return &ResultSet{Kind: RawResultSetKind, Name: name, Columns: columns, Rows: [][]Value{}}
}

// Page returns a copy holding at most pageSize rows. A pageSize <= 0 keeps every row.
func (rs *ResultSet) Page(pageSize int) *ResultSet {
	cp := *rs
	if cp.Kind == "" {
		cp.Kind = RawResultSetKind
	}
	total := len(rs.Rows)
	if cp.TotalRows < total {
		cp.TotalRows = total
	}
	if pageSize > 0 && total > pageSize {
		cp.Rows = rs.Rows[:pageSize]
	}
	if cp.Rows == nil {
		cp.Rows = [][]Value{}
	}
	if cp.Columns == nil {
		cp.Columns = []Column{}
	}
	return &cp
}

// ExecutionMetadata describes the run that produced a result set.
type ExecutionMetadata struct {
	Database       string    `json:"databaseUri,omitempty"`
	ResultsPath    string    `json:"resultsPath,omitempty"`
	ResultSetName  string    `json:"resultSetName,omitempty"`
	ExecutionOrder int       `json:"executionOrder,omitempty"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
}

// Reference is the payload of a result-reference display output.
type Reference struct {
	ResultSet         ResultSet         `json:"resultSet"`
	ExecutionMetadata ExecutionMetadata `json:"executionMetadata"`
}
