// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package output converts a single cell execution output between its in-memory
// variant and the raw JSON form stored in notebook files.
//
// An Output is exactly one of Stream, Error or Display. The raw form is an
// object discriminated by output_type ("stream", "error", "display_data");
// unrecognised discriminants are rejected with an UnknownOutputKind error.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	qlerrors "qlnotebook/cli/internal/errors"
	"qlnotebook/cli/internal/resultset"
)

// Kind is the output_type discriminant.
type Kind string

const (
	KindStream  Kind = "stream"
	KindError   Kind = "error"
	KindDisplay Kind = "display_data"
)

// MIMEResultReference identifies a display payload holding a resultset.Reference.
const MIMEResultReference = "application/x.qlnb.result-reference"

// MIMEText is the plain text display MIME type.
const MIMEText = "text/plain"

// Output is a cell output. The interface is sealed to the three variants below.
type Output interface {
	Kind() Kind
	isOutput()
}

// Stream is log or progress text.
type Stream struct {
	Text string
}

func (Stream) Kind() Kind { return KindStream }
func (Stream) isOutput()  {}

// Error is a failed execution. It is also a Go error whose message is Message.
type Error struct {
	Name      string
	Message   string
	Traceback []string
}

func (Error) Kind() Kind { return KindError }
func (Error) isOutput()  {}

func (e Error) Error() string { return e.Message }

// Display maps MIME types to compact JSON payloads.
type Display struct {
	Data map[string]json.RawMessage
}

func (Display) Kind() Kind { return KindDisplay }
func (Display) isOutput()  {}

// MIMETypes returns the payload MIME types in sorted order.
func (d Display) MIMETypes() []string {
	keys := make([]string, 0, len(d.Data))
	for k := range d.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewResultReference wraps a result reference as a display output.
func NewResultReference(ref resultset.Reference) (Display, error) {
	if ref.ResultSet.Kind == "" {
		ref.ResultSet.Kind = resultset.RawResultSetKind
	}
	b, err := marshal(ref)
	if err != nil {
		return Display{}, fmt.Errorf("encode result reference: %w", err)
	}
	return Display{Data: map[string]json.RawMessage{MIMEResultReference: b}}, nil
}

// ResultReference decodes the result-reference payload, if the display has one.
func (d Display) ResultReference() (resultset.Reference, bool, error) {
	var ref resultset.Reference
	raw, ok := d.Data[MIMEResultReference]
	if !ok {
		return ref, false, nil
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ref, true, fmt.Errorf("decode result reference: %w", err)
	}
	return ref, true, nil
}

// FromError builds an Error output from any error. If err already is (or wraps)
// an Error, it is returned unchanged.
func FromError(name string, err error, fallback string) Error {
	var oe Error
	if asError(err, &oe) {
		return oe
	}
	msg := fallback
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		msg = err.Error()
	}
	return Error{Name: name, Message: msg, Traceback: []string{}}
}

func asError(err error, target *Error) bool {
	for err != nil {
		if e, ok := err.(Error); ok {
			*target = e
			return true
		}
		if e, ok := err.(*Error); ok && e != nil {
			*target = *e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type rawEnvelope struct {
	OutputType Kind `json:"output_type"`
}

type rawStream struct {
	OutputType Kind   `json:"output_type"`
	Text       string `json:"text"`
}

type rawError struct {
	OutputType Kind     `json:"output_type"`
	EName      string   `json:"ename"`
	EValue     string   `json:"evalue"`
	Traceback  []string `json:"traceback"`
}

type rawDisplay struct {
	OutputType Kind                       `json:"output_type"`
	Data       map[string]json.RawMessage `json:"data"`
}

// Serialize converts an output to its raw JSON form.
func Serialize(o Output) (json.RawMessage, error) {
	switch v := o.(type) {
	case Stream:
		return marshal(rawStream{OutputType: KindStream, Text: v.Text})
	case Error:
		tb := v.Traceback
		if tb == nil {
			tb = []string{}
		}
		return marshal(rawError{OutputType: KindError, EName: v.Name, EValue: v.Message, Traceback: tb})
	case Display:
		data := make(map[string]json.RawMessage, len(v.Data))
		for mime, payload := range v.Data {
			c, err := compactPayload(mime, payload)
			if err != nil {
				return nil, err
			}
			data[mime] = c
		}
		return marshal(rawDisplay{OutputType: KindDisplay, Data: data})
	case nil:
		return nil, qlerrors.New(qlerrors.UnknownOutputKind, "nil output")
	default:
		return nil, qlerrors.Newf(qlerrors.UnknownOutputKind, "unsupported output %T", o)
	}
}

// Deserialize converts a raw JSON output back to its variant.
func Deserialize(raw json.RawMessage) (Output, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, qlerrors.Wrap(qlerrors.UnknownOutputKind, "output is not an object", err)
	}
	switch env.OutputType {
	case KindStream:
		var s rawStream
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode stream output: %w", err)
		}
		return Stream{Text: s.Text}, nil
	case KindError:
		var e rawError
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode error output: %w", err)
		}
		if e.Traceback == nil {
			e.Traceback = []string{}
		}
		return Error{Name: e.EName, Message: e.EValue, Traceback: e.Traceback}, nil
	case KindDisplay:
		var d rawDisplay
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode display output: %w", err)
		}
		data := make(map[string]json.RawMessage, len(d.Data))
		for mime, payload := range d.Data {
			c, err := compactPayload(mime, payload)
			if err != nil {
				return nil, err
			}
			data[mime] = c
		}
		return Display{Data: data}, nil
	default:
		return nil, qlerrors.Newf(qlerrors.UnknownOutputKind, "unknown output_type %q", env.OutputType)
	}
}

// marshal is json.Marshal without HTML escaping, so payload text is stored as written.
func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// compactPayload normalises a payload to compact JSON. Payloads that are not
// UTF-8 JSON text (binary data) are rejected.
func compactPayload(mime string, payload json.RawMessage) (json.RawMessage, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("payload for %q is binary; only text payloads are supported", mime)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, fmt.Errorf("payload for %q is not JSON text: %w", mime, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
