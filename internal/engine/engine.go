// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package engine defines the boundary between the execution controller and
// the query engines that evaluate notebook cells.
//
// An engine receives the ordered source texts of a run (the target cell last),
// evaluates them against a database and leaves its results in a results file.
// A ResultDecoder reads result sets back out of that file. Concrete engines
// live in the subpackages pgengine, sqliteengine and remote.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"qlnotebook/cli/internal/resultset"
)

// ResultType reports whether an evaluation succeeded.
type ResultType int

const (
	Success ResultType = iota + 1
	Failure
)

func (t ResultType) String() string {
	switch t {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("ResultType(%d)", int(t))
	}
}

// Query is one evaluation request. Source holds the text of every
// contributing cell in document order; the last element is the cell whose
// results are wanted.
type Query struct {
	Source   []string
	Database string
}

// Target returns the text of the cell whose results are wanted.
func (q Query) Target() string {
	if len(q.Source) == 0 {
		return ""
	}
	return q.Source[len(q.Source)-1]
}

// Prelude returns the texts evaluated before the target.
func (q Query) Prelude() []string {
	if len(q.Source) == 0 {
		return nil
	}
	return q.Source[:len(q.Source)-1]
}

// Result is the outcome of an evaluation. ResultsPath is set on success.
type Result struct {
	Type        ResultType
	Message     string
	ResultsPath string
}

// Progress is an engine status update.
type Progress struct {
	Step    int
	Steps   int
	Message string
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Report calls fn if it is set.
func (fn ProgressFunc) Report(step, steps int, msg string) {
	if fn != nil {
		fn(Progress{Step: step, Steps: steps, Message: msg})
	}
}

// Engine evaluates queries. Implementations must return promptly once ctx
// is cancelled.
type Engine interface {
	CompileAndRun(ctx context.Context, q Query, progress ProgressFunc) (*Result, error)
}

// ResultDecoder reads result sets out of a results file.
type ResultDecoder interface {
	// ResultSetInfo lists the result set names in the file, in order.
	ResultSetInfo(ctx context.Context, path string, pageSize int) ([]string, error)
	// DecodeResultSet decodes the first pageSize rows of one result set.
	DecodeResultSet(ctx context.Context, path, name string, pageSize int) (*resultset.ResultSet, error)
}

// Statements splits SQL text into statements on semicolons that are outside
// quotes and comments. Empty statements are dropped.
func Statements(src string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	runes := []rune(src)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				if i+1 < len(runes) && runes[i+1] == quote {
					cur.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			cur.WriteRune(' ')
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// Value converts a driver value into a result value. Text holding an
// entity-shaped JSON object becomes an entity so that engines without a JSON
// column type can still produce navigable results.
func Value(v any) resultset.Value {
	if s, ok := v.(string); ok {
		t := strings.TrimSpace(s)
		if strings.HasPrefix(t, "{") && json.Valid([]byte(t)) {
			var out resultset.Value
			if err := out.UnmarshalJSON([]byte(t)); err == nil && out.Kind == resultset.KindEntity {
				return out
			}
		}
	}
	return resultset.ValueOf(v)
}
