// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqliteengine evaluates notebook cells against a SQLite database
// using the pure Go modernc.org/sqlite driver.
//
// Every run happens inside one transaction that is always rolled back: the
// statements of earlier cells build the context, the statements of the
// target cell produce the result sets, and the database is left unchanged.
package sqliteengine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math"

	"qlnotebook/cli/internal/engine"
	"qlnotebook/cli/internal/engine/resultfile"
	"qlnotebook/cli/internal/resultset"

	_ "modernc.org/sqlite"
)

// Engine runs queries on one SQLite database.
type Engine struct {
	DB      *sql.DB
	results *resultfile.Dir
	logger  *slog.Logger
}

// Open opens the database at path (":memory:" for a private in-memory one).
func Open(path string, results *resultfile.Dir, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps in-memory databases visible to every run.
	db.SetMaxOpenConns(1)
	return New(db, results, logger), nil
}

// New wraps an existing handle.
func New(db *sql.DB, results *resultfile.Dir, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Engine{DB: db, results: results, logger: logger}
}

// Close closes the database.
func (e *Engine) Close() error { return e.DB.Close() }

// CompileAndRun evaluates q. Statement errors are reported as a Failure
// result; only cancellation and infrastructure problems are returned as errors.
func (e *Engine) CompileAndRun(ctx context.Context, q engine.Query, progress engine.ProgressFunc) (*engine.Result, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := len(q.Source)
	for i, src := range q.Prelude() {
		progress.Report(i+1, steps, "evaluating context")
		for _, stmt := range engine.Statements(src) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return &engine.Result{Type: engine.Failure, Message: err.Error()}, nil
			}
		}
	}

	progress.Report(steps, steps, "evaluating cell")
	var sets []*resultset.ResultSet
	for _, stmt := range engine.Statements(q.Target()) {
		rs, err := e.query(ctx, tx, stmt, fmt.Sprintf("#select%d", len(sets)))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return &engine.Result{Type: engine.Failure, Message: err.Error()}, nil
		}
		if rs != nil {
			sets = append(sets, rs)
		}
	}
	if len(sets) > 0 {
		sets[0].Name = "#select"
	}

	path, err := e.results.Write(ctx, sets)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("sqlite evaluation finished", "statements", len(q.Source), "result_sets", len(sets))
	return &engine.Result{Type: engine.Success, ResultsPath: path}, nil
}

// query runs one statement. Statements that return no columns yield nil.
func (e *Engine) query(ctx context.Context, tx *sql.Tx, stmt, name string) (*resultset.ResultSet, error) {
	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, rows.Err()
	}
	cols := make([]resultset.Column, len(types))
	for i, ct := range types {
		cols[i] = resultset.Column{Name: ct.Name(), Kind: ct.DatabaseTypeName()}
	}
	rs := resultset.New(name, cols)

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]resultset.Value, len(vals))
		for i, v := range vals {
			row[i] = engine.Value(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rs.TotalRows = len(rs.Rows)
	return rs, nil
}
