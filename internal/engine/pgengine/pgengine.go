// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pgengine evaluates notebook cells against PostgreSQL through a pgx
// connection pool.
//
// A run acquires one connection and opens a transaction that is always
// rolled back. Statements of the earlier cells are executed for their side
// effects; every row-returning statement of the target cell becomes a result
// set. Values are normalised the way the results file expects: UUIDs as
// canonical strings, bytea as \x hex, json/jsonb documents as entities when
// they are entity-shaped.
package pgengine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"qlnotebook/cli/internal/engine"
	"qlnotebook/cli/internal/engine/resultfile"
	"qlnotebook/cli/internal/resultset"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Engine runs queries on a PostgreSQL database.
type Engine struct {
	Pool    *pgxpool.Pool
	results *resultfile.Dir
	logger  *slog.Logger
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, results *resultfile.Dir, logger *slog.Logger) (*Engine, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool, results, logger), nil
}

// New creates an Engine from an existing pool.
func New(pool *pgxpool.Pool, results *resultfile.Dir, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Engine{Pool: pool, results: results, logger: logger}
}

// Close releases the pool.
func (e *Engine) Close() { e.Pool.Close() }

// CompileAndRun evaluates q. SQL errors are reported as a Failure result;
// cancellation and connection problems are returned as errors.
func (e *Engine) CompileAndRun(ctx context.Context, q engine.Query, progress engine.ProgressFunc) (*engine.Result, error) {
	conn, err := e.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	// Rollback on a fresh context so a cancelled run still releases its locks.
	defer func() { _ = tx.Rollback(context.Background()) }()

	steps := len(q.Source)
	for i, src := range q.Prelude() {
		progress.Report(i+1, steps, "evaluating context")
		for _, stmt := range engine.Statements(src) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				e.logger.Debug("context statement failed", "cell", i, "error", err)
				return &engine.Result{Type: engine.Failure, Message: err.Error()}, nil
			}
		}
	}

	progress.Report(steps, steps, "evaluating cell")
	var sets []*resultset.ResultSet
	for _, stmt := range engine.Statements(q.Target()) {
		rs, err := query(ctx, tx, stmt, fmt.Sprintf("#select%d", len(sets)))
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
	e.logger.Debug("postgres evaluation finished", "statements", steps, "result_sets", len(sets))
	return &engine.Result{Type: engine.Success, ResultsPath: path}, nil
}

func query(ctx context.Context, tx pgx.Tx, stmt, name string) (*resultset.ResultSet, error) {
	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	if len(fds) == 0 {
		// Drain so errors of non-row statements surface.
		for rows.Next() {
		}
		return nil, rows.Err()
	}
	tm := tx.Conn().TypeMap()
	cols := make([]resultset.Column, len(fds))
	for i, fd := range fds {
		kind := ""
		if t, ok := tm.TypeForOID(fd.DataTypeOID); ok {
			kind = t.Name
		}
		cols[i] = resultset.Column{Name: fd.Name, Kind: kind}
	}
	rs := resultset.New(name, cols)

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]resultset.Value, len(vals))
		for i, v := range vals {
			row[i] = Value(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rs.TotalRows = len(rs.Rows)
	return rs, nil
}

// Value normalises a value decoded by pgx.
func Value(v any) resultset.Value {
	switch x := v.(type) {
	case [16]byte:
		return resultset.String(uuid.UUID(x).String())
	case []byte:
		return resultset.String(fmt.Sprintf("\\x%x", x))
	default:
		return engine.Value(v)
	}
}
