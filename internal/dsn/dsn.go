// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn parses and normalizes engine connection strings and resolves
// which one qlnb should use.
package dsn

import (
	"fmt"
	"strings"
)

// Kind is the engine family a DSN addresses.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
	KindUnknown  Kind = "unknown"
)

// Info holds the parts of a parsed DSN. For SQLite only Database is set and
// holds the file path.
type Info struct {
	Kind     Kind
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Params   map[string]string
	Original string
}

// ParseError describes a DSN that could not be parsed.
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid DSN format: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid DSN format: %s", e.Reason)
}

func parseError(dsn, reason, hint string) *ParseError {
	return &ParseError{DSN: dsn, Reason: reason, Hint: hint}
}

// Detect reports the engine family of dsn from its scheme or file suffix.
func Detect(dsn string) Kind {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return KindPostgres
	case strings.HasPrefix(lower, "sqlite:"), strings.HasPrefix(lower, "file:"):
		return KindSQLite
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return KindSQLite
	case lower == ":memory:":
		return KindSQLite
	}
	return KindUnknown
}

// Parse splits dsn into its parts.
func Parse(dsn string) (*Info, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, parseError(dsn, "empty DSN", "provide a postgres:// URL or a SQLite file path")
	}
	switch Detect(dsn) {
	case KindPostgres:
		return parsePostgres(dsn)
	case KindSQLite:
		return parseSQLite(dsn)
	}
	return nil, parseError(dsn, "unknown database type", "use postgres://, postgresql:// or a .db/.sqlite file")
}

// Normalize returns the canonical form of dsn.
func Normalize(dsn string) (string, error) {
	info, err := Parse(dsn)
	if err != nil {
		return "", err
	}
	if info.Kind == KindSQLite {
		return info.Database, nil
	}
	return normalizePostgres(info), nil
}

func parseSQLite(dsn string) (*Info, error) {
	path := strings.TrimSpace(dsn)
	lower := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		path = path[len("sqlite:"):]
	}
	if path == "" {
		return nil, parseError(dsn, "missing SQLite file path", "use sqlite:///path/to/file.db")
	}
	return &Info{Kind: KindSQLite, Database: path, Original: dsn}, nil
}
