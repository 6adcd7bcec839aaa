// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package store keeps the open notebooks of a process: for every notebook
// identity, the decoded document and the raw bytes it was last loaded from or
// saved as.
//
// The raw bytes let a save keep top-level keys the document model does not
// capture. Each entry has its own lock; cell updates from the execution
// controller and saves are mutually exclusive, so a save always observes a
// cell either before or after an execution wrote it.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	qlerrors "qlnotebook/cli/internal/errors"
	"qlnotebook/cli/internal/notebook"
)

// Store maps notebook identities to their open documents.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

type entry struct {
	mu  sync.Mutex
	doc *notebook.Document
	raw []byte
}

// New creates an empty store. A nil logger discards diagnostics.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Store{entries: make(map[string]*entry), logger: logger}
}

// Open decodes data and registers the notebook under uri, replacing any
// previous entry. Cell-level problems are logged as warnings and returned.
func (s *Store) Open(uri string, data []byte) (*notebook.Document, []notebook.Diagnostic, error) {
	doc, diags, err := notebook.Decode(uri, data)
	if err != nil {
		return nil, nil, err
	}
	for _, d := range diags {
		s.logger.Warn("notebook cell skipped or degraded", "uri", uri, "cell", d.Cell, "kind", string(d.Kind), "detail", d.Message)
	}
	raw := append([]byte(nil), data...)

	s.mu.Lock()
	s.entries[uri] = &entry{doc: doc, raw: raw}
	s.mu.Unlock()
	return doc.Clone(), diags, nil
}

// Create registers a new, empty notebook that has no backing content yet.
func (s *Store) Create(uri string) *notebook.Document {
	doc := &notebook.Document{URI: uri}
	s.mu.Lock()
	s.entries[uri] = &entry{doc: doc}
	s.mu.Unlock()
	return doc.Clone()
}

// Close forgets the notebook.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	delete(s.entries, uri)
	s.mu.Unlock()
}

// IsOpen reports whether uri has an entry.
func (s *Store) IsOpen(uri string) bool {
	_, err := s.lookup(uri)
	return err == nil
}

func (s *Store) lookup(uri string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, qlerrors.Newf(qlerrors.NotOpen, "notebook %s is not open", uri)
	}
	return e, nil
}

// Snapshot returns a deep copy of the open document.
func (s *Store) Snapshot(uri string) (*notebook.Document, error) {
	e, err := s.lookup(uri)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone(), nil
}

// Edit replaces the cell list through fn in one atomic step. fn receives a
// copy it may modify freely. A result that breaks the document invariants is
// discarded and reported.
func (s *Store) Edit(uri string, fn func(cells []notebook.Cell) ([]notebook.Cell, error)) error {
	e, err := s.lookup(uri)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.doc.Clone()
	cells, err := fn(cp.Cells)
	if err != nil {
		return err
	}
	cp.Cells = cells
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("edit rejected: %w", err)
	}
	e.doc.Cells = cells
	return nil
}

// UpdateCell applies fn to one cell in one atomic step.
func (s *Store) UpdateCell(uri string, index int, fn func(c *notebook.Cell)) error {
	return s.Edit(uri, func(cells []notebook.Cell) ([]notebook.Cell, error) {
		if index < 0 || index >= len(cells) {
			return nil, fmt.Errorf("cell %d does not exist in %s", index, uri)
		}
		fn(&cells[index])
		return cells, nil
	})
}

// Writer is the host capability used to persist notebook bytes.
type Writer interface {
	WriteFile(ctx context.Context, uri string, data []byte) error
}

// Save encodes the current document against its backing content and writes
// it to target (the notebook's own uri when target is empty). The backing
// content is replaced only when target is the notebook itself.
func (s *Store) Save(ctx context.Context, uri, target string, w Writer) ([]byte, error) {
	e, err := s.lookup(uri)
	if err != nil {
		return nil, err
	}
	if target == "" {
		target = uri
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.doc.Validate(); err != nil {
		return nil, fmt.Errorf("save %s: %w", uri, err)
	}
	data, err := notebook.Encode(e.doc, e.raw)
	if err != nil {
		return nil, err
	}
	if w != nil {
		if err := w.WriteFile(ctx, target, data); err != nil {
			return nil, err
		}
	}
	if target == uri {
		e.raw = data
	}
	s.logger.Debug("notebook saved", "uri", uri, "target", target, "bytes", len(data))
	return data, nil
}
