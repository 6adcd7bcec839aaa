// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package resultfile stores the result sets of one evaluation in a results
// file and reads them back. Engines write a file per run; the execution
// controller decodes the first result set of it through Decoder.
//
// A results file is a JSON object {"resultSets": [...]} where every element
// is a resultset.ResultSet. Decoded files are kept in a small LRU cache
// because a notebook view usually decodes the same file more than once.
package resultfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"qlnotebook/cli/internal/hostfs"
	"qlnotebook/cli/internal/resultset"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Extension is the file extension of results files.
const Extension = ".qlres.json"

// DefaultCacheSize is the number of decoded files a Decoder keeps.
const DefaultCacheSize = 16

type file struct {
	ResultSets []*resultset.ResultSet `json:"resultSets"`
}

// Dir writes results files into a directory.
type Dir struct {
	Path string
	fs   *hostfs.FS
}

// NewDir returns a writer for dir. The directory is created on first write.
func NewDir(dir string) *Dir {
	return &Dir{Path: dir, fs: hostfs.New()}
}

// Write stores sets in a new uniquely named file and returns its path.
func (d *Dir) Write(ctx context.Context, sets []*resultset.ResultSet) (string, error) {
	f := file{ResultSets: make([]*resultset.ResultSet, 0, len(sets))}
	for _, rs := range sets {
		f.ResultSets = append(f.ResultSets, rs.Page(0))
	}
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	return d.WriteRaw(ctx, data)
}

// WriteRaw stores already encoded results file bytes, such as those received
// from a remote engine.
func (d *Dir) WriteRaw(ctx context.Context, data []byte) (string, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("decode results: %w", err)
	}
	path := filepath.Join(d.Path, uuid.NewString()+Extension)
	fs := d.fs
	if fs == nil {
		fs = hostfs.New()
	}
	if err := fs.WriteFile(ctx, path, data); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}

// Decoder reads results files. It implements engine.ResultDecoder.
type Decoder struct {
	cache *lru.Cache[string, *file]
}

// NewDecoder returns a decoder caching up to size files.
func NewDecoder(size int) (*Decoder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *file](size)
	if err != nil {
		return nil, err
	}
	return &Decoder{cache: cache}, nil
}

func (d *Decoder) load(ctx context.Context, path string) (*file, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f, ok := d.cache.Get(path); ok {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", filepath.Base(path), err)
	}
	d.cache.Add(path, &f)
	return &f, nil
}

// ResultSetInfo lists the result set names in the file.
func (d *Decoder) ResultSetInfo(ctx context.Context, path string, _ int) ([]string, error) {
	f, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.ResultSets))
	for _, rs := range f.ResultSets {
		names = append(names, rs.Name)
	}
	return names, nil
}

// DecodeResultSet returns the first pageSize rows of the named result set.
func (d *Decoder) DecodeResultSet(ctx context.Context, path, name string, pageSize int) (*resultset.ResultSet, error) {
	f, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, rs := range f.ResultSets {
		if rs.Name == name {
			return rs.Page(pageSize), nil
		}
	}
	return nil, fmt.Errorf("result set %q not found in %s", name, filepath.Base(path))
}

// Forget drops a file from the cache.
func (d *Decoder) Forget(path string) {
	d.cache.Remove(path)
}
