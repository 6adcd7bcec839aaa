// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package hostfs is the host file byte stream used to load and persist
// notebooks and result files. Writes go to a temporary file in the target
// directory and are renamed over the destination, so readers never observe
// a partially written notebook.
package hostfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// FS reads and writes whole files. A notebook identity is its file path; a
// file:// prefix is accepted and stripped.
type FS struct {
	PermFile os.FileMode
	PermDir  os.FileMode
}

// New returns an FS with default permissions.
func New() *FS {
	return &FS{PermFile: 0o644, PermDir: 0o755}
}

// Path maps a notebook identity to a filesystem path.
func Path(uri string) string {
	return filepath.Clean(strings.TrimPrefix(uri, "file://"))
}

// ReadFile returns the bytes stored under uri.
func (f *FS) ReadFile(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(Path(uri))
}

// WriteFile replaces the content stored under uri.
func (f *FS) WriteFile(ctx context.Context, uri string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := Path(uri)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, f.permDir()); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, f.permFile())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (f *FS) permFile() os.FileMode {
	if f.PermFile == 0 {
		return 0o644
	}
	return f.PermFile
}

func (f *FS) permDir() os.FileMode {
	if f.PermDir == 0 {
		return 0o755
	}
	return f.PermDir
}
