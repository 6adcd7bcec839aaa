// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"os"
	"path/filepath"
	"testing"

	qlerrors "qlnotebook/cli/internal/errors"
)

func isolate(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))
	for _, k := range []string{"QLNB_ENGINE", "QLNB_PAGE_SIZE", "QLNB_LOG_LEVEL", "QLNB_CUMULATIVE", "QLNB_SQLITE_PATH", "QLNB_REMOTE_ADDR"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return base
}

func TestLoadDefaults(t *testing.T) {
	base := isolate(t)
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Engine != EnginePostgres || !c.Cumulative || c.PageSize != 100 || c.LogLevel != "info" {
		t.Errorf("defaults = %+v", c)
	}
	if want := filepath.Join(base, "state", "qlnb", "results"); c.ResultsDir != want {
		t.Errorf("ResultsDir = %q, want %q", c.ResultsDir, want)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	isolate(t)
	p, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	yaml := "engine: sqlite\ncumulative: false\npage_size: 25\nsqlite:\n  path: /tmp/x.db\n"
	if err := os.WriteFile(p, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QLNB_PAGE_SIZE", "7")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Engine != EngineSQLite || c.Cumulative || c.SQLite.Path != "/tmp/x.db" {
		t.Errorf("config = %+v", c)
	}
	if c.PageSize != 7 {
		t.Errorf("PageSize = %d, want env override 7", c.PageSize)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{LogLevel: "info", Engine: EnginePostgres, PageSize: 10}
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{name: "engine", edit: func(c *Config) { c.Engine = "oracle" }},
		{name: "page size", edit: func(c *Config) { c.PageSize = 0 }},
		{name: "log level", edit: func(c *Config) { c.LogLevel = "chatty" }},
		{name: "sqlite path", edit: func(c *Config) { c.Engine = EngineSQLite }},
		{name: "remote addr", edit: func(c *Config) { c.Engine = EngineRemote }},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.edit(&c)
			if err := c.Validate(); !qlerrors.Is(err, qlerrors.ConfigInvalid) {
				t.Errorf("Validate() = %v, want ConfigInvalid", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	in := Config{LogLevel: "debug", Engine: EngineRemote, Cumulative: true, PageSize: 50, ResultsDir: t.TempDir(),
		Remote: RemoteConfig{Addr: "localhost:7000", Insecure: true}}
	if err := Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	p, _ := Path()
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %o, want 600", info.Mode().Perm())
	}
}
