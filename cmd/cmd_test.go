package cmd

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pterm/pterm"
)

func TestParseReplCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs []string
	}{
		{"select 1", "", nil},
		{".cells", ".cells", []string{}},
		{".SHOW 2 1", ".show", []string{"2", "1"}},
		{".save  out.qlnb", ".save", []string{"out.qlnb"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, args := parseReplCommand(tt.in)
			if name != tt.wantName || !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("parseReplCommand(%q) = %q %v, want %q %v", tt.in, name, args, tt.wantName, tt.wantArgs)
			}
		})
	}
}

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgresql://alice:secret@db:5432/app", "postgresql://alice:***@db:5432/app"},
		{"postgresql://alice@db:5432/app", "postgresql://alice@db:5432/app"},
		{"postgres://alice:p@ss w@db/app", "postgres://alice:***@db/app"},
		{"notes.db", "notes.db"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := maskPassword(tt.in); got != tt.want {
				t.Errorf("maskPassword(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRunSQLiteNotebook(t *testing.T) {
	pterm.DisableOutput()
	defer pterm.EnableOutput()

	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))

	cfgFile := filepath.Join(dir, "config.yaml")
	conf := "engine: sqlite\nsqlite:\n  path: ':memory:'\nresults_dir: " + filepath.Join(dir, "results") + "\n"
	if err := os.WriteFile(cfgFile, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}
	nb := filepath.Join(dir, "demo.qlnb")
	src := `{"cells":[` +
		`{"cell_type":"markdown","source":["# demo"]},` +
		`{"cell_type":"code","source":["select 1 as n"]},` +
		`{"cell_type":"code","source":["select * from missing_table"]}]}`
	if err := os.WriteFile(nb, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"--config", cfgFile, "run", nb})
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "1 of 2 cells") {
		t.Fatalf("run error = %v, want one failed cell", err)
	}

	data, err := os.ReadFile(nb)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"application/x.qlnb.result-reference", "EngineFailure", `"execution_count": 1`, `"execution_count": 2`, "# demo"} {
		if !strings.Contains(out, want) {
			t.Errorf("saved notebook lacks %q:\n%s", want, out)
		}
	}
}
