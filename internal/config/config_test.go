package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := load("", []string{"."})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.DatabaseURI() != "" {
		t.Errorf("expected no database, got %q", cfg.DatabaseURI())
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "mlbench.yaml", `
log_level: DEBUG
jobs: 4
fixture_root: benchmarks
output: results/bench.json
context:
  - name: gpu-node
    kind: ec2
    arguments:
      instance_type: g5.xlarge
      region: us-west-2
  - name: owner
    kind: static
    arguments:
      team: ml
database:
  secret_id: bench/db
`)
	cfg, err := load("", []string{"."})
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		LogLevel:    "debug",
		Jobs:        4,
		FixtureRoot: "benchmarks",
		Output:      "results/bench.json",
		Context: []ContextProvider{
			{Name: "gpu-node", Kind: "ec2", Arguments: map[string]any{"instance_type": "g5.xlarge", "region": "us-west-2"}},
			{Name: "owner", Kind: "static", Arguments: map[string]any{"team": "ml"}},
		},
		Database: Database{SecretID: "bench/db"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Level(); got != slog.LevelDebug {
		t.Errorf("Level() = %v", got)
	}
	if got := cfg.DatabaseURI(); got != "secretsmanager://bench/db" {
		t.Errorf("DatabaseURI() = %q", got)
	}
	if p, ok := cfg.Provider("owner"); !ok || p.Kind != "static" {
		t.Errorf("Provider(owner) = %v, %v", p, ok)
	}
	if _, ok := cfg.Provider("missing"); ok {
		t.Error("expected no provider named missing")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "custom.toml", "jobs = 2\n[database]\nurl = \"postgres://file\"\n")
	t.Setenv("MLBENCH_JOBS", "8")
	t.Setenv("MLBENCH_DATABASE_URL", "postgres://env")

	cfg, err := load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Jobs != 8 {
		t.Errorf("Jobs = %d, want 8", cfg.Jobs)
	}
	if got := cfg.DatabaseURI(); got != "postgres://env" {
		t.Errorf("DatabaseURI() = %q", got)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "MLBENCH_FIXTURE_ROOT=from-dotenv\n")
	os.Unsetenv("MLBENCH_FIXTURE_ROOT")
	t.Cleanup(func() { os.Unsetenv("MLBENCH_FIXTURE_ROOT") })

	cfg, err := load("", []string{"."})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FixtureRoot != "from-dotenv" {
		t.Errorf("FixtureRoot = %q", cfg.FixtureRoot)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad level", `{"log_level": "loud"}`, "LogLevel"},
		{"zero jobs", `{"jobs": 0}`, "Jobs"},
		{"provider without kind", `{"context": [{"name": "a"}]}`, "Kind"},
		{"duplicate provider", `{"context": [{"name": "a", "kind": "system"}, {"name": "a", "kind": "git"}]}`, "unique"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			path := writeFile(t, dir, "mlbench.json", tt.content)
			_, err := load(path, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := load("nope.yaml", nil); err == nil {
		t.Error("expected error for a missing config file")
	}
}
