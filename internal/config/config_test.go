package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestNormalizeFillsDefaultsWithoutOverwriting(t *testing.T) {
	cfg := Daemon{}
	cfg.Server.Port = 1234
	cfg.Normalize()

	if cfg.Workspace.Root == "" {
		t.Fatal("expected workspace root default")
	}
	if cfg.Scheduler.TickInterval != 100*time.Millisecond {
		t.Fatalf("expected default tick interval, got %s", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.Mode != "strict" {
		t.Fatalf("expected default mode strict, got %s", cfg.Scheduler.Mode)
	}
	if cfg.Server.Port != 1234 {
		t.Fatalf("expected explicit port preserved, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort == 0 {
		t.Fatal("expected default metrics port")
	}
	if cfg.Tools.Concurrency != 4 {
		t.Fatalf("expected default concurrency 4, got %d", cfg.Tools.Concurrency)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("expected default log format text, got %s", cfg.Logging.Format)
	}
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("NEXUSD_WORKSPACE_ROOT", "/tmp/nexusd-ws")
	path := writeConfig(t, "workspace:\n  root: ${NEXUSD_WORKSPACE_ROOT}\nscheduler:\n  mode: permissive\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace.Root != "/tmp/nexusd-ws" {
		t.Fatalf("expected env-expanded root, got %s", cfg.Workspace.Root)
	}
	if cfg.Scheduler.Mode != "permissive" {
		t.Fatalf("expected mode permissive, got %s", cfg.Scheduler.Mode)
	}
	if cfg.Tools.Concurrency != 4 {
		t.Fatalf("expected normalized default applied after load, got %d", cfg.Tools.Concurrency)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "workspace:\n  root: /tmp/x\nbogus_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsMultiDocument(t *testing.T) {
	path := writeConfig(t, "workspace:\n  root: /tmp/a\n---\nworkspace:\n  root: /tmp/b\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for multi-document config")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
