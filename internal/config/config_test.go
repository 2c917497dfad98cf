package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected Default(), got %+v", cfg)
	}
}

func TestLoad_InvalidConfigFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bloomd.yaml")
	writeFile(t, path, "logger:\n  level: INFO\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing required sections")
	}
}

func TestLoad_ValidConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bloomd.yaml")
	writeFile(t, path, `
logger:
  level: DEBUG
  json: true
admin_server:
  addr: ":9000"
data:
  data_dir: /var/lib/bloomd
default_filter:
  capacity: 500000
  false_positive_rate: 0.001
  in_memory: false
  flush_interval_seconds: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logger.Level != "DEBUG" || !cfg.Logger.JSON {
		t.Fatalf("logger not parsed: %+v", cfg.Logger)
	}
	if cfg.Data.DataDir != "/var/lib/bloomd" {
		t.Fatalf("data_dir not parsed: %+v", cfg.Data)
	}
	if cfg.Filter.Capacity != 500000 {
		t.Fatalf("capacity not parsed: %+v", cfg.Filter)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
