package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Cache.Capacity != 128 {
		t.Errorf("Cache.Capacity = %d, want 128", cfg.Cache.Capacity)
	}
	if cfg.Scan.WindowBytes != 1<<20 {
		t.Errorf("Scan.WindowBytes = %d, want %d", cfg.Scan.WindowBytes, 1<<20)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "cache:\n  capacity: 256\nlogging:\n  level: DEBUG\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Cache.Capacity != 256 {
		t.Errorf("Cache.Capacity = %d, want 256", cfg.Cache.Capacity)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG", cfg.Logging.Level)
	}
	if cfg.Scan.WindowBytes != 1<<20 {
		t.Errorf("Scan.WindowBytes = %d, want the untouched default %d", cfg.Scan.WindowBytes, 1<<20)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Configuration)
		wantErr bool
	}{
		{"defaults", func(*Configuration) {}, false},
		{"zero capacity", func(c *Configuration) { c.Cache.Capacity = 0 }, true},
		{"negative window", func(c *Configuration) { c.Scan.WindowBytes = -1 }, true},
		{"bad level", func(c *Configuration) { c.Logging.Level = "TRACE" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefault()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
