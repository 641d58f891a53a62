package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies the defaults match the survey parameters
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Grid.Rows != 720 || cfg.Grid.Cols != 1440 {
		t.Errorf("Expected 720x1440 grid, got %dx%d", cfg.Grid.Rows, cfg.Grid.Cols)
	}
	if cfg.Threshold.Bins != 100 {
		t.Errorf("Expected 100 bins, got %d", cfg.Threshold.Bins)
	}
	if cfg.Threshold.SmoothingWindow != 20 {
		t.Errorf("Expected smoothing window 20, got %d", cfg.Threshold.SmoothingWindow)
	}
	if cfg.Validation.MinSamples != 10 || cfg.Validation.MinSkewness != 0.5 {
		t.Errorf("Unexpected validation defaults: %+v", cfg.Validation)
	}
	if cfg.Validation.ExemptFirstLabel {
		t.Error("First label must be validated by default")
	}
	if len(cfg.Instruments) != 3 {
		t.Errorf("Expected 3 instruments, got %d", len(cfg.Instruments))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

// TestLoadMissingConfig verifies that a missing file yields the defaults
func TestLoadMissingConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Threshold.TileLat != 60 {
		t.Errorf("Expected default tile size, got %g", cfg.Threshold.TileLat)
	}
}

// TestSaveAndLoadConfig verifies that overrides survive a save/load cycle
func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Grid.Rows = 360
	cfg.Grid.Cols = 720
	cfg.Validation.ExemptFirstLabel = true
	cfg.Retrieval.Cadence = 6 * time.Hour
	cfg.Paths.OutDir = "/tmp/chmap"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Grid != cfg.Grid {
		t.Errorf("Grid mismatch: got %+v, want %+v", loaded.Grid, cfg.Grid)
	}
	if !loaded.Validation.ExemptFirstLabel {
		t.Error("ExemptFirstLabel was not preserved")
	}
	if loaded.Retrieval.Cadence != 6*time.Hour {
		t.Errorf("Cadence mismatch: got %v", loaded.Retrieval.Cadence)
	}
	if loaded.Paths.OutDir != "/tmp/chmap" {
		t.Errorf("OutDir mismatch: got %q", loaded.Paths.OutDir)
	}
}

// TestLoadInvalidConfig verifies that invalid values are rejected
func TestLoadInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("morphology:\n  structureSize: 4\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected an error for an even structuring element")
	}
}

// TestValidate covers the individual validation rules
func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"odd columns":     func(c *Config) { c.Grid.Cols = 1441 },
		"few bins":        func(c *Config) { c.Threshold.Bins = 2 },
		"inverted scales": func(c *Config) { c.Threshold.MinScale = 5; c.Threshold.MaxScale = 4 },
		"bad fallback":    func(c *Config) { c.Threshold.FallbackLow = 0.95 },
		"no instruments":  func(c *Config) { c.Instruments = nil },
		"duplicate":       func(c *Config) { c.Instruments[1].Name = c.Instruments[0].Name },
		"zero cores":      func(c *Config) { c.Processing.NumCores = 0 },
	}

	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
