// Package config provides configuration loading and management for coronalmap.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"coronalmap/internal/models"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Grid is the shape of the working Carrington grid
	Grid models.Grid `yaml:"grid"`

	// Threshold estimator parameters
	Threshold struct {
		// TileLat and TileLon are the tile size in degrees
		TileLat float64 `yaml:"tileLat"`
		TileLon float64 `yaml:"tileLon"`

		// Bins is the number of histogram bins per tile
		Bins int `yaml:"bins"`

		// SmoothingWindow is the width in samples of the Hann smoothing kernel
		SmoothingWindow int `yaml:"smoothingWindow"`

		// MinScale and MaxScale bound the wavelet widths used for peak finding
		MinScale int `yaml:"minScale"`
		MaxScale int `yaml:"maxScale"`

		// FallbackLow and FallbackHigh bound the search window, as fractions
		// of the bin count, when fewer than two histogram peaks are found
		FallbackLow  float64 `yaml:"fallbackLow"`
		FallbackHigh float64 `yaml:"fallbackHigh"`
	} `yaml:"threshold"`

	// Morphological cleaning parameters
	Morphology struct {
		// StructureSize is the side of the square structuring element
		StructureSize int `yaml:"structureSize"`

		// Iterations is the number of closing and opening passes
		Iterations int `yaml:"iterations"`
	} `yaml:"morphology"`

	// Region validation parameters
	Validation struct {
		// MinSamples is the minimum number of finite field samples in a region
		MinSamples int `yaml:"minSamples"`

		// MinSkewness is the minimum absolute skewness of the field samples
		MinSkewness float64 `yaml:"minSkewness"`

		// ExemptFirstLabel skips validation of region label 1, reproducing the
		// historical pipeline that started its loop at label 2
		ExemptFirstLabel bool `yaml:"exemptFirstLabel"`
	} `yaml:"validation"`

	// Instruments contributing to the composite, in blend order
	Instruments []models.Instrument `yaml:"instruments"`

	// Data retrieval parameters
	Retrieval struct {
		// Cadence is the sampling interval between frames
		Cadence time.Duration `yaml:"cadence"`

		// Timeout bounds a single retrieval call
		Timeout time.Duration `yaml:"timeout"`

		// RoundToDay rounds rotation boundaries to the nearest day
		RoundToDay bool `yaml:"roundToDay"`
	} `yaml:"retrieval"`

	// Directory layout
	Paths struct {
		// DataDir holds the per-instrument frame archives
		DataDir string `yaml:"dataDir"`

		// MagDir holds the raw synoptic magnetograms
		MagDir string `yaml:"magDir"`

		// OutDir receives the rotation artifacts and profile tables
		OutDir string `yaml:"outDir"`
	} `yaml:"paths"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many rotations are processed concurrently
		NumCores int `yaml:"numCores"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"processing"`

	// Optional ClickHouse export of profile rows; an empty address disables it
	ClickHouse struct {
		Address  string `yaml:"address"`
		Database string `yaml:"database"`
		Table    string `yaml:"table"`
	} `yaml:"clickhouse"`
}

// DefaultInstruments are the SDO/AIA and STEREO A/B EUVI imagers.
func DefaultInstruments() []models.Instrument {
	return []models.Instrument{
		{Name: "aia", Source: "SDO", Detector: "AIA", Wavelength: 19.3},
		{Name: "sta", Source: "STEREO_A", Detector: "EUVI", Wavelength: 19.5},
		{Name: "stb", Source: "STEREO_B", Detector: "EUVI", Wavelength: 19.5},
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Grid = models.DefaultGrid

	// Set default threshold parameters
	cfg.Threshold.TileLat = 60
	cfg.Threshold.TileLon = 60
	cfg.Threshold.Bins = 100
	cfg.Threshold.SmoothingWindow = 20
	cfg.Threshold.MinScale = 1
	cfg.Threshold.MaxScale = 19
	cfg.Threshold.FallbackLow = 0.25
	cfg.Threshold.FallbackHigh = 0.9

	cfg.Morphology.StructureSize = 3
	cfg.Morphology.Iterations = 1

	cfg.Validation.MinSamples = 10
	cfg.Validation.MinSkewness = 0.5
	cfg.Validation.ExemptFirstLabel = false

	cfg.Instruments = DefaultInstruments()

	cfg.Retrieval.Cadence = 24 * time.Hour
	cfg.Retrieval.Timeout = 10 * time.Minute
	cfg.Retrieval.RoundToDay = true

	cfg.Paths.DataDir = "data"
	cfg.Paths.MagDir = "mag"
	cfg.Paths.OutDir = "out"

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Verbose = false

	cfg.ClickHouse.Database = "solar"
	cfg.ClickHouse.Table = "coronal_hole_profiles"

	return cfg
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	t := c.Threshold
	if t.TileLat <= 0 || t.TileLon <= 0 || t.TileLat > 180 || t.TileLon > 360 {
		return fmt.Errorf("invalid tile size %gx%g degrees", t.TileLat, t.TileLon)
	}
	if t.Bins < 3 {
		return fmt.Errorf("histogram needs at least 3 bins, got %d", t.Bins)
	}
	if t.SmoothingWindow < 2 {
		return fmt.Errorf("smoothing window must be at least 2 samples, got %d", t.SmoothingWindow)
	}
	if t.MinScale < 1 || t.MaxScale < t.MinScale {
		return fmt.Errorf("invalid peak scales %d..%d", t.MinScale, t.MaxScale)
	}
	if t.FallbackLow < 0 || t.FallbackHigh > 1 || t.FallbackLow >= t.FallbackHigh {
		return fmt.Errorf("invalid fallback window %g..%g", t.FallbackLow, t.FallbackHigh)
	}
	if c.Morphology.StructureSize < 1 || c.Morphology.StructureSize%2 == 0 {
		return fmt.Errorf("structuring element size must be odd and positive, got %d", c.Morphology.StructureSize)
	}
	if c.Morphology.Iterations < 1 {
		return fmt.Errorf("morphology iterations must be positive, got %d", c.Morphology.Iterations)
	}
	if c.Validation.MinSamples < 3 {
		return fmt.Errorf("skewness needs at least 3 samples, got %d", c.Validation.MinSamples)
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("no instruments configured")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Name == "" {
			return fmt.Errorf("instrument without a name")
		}
		if seen[inst.Name] {
			return fmt.Errorf("duplicate instrument %q", inst.Name)
		}
		seen[inst.Name] = true
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("numCores must be positive, got %d", c.Processing.NumCores)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
