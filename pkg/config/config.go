// Package config provides configuration loading and management for gbss.
// It handles loading configuration from YAML files and provides default
// values for every threshold the pipeline recognizes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
//
// Thresholds that happen to share a value (skeletonThreshold and
// diffusionLesionCutoff both default to 0.65) are kept as independent
// fields so tuning one never silently moves the other.
type Config struct {
	// Thresholds controls skeleton construction and lesion detection
	Thresholds struct {
		// GMMaskCutoff is the low cutoff on the mean grey-matter map
		GMMaskCutoff float64 `yaml:"gmMaskCutoff"`

		// SkeletonThreshold is the grey-matter/skeleton threshold (thresh)
		SkeletonThreshold float64 `yaml:"skeletonThreshold"`

		// ConsistencyFraction is the fraction of subjects required for the
		// group consistency mask (perc)
		ConsistencyFraction float64 `yaml:"consistencyFraction"`

		// DiffusionLesionCutoff is the lesion cutoff for ICVF/FA projections
		DiffusionLesionCutoff float64 `yaml:"diffusionLesionCutoff"`
	} `yaml:"thresholds"`

	// Filling controls the normalized-convolution interpolation
	Filling struct {
		// Sigma is the Gaussian smoothing width in voxels
		Sigma float64 `yaml:"sigma"`

		// CoverageCutoff is the minimum smoothed-support weight for a
		// reliable fill
		CoverageCutoff float64 `yaml:"coverageCutoff"`
	} `yaml:"filling"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel
		// per-subject work
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save per-stage
		// artifacts (npy dumps and QA slice sheets)
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where per-stage artifacts are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Thresholds.GMMaskCutoff = 0.2
	cfg.Thresholds.SkeletonThreshold = 0.65
	cfg.Thresholds.ConsistencyFraction = 0.7
	cfg.Thresholds.DiffusionLesionCutoff = 0.65

	cfg.Filling.Sigma = 2.0
	cfg.Filling.CoverageCutoff = 0.05

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
