// Package config holds the pipeline configuration: input locations,
// calibration files per channel, and the reconstruction policies that
// the original tool left as hidden defaults (dither ordering, bias
// handling, pixel weighting, normalization).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all fiberecon configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Inputs InputsConfig `yaml:"inputs"`

	// Calibration maps a channel name ("L", "R") to its calibration
	// file set.
	Calibration map[string]ChannelCalibration `yaml:"calibration"`

	Reconstruction ReconstructionConfig `yaml:"reconstruction"`

	Logging LoggingConfig `yaml:"logging"`
}

// InputsConfig locates the instrument tables.
type InputsConfig struct {
	IFUCenter  string `yaml:"ifu_center"`
	DitherFile string `yaml:"dither_file"`
}

// ChannelCalibration is the calibration file set of one channel.
type ChannelCalibration struct {
	Distortion string `yaml:"distortion"`
	FiberModel string `yaml:"fiber_model"`
	PSFModel   string `yaml:"psf_model"`
}

// ReconstructionConfig configures the reconstruction engine. Every
// policy is explicit; there are no silent fallbacks.
type ReconstructionConfig struct {
	PixelScale float64 `yaml:"pixel_scale"`

	// Weighting: "nearest" or "fractional".
	Weighting string `yaml:"weighting"`

	// Normalize: "mean" or "sum".
	Normalize string `yaml:"normalize"`

	// OrderBy: "header" (DITHER card required) or "explicit"
	// (command-line frame order assigns the dither index).
	OrderBy string `yaml:"order_by"`

	// Bias: "declared-region" or "none".
	Bias string `yaml:"bias"`

	// WMin, WMax restrict the integration band in wavelength units;
	// zero means the full calibrated range.
	WMin float64 `yaml:"wmin"`
	WMax float64 `yaml:"wmax"`

	// Workers caps parallel frame processing; 0 means one per CPU.
	Workers int `yaml:"workers"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "fiberecon",
		Version: "1.0.0",

		Calibration: make(map[string]ChannelCalibration),

		Reconstruction: ReconstructionConfig{
			PixelScale: 0.3,
			Weighting:  "nearest",
			Normalize:  "mean",
			OrderBy:    "header",
			Bias:       "declared-region",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides lets the environment override selected settings.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FIBERECON_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reconstruction.Workers = n
		}
	}
	if v := os.Getenv("FIBERECON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the enumerated policies and required numeric
// settings.
func (c *Config) Validate() error {
	r := c.Reconstruction
	if r.PixelScale <= 0 {
		return fmt.Errorf("reconstruction.pixel_scale must be > 0, got %g", r.PixelScale)
	}
	if err := oneOf("reconstruction.weighting", r.Weighting, "nearest", "fractional"); err != nil {
		return err
	}
	if err := oneOf("reconstruction.normalize", r.Normalize, "mean", "sum"); err != nil {
		return err
	}
	if err := oneOf("reconstruction.order_by", r.OrderBy, "header", "explicit"); err != nil {
		return err
	}
	if err := oneOf("reconstruction.bias", r.Bias, "declared-region", "none"); err != nil {
		return err
	}
	if r.Workers < 0 {
		return fmt.Errorf("reconstruction.workers must be >= 0, got %d", r.Workers)
	}
	if err := oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return nil
}

func oneOf(key, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return fmt.Errorf("%s: invalid value %q (allowed: %v)", key, val, allowed)
}
