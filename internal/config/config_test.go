package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	if cfg.Reconstruction.PixelScale != 0.3 {
		t.Errorf("default pixel scale %g, want 0.3", cfg.Reconstruction.PixelScale)
	}
	if cfg.Reconstruction.Weighting != "nearest" || cfg.Reconstruction.Normalize != "mean" {
		t.Errorf("default policies %q/%q, want nearest/mean",
			cfg.Reconstruction.Weighting, cfg.Reconstruction.Normalize)
	}
	if cfg.Reconstruction.Bias != "declared-region" {
		t.Errorf("default bias %q, want declared-region", cfg.Reconstruction.Bias)
	}
	if cfg.Calibration == nil {
		t.Error("calibration map not allocated")
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("missing file config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Inputs.IFUCenter = "/data/IFUcen.txt"
	cfg.Inputs.DitherFile = "/data/dither.txt"
	cfg.Calibration["L"] = ChannelCalibration{
		Distortion: "/cal/masterflat_L.dist",
		FiberModel: "/cal/masterflat_L.fmod",
		PSFModel:   "/cal/masterarc_L.pmod",
	}
	cfg.Reconstruction.Weighting = "fractional"
	cfg.Reconstruction.WMin = 4000
	cfg.Reconstruction.WMax = 5000

	path := filepath.Join(t.TempDir(), "sub", "fiberecon.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	content := "reconstruction:\n  weighting: fractional\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Reconstruction.Weighting != "fractional" {
		t.Errorf("weighting %q, want fractional", cfg.Reconstruction.Weighting)
	}
	if cfg.Reconstruction.Normalize != "mean" {
		t.Errorf("normalize %q, defaults lost on partial file", cfg.Reconstruction.Normalize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FIBERECON_WORKERS", "6")
	t.Setenv("FIBERECON_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Reconstruction.Workers != 6 {
		t.Errorf("workers %d, want env override 6", cfg.Reconstruction.Workers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level %q, want env override debug", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"bad weighting", func(c *Config) { c.Reconstruction.Weighting = "gaussian" }, "weighting"},
		{"bad normalize", func(c *Config) { c.Reconstruction.Normalize = "median" }, "normalize"},
		{"bad order_by", func(c *Config) { c.Reconstruction.OrderBy = "random" }, "order_by"},
		{"bad bias", func(c *Config) { c.Reconstruction.Bias = "overscan" }, "bias"},
		{"zero pixel scale", func(c *Config) { c.Reconstruction.PixelScale = 0 }, "pixel_scale"},
		{"negative workers", func(c *Config) { c.Reconstruction.Workers = -1 }, "workers"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.errSub) {
				t.Errorf("error %q does not mention %q", err, tc.errSub)
			}
		})
	}
}
