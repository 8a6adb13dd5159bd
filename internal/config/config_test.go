package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no file failed: %v", err)
	}

	if cfg.Recording.Format != "gif" {
		t.Errorf("Expected default format 'gif', got %s", cfg.Recording.Format)
	}
	if cfg.Recording.FPS != 15 {
		t.Errorf("Expected default fps 15, got %d", cfg.Recording.FPS)
	}
	if cfg.Capture.Backend != "auto" {
		t.Errorf("Expected default backend 'auto', got %s", cfg.Capture.Backend)
	}
	if cfg.Capture.Scale != 1.0 {
		t.Errorf("Expected default scale 1.0, got %.2f", cfg.Capture.Scale)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "capreel.yaml")

	content := `
recording:
  format: mp4
  fps: 30
  quality: high
  max_duration: 60
capture:
  backend: pixelgrab
  scale: 0.5
output:
  directory: ` + dir + `
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Recording.Format != "mp4" {
		t.Errorf("Expected format 'mp4', got %s", cfg.Recording.Format)
	}
	if cfg.Recording.FPS != 30 {
		t.Errorf("Expected fps 30, got %d", cfg.Recording.FPS)
	}
	if cfg.Recording.MaxDuration != 60 {
		t.Errorf("Expected max_duration 60, got %d", cfg.Recording.MaxDuration)
	}
	if cfg.Capture.Backend != "pixelgrab" {
		t.Errorf("Expected backend 'pixelgrab', got %s", cfg.Capture.Backend)
	}
	if cfg.Capture.Scale != 0.5 {
		t.Errorf("Expected scale 0.5, got %.2f", cfg.Capture.Scale)
	}
	// Unspecified values keep their defaults.
	if cfg.Encoding.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default ffmpeg path, got %s", cfg.Encoding.FFmpegPath)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Recording.Format = "avi" }},
		{"zero fps", func(c *Config) { c.Recording.FPS = 0 }},
		{"fps too high", func(c *Config) { c.Recording.FPS = 120 }},
		{"bad quality", func(c *Config) { c.Recording.Quality = "ultra" }},
		{"zero max duration", func(c *Config) { c.Recording.MaxDuration = 0 }},
		{"negative countdown", func(c *Config) { c.Recording.Countdown = -1 }},
		{"bad backend", func(c *Config) { c.Capture.Backend = "quartz" }},
		{"zero scale", func(c *Config) { c.Capture.Scale = 0 }},
		{"scale above one", func(c *Config) { c.Capture.Scale = 1.5 }},
		{"negative display", func(c *Config) { c.Capture.Display = -1 }},
		{"empty output dir", func(c *Config) { c.Output.Directory = "" }},
		{"empty ffmpeg path", func(c *Config) { c.Encoding.FFmpegPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Errorf("Default config should validate, got: %v", err)
	}
}

func TestTempDir(t *testing.T) {
	cfg := Default()
	if cfg.TempDir() == "" {
		t.Error("TempDir should never be empty")
	}

	cfg.Output.TempDirectory = "/var/tmp/frames"
	if cfg.TempDir() != "/var/tmp/frames" {
		t.Errorf("Expected configured temp dir, got %s", cfg.TempDir())
	}
}
