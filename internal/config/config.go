package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the resolved application configuration.
type Config struct {
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Encoding  EncodingConfig  `mapstructure:"encoding" yaml:"encoding"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// RecordingConfig holds the defaults applied to every new recording session.
type RecordingConfig struct {
	Format      string `mapstructure:"format" yaml:"format"`             // "gif", "webp", "mp4"
	FPS         int    `mapstructure:"fps" yaml:"fps"`                   // target capture frame rate
	Quality     string `mapstructure:"quality" yaml:"quality"`           // "low", "medium", "high"
	MaxDuration int    `mapstructure:"max_duration" yaml:"max_duration"` // seconds, auto-stop ceiling
	Countdown   int    `mapstructure:"countdown" yaml:"countdown"`       // seconds shown before capture starts
}

// CaptureConfig selects and tunes the screen-capture backend.
type CaptureConfig struct {
	Backend     string  `mapstructure:"backend" yaml:"backend"` // "auto", "native", "pixelgrab", "ffmpeg"
	Scale       float64 `mapstructure:"scale" yaml:"scale"`     // frame downscale factor, (0,1]
	MouseCursor bool    `mapstructure:"mouse_cursor" yaml:"mouse_cursor"`
	Display     int     `mapstructure:"display" yaml:"display"` // display index for full-screen capture
}

// EncodingConfig tunes the external transcoder invocation.
type EncodingConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	FastMode   bool   `mapstructure:"fast_mode" yaml:"fast_mode"` // trade quality for encode speed
}

// OutputConfig determines where artifacts and working files land.
type OutputConfig struct {
	Directory     string `mapstructure:"directory" yaml:"directory"`
	TempDirectory string `mapstructure:"temp_directory" yaml:"temp_directory"`
}

// ServerConfig configures the control server.
type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

var defaultConfig = Config{
	Recording: RecordingConfig{
		Format:      "gif",
		FPS:         15,
		Quality:     "medium",
		MaxDuration: 300,
		Countdown:   0,
	},
	Capture: CaptureConfig{
		Backend:     "auto",
		Scale:       1.0,
		MouseCursor: true,
		Display:     0,
	},
	Encoding: EncodingConfig{
		FFmpegPath: "ffmpeg",
		FastMode:   false,
	},
	Output: OutputConfig{
		Directory:     filepath.Join(os.Getenv("HOME"), "Videos", "Capreel"),
		TempDirectory: "",
	},
	Server: ServerConfig{
		Port: "8080",
	},
}

// Default returns a copy of the built-in defaults.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads the configuration file, applies defaults and environment
// overrides (CAPREEL_*), and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CAPREEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				// Missing file falls back to defaults; an unreadable or
				// malformed file is a hard error.
			} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	if cfg.Output.TempDirectory != "" {
		cfg.Output.TempDirectory = expandPath(cfg.Output.TempDirectory)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("recording.format", defaultConfig.Recording.Format)
	v.SetDefault("recording.fps", defaultConfig.Recording.FPS)
	v.SetDefault("recording.quality", defaultConfig.Recording.Quality)
	v.SetDefault("recording.max_duration", defaultConfig.Recording.MaxDuration)
	v.SetDefault("recording.countdown", defaultConfig.Recording.Countdown)
	v.SetDefault("capture.backend", defaultConfig.Capture.Backend)
	v.SetDefault("capture.scale", defaultConfig.Capture.Scale)
	v.SetDefault("capture.mouse_cursor", defaultConfig.Capture.MouseCursor)
	v.SetDefault("capture.display", defaultConfig.Capture.Display)
	v.SetDefault("encoding.ffmpeg_path", defaultConfig.Encoding.FFmpegPath)
	v.SetDefault("encoding.fast_mode", defaultConfig.Encoding.FastMode)
	v.SetDefault("output.directory", defaultConfig.Output.Directory)
	v.SetDefault("output.temp_directory", defaultConfig.Output.TempDirectory)
	v.SetDefault("server.port", defaultConfig.Server.Port)
}

// Validate checks the configuration for values the pipeline cannot work with.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Recording.Format) {
	case "gif", "webp", "mp4":
	default:
		return fmt.Errorf("recording.format must be 'gif', 'webp' or 'mp4', got: %s", cfg.Recording.Format)
	}

	if cfg.Recording.FPS < 1 || cfg.Recording.FPS > 60 {
		return fmt.Errorf("recording.fps must be between 1 and 60, got: %d", cfg.Recording.FPS)
	}

	switch strings.ToLower(cfg.Recording.Quality) {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("recording.quality must be 'low', 'medium' or 'high', got: %s", cfg.Recording.Quality)
	}

	if cfg.Recording.MaxDuration <= 0 {
		return fmt.Errorf("recording.max_duration must be > 0, got: %d", cfg.Recording.MaxDuration)
	}

	if cfg.Recording.Countdown < 0 {
		return fmt.Errorf("recording.countdown must be >= 0, got: %d", cfg.Recording.Countdown)
	}

	switch strings.ToLower(cfg.Capture.Backend) {
	case "auto", "native", "pixelgrab", "ffmpeg":
	default:
		return fmt.Errorf("capture.backend must be 'auto', 'native', 'pixelgrab' or 'ffmpeg', got: %s", cfg.Capture.Backend)
	}

	if cfg.Capture.Scale <= 0 || cfg.Capture.Scale > 1 {
		return fmt.Errorf("capture.scale must be in (0, 1], got: %.2f", cfg.Capture.Scale)
	}

	if cfg.Capture.Display < 0 {
		return fmt.Errorf("capture.display must be >= 0, got: %d", cfg.Capture.Display)
	}

	if cfg.Output.Directory == "" {
		return fmt.Errorf("output.directory must not be empty")
	}

	if cfg.Encoding.FFmpegPath == "" {
		return fmt.Errorf("encoding.ffmpeg_path must not be empty")
	}

	return nil
}

// TempDir returns the directory under which per-session frame directories
// are created.
func (c *Config) TempDir() string {
	if c.Output.TempDirectory != "" {
		return c.Output.TempDirectory
	}
	return filepath.Join(os.TempDir(), "capreel")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
