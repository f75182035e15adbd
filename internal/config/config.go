package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values
const (
	EnvTolerance = "IMAGE_TRIM_TOLERANCE"
	EnvWatermark = "IMAGE_TRIM_WATERMARK"
	EnvFormat    = "IMAGE_TRIM_FORMAT"
	EnvQuality   = "IMAGE_TRIM_QUALITY"
	EnvAddr      = "IMAGE_TRIM_ADDR"
	EnvMaxUpload = "IMAGE_TRIM_MAX_UPLOAD_BYTES"
	EnvLogLevel  = "IMAGE_TRIM_LOG_LEVEL"
)

// Config holds the application configuration
type Config struct {
	Trim   TrimConfig   `json:"trim"`
	Output OutputConfig `json:"output"`
	Server ServerConfig `json:"server"`
	Log    LogConfig    `json:"log"`
}

// TrimConfig holds configuration for border trimming
type TrimConfig struct {
	Tolerance       float64 `json:"tolerance"`
	RemoveWatermark bool    `json:"remove_watermark"`
	MaxPixels       int     `json:"max_pixels"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	Quality       int    `json:"quality"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
}

// ServerConfig holds configuration for the upload service
type ServerConfig struct {
	Addr           string `json:"addr"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Trim: TrimConfig{
			Tolerance:       10,
			RemoveWatermark: true,
			MaxPixels:       100_000_000,
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			Quality:       90,
			OutputDir:     ".",
			Prefix:        "",
			Suffix:        "--trim",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 32 << 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load returns defaults, overlaid by filename when it is non-empty, then by
// the environment. A .env file in the working directory is read if present.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		loaded, err := LoadFromFile(filename)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from IMAGE_TRIM_* environment variables
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvTolerance); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTolerance, err)
		}
		c.Trim.Tolerance = f
	}
	if v, ok := os.LookupEnv(EnvWatermark); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWatermark, err)
		}
		c.Trim.RemoveWatermark = b
	}
	if v, ok := os.LookupEnv(EnvFormat); ok {
		c.Output.DefaultFormat = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvQuality); ok {
		q, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvQuality, err)
		}
		c.Output.Quality = q
	}
	if v, ok := os.LookupEnv(EnvAddr); ok {
		c.Server.Addr = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvMaxUpload); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxUpload, err)
		}
		c.Server.MaxUploadBytes = n
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Trim.Tolerance < 0 || math.IsNaN(c.Trim.Tolerance) || math.IsInf(c.Trim.Tolerance, 0) {
		return fmt.Errorf("trim.tolerance must be a finite non-negative number")
	}

	if c.Trim.MaxPixels < 0 {
		return fmt.Errorf("trim.max_pixels cannot be negative")
	}

	switch c.Output.DefaultFormat {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.default_format must be png, jpg or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-trim", "config.json")
}
