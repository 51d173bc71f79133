package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel           string        `yaml:"log_level"`
	StorePath          string        `yaml:"store_path"`
	ScanTimeout        time.Duration `yaml:"scan_timeout" default:"15s"`
	ReconnectTimeout   time.Duration `yaml:"reconnect_timeout" default:"10s"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"30s"`
	SimulationInterval time.Duration `yaml:"simulation_interval" default:"1s"`
	SimulationFloor    int           `yaml:"simulation_floor" default:"50"`
	SimulationCeiling  int           `yaml:"simulation_ceiling" default:"200"`
	SimulationStep     int           `yaml:"simulation_step" default:"3"`
	InitialRate        int           `yaml:"initial_rate" default:"70"`
	ReplayFile         string        `yaml:"replay_file"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// LoadFile reads a YAML config file over the defaults. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"scan_timeout":        c.ScanTimeout,
		"reconnect_timeout":   c.ReconnectTimeout,
		"connect_timeout":     c.ConnectTimeout,
		"simulation_interval": c.SimulationInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SimulationFloor <= 0 || c.SimulationFloor >= c.SimulationCeiling {
		return fmt.Errorf("simulation range %d-%d is invalid", c.SimulationFloor, c.SimulationCeiling)
	}
	if c.SimulationStep < 1 {
		return fmt.Errorf("simulation_step must be at least 1, got %d", c.SimulationStep)
	}
	if c.InitialRate <= 0 {
		return fmt.Errorf("initial_rate must be positive, got %d", c.InitialRate)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level. Empty means silent.
func (c *Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.PanicLevel, nil
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return lvl, nil
}

// ResolvedStorePath returns StorePath, or the per-user default location.
func (c *Config) ResolvedStorePath() (string, error) {
	if c.StorePath != "" {
		return c.StorePath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no store path configured: %w", err)
	}
	return filepath.Join(dir, "pulsezone", "state.yaml"), nil
}

// DefaultConfigPath is where the CLI looks for a config file.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pulsezone", "config.yaml")
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	lvl, err := c.Level()
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
