// Package config loads and validates the bridge's configuration: the
// WebSocket listener address, dispatch timeout, log level, and the library
// manifest directory. Loading supports YAML and JSON/JSON5 files, $include
// directives, and environment variable expansion and overrides, following
// the teacher's config loader conventions.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bridge's full set of recognized options (spec.md §6).
type Config struct {
	WSHost         string  `yaml:"ws_host"`
	WSPort         int     `yaml:"ws_port"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	LogLevel       string  `yaml:"log_level"`
	LibraryDir     string  `yaml:"library_dir"`

	// OtherPorts lists ports declared elsewhere by the caller's surface
	// (e.g. a metrics or health-check port); ws_port must not collide
	// with any of them.
	OtherPorts []int `yaml:"other_ports"`
}

// DefaultTimeout returns TimeoutSeconds as a time.Duration.
func (c Config) DefaultTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

func applyDefaults(cfg *Config) {
	if cfg.WSHost == "" {
		cfg.WSHost = "localhost"
	}
	if cfg.WSPort == 0 {
		cfg.WSPort = 8081
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 30.0
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("ILLUSTRATOR_BRIDGE_WS_HOST")); value != "" {
		cfg.WSHost = value
	}
	if value := strings.TrimSpace(os.Getenv("ILLUSTRATOR_BRIDGE_WS_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.WSPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("ILLUSTRATOR_BRIDGE_TIMEOUT_SECONDS")); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.TimeoutSeconds = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("ILLUSTRATOR_BRIDGE_LOG_LEVEL")); value != "" {
		cfg.LogLevel = value
	}
	if value := strings.TrimSpace(os.Getenv("ILLUSTRATOR_BRIDGE_LIBRARY_DIR")); value != "" {
		cfg.LibraryDir = value
	}
}

// ValidationError reports every config issue found, not just the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.WSPort < 1024 || cfg.WSPort > 65535 {
		issues = append(issues, fmt.Sprintf("ws_port must be in [1024, 65535], got %d", cfg.WSPort))
	}
	if cfg.TimeoutSeconds < 1 || cfg.TimeoutSeconds > 300 {
		issues = append(issues, fmt.Sprintf("timeout_seconds must be in [1, 300], got %v", cfg.TimeoutSeconds))
	}
	for _, p := range cfg.OtherPorts {
		if p == cfg.WSPort {
			issues = append(issues, fmt.Sprintf("ws_port (%d) must differ from other declared ports", cfg.WSPort))
			break
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Load reads, resolves $include directives within, expands environment
// variables in, parses, defaults, and validates the config at path.
func Load(path string) (*Config, error) {
	raw, err := loadRaw(path)
	if err != nil {
		return nil, err
	}

	cfg, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeRaw(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single document")
	}
	return &cfg, nil
}
