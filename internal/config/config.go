// Package config loads epubfix settings from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/simp-lee/epubfix/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Limits enforced by Validate.
const (
	MaxIterationsLimit = 50
	MaxWorkers         = 64
	MaxLanguageLength  = 35 // BCP 47 tags are short; this leaves room for private use
	MaxSuffixLength    = 64
)

// Config holds all configuration for the epubfix CLI.
type Config struct {
	Validator ValidatorConfig `yaml:"validator"`
	Fix       FixConfig       `yaml:"fix"`
	Output    OutputConfig    `yaml:"output"`
	Workers   int             `yaml:"workers"` // 0 = number of CPUs
	Log       LogConfig       `yaml:"log"`
}

// ValidatorConfig locates and tunes epubcheck.
type ValidatorConfig struct {
	Java    string   `yaml:"java"`    // Java executable (default: "java" on PATH)
	Jar     string   `yaml:"jar"`     // Path to epubcheck.jar (empty = no validation)
	Timeout string   `yaml:"timeout"` // Per-run limit, e.g. "2m" (empty = none)
	Args    []string `yaml:"args"`    // Extra epubcheck arguments
}

// FixConfig tunes the repair loop.
type FixConfig struct {
	MaxIterations int      `yaml:"maxIterations"` // 0 = default (5), max 50
	Disable       []string `yaml:"disable"`       // Rule names to skip
	Stylesheet    string   `yaml:"stylesheet"`    // File whose content is used for stub stylesheets
	Language      string   `yaml:"language"`      // dc:language added when missing (default: "en")
	SkipValid     bool     `yaml:"skipValid"`     // Copy books that already validate
}

// OutputConfig defines where repaired books are written.
type OutputConfig struct {
	Suffix string `yaml:"suffix"` // Appended to the input base name (default: "_fixed")
	Dir    string `yaml:"dir"`    // Output directory (empty = next to the input)
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: "info")
	Format string `yaml:"format"` // text, json (default: "text")
}

// Validate checks ranges and enumerations.
// Called automatically by LoadConfig, but available for callers who build
// a Config by hand or merge other sources into it.
func (c *Config) Validate() error {
	if c.Fix.MaxIterations < 0 || c.Fix.MaxIterations > MaxIterationsLimit {
		return fmt.Errorf("%w: fix.maxIterations must be between 0 and %d, got %d",
			ErrInvalidValue, MaxIterationsLimit, c.Fix.MaxIterations)
	}
	if c.Workers < 0 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: workers must be between 0 and %d, got %d", ErrInvalidValue, MaxWorkers, c.Workers)
	}
	if len(c.Fix.Language) > MaxLanguageLength {
		return fmt.Errorf("%w: fix.language (%d chars, max %d)", ErrInvalidValue, len(c.Fix.Language), MaxLanguageLength)
	}
	if len(c.Output.Suffix) > MaxSuffixLength {
		return fmt.Errorf("%w: output.suffix (%d chars, max %d)", ErrInvalidValue, len(c.Output.Suffix), MaxSuffixLength)
	}
	if strings.ContainsAny(c.Output.Suffix, `/\`) {
		return fmt.Errorf("%w: output.suffix must not contain path separators", ErrInvalidValue)
	}
	if _, err := c.Validator.TimeoutDuration(); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidValue, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidValue, c.Log.Format)
	}
	return nil
}

// TimeoutDuration parses Timeout. An empty value means no timeout.
func (v ValidatorConfig) TimeoutDuration() (time.Duration, error) {
	if v.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: validator.timeout %q", ErrInvalidValue, v.Timeout)
	}
	return d, nil
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Fix:    FixConfig{MaxIterations: 5, Language: "en"},
		Output: OutputConfig{Suffix: "_fixed"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Values absent from the file keep their DefaultConfig value.
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !isFilePath(nameOrPath) {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, <user config dir>/epubfix/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "epubfix", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
