package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/simp-lee/epubfix/internal/config"
)

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
type envConfig struct {
	ConfigPath    string // EPUBFIX_CONFIG: config file name or path
	Jar           string // EPUBFIX_JAR: epubcheck.jar path
	Java          string // EPUBFIX_JAVA: java executable
	Timeout       string // EPUBFIX_TIMEOUT: per-run validator timeout
	MaxIterations int    // EPUBFIX_MAX_ITERATIONS: pass cap
	Workers       int    // EPUBFIX_WORKERS: parallel books
	LogLevel      string // EPUBFIX_LOG_LEVEL: debug, info, warn, error
	LogFormat     string // EPUBFIX_LOG_FORMAT: text, json
}

// knownEnvVars lists valid EPUBFIX_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"EPUBFIX_CONFIG":         true,
	"EPUBFIX_JAR":            true,
	"EPUBFIX_JAVA":           true,
	"EPUBFIX_TIMEOUT":        true,
	"EPUBFIX_MAX_ITERATIONS": true,
	"EPUBFIX_WORKERS":        true,
	"EPUBFIX_LOG_LEVEL":      true,
	"EPUBFIX_LOG_FORMAT":     true,
}

// loadEnvConfig reads configuration through getenv.
// Malformed integers are ignored rather than reported.
func loadEnvConfig(getenv func(string) string) *envConfig {
	cfg := &envConfig{
		ConfigPath: getenv("EPUBFIX_CONFIG"),
		Jar:        getenv("EPUBFIX_JAR"),
		Java:       getenv("EPUBFIX_JAVA"),
		Timeout:    getenv("EPUBFIX_TIMEOUT"),
		LogLevel:   getenv("EPUBFIX_LOG_LEVEL"),
		LogFormat:  getenv("EPUBFIX_LOG_FORMAT"),
	}

	if n, err := strconv.Atoi(getenv("EPUBFIX_MAX_ITERATIONS")); err == nil && n > 0 {
		cfg.MaxIterations = n
	}
	if w, err := strconv.Atoi(getenv("EPUBFIX_WORKERS")); err == nil && w > 0 {
		cfg.Workers = w
	}
	return cfg
}

// warnUnknownEnvVars prints a warning for each unrecognized EPUBFIX_* variable.
func warnUnknownEnvVars(w io.Writer, environ []string) {
	for _, env := range environ {
		if !strings.HasPrefix(env, "EPUBFIX_") {
			continue
		}
		name, _, _ := strings.Cut(env, "=")
		if !knownEnvVars[name] {
			fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
		}
	}
}

// applyEnvConfig overrides config file values with set environment variables.
// Precedence: CLI flags > env vars > config file > defaults
// (CLI flags are applied afterwards).
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	if env.Jar != "" {
		cfg.Validator.Jar = env.Jar
	}
	if env.Java != "" {
		cfg.Validator.Java = env.Java
	}
	if env.Timeout != "" {
		cfg.Validator.Timeout = env.Timeout
	}
	if env.MaxIterations > 0 {
		cfg.Fix.MaxIterations = env.MaxIterations
	}
	if env.Workers > 0 {
		cfg.Workers = env.Workers
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Log.Format = env.LogFormat
	}
}
