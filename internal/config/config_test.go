package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Fix.MaxIterations != 5 {
		t.Errorf("Fix.MaxIterations = %d, want 5", cfg.Fix.MaxIterations)
	}
	if cfg.Fix.Language != "en" {
		t.Errorf("Fix.Language = %q, want %q", cfg.Fix.Language, "en")
	}
	if cfg.Output.Suffix != "_fixed" {
		t.Errorf("Output.Suffix = %q, want %q", cfg.Output.Suffix, "_fixed")
	}
	if cfg.Validator.Jar != "" {
		t.Errorf("Validator.Jar = %q, want empty", cfg.Validator.Jar)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero iterations means default", func(c *Config) { c.Fix.MaxIterations = 0 }, false},
		{"negative iterations", func(c *Config) { c.Fix.MaxIterations = -1 }, true},
		{"too many iterations", func(c *Config) { c.Fix.MaxIterations = MaxIterationsLimit + 1 }, true},
		{"negative workers", func(c *Config) { c.Workers = -2 }, true},
		{"too many workers", func(c *Config) { c.Workers = MaxWorkers + 1 }, true},
		{"long language", func(c *Config) { c.Fix.Language = strings.Repeat("x", MaxLanguageLength+1) }, true},
		{"suffix with separator", func(c *Config) { c.Output.Suffix = "a/b" }, true},
		{"long suffix", func(c *Config) { c.Output.Suffix = strings.Repeat("s", MaxSuffixLength+1) }, true},
		{"bad timeout", func(c *Config) { c.Validator.Timeout = "soon" }, true},
		{"negative timeout", func(c *Config) { c.Validator.Timeout = "-1s" }, true},
		{"good timeout", func(c *Config) { c.Validator.Timeout = "90s" }, false},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"warning level", func(c *Config) { c.Log.Level = "WARNING" }, false},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"json format", func(c *Config) { c.Log.Format = "json" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("Validate() = %v, want ErrInvalidValue", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestTimeoutDuration(t *testing.T) {
	d, err := ValidatorConfig{Timeout: "2m"}.TimeoutDuration()
	if err != nil || d != 2*time.Minute {
		t.Fatalf("TimeoutDuration() = %v, %v; want 2m, nil", d, err)
	}
	d, err = ValidatorConfig{}.TimeoutDuration()
	if err != nil || d != 0 {
		t.Fatalf("TimeoutDuration() empty = %v, %v; want 0, nil", d, err)
	}
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_FilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "epubfix.yaml")
	content := `validator:
  jar: /opt/epubcheck/epubcheck.jar
  timeout: 3m
  args: ["--profile", "default"]
fix:
  disable: [fragment-ids]
  language: fr
workers: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Validator.Jar != "/opt/epubcheck/epubcheck.jar" {
		t.Errorf("Validator.Jar = %q", cfg.Validator.Jar)
	}
	if len(cfg.Validator.Args) != 2 || cfg.Validator.Args[0] != "--profile" {
		t.Errorf("Validator.Args = %v", cfg.Validator.Args)
	}
	if len(cfg.Fix.Disable) != 1 || cfg.Fix.Disable[0] != "fragment-ids" {
		t.Errorf("Fix.Disable = %v", cfg.Fix.Disable)
	}
	if cfg.Fix.Language != "fr" {
		t.Errorf("Fix.Language = %q, want fr", cfg.Fix.Language)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	// Unset values keep their defaults.
	if cfg.Fix.MaxIterations != 5 {
		t.Errorf("Fix.MaxIterations = %d, want default 5", cfg.Fix.MaxIterations)
	}
	if cfg.Output.Suffix != "_fixed" {
		t.Errorf("Output.Suffix = %q, want default _fixed", cfg.Output.Suffix)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		arg     string
		wantErr error
	}{
		{"empty name", "", ErrEmptyConfigName},
		{"missing file", filepath.Join(dir, "nope.yaml"), ErrConfigNotFound},
		{"missing name", "epubfix-test-does-not-exist", ErrConfigNotFound},
		{"unknown field", write("unknown.yaml", "validator:\n  jarr: x\n"), ErrConfigParse},
		{"bad syntax", write("syntax.yaml", "fix: [\n"), ErrConfigParse},
		{"invalid value", write("invalid.yaml", "workers: -1\n"), ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.arg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("LoadConfig(%q) error = %v, want %v", tt.arg, err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_ByNameInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "books.yml"), []byte("workers: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := LoadConfig("books")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
}

func TestIsFilePath(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"work", false},
		{"./work.yaml", true},
		{"conf/work.yaml", true},
		{`conf\work.yaml`, true},
	}
	for _, tt := range tests {
		if got := isFilePath(tt.in); got != tt.want {
			t.Errorf("isFilePath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
