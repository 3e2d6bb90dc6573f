package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/simp-lee/epubfix/internal/config"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config    string
	quiet     bool
	verbose   bool
	logFormat string
}

// validatorFlags locates epubcheck.
type validatorFlags struct {
	jar     string
	java    string
	timeout string
}

// fixFlags holds all flags for the fix command.
type fixFlags struct {
	common        commonFlags
	validator     validatorFlags
	output        string
	suffix        string
	maxIterations int
	disable       []string
	language      string
	stylesheet    string
	noValidate    bool
	skipValid     bool
	workers       int
}

// checkFlags holds all flags for the check command.
type checkFlags struct {
	common    commonFlags
	validator validatorFlags
	workers   int
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show every change and validator message")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: text, json")
}

// addValidatorFlags adds epubcheck location flags to a FlagSet.
func addValidatorFlags(fs *flag.FlagSet, f *validatorFlags) {
	fs.StringVar(&f.jar, "jar", "", "path to epubcheck.jar")
	fs.StringVar(&f.java, "java", "", "java executable (default: java on PATH)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "epubcheck timeout per run (e.g., 90s, 2m)")
}

// newFlagSet returns a FlagSet that reports errors instead of exiting.
func newFlagSet(name string, stderr io.Writer, usage func(io.Writer)) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	return fs
}

// parseFlags parses args and wraps parse failures in ErrUsage.
// flag.ErrHelp is returned unwrapped.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

// parseFixFlags parses fix command flags and returns positional args.
func parseFixFlags(args []string, stderr io.Writer) (*fixFlags, *flag.FlagSet, []string, error) {
	fs := newFlagSet("fix", stderr, printFixUsage)
	f := &fixFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output file, or directory for several books")
	fs.StringVar(&f.suffix, "suffix", "", "suffix added to output names (default: _fixed)")
	fs.IntVarP(&f.maxIterations, "max-iterations", "n", 0, "maximum fix/validate passes (default: 5)")
	fs.StringSliceVar(&f.disable, "disable", nil, "rule names to skip (repeatable, comma-separated)")
	fs.StringVar(&f.language, "language", "", "dc:language added when missing (default: en)")
	fs.StringVar(&f.stylesheet, "stylesheet", "", "CSS file used for missing stylesheets")
	fs.BoolVar(&f.noValidate, "no-validate", false, "apply every rule once without running epubcheck")
	fs.BoolVar(&f.skipValid, "skip-valid", false, "copy books that already validate unchanged")
	fs.IntVarP(&f.workers, "workers", "w", 0, "books repaired in parallel (0 = auto)")

	addValidatorFlags(fs, &f.validator)
	addCommonFlags(fs, &f.common)

	if err := parseFlags(fs, args); err != nil {
		return nil, nil, nil, err
	}
	return f, fs, fs.Args(), nil
}

// parseCheckFlags parses check command flags and returns positional args.
func parseCheckFlags(args []string, stderr io.Writer) (*checkFlags, *flag.FlagSet, []string, error) {
	fs := newFlagSet("check", stderr, printCheckUsage)
	f := &checkFlags{}

	fs.IntVarP(&f.workers, "workers", "w", 0, "books checked in parallel (0 = auto)")
	addValidatorFlags(fs, &f.validator)
	addCommonFlags(fs, &f.common)

	if err := parseFlags(fs, args); err != nil {
		return nil, nil, nil, err
	}
	return f, fs, fs.Args(), nil
}

// applyCommonFlags copies explicitly set common flags into cfg.
func applyCommonFlags(fs *flag.FlagSet, f *commonFlags, cfg *config.Config) {
	if fs.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
}

// applyValidatorFlags copies explicitly set validator flags into cfg.
func applyValidatorFlags(fs *flag.FlagSet, f *validatorFlags, cfg *config.Config) {
	if fs.Changed("jar") {
		cfg.Validator.Jar = f.jar
	}
	if fs.Changed("java") {
		cfg.Validator.Java = f.java
	}
	if fs.Changed("timeout") {
		cfg.Validator.Timeout = f.timeout
	}
}

// applyFixFlags copies explicitly set fix flags into cfg. Disabled rules
// from flags are added to those of the config file.
func applyFixFlags(fs *flag.FlagSet, f *fixFlags, cfg *config.Config) {
	applyCommonFlags(fs, &f.common, cfg)
	applyValidatorFlags(fs, &f.validator, cfg)

	if fs.Changed("suffix") {
		cfg.Output.Suffix = f.suffix
	}
	if fs.Changed("max-iterations") {
		cfg.Fix.MaxIterations = f.maxIterations
	}
	if fs.Changed("disable") {
		cfg.Fix.Disable = append(cfg.Fix.Disable, f.disable...)
	}
	if fs.Changed("language") {
		cfg.Fix.Language = f.language
	}
	if fs.Changed("stylesheet") {
		cfg.Fix.Stylesheet = f.stylesheet
	}
	if fs.Changed("skip-valid") {
		cfg.Fix.SkipValid = f.skipValid
	}
	if fs.Changed("workers") {
		cfg.Workers = f.workers
	}
}

// applyCheckFlags copies explicitly set check flags into cfg.
func applyCheckFlags(fs *flag.FlagSet, f *checkFlags, cfg *config.Config) {
	applyCommonFlags(fs, &f.common, cfg)
	applyValidatorFlags(fs, &f.validator, cfg)
	if fs.Changed("workers") {
		cfg.Workers = f.workers
	}
}
