package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/simp-lee/epubfix"
	"github.com/simp-lee/epubfix/internal/config"
)

// Sentinel errors for CLI operations.
var (
	ErrUsage          = errors.New("invalid usage")
	ErrNoInput        = errors.New("no input specified")
	ErrInvalidOutput  = errors.New("invalid output path")
	ErrUnknownRule    = errors.New("unknown rule")
	ErrReadStylesheet = errors.New("failed to read stylesheet")
	ErrBookInvalid    = errors.New("book fails validation")
)

// run executes the command line (without the program name) and returns the
// process exit code.
func run(ctx context.Context, args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "fix":
		err = runFix(ctx, rest, env)
	case "check":
		err = runCheck(ctx, rest, env)
	case "rules":
		err = runRules(rest, env)
	case "config":
		err = runConfig(rest, env)
	case "version", "--version":
		fmt.Fprintf(env.Stdout, "epubfix %s\n", Version)
		return ExitSuccess
	case "help", "-h", "--help":
		return runHelp(rest, env)
	default:
		if !strings.HasPrefix(cmd, "-") && !strings.EqualFold(filepath.Ext(cmd), ".epub") {
			fmt.Fprintf(env.Stderr, "epubfix: unknown command %q\n\n", cmd)
			printUsage(env.Stderr)
			return ExitUsage
		}
		// "epubfix book.epub" is shorthand for "epubfix fix book.epub".
		err = runFix(ctx, args, env)
	}

	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintln(env.Stderr, "epubfix:", err)
	}
	return exitCodeFor(err)
}

// loadConfig resolves settings from the config file, then the environment.
// The config file comes from --config, else EPUBFIX_CONFIG; without either
// the defaults are used.
func loadConfig(env *Environment, configFlag string) (*config.Config, error) {
	envCfg := loadEnvConfig(env.Getenv)
	warnUnknownEnvVars(env.Stderr, env.Environ())

	path := configFlag
	if path == "" {
		path = envCfg.ConfigPath
	}

	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	applyEnvConfig(envCfg, cfg)
	return cfg, nil
}

// checkRuleNames rejects names that do not match a built-in rule.
func checkRuleNames(names []string) error {
	known := make(map[string]bool)
	for _, n := range epubfix.RuleNames() {
		known[n] = true
	}
	for _, n := range names {
		if !known[n] {
			return fmt.Errorf("%w: %q (see 'epubfix rules')", ErrUnknownRule, n)
		}
	}
	return nil
}

// newValidator builds an epubcheck runner from cfg. The jar must be set.
func newValidator(cfg config.ValidatorConfig) (*epubfix.EpubCheck, error) {
	if cfg.Jar == "" {
		return nil, fmt.Errorf("set --jar, EPUBFIX_JAR or validator.jar: %w", epubfix.ErrValidatorNotFound)
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return &epubfix.EpubCheck{
		Java:    cfg.Java,
		Jar:     cfg.Jar,
		Args:    cfg.Args,
		Timeout: timeout,
	}, nil
}
