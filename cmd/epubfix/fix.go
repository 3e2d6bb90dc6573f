package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/simp-lee/epubfix"
	"github.com/simp-lee/epubfix/internal/config"
)

// fixOutcome holds the result of repairing one book.
type fixOutcome struct {
	job
	result   *epubfix.Result
	err      error
	duration time.Duration
}

// batchError summarizes a batch in which some books failed.
// It unwraps to the first failure so exitCodeFor can classify it.
type batchError struct {
	failed int
	total  int
	first  error
}

func (e *batchError) Error() string {
	return fmt.Sprintf("%d of %d books failed", e.failed, e.total)
}

func (e *batchError) Unwrap() error { return e.first }

// runFix implements the fix command.
func runFix(ctx context.Context, args []string, env *Environment) error {
	f, fs, positional, err := parseFixFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(env, f.common.config)
	if err != nil {
		return err
	}
	applyFixFlags(fs, f, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(env.Stderr, cfg.Log, f.common.quiet, f.common.verbose)

	fixer, err := buildFixer(cfg, f.noValidate, env, log)
	if err != nil {
		return err
	}

	inputs, err := expandInputs(positional, cfg.Output.Suffix)
	if err != nil {
		return err
	}
	jobs, err := planJobs(inputs, f.output, cfg.Output)
	if err != nil {
		return err
	}

	outcomes := fixBatch(ctx, fixer, jobs, cfg.Workers, env.Now)
	return printFixResults(env.Stdout, outcomes, f.common.quiet, f.common.verbose)
}

// buildFixer assembles the rules and validator described by cfg.
// Without a configured jar the books are repaired in a single unvalidated
// pass, and a warning says so unless noValidate asked for it.
func buildFixer(cfg *config.Config, noValidate bool, env *Environment, log *slog.Logger) (*epubfix.Fixer, error) {
	if err := checkRuleNames(cfg.Fix.Disable); err != nil {
		return nil, err
	}

	opts := epubfix.RuleOptions{
		Disabled: cfg.Fix.Disable,
		Language: cfg.Fix.Language,
		Now:      env.Now,
	}
	if cfg.Fix.Stylesheet != "" {
		data, err := os.ReadFile(cfg.Fix.Stylesheet) // #nosec G304 -- user-provided stylesheet
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadStylesheet, err)
		}
		opts.Stylesheet = string(data)
	}

	fixer := &epubfix.Fixer{
		Rules:         epubfix.DefaultRules(opts),
		MaxIterations: cfg.Fix.MaxIterations,
		SkipValid:     cfg.Fix.SkipValid,
		Logger:        log,
	}

	switch {
	case noValidate:
	case cfg.Validator.Jar == "":
		log.Warn("no epubcheck jar configured; repairing without validation")
	default:
		v, err := newValidator(cfg.Validator)
		if err != nil {
			return nil, err
		}
		fixer.Validator = v
	}
	return fixer, nil
}

// fixBatch repairs every job, running up to workers books at once.
func fixBatch(ctx context.Context, fixer *epubfix.Fixer, jobs []job, workers int, now func() time.Time) []fixOutcome {
	outcomes := make([]fixOutcome, len(jobs))
	forEach(ctx, len(jobs), workers,
		func(i int) {
			start := now()
			res, err := fixer.Fix(ctx, jobs[i].input, jobs[i].output)
			outcomes[i] = fixOutcome{job: jobs[i], result: res, err: err, duration: now().Sub(start)}
		},
		func(i int, err error) {
			outcomes[i] = fixOutcome{job: jobs[i], err: err}
		},
	)
	return outcomes
}

// printFixResults writes one line per book and returns the error that
// decides the exit code. A single failed book returns its own error.
func printFixResults(w io.Writer, outcomes []fixOutcome, quiet, verbose bool) error {
	var (
		failed int
		first  error
	)
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			if first == nil {
				first = o.err
			}
			if len(outcomes) > 1 {
				fmt.Fprintf(w, "FAIL %s: %v\n", o.input, o.err)
			}
			if o.result != nil && isStillInvalid(o.err) && !quiet {
				printMessages(w, o.result.Report(), verbose)
			}
			continue
		}
		if quiet {
			continue
		}
		fmt.Fprintf(w, "ok   %s -> %s (%s)\n", o.input, o.output, summarize(o))
		if verbose && o.result != nil {
			for _, c := range o.result.Changes() {
				fmt.Fprintf(w, "       %s: %s%s\n", c.Rule, c.Path, noteSuffix(c.Note))
			}
		}
	}

	switch {
	case failed == 0:
		return nil
	case len(outcomes) == 1:
		return first
	default:
		return &batchError{failed: failed, total: len(outcomes), first: first}
	}
}

// summarize describes a successful outcome in a few words.
func summarize(o fixOutcome) string {
	res := o.result
	state := "not validated"
	switch {
	case res.Report() != nil && len(res.Passes) == 0:
		state = "already valid, copied"
	case res.Report() != nil:
		state = "valid"
	}
	return fmt.Sprintf("%s, %d passes, %d changes, %s",
		state, len(res.Passes), len(res.Changes()), o.duration.Round(time.Millisecond))
}

func noteSuffix(note string) string {
	if note == "" {
		return ""
	}
	return " (" + note + ")"
}

// isStillInvalid reports whether err means the book was repaired as far as
// possible but still fails validation.
func isStillInvalid(err error) bool {
	return errors.Is(err, epubfix.ErrNoProgress) || errors.Is(err, epubfix.ErrIterationLimit)
}
