package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/simp-lee/epubfix"
)

// checkOutcome holds the validator result for one book.
type checkOutcome struct {
	input  string
	report *epubfix.Report
	err    error
}

// runCheck implements the check command: validate only, never modify.
func runCheck(ctx context.Context, args []string, env *Environment) error {
	f, fs, positional, err := parseCheckFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(env, f.common.config)
	if err != nil {
		return err
	}
	applyCheckFlags(fs, f, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	validator, err := newValidator(cfg.Validator)
	if err != nil {
		return err
	}
	inputs, err := expandInputs(positional, "")
	if err != nil {
		return err
	}

	outcomes := make([]checkOutcome, len(inputs))
	forEach(ctx, len(inputs), cfg.Workers,
		func(i int) {
			report, err := validator.Validate(ctx, inputs[i])
			outcomes[i] = checkOutcome{input: inputs[i], report: report, err: err}
		},
		func(i int, err error) {
			outcomes[i] = checkOutcome{input: inputs[i], err: err}
		},
	)
	return printCheckResults(env.Stdout, outcomes, f.common.quiet, f.common.verbose)
}

// printCheckResults prints a verdict line per book followed by its messages.
// Validator failures take precedence over invalid books for the exit code.
func printCheckResults(w io.Writer, outcomes []checkOutcome, quiet, verbose bool) error {
	var (
		runErr  error
		invalid int
	)
	for _, o := range outcomes {
		if o.err != nil {
			if runErr == nil {
				runErr = o.err
			}
			fmt.Fprintf(w, "FAIL %s: %v\n", o.input, o.err)
			continue
		}
		if !o.report.Passed() {
			invalid++
		}
		if quiet && o.report.Passed() {
			continue
		}
		fmt.Fprintf(w, "%s %s (%d fatal, %d errors, %d warnings)\n",
			verdict(o.report), o.input,
			o.report.Count(epubfix.SeverityFatal),
			o.report.Count(epubfix.SeverityError),
			o.report.Count(epubfix.SeverityWarning))
		if !quiet {
			printMessages(w, o.report, verbose)
		}
	}

	switch {
	case runErr != nil && len(outcomes) == 1:
		return runErr
	case runErr != nil:
		return &batchError{failed: len(outcomes) - countPassed(outcomes), total: len(outcomes), first: runErr}
	case invalid > 0:
		return fmt.Errorf("%d of %d books: %w", invalid, len(outcomes), ErrBookInvalid)
	}
	return nil
}

func verdict(r *epubfix.Report) string {
	if r.Passed() {
		return "valid  "
	}
	return "invalid"
}

func countPassed(outcomes []checkOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.err == nil && o.report.Passed() {
			n++
		}
	}
	return n
}

// printMessages lists the messages of r, indented. Only FATAL, ERROR and
// WARNING messages are shown unless verbose is set.
func printMessages(w io.Writer, r *epubfix.Report, verbose bool) {
	if r == nil {
		return
	}
	for _, m := range r.Messages {
		if !verbose && !m.Severity.IsError() && m.Severity != epubfix.SeverityWarning {
			continue
		}
		fmt.Fprintf(w, "       %s(%s) %s: %s\n", m.Severity, m.Code, location(m), m.Text)
	}
}

// location formats the path and position of a message.
func location(m epubfix.Message) string {
	loc := m.Path
	if loc == "" {
		loc = "<book>"
	}
	if m.Line >= 0 {
		loc += ":" + strconv.Itoa(m.Line)
		if m.Column >= 0 {
			loc += ":" + strconv.Itoa(m.Column)
		}
	}
	return loc
}
