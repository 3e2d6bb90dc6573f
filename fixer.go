package epubfix

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultMaxIterations is the pass cap used when Fixer.MaxIterations is zero.
const DefaultMaxIterations = 5

// Fixer repairs ePub files by applying rules and re-validating until the
// validator is satisfied, no rule applies, or MaxIterations is reached.
//
// A Fixer holds no per-book state and may be used for several books
// concurrently as long as its Validator is safe for concurrent use.
type Fixer struct {
	// Validator checks each repacked book. When nil, every rule is applied
	// once and the book is repacked without validation.
	Validator Validator

	// Rules are applied in order. Defaults to DefaultRules(RuleOptions{}).
	Rules []Rule

	// MaxIterations caps the number of passes. Defaults to DefaultMaxIterations.
	MaxIterations int

	// SkipValid validates the input first and copies it unchanged to the
	// output when it already passes.
	SkipValid bool

	// TempDir is where workspaces are created. Defaults to os.TempDir.
	TempDir string

	// Logger receives progress records. Defaults to a discarding logger.
	Logger *slog.Logger
}

// Fix repairs the ePub at input and writes the result to output.
//
// The returned Result is non-nil whenever the book could be opened, and
// describes every pass even when an error is returned. Errors wrap
// ErrNoProgress or ErrIterationLimit when the book is still invalid.
func (f *Fixer) Fix(ctx context.Context, input, output string) (*Result, error) {
	log := f.logger().With("input", input)
	res := &Result{Input: input, Output: output}

	if f.SkipValid && f.Validator != nil {
		report, err := f.Validator.Validate(ctx, input)
		if err != nil {
			return res, err
		}
		res.Precheck = report
		if report.Passed() {
			log.Info("input already valid", "warnings", report.Count(SeverityWarning))
			return res, copyFile(input, output)
		}
	}

	ws, err := OpenWorkspace(input, f.TempDir)
	if err != nil {
		return res, err
	}
	dir := ws.Root()
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Warn("remove workspace", "dir", dir, "err", cerr)
		}
	}()
	res.Warnings = ws.Warnings()
	for _, w := range res.Warnings {
		log.Warn(w)
	}

	rules := f.Rules
	if rules == nil {
		rules = DefaultRules(RuleOptions{})
	}
	maxIter := f.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	selected := rules
	for n := 1; n <= maxIter; n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		pass := Pass{Number: n, Rules: ruleNames(selected)}
		changes, err := ApplyRules(ws, selected)
		pass.Changes = changes
		if err != nil {
			res.Passes = append(res.Passes, pass)
			return res, err
		}
		log.Info("applied rules", "pass", n, "rules", len(selected), "changes", len(changes))
		for _, c := range changes {
			log.Debug("changed file", "pass", n, "rule", c.Rule, "path", c.Path, "note", c.Note)
		}

		if err := ws.Pack(output); err != nil {
			res.Passes = append(res.Passes, pass)
			return res, err
		}

		if f.Validator == nil {
			res.Passes = append(res.Passes, pass)
			return res, nil
		}

		report, err := f.Validator.Validate(ctx, output)
		pass.Report = report
		res.Passes = append(res.Passes, pass)
		if err != nil {
			return res, err
		}
		log.Info("validated", "pass", n,
			"fatals", report.Count(SeverityFatal),
			"errors", report.Count(SeverityError),
			"warnings", report.Count(SeverityWarning))

		if report.Passed() {
			return res, nil
		}
		if len(changes) == 0 {
			return res, fmt.Errorf("epubfix: pass %d changed nothing, remaining codes %v: %w", n, report.Codes(), ErrNoProgress)
		}
		selected = RulesFor(rules, report)
		if len(selected) == 0 {
			return res, fmt.Errorf("epubfix: no rule addresses codes %v: %w", report.Codes(), ErrNoProgress)
		}
	}
	return res, fmt.Errorf("epubfix: still invalid after %d passes: %w", maxIter, ErrIterationLimit)
}

func (f *Fixer) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ruleNames(rules []Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name()
	}
	return names
}

// copyFile copies src to dst, creating dst's directory if needed.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("epubfix: read %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), dirPermissions); err != nil {
		return fmt.Errorf("epubfix: create output directory: %w", err)
	}
	if err := os.WriteFile(dst, data, filePermissions); err != nil {
		return fmt.Errorf("epubfix: write %s: %w", dst, err)
	}
	return nil
}
