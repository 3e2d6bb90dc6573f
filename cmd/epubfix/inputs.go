package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/simp-lee/epubfix/internal/config"
)

// job is one book to repair.
type job struct {
	input  string
	output string
}

// expandInputs resolves the positional arguments into ePub files.
// Directories are searched recursively for *.epub files, skipping files that
// already carry suffix (outputs of an earlier run). Files named explicitly
// are always kept.
func expandInputs(args []string, suffix string) ([]string, error) {
	if len(args) == 0 {
		return nil, ErrNoInput
	}

	var books []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		if !info.IsDir() {
			books = append(books, arg)
			continue
		}

		var found []string
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".epub") {
				return nil
			}
			if suffix != "" && strings.HasSuffix(strings.TrimSuffix(d.Name(), filepath.Ext(p)), suffix) {
				return nil
			}
			found = append(found, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", arg, err)
		}
		sort.Strings(found)
		books = append(books, found...)
	}

	if len(books) == 0 {
		return nil, fmt.Errorf("%w: no .epub files in %s", ErrNoInput, strings.Join(args, ", "))
	}
	return books, nil
}

// planJobs pairs every input with its output path. output is the --output
// flag; for several books it must name a directory.
func planJobs(inputs []string, output string, out config.OutputConfig) ([]job, error) {
	multi := len(inputs) > 1
	seen := make(map[string]string, len(inputs))
	jobs := make([]job, 0, len(inputs))
	for _, in := range inputs {
		dst, err := outputPath(in, output, out, multi)
		if err != nil {
			return nil, err
		}
		key := filepath.Clean(dst)
		if sameFile(in, dst) {
			return nil, fmt.Errorf("%w: %s would overwrite its input", ErrInvalidOutput, dst)
		}
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %s and %s both write %s", ErrInvalidOutput, prev, in, dst)
		}
		seen[key] = in
		jobs = append(jobs, job{input: in, output: dst})
	}
	return jobs, nil
}

// sameFile reports whether a and b name the same file, either by path or,
// when both exist, by identity.
func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}

// outputPath returns where the repaired copy of input is written.
func outputPath(input, output string, out config.OutputConfig, multi bool) (string, error) {
	name := fixedName(input, out.Suffix)
	switch {
	case output == "":
		dir := out.Dir
		if dir == "" {
			dir = filepath.Dir(input)
		}
		return filepath.Join(dir, name), nil
	case isDirTarget(output):
		return filepath.Join(output, name), nil
	case multi:
		if info, err := os.Stat(output); err == nil && !info.IsDir() {
			return "", fmt.Errorf("%w: %s is a file but several books were given", ErrInvalidOutput, output)
		}
		return filepath.Join(output, name), nil
	default:
		return output, nil
	}
}

// fixedName returns the base name of input with suffix inserted before
// the .epub extension.
func fixedName(input, suffix string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + suffix + ".epub"
}

// isDirTarget reports whether p names a directory, existing or spelled
// with a trailing separator.
func isDirTarget(p string) bool {
	if strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(filepath.Separator)) {
		return true
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
