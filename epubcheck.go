package epubfix

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/simp-lee/epubfix/internal/process"
)

// Validator checks an ePub file and reports what is wrong with it.
type Validator interface {
	Validate(ctx context.Context, path string) (*Report, error)
}

// Compile-time interface implementation check.
var _ Validator = (*EpubCheck)(nil)

// EpubCheck runs the epubcheck jar through a Java runtime.
type EpubCheck struct {
	// Java is the java executable. Defaults to "java" on PATH.
	Java string

	// Jar is the path to epubcheck.jar. Required.
	Jar string

	// Args are extra arguments placed before the ePub path
	// (e.g., "--profile", "default").
	Args []string

	// Timeout bounds a single run. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// waitDelay bounds how long Wait blocks on output pipes after the process
// group has been killed.
const waitDelay = 5 * time.Second

// maxOutputTail is how much validator output is quoted in errors.
const maxOutputTail = 2048

// Validate runs epubcheck on path and parses its output.
//
// A zero exit status yields a passing report. A non-zero status with parsed
// messages yields a failing report and a nil error. A non-zero status
// without any recognisable message returns ErrValidatorFailed.
func (e *EpubCheck) Validate(ctx context.Context, path string) (*Report, error) {
	if e.Jar == "" {
		return nil, fmt.Errorf("epubfix: epubcheck jar not configured: %w", ErrValidatorNotFound)
	}
	if _, err := os.Stat(e.Jar); err != nil {
		return nil, fmt.Errorf("epubfix: epubcheck jar %s: %w", e.Jar, ErrValidatorNotFound)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	java := e.Java
	if java == "" {
		java = "java"
	}
	args := append([]string{"-jar", e.Jar}, e.Args...)
	args = append(args, path)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, java, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	process.Isolate(cmd)
	cmd.Cancel = func() error {
		process.KillProcessGroup(cmd.Process.Pid)
		return nil
	}
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	if runErr != nil && (errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist)) {
		return nil, fmt.Errorf("epubfix: %s: %w", java, ErrValidatorNotFound)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("epubfix: epubcheck %s: %w", path, ctxErr)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("epubfix: run epubcheck: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	report, err := ParseReport(bytes.NewReader(out.Bytes()))
	if err != nil {
		return nil, err
	}
	report.ExitCode = exitCode
	report.Output = out.String()

	if exitCode != 0 && len(report.Messages) == 0 {
		return nil, fmt.Errorf("epubfix: epubcheck exited with status %d: %s: %w",
			exitCode, outputTail(report.Output), ErrValidatorFailed)
	}
	if exitCode != 0 && report.Passed() {
		// epubcheck exits non-zero only for errors; keep the status visible
		// by synthesising a message when the text output lacked one.
		report.Messages = append(report.Messages, Message{
			Severity: SeverityError,
			Code:     "EXIT",
			Line:     -1,
			Column:   -1,
			Text:     "epubcheck exited with status " + strconv.Itoa(exitCode),
		})
	}
	return report, nil
}

// outputTail returns the last maxOutputTail bytes of s, trimmed.
func outputTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutputTail {
		s = "..." + s[len(s)-maxOutputTail:]
	}
	return s
}

var (
	// messagePattern matches "SEVERITY(CODE): rest".
	messagePattern = regexp.MustCompile(`^(FATAL|ERROR|WARNING|INFO|USAGE)\(([A-Za-z]+-[0-9]+[a-z]?)\):\s*(.*)$`)

	// locatedPattern matches "location(line,col): text".
	locatedPattern = regexp.MustCompile(`^(.*?)\((-?[0-9]+),(-?[0-9]+)\):\s*(.*)$`)
)

// ParseReport parses epubcheck plain-text output. Lines that are not
// messages (banners, summaries) are ignored. Paths are reduced to their
// archive-internal part: "/books/a.epub/OEBPS/ch1.xhtml" becomes
// "OEBPS/ch1.xhtml", and a location naming only the ePub becomes "".
func ParseReport(r io.Reader) (*Report, error) {
	report := &Report{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if m, ok := parseMessage(strings.TrimRight(sc.Text(), "\r")); ok {
			report.Messages = append(report.Messages, m)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("epubfix: read validator output: %w", err)
	}
	return report, nil
}

// parseMessage parses a single output line.
func parseMessage(line string) (Message, bool) {
	sub := messagePattern.FindStringSubmatch(strings.TrimSpace(line))
	if sub == nil {
		return Message{}, false
	}
	msg := Message{
		Severity: Severity(sub[1]),
		Code:     sub[2],
		Line:     -1,
		Column:   -1,
	}
	rest := sub[3]

	if loc := locatedPattern.FindStringSubmatch(rest); loc != nil {
		msg.Path = archivePath(loc[1])
		msg.Line, _ = strconv.Atoi(loc[2])
		msg.Column, _ = strconv.Atoi(loc[3])
		msg.Text = loc[4]
		return msg, true
	}

	if location, text, ok := strings.Cut(rest, ": "); ok && looksLikeLocation(location) {
		msg.Path = archivePath(location)
		msg.Text = text
		return msg, true
	}
	msg.Text = rest
	return msg, true
}

// looksLikeLocation reports whether s is plausibly a file location rather
// than the first clause of a message.
func looksLikeLocation(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, ".epub") || strings.ContainsAny(s, "/\\")
}

// archivePath strips everything up to and including the ".epub/" segment.
func archivePath(location string) string {
	location = strings.ReplaceAll(strings.TrimSpace(location), "\\", "/")
	lower := lowerASCII(location)
	if i := strings.LastIndex(lower, ".epub/"); i != -1 {
		return location[i+len(".epub/"):]
	}
	if strings.HasSuffix(lower, ".epub") {
		return ""
	}
	return location
}

// lowerASCII folds only ASCII letters, so byte offsets into the result are
// valid in s.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
