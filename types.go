package epubfix

import "strings"

// Severity is the level of a validator message.
type Severity string

// Severities reported by epubcheck, from most to least severe.
const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
	SeverityUsage   Severity = "USAGE"
)

// IsError reports whether the severity makes a book fail validation.
func (s Severity) IsError() bool {
	return s == SeverityFatal || s == SeverityError
}

// Message is a single line of validator output.
type Message struct {
	// Severity is the message level (e.g., ERROR, WARNING).
	Severity Severity

	// Code is the epubcheck message identifier (e.g., "RSC-005").
	Code string

	// Path is the archive-internal path the message refers to
	// (e.g., "OEBPS/text/ch01.xhtml"). Empty for book-level messages.
	Path string

	// Line and Column locate the message inside Path.
	// Both are -1 when the validator did not report a position.
	Line   int
	Column int

	// Text is the human-readable message.
	Text string
}

// Report is the parsed result of one validator run.
type Report struct {
	// Messages holds every recognised message in output order.
	Messages []Message

	// ExitCode is the validator process exit status.
	ExitCode int

	// Output is the raw combined validator output.
	Output string
}

// Passed reports whether the report contains no FATAL or ERROR messages.
// A nil report never passes.
func (r *Report) Passed() bool {
	if r == nil {
		return false
	}
	for _, m := range r.Messages {
		if m.Severity.IsError() {
			return false
		}
	}
	return true
}

// Codes returns the distinct message codes of FATAL and ERROR messages,
// in order of first appearance.
func (r *Report) Codes() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool)
	var codes []string
	for _, m := range r.Messages {
		if !m.Severity.IsError() || seen[m.Code] {
			continue
		}
		seen[m.Code] = true
		codes = append(codes, m.Code)
	}
	return codes
}

// Count returns the number of messages with the given severity.
func (r *Report) Count(s Severity) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, m := range r.Messages {
		if m.Severity == s {
			n++
		}
	}
	return n
}

// Change records a single file modification made by a rule.
type Change struct {
	// Rule is the name of the rule that made the change.
	Rule string

	// Path is the archive-internal path of the modified or created file.
	Path string

	// Note is an optional short description (e.g., "created stub").
	Note string
}

// Pass is one apply-repack-validate round.
type Pass struct {
	// Number is the 1-based pass number.
	Number int

	// Rules lists the names of the rules applied during this pass.
	Rules []string

	// Changes lists every modification made during this pass.
	Changes []Change

	// Report is the validator report for the repacked book.
	// Nil when the Fixer has no validator.
	Report *Report
}

// Result describes the outcome of Fixer.Fix.
type Result struct {
	// Input and Output are the source and destination ePub paths.
	Input  string
	Output string

	// Precheck is the report of the unmodified input, when requested.
	Precheck *Report

	// Passes holds every completed pass in order.
	Passes []Pass

	// Warnings holds non-fatal notes gathered while opening the book.
	Warnings []string
}

// Report returns the last validator report, or nil if none was produced.
func (r *Result) Report() *Report {
	for i := len(r.Passes) - 1; i >= 0; i-- {
		if r.Passes[i].Report != nil {
			return r.Passes[i].Report
		}
	}
	return r.Precheck
}

// Passed reports whether the last validator report passed.
func (r *Result) Passed() bool {
	return r.Report().Passed()
}

// Changes returns all changes across passes.
func (r *Result) Changes() []Change {
	var out []Change
	for _, p := range r.Passes {
		out = append(out, p.Changes...)
	}
	return out
}

// DocKind classifies workspace files by what rules can do with them.
type DocKind int

// Document kinds recognised by the workspace.
const (
	KindOther DocKind = iota
	KindXHTML
	KindPackage
	KindNCX
	KindCSS
)

// String returns a short lowercase name for the kind.
func (k DocKind) String() string {
	switch k {
	case KindXHTML:
		return "xhtml"
	case KindPackage:
		return "opf"
	case KindNCX:
		return "ncx"
	case KindCSS:
		return "css"
	default:
		return "other"
	}
}

// kindOf determines the document kind from a file name extension.
func kindOf(name string) DocKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".xhtml"), strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return KindXHTML
	case strings.HasSuffix(lower, ".opf"):
		return KindPackage
	case strings.HasSuffix(lower, ".ncx"):
		return KindNCX
	case strings.HasSuffix(lower, ".css"):
		return KindCSS
	default:
		return KindOther
	}
}
