package epubfix

import (
	"bytes"
	"fmt"
	"time"
)

// Rule is a single repair applied to a Workspace.
type Rule interface {
	// Name is the stable identifier used to disable the rule.
	Name() string

	// Description is a one-line summary for listings.
	Description() string

	// Codes lists the epubcheck message codes the rule addresses.
	Codes() []string

	// Apply modifies the workspace and reports what was changed.
	Apply(ws *Workspace) ([]Change, error)
}

// RuleOptions configures the rules built by DefaultRules.
type RuleOptions struct {
	// Disabled lists rule names to leave out.
	Disabled []string

	// Language is written as dc:language when the package has none.
	// Defaults to "en".
	Language string

	// Stylesheet is the content of stub files created for missing
	// stylesheets. Defaults to a minimal reading style.
	Stylesheet string

	// Now returns the time written to dcterms:modified. Defaults to time.Now.
	Now func() time.Time

	// NewIdentifier returns the value of a generated dc:identifier.
	// Defaults to a random urn:uuid.
	NewIdentifier func() string
}

// DefaultRules returns the built-in rules in application order, leaving out
// the names listed in opts.Disabled.
//
// Encoding fixes come first: the OPF has to be UTF-8 before it can be
// parsed, and package-level fixes that follow make it parseable for the
// version-aware and book-level rules. Markup fixes come next, and rules that
// look across documents (identifiers, stylesheets, fragments) run last.
func DefaultRules(opts RuleOptions) []Rule {
	opts = opts.withDefaults()
	all := []Rule{
		mimetypeRule{},
		charsetRule(),
		metaEncodingRule(),
		packageMetadataRule(),
		&requiredMetadataRule{opts: opts},
		malformedMetaRule(),
		metaLineBreaksRule(),
		metaSpacingRule(),
		malformedBracketsRule(),
		bareAmpersandsRule(),
		htmlEntitiesRule(),
		divInParagraphRule(),
		forbiddenAttributesRule{},
		dimensionAttributesRule(),
		emptyTitlesRule(),
		cssLinksRule(),
		ncxPlayOrderRule(),
		ncxUIDRule{},
		&missingStylesheetsRule{content: opts.Stylesheet},
		fragmentIDsRule{},
	}

	disabled := make(map[string]bool, len(opts.Disabled))
	for _, name := range opts.Disabled {
		disabled[name] = true
	}
	out := make([]Rule, 0, len(all))
	for _, r := range all {
		if !disabled[r.Name()] {
			out = append(out, r)
		}
	}
	return out
}

// RuleNames returns the names of all built-in rules in application order.
func RuleNames() []string {
	rules := DefaultRules(RuleOptions{})
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name()
	}
	return names
}

// RulesFor returns the rules, in their original order, that address at least
// one FATAL or ERROR code in the report.
func RulesFor(rules []Rule, report *Report) []Rule {
	codes := make(map[string]bool)
	for _, c := range report.Codes() {
		codes[c] = true
	}
	var out []Rule
	for _, r := range rules {
		for _, c := range r.Codes() {
			if codes[c] {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// ApplyRules applies rules to ws in order and returns all changes.
// The first rule error aborts the run.
func ApplyRules(ws *Workspace, rules []Rule) ([]Change, error) {
	var changes []Change
	for _, r := range rules {
		c, err := r.Apply(ws)
		changes = append(changes, c...)
		if err != nil {
			return changes, fmt.Errorf("epubfix: rule %s: %w", r.Name(), err)
		}
	}
	return changes, nil
}

// textRule applies a pure text transformation to every document of the
// listed kinds. Files whose content does not change are not rewritten.
type textRule struct {
	name        string
	description string
	codes       []string
	kinds       []DocKind
	fix         func(string) string
}

func (r *textRule) Name() string        { return r.name }
func (r *textRule) Description() string { return r.description }
func (r *textRule) Codes() []string     { return append([]string(nil), r.codes...) }

// Apply implements Rule.
func (r *textRule) Apply(ws *Workspace) ([]Change, error) {
	var changes []Change
	for _, kind := range r.kinds {
		for _, p := range ws.Paths(kind) {
			data, err := ws.ReadFile(p)
			if err != nil {
				return changes, err
			}
			fixed := []byte(r.fix(string(data)))
			if bytes.Equal(fixed, data) {
				continue
			}
			if err := ws.WriteFile(p, fixed); err != nil {
				return changes, err
			}
			changes = append(changes, Change{Rule: r.name, Path: p})
		}
	}
	return changes, nil
}

// defaultStylesheet is written for stylesheets that are referenced but absent.
const defaultStylesheet = `/* Generated by epubfix: the original stylesheet was missing. */
body {
    font-family: serif;
    margin: 1em;
    line-height: 1.4;
}

h1, h2, h3, h4, h5, h6 {
    font-weight: bold;
    margin: 1em 0 0.5em 0;
}

p {
    margin: 0 0 1em 0;
    text-indent: 1em;
}

img {
    max-width: 100%;
    height: auto;
}
`

func (o RuleOptions) withDefaults() RuleOptions {
	if o.Language == "" {
		o.Language = "en"
	}
	if o.Stylesheet == "" {
		o.Stylesheet = defaultStylesheet
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewIdentifier == nil {
		o.NewIdentifier = newUUIDIdentifier
	}
	return o
}
