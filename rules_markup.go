package epubfix

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	malformedMetaPattern  = regexp.MustCompile(`<meta\b([^>]*?)\s*/(?:\s*/)+\s*>`)
	brokenCharsetPattern  = regexp.MustCompile(`(charset\s*=\s*"[^"]*")/"`)
	metaTagPattern        = regexp.MustCompile(`<meta\b[^>]*>`)
	lineBreakPattern      = regexp.MustCompile(`\s*[\r\n]+\s*`)
	duplicateLTPattern    = regexp.MustCompile(`<{2,}([A-Za-z/!?])`)
	strayLTPattern        = regexp.MustCompile(`<([^A-Za-z/!?_:]|$)`)
	ampersandPattern      = regexp.MustCompile(`&(#[0-9]+;|#[xX][0-9a-fA-F]+;|[A-Za-z][A-Za-z0-9]*;)?`)
	divInParagraphPattern = regexp.MustCompile(`(?s)<p(\s[^>]*)?>(\s*<div\b.*?</div>\s*)</p>`)
	linkTagPattern        = regexp.MustCompile(`(?i)<link\b[^>]*>`)
	cdataPattern          = regexp.MustCompile(`(?s)<!\[CDATA\[.*?\]\]>`)
)

func metaEncodingRule() Rule {
	return &textRule{
		name:        "meta-encoding",
		description: "strip BOM, keep one leading XML declaration, declare utf-8",
		codes:       []string{"RSC-005", "RSC-016", "HTM-058"},
		kinds:       []DocKind{KindXHTML, KindNCX, KindPackage},
		fix:         cleanXMLDeclaration,
	}
}

// cleanXMLDeclaration removes a UTF-8 BOM and leading whitespace, keeps only
// the first XML declaration (and only if nothing but whitespace precedes it),
// and sets its encoding to utf-8. A document that is not valid UTF-8 keeps
// its declared encoding, which is still needed to read it.
func cleanXMLDeclaration(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	locs := xmlDeclPattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}

	first := locs[0]
	rest := xmlDeclPattern.ReplaceAllString(s[first[1]:], "")
	if strings.TrimSpace(s[:first[0]]) != "" {
		// A declaration after content is invalid; XML defaults to UTF-8.
		return s[:first[0]] + rest
	}

	decl := s[first[0]:first[1]]
	if utf8.ValidString(s) {
		decl = xmlEncodingPattern.ReplaceAllString(decl, "${1}utf-8${3}")
	}
	return decl + rest
}

func malformedMetaRule() Rule {
	return &textRule{
		name:        "malformed-meta",
		description: "collapse repeated slashes closing <meta> tags",
		codes:       []string{"RSC-005", "RSC-016"},
		kinds:       []DocKind{KindXHTML},
		fix:         fixMalformedMeta,
	}
}

// fixMalformedMeta rewrites <meta ... // /> as <meta ... /> and repairs a
// stray slash-quote after a charset value (charset="utf-8"/").
func fixMalformedMeta(s string) string {
	s = malformedMetaPattern.ReplaceAllString(s, "<meta$1 />")
	return brokenCharsetPattern.ReplaceAllString(s, "$1")
}

func metaLineBreaksRule() Rule {
	return &textRule{
		name:        "meta-line-breaks",
		description: "join <meta> tags that span several lines",
		codes:       []string{"RSC-005"},
		kinds:       []DocKind{KindXHTML},
		fix:         fixMetaLineBreaks,
	}
}

// fixMetaLineBreaks replaces line breaks inside <meta> tags, along with the
// surrounding whitespace, by a single space.
func fixMetaLineBreaks(s string) string {
	return metaTagPattern.ReplaceAllStringFunc(s, func(tag string) string {
		return lineBreakPattern.ReplaceAllString(tag, " ")
	})
}

func metaSpacingRule() Rule {
	return &textRule{
		name:        "meta-spacing",
		description: "separate <meta> attributes that run together",
		codes:       []string{"RSC-005", "RSC-016"},
		kinds:       []DocKind{KindXHTML},
		fix:         fixMetaSpacing,
	}
}

// fixMetaSpacing inserts a space after a quoted attribute value that is
// directly followed by another attribute name inside a <meta> tag, as in
// <meta name="a"content="b"/>.
func fixMetaSpacing(s string) string {
	return metaTagPattern.ReplaceAllStringFunc(s, spaceAttributes)
}

// spaceAttributes walks a single tag and inserts the missing separators.
func spaceAttributes(tag string) string {
	var b strings.Builder
	b.Grow(len(tag) + 4)
	var quote byte
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		b.WriteByte(c)
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
				if i+1 < len(tag) && isNameStart(tag[i+1]) {
					b.WriteByte(' ')
				}
			}
		case c == '"' || c == '\'':
			quote = c
		}
	}
	return b.String()
}

// isNameStart reports whether c can start an XML attribute name.
func isNameStart(c byte) bool {
	return c == '_' || c == ':' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func malformedBracketsRule() Rule {
	return &textRule{
		name:        "malformed-brackets",
		description: "collapse doubled '<' before tags and escape stray '<'",
		codes:       []string{"RSC-016"},
		kinds:       []DocKind{KindXHTML},
		fix:         func(s string) string { return outsideCDATA(s, fixMalformedBrackets) },
	}
}

// fixMalformedBrackets turns "<<p>" into "<p>" and escapes any '<' that
// cannot start markup (e.g. "a < b") as "&lt;".
func fixMalformedBrackets(s string) string {
	s = duplicateLTPattern.ReplaceAllString(s, "<$1")
	return strayLTPattern.ReplaceAllString(s, "&lt;$1")
}

func bareAmpersandsRule() Rule {
	return &textRule{
		name:        "bare-ampersands",
		description: "escape '&' that does not start an entity reference",
		codes:       []string{"RSC-016"},
		kinds:       []DocKind{KindXHTML, KindNCX, KindPackage},
		fix:         func(s string) string { return outsideCDATA(s, escapeBareAmpersands) },
	}
}

// escapeBareAmpersands replaces '&' not followed by a character or entity
// reference with "&amp;".
func escapeBareAmpersands(s string) string {
	return ampersandPattern.ReplaceAllStringFunc(s, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})
}

func htmlEntitiesRule() Rule {
	return &textRule{
		name:        "html-entities",
		description: "replace HTML named entities with numeric character references",
		codes:       []string{"RSC-016"},
		kinds:       []DocKind{KindXHTML, KindNCX, KindPackage},
		fix:         func(s string) string { return string(preprocessHTMLEntities([]byte(s))) },
	}
}

func divInParagraphRule() Rule {
	return &textRule{
		name:        "div-in-paragraph",
		description: "turn a <p> that wraps a <div> into a <div>",
		codes:       []string{"RSC-005"},
		kinds:       []DocKind{KindXHTML},
		fix:         fixDivInParagraph,
	}
}

// fixDivInParagraph rewrites <p attrs><div>...</div></p> as
// <div attrs><div>...</div></div>. Flow content is not allowed inside <p>.
// The content must be well nested: divisions balance, and no paragraph
// starts or ends outside them. Otherwise the match may span several
// paragraphs and is left alone.
func fixDivInParagraph(s string) string {
	return divInParagraphPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := divInParagraphPattern.FindStringSubmatch(m)
		inner := sub[2]
		if !nestedInDivisions(inner) {
			return m
		}
		return "<div" + sub[1] + ">" + inner + "</div>"
	})
}

// paragraphDivTagPattern matches start and end tags of <p> and <div>.
var paragraphDivTagPattern = regexp.MustCompile(`<(/?)(p|div)\b[^>]*>`)

// nestedInDivisions reports whether the <div> tags in s balance and every
// <p> tag in s sits inside a division.
func nestedInDivisions(s string) bool {
	depth := 0
	for _, m := range paragraphDivTagPattern.FindAllStringSubmatch(s, -1) {
		closing, name := m[1] == "/", m[2]
		switch {
		case name == "p" && depth == 0:
			return false
		case name == "div" && closing:
			depth--
			if depth < 0 {
				return false
			}
		case name == "div" && !strings.HasSuffix(m[0], "/>"):
			depth++
		}
	}
	return depth == 0
}

func cssLinksRule() Rule {
	return &textRule{
		name:        "css-links",
		description: "normalize stylesheet <link> hrefs and add rel/type attributes",
		codes:       []string{"RSC-005", "RSC-007"},
		kinds:       []DocKind{KindXHTML},
		fix:         fixCSSLinks,
	}
}

// fixCSSLinks normalizes <link> elements that reference a .css file: the
// href uses forward slashes, rel is "stylesheet" and type is "text/css".
func fixCSSLinks(s string) string {
	return linkTagPattern.ReplaceAllStringFunc(s, func(tag string) string {
		href, ok := attrValue(tag, "href")
		if !ok || !isStylesheetHref(href) {
			return tag
		}
		if strings.Contains(href, "\\") {
			tag = setAttr(tag, "href", strings.ReplaceAll(href, "\\", "/"))
		}
		if rel, ok := attrValue(tag, "rel"); !ok || !strings.Contains(strings.ToLower(rel), "stylesheet") {
			tag = setAttr(tag, "rel", "stylesheet")
		}
		if _, ok := attrValue(tag, "type"); !ok {
			tag = setAttr(tag, "type", "text/css")
		}
		return tag
	})
}

// isStylesheetHref reports whether href names a .css file, ignoring any
// query or fragment.
func isStylesheetHref(href string) bool {
	href = strings.TrimSpace(href)
	if i := strings.IndexAny(href, "?#"); i != -1 {
		href = href[:i]
	}
	return strings.HasSuffix(strings.ToLower(href), ".css")
}

// outsideCDATA applies fix to every part of s that is not a CDATA section.
func outsideCDATA(s string, fix func(string) string) string {
	locs := cdataPattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return fix(s)
	}
	var b strings.Builder
	prev := 0
	for _, loc := range locs {
		b.WriteString(fix(s[prev:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		prev = loc[1]
	}
	b.WriteString(fix(s[prev:]))
	return b.String()
}

// attrPatterns caches compiled attribute matchers by attribute name.
var attrPatterns sync.Map

// attrPattern returns a matcher for name="value" or name='value' inside a
// tag. Attribute names are matched case-insensitively.
func attrPattern(name string) *regexp.Regexp {
	if re, ok := attrPatterns.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)(\s` + regexp.QuoteMeta(name) + `\s*=\s*)("([^"]*)"|'([^']*)')`)
	attrPatterns.Store(name, re)
	return re
}

// attrValue returns the value of the named attribute in a single tag.
func attrValue(tag, name string) (string, bool) {
	m := attrPattern(name).FindStringSubmatch(tag)
	if m == nil {
		return "", false
	}
	if strings.HasPrefix(m[2], `"`) {
		return m[3], true
	}
	return m[4], true
}

// setAttr sets the named attribute in a single tag, replacing an existing
// value or inserting the attribute right after the element name.
func setAttr(tag, name, value string) string {
	value = strings.ReplaceAll(value, `"`, "&quot;")
	re := attrPattern(name)
	if loc := re.FindStringSubmatchIndex(tag); loc != nil {
		return tag[:loc[3]] + `"` + value + `"` + tag[loc[1]:]
	}
	end := 1
	for end < len(tag) && !isTagNameEnd(tag[end]) {
		end++
	}
	return tag[:end] + " " + name + `="` + value + `"` + tag[end:]
}

// isTagNameEnd reports whether c terminates an element name.
func isTagNameEnd(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/' || c == '>'
}
