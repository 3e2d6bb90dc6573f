package epubfix

import (
	"regexp"
	"strings"
)

var (
	// startTagPattern matches a start or self-closing tag with its
	// attribute list, allowing '>' inside quoted values.
	startTagPattern = regexp.MustCompile(`<([A-Za-z][-\w.:]*)((?:\s+[^\s=/>]+(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'>]+))?)*)(\s*/?>)`)

	// attributePattern matches one attribute inside an attribute list.
	attributePattern = regexp.MustCompile(`\s+([^\s=/>]+)(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'>]+))?`)

	emptyTitlePattern   = regexp.MustCompile(`(?i)<title(\s[^>]*)?(?:/>|>\s*</title>)`)
	firstHeadingPattern = regexp.MustCompile(`(?is)<h[1-6]\b[^>]*>(.*?)</h[1-6]>`)
	anyTagPattern       = regexp.MustCompile(`<[^>]*>`)
	pixelLengthPattern  = regexp.MustCompile(`^(\d+)\s*(?:px)?$`)
	cssLengthPattern    = regexp.MustCompile(`^\d+(?:\.\d+)?\s*(?:%|em|rem|ex|ch|vw|vh|pt|pc|cm|mm|in)$`)
)

// forbiddenAttributesRule strips attributes that ePub 2 content documents
// (XHTML 1.1) do not allow: ARIA roles and states, ePub 3 structural
// semantics, and the HTML5 hidden attribute. ePub 3 books are left alone.
type forbiddenAttributesRule struct{}

func (forbiddenAttributesRule) Name() string { return "forbidden-attributes" }
func (forbiddenAttributesRule) Description() string {
	return "strip role, aria-*, epub:type and hidden attributes from ePub 2 documents"
}
func (forbiddenAttributesRule) Codes() []string { return []string{"RSC-005"} }

// Apply implements Rule.
func (r forbiddenAttributesRule) Apply(ws *Workspace) ([]Change, error) {
	pkg, err := ws.loadPackage()
	if err != nil || pkg.isEPUB3() {
		return nil, nil
	}
	text := &textRule{
		name:  r.Name(),
		kinds: []DocKind{KindXHTML},
		fix:   func(s string) string { return outsideCDATA(s, stripEPUB3Attributes) },
	}
	return text.Apply(ws)
}

// isEPUB3Attribute reports whether an attribute name is unknown to XHTML 1.1.
func isEPUB3Attribute(name string) bool {
	name = strings.ToLower(name)
	switch {
	case name == "role", name == "hidden":
		return true
	case strings.HasPrefix(name, "aria-"):
		return true
	case name == "epub:type", name == "epub:prefix":
		return true
	}
	return false
}

// stripEPUB3Attributes removes ePub 3 only attributes from every tag. The
// epub namespace declaration goes too once nothing else uses the prefix.
func stripEPUB3Attributes(s string) string {
	s = startTagPattern.ReplaceAllStringFunc(s, func(tag string) string {
		return removeAttrs(tag, isEPUB3Attribute)
	})
	if !strings.Contains(strings.ReplaceAll(s, "xmlns:epub", ""), "epub:") {
		s = startTagPattern.ReplaceAllStringFunc(s, func(tag string) string {
			return removeAttrs(tag, func(name string) bool { return name == "xmlns:epub" })
		})
	}
	return s
}

// removeAttrs drops the attributes of a single tag for which drop is true.
func removeAttrs(tag string, drop func(name string) bool) string {
	m := startTagPattern.FindStringSubmatchIndex(tag)
	if m == nil || m[4] == m[5] {
		return tag
	}
	attrs := tag[m[4]:m[5]]
	kept := attributePattern.ReplaceAllStringFunc(attrs, func(attr string) string {
		name := attributePattern.FindStringSubmatch(attr)[1]
		if drop(name) {
			return ""
		}
		return attr
	})
	if kept == attrs {
		return tag
	}
	return tag[:m[4]] + kept + tag[m[5]:]
}

// sizedElements are the HTML elements whose width and height attributes
// must be non-negative integers. SVG elements take CSS lengths and are not
// listed.
var sizedElements = map[string]bool{
	"canvas": true,
	"embed":  true,
	"iframe": true,
	"img":    true,
	"input":  true,
	"object": true,
	"video":  true,
}

func dimensionAttributesRule() Rule {
	return &textRule{
		name:        "dimension-attributes",
		description: "turn width/height attributes that are not pixel counts into CSS",
		codes:       []string{"RSC-005"},
		kinds:       []DocKind{KindXHTML},
		fix:         func(s string) string { return outsideCDATA(s, fixDimensionAttributes) },
	}
}

// fixDimensionAttributes rewrites width and height attributes of embedded
// content: "300px" becomes "300", a percentage or other CSS length moves into
// the style attribute, and anything else is dropped.
func fixDimensionAttributes(s string) string {
	return startTagPattern.ReplaceAllStringFunc(s, func(tag string) string {
		name := startTagPattern.FindStringSubmatch(tag)[1]
		if !sizedElements[strings.ToLower(name)] {
			return tag
		}
		for _, attr := range []string{"width", "height"} {
			tag = fixDimension(tag, attr)
		}
		return tag
	})
}

// fixDimension repairs one dimension attribute of tag.
func fixDimension(tag, attr string) string {
	raw, ok := attrValue(tag, attr)
	if !ok {
		return tag
	}
	v := strings.ToLower(strings.TrimSpace(raw))
	if m := pixelLengthPattern.FindStringSubmatch(v); m != nil {
		if m[1] == raw {
			return tag
		}
		return setAttr(tag, attr, m[1])
	}

	tag = removeAttrs(tag, func(name string) bool { return strings.EqualFold(name, attr) })
	if !cssLengthPattern.MatchString(v) {
		return tag
	}
	decl := attr + ": " + strings.ReplaceAll(v, " ", "")
	if style, ok := attrValue(tag, "style"); ok && strings.TrimSpace(style) != "" {
		decl = strings.TrimRight(strings.TrimSpace(style), ";") + "; " + decl
	}
	return setAttr(tag, "style", decl)
}

func emptyTitlesRule() Rule {
	return &textRule{
		name:        "empty-titles",
		description: "give empty <title> elements the first heading's text",
		codes:       []string{"RSC-005", "RSC-017"},
		kinds:       []DocKind{KindXHTML},
		fix:         fixEmptyTitle,
	}
}

// defaultTitle is used for documents without a usable heading.
const defaultTitle = "Chapter"

// fixEmptyTitle fills an empty or self-closed <title> with the text of the
// document's first heading, or with a generic title when there is none.
func fixEmptyTitle(s string) string {
	loc := emptyTitlePattern.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	title := defaultTitle
	if m := firstHeadingPattern.FindStringSubmatch(s); m != nil {
		text := strings.Join(strings.Fields(anyTagPattern.ReplaceAllString(m[1], "")), " ")
		if text != "" {
			title = text
		}
	}
	var attrs string
	if loc[2] != -1 {
		attrs = s[loc[2]:loc[3]]
	}
	return s[:loc[0]] + "<title" + attrs + ">" + title + "</title>" + s[loc[1]:]
}
