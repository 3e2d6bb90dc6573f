package epubfix

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	ncxHeadPattern     = regexp.MustCompile(`<head\b[^>]*>`)
	navPointTagPattern = regexp.MustCompile(`<navPoint\b[^>]*>`)
	attrEscaper        = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;")
)

// ncxUIDRule keeps the dtb:uid of every NCX in line with the package's
// unique identifier. epubcheck reports a mismatch as NCX-001 and surrounding
// whitespace as NCX-004.
type ncxUIDRule struct{}

func (ncxUIDRule) Name() string { return "ncx-uid" }
func (ncxUIDRule) Description() string {
	return "set the NCX dtb:uid to the package unique identifier"
}
func (ncxUIDRule) Codes() []string { return []string{"NCX-001", "NCX-004"} }

// Apply implements Rule.
func (r ncxUIDRule) Apply(ws *Workspace) ([]Change, error) {
	pkg, err := ws.loadPackage()
	if err != nil {
		return nil, nil
	}
	uid := pkg.uniqueIdentifier()
	if uid == "" {
		return nil, nil
	}
	text := &textRule{
		name:  r.Name(),
		kinds: []DocKind{KindNCX},
		fix:   func(s string) string { return setNCXUID(s, uid) },
	}
	return text.Apply(ws)
}

// setNCXUID rewrites the content of the dtb:uid meta to uid, adding the meta
// to <head> when it is missing. A document without a head is left alone.
func setNCXUID(s, uid string) string {
	value := attrEscaper.Replace(uid)
	found := false
	s = metaTagPattern.ReplaceAllStringFunc(s, func(tag string) string {
		if name, _ := attrValue(tag, "name"); name != "dtb:uid" {
			return tag
		}
		found = true
		if content, _ := attrValue(tag, "content"); content == value {
			return tag
		}
		return setAttr(tag, "content", value)
	})
	if found {
		return s
	}
	loc := ncxHeadPattern.FindStringIndex(s)
	if loc == nil || strings.HasSuffix(s[loc[0]:loc[1]], "/>") {
		return s
	}
	meta := `<meta name="dtb:uid" content="` + value + `"/>`
	return s[:loc[1]] + meta + s[loc[1]:]
}

func ncxPlayOrderRule() Rule {
	return &textRule{
		name:        "ncx-play-order",
		description: "number NCX navPoint playOrder attributes in document order",
		codes:       []string{"RSC-005"},
		kinds:       []DocKind{KindNCX},
		fix:         fixPlayOrder,
	}
}

// fixPlayOrder numbers the playOrder attributes of <navPoint> elements
// 1, 2, 3... in document order, adding the attribute where it is missing.
func fixPlayOrder(s string) string {
	n := 0
	return navPointTagPattern.ReplaceAllStringFunc(s, func(tag string) string {
		n++
		want := strconv.Itoa(n)
		if got, ok := attrValue(tag, "playOrder"); ok && strings.TrimSpace(got) == want {
			return tag
		}
		return setAttr(tag, "playOrder", want)
	})
}
