package epubfix

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// xmlEntities are the only named entities an XML parser knows without a DTD.
var xmlEntities = map[string]bool{
	"amp":  true,
	"lt":   true,
	"gt":   true,
	"quot": true,
	"apos": true,
}

// namedEntityPattern matches a named character reference such as "&nbsp;".
var namedEntityPattern = regexp.MustCompile(`&([A-Za-z][A-Za-z0-9]{1,31});`)

// preprocessHTMLEntities replaces HTML named entities with their numeric
// character references so that XML parsers (encoding/xml and epubcheck)
// accept the data. The HTML5 entity table from x/net/html is used; names
// that are unknown to it, and the five XML built-ins, are left untouched.
// Matching is case-insensitive as a fallback for non-standard content.
func preprocessHTMLEntities(data []byte) []byte {
	return namedEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[1 : len(match)-1])
		if xmlEntities[name] {
			return match
		}
		decoded, ok := unescapeEntity(name)
		if !ok {
			decoded, ok = unescapeEntity(strings.ToLower(name))
		}
		if !ok {
			return match
		}
		var buf bytes.Buffer
		for _, r := range decoded {
			fmt.Fprintf(&buf, "&#%d;", r)
		}
		return buf.Bytes()
	})
}

// unescapeEntity decodes a single named entity. The HTML unescaper falls
// back to the longest known prefix ("&notit;" becomes "¬it;"), so a result
// that still carries the terminating semicolon counts as unknown.
func unescapeEntity(name string) (string, bool) {
	ref := "&" + name + ";"
	decoded := html.UnescapeString(ref)
	if decoded == ref || strings.HasSuffix(decoded, ";") {
		return "", false
	}
	return decoded, true
}

// rawTextElements are the elements whose content the HTML tokenizer reads
// as raw text up to the matching end tag.
var rawTextElements = map[string]bool{
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
	"script":    true,
	"style":     true,
	"textarea":  true,
	"title":     true,
	"xmp":       true,
}

// collectIDs returns the set of id attribute values defined in an XHTML or
// NCX document. The x/net/html tokenizer is used because it tolerates the
// malformed markup these documents often contain.
//
// XHTML allows raw-text elements to self-close (<title/>, <script src=""/>),
// which the HTML tokenizer would otherwise read as the start of raw text
// running to the end of the document. A raw-text element that is never
// closed swallows everything after it, so the id set would be incomplete;
// that case is reported as an error.
func collectIDs(data []byte) (map[string]bool, error) {
	ids := make(map[string]bool)
	z := html.NewTokenizer(bytes.NewReader(data))
	var openRaw string
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			err := z.Err()
			if !errors.Is(err, io.EOF) {
				return ids, err
			}
			if openRaw != "" {
				return ids, fmt.Errorf("epubfix: unterminated <%s> element", openRaw)
			}
			return ids, nil
		case html.EndTagToken:
			openRaw = ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				k := string(key)
				if k == "id" || k == "xml:id" || k == "name" {
					if v := strings.TrimSpace(string(val)); v != "" {
						ids[v] = true
					}
				}
			}
			if tt == html.SelfClosingTagToken {
				z.NextIsNotRawText()
			} else if rawTextElements[string(name)] {
				openRaw = string(name)
			}
		}
	}
}

// hasURIScheme reports whether s starts with a URI scheme like "mailto:" or
// "javascript:".
func hasURIScheme(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	// RFC 3986: URI scheme must start with a letter.
	if !((s[0] >= 'A' && s[0] <= 'Z') || (s[0] >= 'a' && s[0] <= 'z')) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' {
			return i > 1
		}
		if !(c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			return false
		}
	}
	return false
}
