package epubfix

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// fallbackCharset is assumed for documents that are not valid UTF-8 and do
// not declare an encoding. Most such files come from Windows tooling.
const fallbackCharset = "windows-1252"

var (
	xmlDeclPattern     = regexp.MustCompile(`<\?xml\s[^>]*?\?>`)
	xmlEncodingPattern = regexp.MustCompile(`(\bencoding\s*=\s*["'])([^"']*)(["'])`)
	metaCharsetPattern = regexp.MustCompile(`(?i)(<meta\b[^>]*?\bcharset\s*=\s*["']?)([-\w.:]+)`)
)

func charsetRule() Rule {
	return &textRule{
		name:        "charset",
		description: "transcode non-UTF-8 documents and declare utf-8 in <meta> charset",
		codes:       []string{"HTM-058", "RSC-005", "RSC-016"},
		kinds:       []DocKind{KindXHTML, KindNCX, KindPackage},
		fix:         fixCharset,
	}
}

// fixCharset converts a document to UTF-8 when its bytes are not valid
// UTF-8, using the declared encoding (XML declaration first, then <meta>)
// or windows-1252 when none is declared. A transcoded document has its XML
// declaration relabelled. Charset labels in <meta> elements are then
// rewritten to utf-8. Documents that are already valid UTF-8 are never
// transcoded, whatever they declare.
func fixCharset(s string) string {
	if !utf8.ValidString(s) {
		s = transcode(s, declaredCharset(s))
		if utf8.ValidString(s) {
			s = relabelXMLDeclaration(s)
		}
	}
	return metaCharsetPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := metaCharsetPattern.FindStringSubmatch(m)
		if strings.EqualFold(sub[2], "utf-8") {
			return m
		}
		return sub[1] + "utf-8"
	})
}

// relabelXMLDeclaration sets the encoding of the first XML declaration
// to utf-8.
func relabelXMLDeclaration(s string) string {
	loc := xmlDeclPattern.FindStringIndex(s)
	if loc == nil {
		return s
	}
	decl := xmlEncodingPattern.ReplaceAllString(s[loc[0]:loc[1]], "${1}utf-8${3}")
	return s[:loc[0]] + decl + s[loc[1]:]
}

// declaredCharset returns the encoding label declared by the document,
// or "" when there is none.
func declaredCharset(s string) string {
	if decl := xmlDeclPattern.FindString(s); decl != "" {
		if m := xmlEncodingPattern.FindStringSubmatch(decl); m != nil {
			return m[2]
		}
	}
	if m := metaCharsetPattern.FindStringSubmatch(s); m != nil {
		return m[2]
	}
	return ""
}

// transcode decodes s from the named encoding to UTF-8. Unknown labels, and
// labels that claim UTF-8 for invalid data, fall back to windows-1252.
// If decoding fails the input is returned unchanged.
func transcode(s, label string) string {
	enc, name := charset.Lookup(label)
	if enc == nil || name == "utf-8" {
		enc, _ = charset.Lookup(fallbackCharset)
	}
	out, _, err := transform.String(enc.NewDecoder(), s)
	if err != nil {
		return s
	}
	return out
}
