package epubfix

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// mimetypeRule makes sure the mimetype file exists with the exact content
// readers expect. Pack always writes the entry first and uncompressed.
type mimetypeRule struct{}

func (mimetypeRule) Name() string { return "mimetype" }
func (mimetypeRule) Description() string {
	return "write the mimetype file with content application/epub+zip"
}
func (mimetypeRule) Codes() []string { return []string{"PKG-006", "PKG-007"} }

// Apply implements Rule.
func (r mimetypeRule) Apply(ws *Workspace) ([]Change, error) {
	data, err := ws.ReadFile(mimetypeName)
	if err == nil && string(data) == expectedMimetype {
		return nil, nil
	}
	note := "rewritten"
	if err != nil {
		note = "created"
	}
	if err := ws.WriteFile(mimetypeName, []byte(expectedMimetype)); err != nil {
		return nil, err
	}
	return []Change{{Rule: r.Name(), Path: mimetypeName, Note: note}}, nil
}

var (
	selfClosingMetadataPattern = regexp.MustCompile(`<metadata\b([^>]*?)\s*/>`)
	dcCloseTagPattern          = regexp.MustCompile(`</dc:[^>]+>`)
)

func packageMetadataRule() Rule {
	return &textRule{
		name:        "package-metadata",
		description: "reopen a self-closing <metadata/> and supply a missing </metadata>",
		codes:       []string{"RSC-005", "RSC-016"},
		kinds:       []DocKind{KindPackage},
		fix:         fixPackageMetadata,
	}
}

// fixPackageMetadata repairs the <metadata> element of an OPF document.
// A self-closing element is reopened; when the closing tag is missing it is
// inserted before <manifest>, or after the last Dublin Core element when the
// manifest cannot be found.
func fixPackageMetadata(s string) string {
	s = selfClosingMetadataPattern.ReplaceAllString(s, "<metadata$1>")

	open := strings.Index(s, "<metadata")
	if open == -1 || strings.Contains(s, "</metadata>") {
		return s
	}
	if i := strings.Index(s[open:], "<manifest"); i != -1 {
		at := open + i
		return s[:at] + "</metadata>\n  " + s[at:]
	}
	locs := dcCloseTagPattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	end := locs[len(locs)-1][1]
	return s[:end] + "\n  </metadata>" + s[end:]
}

// dcNamespace is the Dublin Core elements namespace.
const dcNamespace = "http://purl.org/dc/elements/1.1/"

// generatedIdentifierID is the id given to a generated dc:identifier.
const generatedIdentifierID = "pub-id"

var (
	uniqueIdentifierAttrPattern = regexp.MustCompile(`(<package\b[^>]*?\bunique-identifier\s*=\s*)("[^"]*"|'[^']*')`)
	packageOpenPattern          = regexp.MustCompile(`<package\b`)
	metadataOpenPattern         = regexp.MustCompile(`<metadata\b[^>]*>`)
	identifierOpenPattern       = regexp.MustCompile(`<dc:identifier\b([^>]*)>`)
)

// requiredMetadataRule supplies metadata elements that epubcheck requires:
// dcterms:modified for ePub 3, dc:language, and a dc:identifier referenced by
// the package unique-identifier attribute.
type requiredMetadataRule struct {
	opts RuleOptions
}

func (r *requiredMetadataRule) Name() string { return "required-metadata" }
func (r *requiredMetadataRule) Description() string {
	return "add missing dcterms:modified, dc:language and unique identifier"
}
func (r *requiredMetadataRule) Codes() []string {
	return []string{"RSC-005", "OPF-030", "OPF-048"}
}

// Apply implements Rule.
func (r *requiredMetadataRule) Apply(ws *Workspace) ([]Change, error) {
	pkg, err := ws.loadPackage()
	if err != nil {
		// An unparseable package is left to the text rules.
		return nil, nil
	}
	data, err := ws.ReadFile(ws.OPFPath())
	if err != nil {
		return nil, err
	}
	s := string(data)
	if !strings.Contains(s, "</metadata>") {
		return nil, nil
	}

	var notes []string
	var insert strings.Builder
	if pkg.isEPUB3() && !pkg.hasModified() {
		modified := r.opts.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
		insert.WriteString(`  <meta property="dcterms:modified">` + modified + "</meta>\n  ")
		notes = append(notes, "dcterms:modified")
	}
	if !pkg.hasLanguage() {
		insert.WriteString("  <dc:language>" + r.opts.Language + "</dc:language>\n  ")
		notes = append(notes, "dc:language")
	}
	if !pkg.uniqueIdentifierResolves() {
		var note string
		s, note = r.fixUniqueIdentifier(s, pkg, &insert)
		notes = append(notes, note)
	}
	if len(notes) == 0 {
		return nil, nil
	}

	if insert.Len() > 0 {
		at := strings.LastIndex(s, "</metadata>")
		s = s[:at] + insert.String() + s[at:]
		if !strings.Contains(s, "xmlns:dc=") {
			s = metadataOpenPattern.ReplaceAllStringFunc(s, func(tag string) string {
				return strings.Replace(tag, "<metadata", `<metadata xmlns:dc="`+dcNamespace+`"`, 1)
			})
		}
	}

	if err := ws.WriteFile(ws.OPFPath(), []byte(s)); err != nil {
		return nil, err
	}
	return []Change{{Rule: r.Name(), Path: ws.OPFPath(), Note: "added " + strings.Join(notes, ", ")}}, nil
}

// fixUniqueIdentifier points the unique-identifier attribute at an existing
// dc:identifier, giving it an id if needed, or schedules a generated one.
func (r *requiredMetadataRule) fixUniqueIdentifier(s string, pkg *opfPackage, insert *strings.Builder) (string, string) {
	for _, id := range pkg.Metadata.Identifiers {
		if id.ID != "" && strings.TrimSpace(id.Value) != "" {
			return setUniqueIdentifier(s, id.ID), "unique-identifier"
		}
	}
	for _, id := range pkg.Metadata.Identifiers {
		if strings.TrimSpace(id.Value) == "" {
			continue
		}
		if loc := identifierOpenPattern.FindStringIndex(s); loc != nil && !strings.Contains(s[loc[0]:loc[1]], "id=") {
			s = s[:loc[0]] + `<dc:identifier id="` + generatedIdentifierID + `"` + s[loc[0]+len("<dc:identifier"):]
			return setUniqueIdentifier(s, generatedIdentifierID), "dc:identifier id"
		}
		break
	}
	insert.WriteString(`  <dc:identifier id="` + generatedIdentifierID + `">` + r.opts.NewIdentifier() + "</dc:identifier>\n  ")
	return setUniqueIdentifier(s, generatedIdentifierID), "dc:identifier"
}

// setUniqueIdentifier sets the package unique-identifier attribute to id.
func setUniqueIdentifier(s, id string) string {
	if uniqueIdentifierAttrPattern.MatchString(s) {
		return uniqueIdentifierAttrPattern.ReplaceAllString(s, `${1}"`+id+`"`)
	}
	loc := packageOpenPattern.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[1]] + ` unique-identifier="` + id + `"` + s[loc[1]:]
}

// newUUIDIdentifier returns a random urn:uuid identifier.
func newUUIDIdentifier() string {
	return "urn:uuid:" + uuid.NewString()
}
