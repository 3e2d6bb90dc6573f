package epubfix

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// opfPackage represents the root <package> element of an OPF file.
type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         opfManifest `xml:"manifest"`
}

// opfMetadata holds the metadata elements the rules need to inspect.
type opfMetadata struct {
	Titles      []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Languages   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Metas       []opfMeta      `xml:"meta"`
}

// opfDCElement holds a Dublin Core element with its id attribute.
type opfDCElement struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

// opfMeta represents a <meta> element in the OPF metadata.
// ePub 2: <meta name="..." content="..."/>
// ePub 3: <meta property="..." refines="...">value</meta>
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Value    string `xml:",chardata"`
}

// opfManifest wraps the <manifest> element.
type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

// opfManifestItem represents a single <item> in the manifest.
type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// parseOPF parses the OPF file content and returns the parsed package structure.
func parseOPF(data []byte) (*opfPackage, error) {
	data = preprocessHTMLEntities(data)
	data = stripBOM(data)

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("epubfix: parse OPF: %w", err)
	}

	if pkg.Version == "" {
		// Default to 2.0 if version attribute is missing.
		pkg.Version = "2.0"
	}

	return &pkg, nil
}

// isEPUB3 reports whether the package declares version 3.x.
func (p *opfPackage) isEPUB3() bool {
	return strings.HasPrefix(strings.TrimSpace(p.Version), "3")
}

// hasModified reports whether an ePub 3 dcterms:modified meta is present.
func (p *opfPackage) hasModified() bool {
	for _, m := range p.Metadata.Metas {
		if m.Property == "dcterms:modified" && m.Refines == "" && strings.TrimSpace(m.Value) != "" {
			return true
		}
	}
	return false
}

// hasLanguage reports whether a non-empty dc:language is present.
func (p *opfPackage) hasLanguage() bool {
	for _, l := range p.Metadata.Languages {
		if strings.TrimSpace(l.Value) != "" {
			return true
		}
	}
	return false
}

// uniqueIdentifierResolves reports whether the unique-identifier attribute
// points at an existing, non-empty dc:identifier.
func (p *opfPackage) uniqueIdentifierResolves() bool {
	if p.UniqueIdentifier == "" {
		return false
	}
	for _, id := range p.Metadata.Identifiers {
		if id.ID == p.UniqueIdentifier && strings.TrimSpace(id.Value) != "" {
			return true
		}
	}
	return false
}

// uniqueIdentifier returns the trimmed value of the dc:identifier named by
// the unique-identifier attribute, or "" when it does not resolve.
func (p *opfPackage) uniqueIdentifier() string {
	for _, id := range p.Metadata.Identifiers {
		if p.UniqueIdentifier != "" && id.ID == p.UniqueIdentifier {
			return strings.TrimSpace(id.Value)
		}
	}
	return ""
}

// manifestHrefs returns the set of manifest hrefs resolved against opfPath.
func (p *opfPackage) manifestHrefs(opfPath string) map[string]bool {
	out := make(map[string]bool, len(p.Manifest.Items))
	for _, item := range p.Manifest.Items {
		if resolved := resolveRelativePath(opfPath, item.Href); resolved != "" {
			out[resolved] = true
		}
	}
	return out
}

// manifestIDs returns the set of manifest item ids.
func (p *opfPackage) manifestIDs() map[string]bool {
	out := make(map[string]bool, len(p.Manifest.Items))
	for _, item := range p.Manifest.Items {
		out[item.ID] = true
	}
	return out
}
