package epubfix

import (
	"encoding/xml"
	"fmt"
	"io/fs"
	"strings"
)

// containerXML models the META-INF/container.xml file used to locate the OPF.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

// rootFile represents a single <rootfile> element inside container.xml.
type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// containerPath is the well-known location of container.xml in an ePub archive.
const containerPath = "META-INF/container.xml"

// parseContainer locates the OPF path inside an extracted ePub.
//
// It first tries META-INF/container.xml (case-insensitive lookup). If the file
// is missing or unreadable, it falls back to scanning names for a ".opf" file,
// since a broken container is one of the things being repaired.
// Returns a wrapped ErrInvalidEPub if no OPF path can be determined.
func parseContainer(fsys fs.FS, names []string) (string, error) {
	if name := findNameInsensitive(names, containerPath); name != "" {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return "", fmt.Errorf("epubfix: read container.xml: %w", err)
		}
		if p, err := parseContainerXML(data); err == nil {
			if found := findNameInsensitive(names, p); found != "" {
				return found, nil
			}
		}
	}

	return fallbackFindOPF(names)
}

// parseContainerXML decodes container.xml, returning the full-path of the
// first package rootfile.
func parseContainerXML(data []byte) (string, error) {
	data = stripBOM(data)

	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("epubfix: parse container.xml: %w", err)
	}

	if len(c.RootFiles) == 0 {
		return "", fmt.Errorf("epubfix: container.xml has no rootfile entries: %w", ErrInvalidEPub)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), "application/oebps-package+xml") {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}

	if fallbackPath == "" {
		return "", fmt.Errorf("epubfix: container.xml rootfile has empty full-path: %w", ErrInvalidEPub)
	}

	return fallbackPath, nil
}

// fallbackFindOPF returns the first name ending in ".opf" (case-insensitive).
// Returns ErrInvalidEPub if none is found.
func fallbackFindOPF(names []string) (string, error) {
	for _, n := range names {
		if strings.HasSuffix(strings.ToLower(n), ".opf") {
			return n, nil
		}
	}
	return "", fmt.Errorf("epubfix: no OPF file found in archive: %w", ErrInvalidEPub)
}
