package epubfix

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"testing/fstest"
)

// containerXMLFor returns a container.xml pointing at opfPath.
func containerXMLFor(opfPath string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="` + opfPath + `" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
}

// testOPF2 is a complete EPUB 2 package for OEBPS/content.opf.
const testOPF2 = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:identifier id="bookid">urn:uuid:12345678-1234-1234-1234-123456789abc</dc:identifier>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

// testOPF3 is an EPUB 3 package lacking dcterms:modified and dc:language.
const testOPF3 = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:identifier id="bookid">urn:isbn:9780000000000</dc:identifier>
  </metadata>
  <manifest>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`

// xhtmlDoc wraps body in a minimal XHTML document.
func xhtmlDoc(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter</title></head>
<body>` + body + `</body>
</html>`
}

// testBook returns the files of a small valid EPUB 2 book. Callers may
// overwrite entries before building an archive from it.
func testBook() map[string]string {
	return map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": containerXMLFor("OEBPS/content.opf"),
		"OEBPS/content.opf":      testOPF2,
		"OEBPS/toc.ncx":          `<?xml version="1.0" encoding="utf-8"?><ncx xmlns="http://www.daisy.org/z3986/2005/ncx/"><navMap><navPoint id="n1"><content src="text/ch1.xhtml#start"/></navPoint></navMap></ncx>`,
		"OEBPS/text/ch1.xhtml":   xhtmlDoc(`<h1 id="start">One</h1><p>First chapter.</p>`),
		"OEBPS/text/ch2.xhtml":   xhtmlDoc(`<h1 id="two">Two</h1><p>Second chapter.</p>`),
	}
}

// writeTestZip serializes files into a ZIP archive. The mimetype entry,
// when present, is written first. Other entries follow in sorted order.
func writeTestZip(t testing.TB, w io.Writer, files map[string]string) {
	t.Helper()
	zw := zip.NewWriter(w)

	names := make([]string, 0, len(files))
	for name := range files {
		if name != "mimetype" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := files["mimetype"]; ok {
		names = append([]string{"mimetype"}, names...)
	}

	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("writeTestZip: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("writeTestZip: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("writeTestZip: close writer: %v", err)
	}
}

// buildTestZip creates an in-memory ZIP archive from the provided files map
// (path → content) and returns a *zip.Reader over the resulting bytes.
func buildTestZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	buf := new(bytes.Buffer)
	writeTestZip(t, buf, files)
	data := buf.Bytes()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// buildTestEPubFile writes an ePub archive to a temporary file and returns
// its path.
func buildTestEPubFile(t *testing.T, files map[string]string) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "test.epub")
	f, err := os.Create(fp)
	if err != nil {
		t.Fatalf("buildTestEPubFile: create: %v", err)
	}
	defer f.Close()
	writeTestZip(t, f, files)
	return fp
}

// buildTestFS returns files as an fs.FS together with their sorted names,
// the shape that container and DRM detection operate on.
func buildTestFS(files map[string]string) (fstest.MapFS, []string) {
	fsys := make(fstest.MapFS, len(files))
	names := make([]string, 0, len(files))
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
		names = append(names, name)
	}
	sort.Strings(names)
	return fsys, names
}

// openTestWorkspace extracts files into a workspace that is closed when the
// test ends.
func openTestWorkspace(t *testing.T, files map[string]string) *Workspace {
	t.Helper()
	ws, err := OpenWorkspace(buildTestEPubFile(t, files), t.TempDir())
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readWS reads a workspace file as a string.
func readWS(t *testing.T, ws *Workspace, name string) string {
	t.Helper()
	data, err := ws.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", name, err)
	}
	return string(data)
}

// readZipEntry returns the content of name in the archive at path.
func readZipEntry(t *testing.T, path, name string) string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name == name {
			data, err := readZipFile(f)
			if err != nil {
				t.Fatalf("read %s: %v", name, err)
			}
			return string(data)
		}
	}
	t.Fatalf("%s: no entry %s", path, name)
	return ""
}

// changedPaths returns the distinct paths of changes, sorted.
func changedPaths(changes []Change) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range changes {
		if !seen[c.Path] {
			seen[c.Path] = true
			out = append(out, c.Path)
		}
	}
	sort.Strings(out)
	return out
}

func mustContain(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("missing %q in:\n%s", want, got)
	}
}
