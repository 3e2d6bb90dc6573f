package epubfix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// benchEPubFiles builds an ePub 2 file map with the given number of chapters.
// Each chapter carries the kind of damage the default rules repair: HTML
// entities, bare ampersands, a split <meta> tag and a paragraph-wrapped div.
func benchEPubFiles(numChapters int) map[string]string {
	var manifestItems, spineRefs, navPoints strings.Builder
	manifestItems.WriteString(`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>`)
	manifestItems.WriteByte('\n')

	for i := 1; i <= numChapters; i++ {
		id := fmt.Sprintf("ch%d", i)
		href := fmt.Sprintf("chapter%03d.xhtml", i)
		fmt.Fprintf(&manifestItems, `    <item id="%s" href="%s" media-type="application/xhtml+xml"/>`, id, href)
		manifestItems.WriteByte('\n')
		fmt.Fprintf(&spineRefs, `    <itemref idref="%s"/>`, id)
		spineRefs.WriteByte('\n')
		fmt.Fprintf(&navPoints, `    <navPoint id="np%d" playOrder="%d"><navLabel><text>Chapter %d</text></navLabel><content src="%s#missing"/></navPoint>`, i, i, i, href)
		navPoints.WriteByte('\n')
	}

	opf := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>Benchmark Book</dc:title>
    <dc:creator opf:file-as="Doe, John" opf:role="aut">John Doe</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid" opf:scheme="ISBN">978-0-00-000000-0</dc:identifier>
    <dc:description>A benchmark test book with %d chapters.</dc:description>
  </metadata>
  <manifest>
    %s
  </manifest>
  <spine toc="ncx">
    %s
  </spine>
</package>`, numChapters, manifestItems.String(), spineRefs.String())

	ncx := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    %s
  </navMap>
</ncx>`, navPoints.String())

	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": containerXMLFor("OEBPS/content.opf"),
		"OEBPS/content.opf":      opf,
		"OEBPS/toc.ncx":          ncx,
	}

	for i := 1; i <= numChapters; i++ {
		href := fmt.Sprintf("OEBPS/chapter%03d.xhtml", i)
		files[href] = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter %d</title><meta http-equiv="Content-Type"
  content="text/html; charset=utf-8"/></head>
<body>
<h1>Chapter&nbsp;%d</h1>
<p>This is the opening paragraph of chapter %d. Salt & pepper, bread &amp; butter&hellip;</p>
<p><div class="aside">The second paragraph wraps a division, which XHTML does not allow.</div></p>
<p>A third paragraph adds more substance so the substitutions have text to scan.</p>
<p>Finally, the chapter concludes with a closing paragraph&mdash;and a dash.</p>
</body>
</html>`, i, i, i)
	}

	return files
}

// BenchmarkApplyRules measures one pass of every default rule over a
// freshly extracted 10-chapter book.
func BenchmarkApplyRules(b *testing.B) {
	files := benchEPubFiles(10)
	dir := b.TempDir()
	fp := filepath.Join(dir, "bench.epub")
	writeBenchEPub(b, fp, files)
	rules := DefaultRules(RuleOptions{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		ws, err := OpenWorkspace(fp, dir)
		if err != nil {
			b.Fatalf("OpenWorkspace: %v", err)
		}
		b.StartTimer()

		if _, err := ApplyRules(ws, rules); err != nil {
			b.Fatalf("ApplyRules: %v", err)
		}

		b.StopTimer()
		ws.Close()
		b.StartTimer()
	}
}

// BenchmarkFix measures a full unvalidated repair: extract, one rule pass,
// repack.
func BenchmarkFix(b *testing.B) {
	files := benchEPubFiles(10)
	dir := b.TempDir()
	fp := filepath.Join(dir, "bench.epub")
	writeBenchEPub(b, fp, files)
	f := &Fixer{TempDir: dir}
	out := filepath.Join(dir, "bench_fixed.epub")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.Fix(context.Background(), fp, out); err != nil {
			b.Fatalf("Fix: %v", err)
		}
	}
}

// BenchmarkParseReport measures parsing of a long epubcheck output.
func BenchmarkParseReport(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&sb, "ERROR(RSC-005): /tmp/bench.epub/OEBPS/chapter%03d.xhtml(%d,%d): Error while parsing file: element \"div\" not allowed here\n", i%10+1, i, i%80)
		sb.WriteString("WARNING(OPF-085): /tmp/bench.epub/OEBPS/content.opf(5,60): dc:identifier is marked as a UUID\n")
	}
	output := sb.String()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		report, err := ParseReport(strings.NewReader(output))
		if err != nil {
			b.Fatalf("ParseReport: %v", err)
		}
		if len(report.Messages) != 1000 {
			b.Fatalf("parsed %d messages, want 1000", len(report.Messages))
		}
	}
}

// BenchmarkPreprocessHTMLEntities measures entity rewriting on a chapter
// dense with named references.
func BenchmarkPreprocessHTMLEntities(b *testing.B) {
	data := []byte(strings.Repeat("<p>Caf&eacute;&nbsp;&mdash;&nbsp;&ldquo;quoted&rdquo; &amp; more&hellip;</p>\n", 200))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = preprocessHTMLEntities(data)
	}
}

// writeBenchEPub writes files as an ePub archive at path.
func writeBenchEPub(b *testing.B, path string, files map[string]string) {
	b.Helper()
	f, err := os.Create(path)
	if err != nil {
		b.Fatalf("writeBenchEPub: %v", err)
	}
	defer f.Close()
	writeTestZip(b, f, files)
}
