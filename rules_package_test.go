package epubfix

import (
	"strings"
	"testing"
	"time"
)

func TestMimetypeRule(t *testing.T) {
	tests := []struct {
		name     string
		mimetype *string
		wantNote string
	}{
		{"correct", ptr(expectedMimetype), ""},
		{"wrong content", ptr("application/zip\n"), "rewritten"},
		{"missing", nil, "created"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := testBook()
			if tt.mimetype == nil {
				delete(files, "mimetype")
			} else {
				files["mimetype"] = *tt.mimetype
			}
			ws := openTestWorkspace(t, files)

			changes, err := mimetypeRule{}.Apply(ws)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if tt.wantNote == "" {
				if len(changes) != 0 {
					t.Errorf("changes = %v, want none", changes)
				}
				return
			}
			if len(changes) != 1 || changes[0].Note != tt.wantNote {
				t.Errorf("changes = %v, want one %q change", changes, tt.wantNote)
			}
			if got := readWS(t, ws, "mimetype"); got != expectedMimetype {
				t.Errorf("mimetype = %q", got)
			}
		})
	}
}

func ptr(s string) *string { return &s }

func TestFixPackageMetadata(t *testing.T) {
	runTextFixTests(t, fixPackageMetadata, []textFixTest{
		{
			name: "self-closing metadata",
			in:   "<package><metadata xmlns:dc=\"x\"/>\n  <manifest></manifest></package>",
			want: "<package><metadata xmlns:dc=\"x\">\n  </metadata>\n  <manifest></manifest></package>",
		},
		{
			name: "missing close before manifest",
			in:   "<package><metadata><dc:title>T</dc:title>\n  <manifest></manifest></package>",
			want: "<package><metadata><dc:title>T</dc:title>\n  </metadata>\n  <manifest></manifest></package>",
		},
		{
			name: "missing close without manifest",
			in:   "<package><metadata><dc:title>T</dc:title><dc:language>en</dc:language>\n</package>",
			want: "<package><metadata><dc:title>T</dc:title><dc:language>en</dc:language>\n  </metadata>\n</package>",
		},
		{
			name: "complete",
			in:   testOPF2,
			want: testOPF2,
		},
	})
}

func newTestRequiredMetadataRule() *requiredMetadataRule {
	return &requiredMetadataRule{opts: RuleOptions{
		Language:      "fr",
		Now:           func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 999, time.FixedZone("X", 3600)) },
		NewIdentifier: func() string { return "urn:uuid:test" },
	}}
}

func TestRequiredMetadataRule(t *testing.T) {
	tests := []struct {
		name     string
		opf      string
		want     []string
		wantNote string
	}{
		{
			name:     "epub3 without modified or language",
			opf:      testOPF3,
			want:     []string{`<meta property="dcterms:modified">2024-01-02T02:04:05Z</meta>`, `<dc:language>fr</dc:language>`},
			wantNote: "added dcterms:modified, dc:language",
		},
		{
			name:     "unique-identifier points nowhere",
			opf:      strings.Replace(testOPF2, `unique-identifier="bookid"`, `unique-identifier="other"`, 1),
			want:     []string{`unique-identifier="bookid"`},
			wantNote: "added unique-identifier",
		},
		{
			name:     "identifier without id",
			opf:      strings.Replace(testOPF2, `<dc:identifier id="bookid">`, `<dc:identifier>`, 1),
			want:     []string{`unique-identifier="pub-id"`, `<dc:identifier id="pub-id">urn:uuid:12345678`},
			wantNote: "added dc:identifier id",
		},
		{
			name: "no identifier",
			opf: strings.Replace(testOPF2,
				`<dc:identifier id="bookid">urn:uuid:12345678-1234-1234-1234-123456789abc</dc:identifier>`, "", 1),
			want:     []string{`unique-identifier="pub-id"`, `<dc:identifier id="pub-id">urn:uuid:test</dc:identifier>`},
			wantNote: "added dc:identifier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := testBook()
			files["OEBPS/content.opf"] = tt.opf
			ws := openTestWorkspace(t, files)
			rule := newTestRequiredMetadataRule()

			changes, err := rule.Apply(ws)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if len(changes) != 1 || changes[0].Note != tt.wantNote {
				t.Fatalf("changes = %v, want note %q", changes, tt.wantNote)
			}
			got := readWS(t, ws, ws.OPFPath())
			for _, w := range tt.want {
				mustContain(t, got, w)
			}

			pkg, err := ws.loadPackage()
			if err != nil {
				t.Fatalf("fixed package does not parse: %v", err)
			}
			if !pkg.uniqueIdentifierResolves() || !pkg.hasLanguage() {
				t.Errorf("fixed package still incomplete:\n%s", got)
			}

			again, err := rule.Apply(ws)
			if err != nil || len(again) != 0 {
				t.Errorf("second Apply = %v, %v; want no changes", again, err)
			}
		})
	}
}

func TestRequiredMetadataRule_Untouched(t *testing.T) {
	tests := []struct {
		name string
		opf  string
	}{
		{"complete epub2", testOPF2},
		{"unparseable", "<package><metadata>"},
		{"no metadata close", `<package xmlns="http://www.idpf.org/2007/opf" version="2.0"><metadata/><manifest/></package>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := testBook()
			files["OEBPS/content.opf"] = tt.opf
			ws := openTestWorkspace(t, files)

			changes, err := newTestRequiredMetadataRule().Apply(ws)
			if err != nil || len(changes) != 0 {
				t.Errorf("Apply = %v, %v; want no changes", changes, err)
			}
			if got := readWS(t, ws, ws.OPFPath()); got != tt.opf {
				t.Errorf("package rewritten:\n%s", got)
			}
		})
	}
}

func TestRequiredMetadataRule_AddsDCNamespace(t *testing.T) {
	opf := `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata>
    <title>No namespace</title>
  </metadata>
  <manifest/>
</package>`
	files := testBook()
	files["OEBPS/content.opf"] = opf
	ws := openTestWorkspace(t, files)

	if _, err := newTestRequiredMetadataRule().Apply(ws); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := readWS(t, ws, ws.OPFPath())
	mustContain(t, got, `<metadata xmlns:dc="http://purl.org/dc/elements/1.1/">`)
	mustContain(t, got, `<dc:identifier id="pub-id">urn:uuid:test</dc:identifier>`)
}

func TestNewUUIDIdentifier(t *testing.T) {
	a, b := newUUIDIdentifier(), newUUIDIdentifier()
	if !strings.HasPrefix(a, "urn:uuid:") || len(a) != len("urn:uuid:")+36 {
		t.Errorf("identifier = %q", a)
	}
	if a == b {
		t.Error("identifiers repeat")
	}
}
