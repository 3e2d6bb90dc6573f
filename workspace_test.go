package epubfix

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenWorkspace(t *testing.T) {
	ws := openTestWorkspace(t, testBook())

	if got := ws.OPFPath(); got != "OEBPS/content.opf" {
		t.Errorf("OPFPath = %q", got)
	}
	if len(ws.Warnings()) != 0 {
		t.Errorf("Warnings = %v, want none", ws.Warnings())
	}
	if got := len(ws.Names()); got != len(testBook()) {
		t.Errorf("Names has %d entries, want %d", got, len(testBook()))
	}

	tests := []struct {
		kind DocKind
		want []string
	}{
		{KindXHTML, []string{"OEBPS/text/ch1.xhtml", "OEBPS/text/ch2.xhtml"}},
		{KindPackage, []string{"OEBPS/content.opf"}},
		{KindNCX, []string{"OEBPS/toc.ncx"}},
		{KindCSS, nil},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got := ws.Paths(tt.kind)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Paths(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestOpenWorkspace_Warnings(t *testing.T) {
	files := testBook()
	delete(files, "mimetype")
	files["META-INF/encryption.xml"] = encryptionXML(idpfFont)

	ws := openTestWorkspace(t, files)
	warnings := strings.Join(ws.Warnings(), "\n")
	mustContain(t, warnings, "font obfuscation")
	mustContain(t, warnings, "mimetype entry missing")
}

func TestOpenWorkspace_Errors(t *testing.T) {
	noOPF := testBook()
	delete(noOPF, "META-INF/container.xml")
	delete(noOPF, "OEBPS/content.opf")

	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{"drm", map[string]string{"mimetype": "application/epub+zip", "META-INF/sinf.xml": "<sinf/>"}, ErrDRMProtected},
		{"no package", noOPF, ErrInvalidEPub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			_, err := OpenWorkspace(buildTestEPubFile(t, tt.files), tmp)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("OpenWorkspace error = %v, want %v", err, tt.wantErr)
			}
			entries, _ := os.ReadDir(tmp)
			if len(entries) != 0 {
				t.Errorf("workspace directory not removed after failure: %v", entries)
			}
		})
	}
}

func TestWorkspace_ReadFile(t *testing.T) {
	ws := openTestWorkspace(t, testBook())

	if got := readWS(t, ws, "oebps/TEXT/ch1.xhtml"); !strings.Contains(got, "First chapter.") {
		t.Errorf("case-insensitive ReadFile = %q", got)
	}
	if _, err := ws.ReadFile("OEBPS/missing.xhtml"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("ReadFile(missing) error = %v, want ErrFileNotFound", err)
	}
}

func TestWorkspace_WriteFile(t *testing.T) {
	ws := openTestWorkspace(t, testBook())

	t.Run("new file", func(t *testing.T) {
		if err := ws.WriteFile("OEBPS/styles/main.css", []byte("body{}")); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if !ws.Exists("OEBPS/styles/main.css") {
			t.Error("new file not indexed")
		}
		if got := ws.Paths(KindCSS); len(got) != 1 || got[0] != "OEBPS/styles/main.css" {
			t.Errorf("Paths(KindCSS) = %v", got)
		}
		if _, err := os.Stat(filepath.Join(ws.Root(), "OEBPS", "styles", "main.css")); err != nil {
			t.Errorf("file not on disk: %v", err)
		}
	})

	t.Run("existing file keeps its case", func(t *testing.T) {
		if err := ws.WriteFile("oebps/text/CH2.xhtml", []byte("replaced")); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if got := readWS(t, ws, "OEBPS/text/ch2.xhtml"); got != "replaced" {
			t.Errorf("content = %q, want replaced", got)
		}
		if len(ws.Paths(KindXHTML)) != 2 {
			t.Errorf("Paths(KindXHTML) = %v, want two documents", ws.Paths(KindXHTML))
		}
	})

	t.Run("unsafe path", func(t *testing.T) {
		if err := ws.WriteFile("../escape.txt", []byte("x")); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("WriteFile error = %v, want ErrUnsafePath", err)
		}
	})
}

func TestWorkspace_PackageCache(t *testing.T) {
	ws := openTestWorkspace(t, testBook())

	pkg, err := ws.loadPackage()
	if err != nil {
		t.Fatalf("loadPackage: %v", err)
	}
	if !pkg.hasLanguage() {
		t.Fatal("test package should declare a language")
	}

	opf := strings.Replace(testOPF2, "<dc:language>en</dc:language>", "", 1)
	if err := ws.WriteFile(ws.OPFPath(), []byte(opf)); err != nil {
		t.Fatal(err)
	}
	pkg, err = ws.loadPackage()
	if err != nil {
		t.Fatalf("loadPackage after write: %v", err)
	}
	if pkg.hasLanguage() {
		t.Error("cached package not invalidated by OPF write")
	}

	if err := ws.WriteFile(ws.OPFPath(), []byte("<package")); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.loadPackage(); err == nil {
		t.Error("loadPackage of broken OPF returned nil error")
	}
}

func TestWorkspace_PackAndClose(t *testing.T) {
	files := testBook()
	delete(files, "mimetype")
	ws, err := OpenWorkspace(buildTestEPubFile(t, files), t.TempDir())
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "out.epub")
	if err := ws.Pack(dst); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if got := readZipEntry(t, dst, "mimetype"); got != expectedMimetype {
		t.Errorf("packed mimetype = %q", got)
	}

	root := ws.Root()
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("workspace root still exists: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
