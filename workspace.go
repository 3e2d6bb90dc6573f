package epubfix

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace is an ePub extracted to a temporary directory for editing.
// Use OpenWorkspace to create one and Close to remove the directory.
//
// A Workspace is not safe for concurrent use by multiple goroutines.
type Workspace struct {
	root     string
	names    []string // sorted archive-internal paths
	exact    map[string]bool
	lower    map[string]string // lowercase path -> actual path
	opfPath  string
	pkg      *opfPackage
	pkgErr   error
	pkgDirty bool
	warnings []string
}

// OpenWorkspace extracts the ePub at src into a new temporary directory below
// tmpDir (os.TempDir when empty), locates its OPF package, and rejects
// DRM-protected books with ErrDRMProtected.
func OpenWorkspace(src, tmpDir string) (*Workspace, error) {
	root, err := os.MkdirTemp(tmpDir, "epubfix-*")
	if err != nil {
		return nil, fmt.Errorf("epubfix: create workspace: %w", err)
	}

	ws, err := initWorkspace(src, root)
	if err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	return ws, nil
}

// initWorkspace performs extraction, container parsing, and DRM detection.
func initWorkspace(src, root string) (*Workspace, error) {
	if _, err := Extract(src, root); err != nil {
		return nil, err
	}

	ws := &Workspace{root: root, pkgDirty: true}
	if err := ws.rescan(); err != nil {
		return nil, err
	}

	fsys := os.DirFS(root)

	fontObfuscation, err := checkDRM(fsys, ws.names)
	if err != nil {
		return nil, err
	}
	if fontObfuscation {
		ws.warnings = append(ws.warnings, "font obfuscation detected; obfuscated fonts are left untouched")
	}

	opfPath, err := parseContainer(fsys, ws.names)
	if err != nil {
		return nil, err
	}
	ws.opfPath = opfPath

	if !ws.Exists(mimetypeName) {
		ws.warnings = append(ws.warnings, "mimetype entry missing")
	}
	return ws, nil
}

// rescan rebuilds the file index from the directory tree.
func (ws *Workspace) rescan() error {
	names, err := listFiles(ws.root)
	if err != nil {
		return err
	}
	ws.names = names
	ws.exact = make(map[string]bool, len(names))
	ws.lower = make(map[string]string, len(names))
	for _, n := range names {
		ws.exact[n] = true
		lower := strings.ToLower(n)
		if _, exists := ws.lower[lower]; !exists {
			ws.lower[lower] = n
		}
	}
	return nil
}

// Root returns the workspace directory.
func (ws *Workspace) Root() string { return ws.root }

// OPFPath returns the archive-internal path of the OPF package document.
func (ws *Workspace) OPFPath() string { return ws.opfPath }

// Warnings returns the non-fatal notes gathered while opening the book.
func (ws *Workspace) Warnings() []string {
	return append([]string(nil), ws.warnings...)
}

// Names returns all archive-internal file paths in lexical order.
func (ws *Workspace) Names() []string {
	return append([]string(nil), ws.names...)
}

// Paths returns the archive-internal paths of all files of the given kind.
func (ws *Workspace) Paths(kind DocKind) []string {
	var out []string
	for _, n := range ws.names {
		if kindOf(n) == kind {
			out = append(out, n)
		}
	}
	return out
}

// lookup resolves name to an existing path, trying an exact match first and
// falling back to a case-insensitive match. Returns "" if not found.
func (ws *Workspace) lookup(name string) string {
	if ws.exact[name] {
		return name
	}
	return ws.lower[strings.ToLower(name)]
}

// Exists reports whether name exists in the workspace.
func (ws *Workspace) Exists(name string) bool {
	return ws.lookup(name) != ""
}

// ReadFile reads a file by its archive-internal path.
// The lookup is case-insensitive as a fallback.
func (ws *Workspace) ReadFile(name string) ([]byte, error) {
	actual := ws.lookup(name)
	if actual == "" {
		return nil, fmt.Errorf("epubfix: %s: %w", name, ErrFileNotFound)
	}
	data, err := os.ReadFile(ws.abs(actual))
	if err != nil {
		return nil, fmt.Errorf("epubfix: read %s: %w", actual, err)
	}
	return data, nil
}

// WriteFile writes data to name, creating it and any parent directories if
// needed. Writing the OPF invalidates the cached package.
func (ws *Workspace) WriteFile(name string, data []byte) error {
	if !isSafePath(name) {
		return fmt.Errorf("epubfix: %s: %w", name, ErrUnsafePath)
	}
	name = path.Clean(name)
	if actual := ws.lookup(name); actual != "" {
		name = actual
	}
	dst := ws.abs(name)
	if err := os.MkdirAll(filepath.Dir(dst), dirPermissions); err != nil {
		return fmt.Errorf("epubfix: create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, filePermissions); err != nil {
		return fmt.Errorf("epubfix: write %s: %w", name, err)
	}
	if !ws.exact[name] {
		ws.names = append(ws.names, name)
		sort.Strings(ws.names)
		ws.exact[name] = true
		if _, exists := ws.lower[strings.ToLower(name)]; !exists {
			ws.lower[strings.ToLower(name)] = name
		}
	}
	if name == ws.opfPath {
		ws.pkgDirty = true
	}
	return nil
}

// abs converts an archive-internal path to a filesystem path.
func (ws *Workspace) abs(name string) string {
	return filepath.Join(ws.root, filepath.FromSlash(name))
}

// loadPackage returns the parsed OPF package. The result is cached until the OPF
// is rewritten. A parse failure is returned as an error; rules that only need
// the raw text keep working on a broken package.
func (ws *Workspace) loadPackage() (*opfPackage, error) {
	if !ws.pkgDirty {
		return ws.pkg, ws.pkgErr
	}
	ws.pkgDirty = false
	data, err := ws.ReadFile(ws.opfPath)
	if err != nil {
		ws.pkg, ws.pkgErr = nil, err
		return nil, err
	}
	ws.pkg, ws.pkgErr = parseOPF(data)
	return ws.pkg, ws.pkgErr
}

// Pack writes the workspace to a new ePub archive at dst.
func (ws *Workspace) Pack(dst string) error {
	return Pack(ws.root, dst)
}

// Close removes the workspace directory. Close is idempotent.
func (ws *Workspace) Close() error {
	if ws.root == "" {
		return nil
	}
	err := os.RemoveAll(ws.root)
	ws.root = ""
	return err
}
