package epubfix

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// mimetypeName is the archive path of the ePub mimetype file.
const mimetypeName = "mimetype"

// expectedMimetype is the required content of the "mimetype" file in a valid ePub.
const expectedMimetype = "application/epub+zip"

// File permissions for extracted and packed files.
const (
	dirPermissions  = 0o750
	filePermissions = 0o644
)

// Extract unpacks the ZIP archive at src into dir and returns the
// archive-internal paths of the extracted files in archive order.
//
// Entries that would escape dir are rejected with ErrUnsafePath. Each entry
// is limited to 256 MB and the whole archive to 1 GB of decompressed data.
func Extract(src, dir string) ([]string, error) {
	zrc, err := zip.OpenReader(src)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, fmt.Errorf("epubfix: open %s: %v: %w", src, err, ErrInvalidEPub)
		}
		return nil, fmt.Errorf("epubfix: open %s: %w", src, err)
	}
	defer zrc.Close()
	return extractReader(&zrc.Reader, dir, maxExtractSize)
}

// extractReader is the implementation of Extract over an open zip.Reader
// with a configurable total size limit.
func extractReader(zr *zip.Reader, dir string, totalLimit int64) ([]string, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("epubfix: create %s: %w", dir, err)
	}

	var (
		names []string
		total int64
		seen  = make(map[string]bool, len(zr.File))
	)
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if !isSafePath(name) {
			return nil, fmt.Errorf("epubfix: %s: %w", f.Name, ErrUnsafePath)
		}
		if strings.HasSuffix(name, "/") || f.FileInfo().IsDir() {
			continue
		}
		if seen[name] {
			// Duplicate entries: the first one wins, as in readers.
			continue
		}
		seen[name] = true

		data, err := readZipFile(f)
		if err != nil {
			return nil, err
		}
		total += int64(len(data))
		if total > totalLimit {
			return nil, fmt.Errorf("epubfix: archive exceeds extraction limit (%d bytes)", totalLimit)
		}

		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), dirPermissions); err != nil {
			return nil, fmt.Errorf("epubfix: create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(dst, data, filePermissions); err != nil {
			return nil, fmt.Errorf("epubfix: write %s: %w", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Pack writes the directory tree rooted at dir to a new ePub archive at dst.
//
// The mimetype entry is always written first, uncompressed, with the content
// "application/epub+zip". All other regular files follow in lexical order
// using Deflate. The archive is written to a temporary file next to dst and
// renamed into place once complete.
func Pack(dir, dst string) error {
	names, err := listFiles(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), dirPermissions); err != nil {
		return fmt.Errorf("epubfix: create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".epubfix-*.epub")
	if err != nil {
		return fmt.Errorf("epubfix: create temporary archive: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := writeArchive(tmp, dir, names); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("epubfix: close temporary archive: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("epubfix: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("epubfix: rename archive to %s: %w", dst, err)
	}
	return nil
}

// writeArchive writes the mimetype entry followed by names to w.
func writeArchive(w io.Writer, dir string, names []string) error {
	zw := zip.NewWriter(w)

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: mimetypeName, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("epubfix: create mimetype entry: %w", err)
	}
	if _, err := io.WriteString(mw, expectedMimetype); err != nil {
		return fmt.Errorf("epubfix: write mimetype entry: %w", err)
	}

	for _, name := range names {
		if name == mimetypeName {
			continue
		}
		if err := addFile(zw, dir, name); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("epubfix: finalize archive: %w", err)
	}
	return nil
}

// addFile copies one file from dir into the archive under name.
func addFile(zw *zip.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return fmt.Errorf("epubfix: open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("epubfix: stat %s: %w", name, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("epubfix: header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("epubfix: create entry %s: %w", name, err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("epubfix: write entry %s: %w", name, err)
	}
	return nil
}

// listFiles returns the slash-separated paths of all regular files below dir,
// sorted lexically.
func listFiles(dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("epubfix: list %s: %w", dir, err)
	}
	sort.Strings(names)
	return names, nil
}
