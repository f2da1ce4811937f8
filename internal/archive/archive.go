// Package archive streams entries out of JAR/WAR/ZIP files without
// extracting them to disk, mirroring the zip-streaming approach in
// quay/claircore's java jar scanner (0de3773f_quay-claircore__java-jar-jar.go.go).
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"github.com/flanksource/arch-unit/models"
)

// Header is the ZIP local file header magic, used the same way claircore's
// jar scanner uses it to sanity-check a file before treating it as a jar.
var Header = []byte{'P', 'K', 0x03, 0x04}

// Archive is a lazily-read JAR/WAR/ZIP file.
type Archive struct {
	zr *zip.Reader
}

// Open indexes the archive's central directory without decompressing any
// entry bodies.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrArchiveUnreadable, err)
	}
	return &Archive{zr: zr}, nil
}

// Entry describes one file inside the archive.
type Entry struct {
	Name string
	f    *zip.File
}

// Entries lists every file in the archive, in central-directory order.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, 0, len(a.zr.File))
	for _, f := range a.zr.File {
		out = append(out, Entry{Name: f.Name, f: f})
	}
	return out
}

// Open decompresses a single entry on demand. Callers should read it and
// close it promptly rather than holding many entries open at once.
func (e Entry) Open() (io.ReadCloser, error) {
	rc, err := e.f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", models.ErrArchiveUnreadable, e.Name, err)
	}
	return rc, nil
}

// ClassEntries filters Entries to just the *.class files, skipping
// directory entries and the module-info/package-info pseudo-classes that
// carry no type of interest.
func (a *Archive) ClassEntries() []Entry {
	var out []Entry
	for _, e := range a.Entries() {
		if !strings.HasSuffix(e.Name, ".class") {
			continue
		}
		base := e.Name[strings.LastIndex(e.Name, "/")+1:]
		if base == "module-info.class" || base == "package-info.class" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// NestedArchiveEntries returns entries that are themselves jars (fat/uber
// jars bundling dependencies under e.g. BOOT-INF/lib or WEB-INF/lib),
// matching claircore's extractInner handling of nested archives.
func (a *Archive) NestedArchiveEntries() []Entry {
	var out []Entry
	for _, e := range a.Entries() {
		if strings.HasSuffix(e.Name, ".jar") {
			out = append(out, e)
		}
	}
	return out
}

// ManifestEntry returns the META-INF/MANIFEST.MF entry, if present.
func (a *Archive) ManifestEntry() (Entry, bool) {
	for _, e := range a.Entries() {
		if e.Name == "META-INF/MANIFEST.MF" {
			return e, true
		}
	}
	return Entry{}, false
}
