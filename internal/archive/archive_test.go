package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return bytes.NewReader(buf.Bytes())
}

func TestClassEntriesFiltersNonClassAndPseudoClasses(t *testing.T) {
	r := buildZip(t, map[string]string{
		"com/example/Widget.class":  "x",
		"com/example/Widget.java":   "y",
		"module-info.class":         "z",
		"com/example/package-info.class": "z",
		"lib/dependency.jar":        "nested",
	})

	a, err := Open(r, r.Size())
	require.NoError(t, err)

	var names []string
	for _, e := range a.ClassEntries() {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"com/example/Widget.class"}, names)
}

func TestNestedArchiveEntries(t *testing.T) {
	r := buildZip(t, map[string]string{
		"BOOT-INF/lib/dep.jar": "nested",
		"com/example/App.class": "x",
	})
	a, err := Open(r, r.Size())
	require.NoError(t, err)

	nested := a.NestedArchiveEntries()
	require.Len(t, nested, 1)
	require.Equal(t, "BOOT-INF/lib/dep.jar", nested[0].Name)
}

func TestEntryOpenReadsContent(t *testing.T) {
	r := buildZip(t, map[string]string{"hello.txt": "hello world"})
	a, err := Open(r, r.Size())
	require.NoError(t, err)

	entries := a.Entries()
	require.Len(t, entries, 1)

	rc, err := entries[0].Open()
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestManifestEntry(t *testing.T) {
	r := buildZip(t, map[string]string{"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\n"})
	a, err := Open(r, r.Size())
	require.NoError(t, err)

	_, ok := a.ManifestEntry()
	require.True(t, ok)
}

func TestOpenRejectsGarbage(t *testing.T) {
	r := bytes.NewReader([]byte("not a zip file"))
	_, err := Open(r, int64(r.Len()))
	require.Error(t, err)
}
