package detail

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/flanksource/arch-unit/internal/resolver"
	"github.com/flanksource/arch-unit/internal/store"
	"github.com/flanksource/arch-unit/models"
	"github.com/stretchr/testify/require"
)

func TestFirstClassJavadoc(t *testing.T) {
	src := `package com.example;

/**
 * Does widget things.
 * Second line.
 */
public class Widget {
}
`
	got := firstClassJavadoc(src)
	require.Equal(t, "Does widget things.\nSecond line.", got)
}

func TestMethodSignaturesFromSource(t *testing.T) {
	src := `package com.example;

public class Widget {
	private int count;

	public Widget(String name) {
	}

	public String getName() {
		return null;
	}

	protected static void reset() {
	}
}
`
	got := methodSignaturesFromSource(src)
	require.Contains(t, got, "public String getName()")
	require.Contains(t, got, "protected static void reset()")
}

func u16(v uint16) []byte { out := make([]byte, 2); binary.BigEndian.PutUint16(out, v); return out }
func u32(v uint32) []byte { out := make([]byte, 4); binary.BigEndian.PutUint32(out, v); return out }

// buildMinimalClass returns class bytes for com.example.Widget extending
// java.lang.Object with one public instance method "greet()V".
func buildMinimalClass(t *testing.T) []byte {
	t.Helper()
	var pool [][]byte
	add := func(e []byte) uint16 {
		pool = append(pool, e)
		return uint16(len(pool))
	}
	addUTF8 := func(s string) uint16 {
		e := append([]byte{1}, u16(uint16(len(s)))...)
		e = append(e, []byte(s)...)
		return add(e)
	}
	addClass := func(nameIdx uint16) uint16 {
		return add(append([]byte{7}, u16(nameIdx)...))
	}

	widgetName := addUTF8("com/example/Widget")
	widgetClass := addClass(widgetName)
	objectName := addUTF8("java/lang/Object")
	objectClass := addClass(objectName)
	greetName := addUTF8("greet")
	greetDesc := addUTF8("()V")

	var out bytes.Buffer
	out.Write(u32(0xCAFEBABE))
	out.Write(u16(0))
	out.Write(u16(52))
	out.Write(u16(uint16(len(pool) + 1)))
	for _, e := range pool {
		out.Write(e)
	}
	out.Write(u16(0x0021)) // access_flags
	out.Write(u16(widgetClass))
	out.Write(u16(objectClass))
	out.Write(u16(0)) // interfaces_count
	out.Write(u16(0)) // fields_count
	out.Write(u16(1)) // methods_count
	out.Write(u16(0x0001))
	out.Write(u16(greetName))
	out.Write(u16(greetDesc))
	out.Write(u16(0)) // method attributes_count
	out.Write(u16(0)) // class attributes_count

	return out.Bytes()
}

func writeJar(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestGetClassDetailUsesBytecodeWhenNoSource(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "widgets-1.0.0.jar")
	writeJar(t, jarPath, map[string][]byte{"com/example/Widget.class": buildMinimalClass(t)})

	st, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer st.Close()

	art, err := st.UpsertArtifact(&models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0", Abspath: jarPath})
	require.NoError(t, err)
	tx, err := st.BeginArtifact(art.ID)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClass("com.example.Widget", "Widget"))
	require.NoError(t, tx.Commit())

	ext := New(st, resolver.New("semver"), "", "")
	detail, err := ext.GetClassDetail(context.Background(), "com.example.Widget", models.DetailSignatures)
	require.NoError(t, err)
	require.Contains(t, detail.Signatures, "public void greet()")
	require.False(t, detail.UsedDecompilation)
}

func TestGetClassDetailPrefersJavapToolOverClassfileReader(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "widgets-1.0.0.jar")
	writeJar(t, jarPath, map[string][]byte{"com/example/Widget.class": buildMinimalClass(t)})

	st, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer st.Close()

	art, err := st.UpsertArtifact(&models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0", Abspath: jarPath})
	require.NoError(t, err)
	tx, err := st.BeginArtifact(art.ID)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClass("com.example.Widget", "Widget"))
	require.NoError(t, tx.Commit())

	fakeJavap := filepath.Join(dir, "fake-javap.sh")
	require.NoError(t, os.WriteFile(fakeJavap, []byte("#!/bin/sh\necho 'public java.lang.String fromJavapTool();'\n"), 0o755))

	ext := New(st, resolver.New("semver"), "", fakeJavap)
	detail, err := ext.GetClassDetail(context.Background(), "com.example.Widget", models.DetailSignatures)
	require.NoError(t, err)
	require.Contains(t, detail.Signatures, "public java.lang.String fromJavapTool();")
	require.NotContains(t, detail.Signatures, "public void greet()")
}

func TestGetClassDetailPrefersSourceArchive(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "widgets-1.0.0.jar")
	sourcesPath := filepath.Join(dir, "widgets-1.0.0-sources.jar")
	writeJar(t, jarPath, map[string][]byte{"com/example/Widget.class": buildMinimalClass(t)})
	writeJar(t, sourcesPath, map[string][]byte{
		"com/example/Widget.java": []byte(`package com.example;

/**
 * A widget.
 */
public class Widget {
	public void greet() {
	}
}
`),
	})

	st, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer st.Close()

	art, err := st.UpsertArtifact(&models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0", Abspath: jarPath, HasSource: true})
	require.NoError(t, err)
	tx, err := st.BeginArtifact(art.ID)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClass("com.example.Widget", "Widget"))
	require.NoError(t, tx.Commit())

	ext := New(st, resolver.New("semver"), "", "")
	detail, err := ext.GetClassDetail(context.Background(), "com.example.Widget", models.DetailDocs)
	require.NoError(t, err)
	require.Equal(t, "A widget.", detail.Doc)
}

func TestGetClassDetailDocsWithoutSourceNeedsDecompiler(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "widgets-1.0.0.jar")
	writeJar(t, jarPath, map[string][]byte{"com/example/Widget.class": buildMinimalClass(t)})

	st, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer st.Close()

	art, err := st.UpsertArtifact(&models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0", Abspath: jarPath})
	require.NoError(t, err)
	tx, err := st.BeginArtifact(art.ID)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClass("com.example.Widget", "Widget"))
	require.NoError(t, tx.Commit())

	ext := New(st, resolver.New("semver"), "", "")
	_, err = ext.GetClassDetail(context.Background(), "com.example.Widget", models.DetailDocs)
	require.ErrorIs(t, err, models.ErrDecompilerUnavailable)
}

func TestGetClassDetailNotFound(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer st.Close()

	ext := New(st, resolver.New("semver"), "", "")
	_, err = ext.GetClassDetail(context.Background(), "com.example.Missing", models.DetailSignatures)
	require.Error(t, err)
}
