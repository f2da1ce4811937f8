package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/flanksource/arch-unit/models"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertArtifactIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	a := &models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0", Abspath: "/repo/a"}
	first, err := s.UpsertArtifact(a)
	require.NoError(t, err)
	require.False(t, first.IsIndexed)

	tx, err := s.BeginArtifact(first.ID)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClass("com.example.Widget", "Widget"))
	require.NoError(t, tx.Commit())

	again := &models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0", Abspath: "/repo/a", HasSource: true}
	second, err := s.UpsertArtifact(again)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, second.IsIndexed, "re-scanning must not clear an existing IsIndexed flag")
	require.True(t, second.HasSource)
}

func TestFindUnindexed(t *testing.T) {
	s := newTestStore(t)

	indexed, err := s.UpsertArtifact(&models.Artifact{GroupID: "g", ArtifactID: "a", Version: "1"})
	require.NoError(t, err)
	tx, err := s.BeginArtifact(indexed.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = s.UpsertArtifact(&models.Artifact{GroupID: "g", ArtifactID: "b", Version: "1"})
	require.NoError(t, err)

	unindexed, err := s.FindUnindexed()
	require.NoError(t, err)
	require.Len(t, unindexed, 1)
	require.Equal(t, "b", unindexed[0].ArtifactID)
}

func seedClasses(t *testing.T, s *Store, artifactID int64, classes ...string) {
	t.Helper()
	tx, err := s.BeginArtifact(artifactID)
	require.NoError(t, err)
	for _, fq := range classes {
		simple := fq[strings.LastIndex(fq, ".")+1:]
		require.NoError(t, tx.InsertClass(fq, simple))
	}
	require.NoError(t, tx.Commit())
}

func TestSearchClassesExactAndFragment(t *testing.T) {
	s := newTestStore(t)
	art, err := s.UpsertArtifact(&models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0"})
	require.NoError(t, err)

	seedClasses(t, s, art.ID, "com.example.WidgetFactory", "com.example.Widget", "com.other.Gadget")

	results, err := s.SearchClasses("WidgetFactory")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "com.example.WidgetFactory", results[0].FQName)

	results, err = s.SearchClasses("Widget*")
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSearchImplementationsTraversesCycles(t *testing.T) {
	s := newTestStore(t)
	art, err := s.UpsertArtifact(&models.Artifact{GroupID: "g", ArtifactID: "a", Version: "1"})
	require.NoError(t, err)

	tx, err := s.BeginArtifact(art.ID)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClass("com.example.Base", "Base"))
	require.NoError(t, tx.InsertClass("com.example.Mid", "Mid"))
	require.NoError(t, tx.InsertClass("com.example.Leaf", "Leaf"))
	require.NoError(t, tx.InsertInheritanceEdge("com.example.Mid", "com.example.Base", models.InheritanceExtends))
	require.NoError(t, tx.InsertInheritanceEdge("com.example.Leaf", "com.example.Mid", models.InheritanceExtends))
	// a bogus cycle edge; must not hang the recursive query
	require.NoError(t, tx.InsertInheritanceEdge("com.example.Base", "com.example.Leaf", models.InheritanceExtends))
	require.NoError(t, tx.Commit())

	results, err := s.SearchImplementations("com.example.Base")
	require.NoError(t, err)

	var names []string
	for _, r := range results {
		names = append(names, r.FQName)
	}
	require.ElementsMatch(t, []string{"com.example.Mid", "com.example.Leaf", "com.example.Base"}, names)
}

func TestRefreshAllClearsDerivedState(t *testing.T) {
	s := newTestStore(t)
	art, err := s.UpsertArtifact(&models.Artifact{GroupID: "g", ArtifactID: "a", Version: "1"})
	require.NoError(t, err)
	tx, err := s.BeginArtifact(art.ID)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClass("com.example.Widget", "Widget"))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.RefreshAll())

	unindexed, err := s.FindUnindexed()
	require.NoError(t, err)
	require.Len(t, unindexed, 1)

	st, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, 0, st.ClassCount)
}
