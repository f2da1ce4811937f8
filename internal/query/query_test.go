package query

import (
	"path/filepath"
	"testing"

	"github.com/flanksource/arch-unit/internal/store"
	"github.com/flanksource/arch-unit/models"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func TestSearchArtifactsRejectsEmptyQuery(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.SearchArtifacts("")
	require.Error(t, err)
}

func TestSearchClassesDelegatesToStore(t *testing.T) {
	e, st := newTestEngine(t)
	art, err := st.UpsertArtifact(&models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0"})
	require.NoError(t, err)
	tx, err := st.BeginArtifact(art.ID)
	require.NoError(t, err)
	require.NoError(t, tx.InsertClass("com.example.Widget", "Widget"))
	require.NoError(t, tx.Commit())

	results, err := e.SearchClasses("Widget")
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestResourceSearchByArtifactGroups(t *testing.T) {
	e, st := newTestEngine(t)
	art, err := st.UpsertArtifact(&models.Artifact{GroupID: "com.example", ArtifactID: "widgets", Version: "1.0.0"})
	require.NoError(t, err)
	tx, err := st.BeginArtifact(art.ID)
	require.NoError(t, err)
	_, err = tx.InsertResource("widgets.proto", "message Widget {}", models.ResourceTypeProto)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	grouped, err := e.ResourceSearchByArtifact("widgets")
	require.NoError(t, err)
	require.Len(t, grouped["com.example:widgets:1.0.0"], 1)
}
