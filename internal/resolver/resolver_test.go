package resolver

import (
	"testing"

	"github.com/flanksource/arch-unit/models"
	"github.com/stretchr/testify/require"
)

func TestResolveHasSourceAlwaysWins(t *testing.T) {
	r := New("semver")
	withoutSource := &models.Artifact{ID: 1, Version: "2.0.0", HasSource: false}
	withSource := &models.Artifact{ID: 2, Version: "1.0.0", HasSource: true}

	got := r.Resolve([]*models.Artifact{withoutSource, withSource})
	require.Same(t, withSource, got)
}

func TestResolveSemverPrefersHigherVersion(t *testing.T) {
	r := New("semver")
	v1 := &models.Artifact{ID: 1, Version: "1.2.0"}
	v2 := &models.Artifact{ID: 2, Version: "1.10.0"}

	got := r.Resolve([]*models.Artifact{v1, v2})
	require.Same(t, v2, got)
}

func TestResolveLatestPublishedAlias(t *testing.T) {
	r := New("date-latest")
	require.Equal(t, models.StrategyLatestPublished, r.Strategy)

	older := &models.Artifact{ID: 1, Version: "1.0.0", PublishedAt: 100}
	newer := &models.Artifact{ID: 2, Version: "1.0.0", PublishedAt: 200}

	got := r.Resolve([]*models.Artifact{older, newer})
	require.Same(t, newer, got)
}

func TestResolveLatestUsedAlias(t *testing.T) {
	r := New("usage-time")
	require.Equal(t, models.StrategyLatestUsed, r.Strategy)

	older := &models.Artifact{ID: 1, Version: "1.0.0", UsedAt: 100}
	newer := &models.Artifact{ID: 2, Version: "1.0.0", UsedAt: 200}

	got := r.Resolve([]*models.Artifact{older, newer})
	require.Same(t, newer, got)
}

func TestResolveFallsBackToInsertionID(t *testing.T) {
	r := New("semver")
	first := &models.Artifact{ID: 1, Version: "1.0.0"}
	second := &models.Artifact{ID: 2, Version: "1.0.0"}

	got := r.Resolve([]*models.Artifact{second, first})
	require.Same(t, second, got, "highest insertion id (discovered later) must win the final tie-break")
}

func TestResolveNonSemverNeverBeatsSemver(t *testing.T) {
	r := New("semver")
	weird := &models.Artifact{ID: 1, Version: "1.0-RELEASE"}
	normal := &models.Artifact{ID: 2, Version: "1.0.0"}

	got := r.Resolve([]*models.Artifact{weird, normal})
	require.Same(t, normal, got)
}

func TestResolveSingleCandidate(t *testing.T) {
	r := New("semver")
	only := &models.Artifact{ID: 1, Version: "1.0.0"}
	require.Same(t, only, r.Resolve([]*models.Artifact{only}))
}

func TestResolveEmptyReturnsNil(t *testing.T) {
	r := New("semver")
	require.Nil(t, r.Resolve(nil))
}
