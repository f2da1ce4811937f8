// Package resolver picks a single artifact out of several candidates that
// all carry a requested class, per the deterministic ordering in §4.8.
package resolver

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/flanksource/arch-unit/models"
	"github.com/flanksource/commons/logger"
)

// Resolver picks the best artifact among several carrying the same class.
type Resolver struct {
	Strategy models.VersionStrategy
}

// New builds a Resolver, normalizing legacy strategy aliases.
func New(strategy string) *Resolver {
	return &Resolver{Strategy: models.NormalizeVersionStrategy(strategy)}
}

// Resolve returns the single best candidate. candidates must be non-empty;
// callers check for that before calling Resolve (an empty result just means
// "no artifact carries this class", handled upstream).
//
// Ordering, most to least significant:
//  1. has-source beats no-source
//  2. the configured strategy's tie-break
//  3. insertion id (higher id, i.e. discovered later, wins) as the final,
//     always-available tie-break so the ordering is a total order
func (r *Resolver) Resolve(candidates []*models.Artifact) *models.Artifact {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	ranked := make([]*models.Artifact, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.HasSource != b.HasSource {
			return a.HasSource
		}
		if cmp := r.compareByStrategy(a, b); cmp != 0 {
			return cmp > 0
		}
		return a.ID > b.ID
	})

	return ranked[0]
}

// compareByStrategy returns >0 if a should be preferred over b, <0 for the
// reverse, 0 if the strategy can't distinguish them (falls through to the
// insertion-id tie-break).
func (r *Resolver) compareByStrategy(a, b *models.Artifact) int {
	switch r.Strategy {
	case models.StrategySemver:
		return compareSemver(a.Version, b.Version)
	case models.StrategyLatestPublished:
		return compareTime(a.PublishedAt, b.PublishedAt)
	case models.StrategyLatestUsed:
		return compareTime(a.UsedAt, b.UsedAt)
	default:
		return compareSemver(a.Version, b.Version)
	}
}

// compareSemver parses both versions and compares them. A version that
// fails to parse as semver (common for Maven qualifiers like "1.0-RELEASE"
// or date-stamped snapshots) is never preferred over one that does parse;
// if neither parses, falls back to a plain string comparison so the
// ordering stays total and deterministic.
func compareSemver(va, vb string) int {
	a, errA := semver.NewVersion(va)
	b, errB := semver.NewVersion(vb)

	switch {
	case errA == nil && errB == nil:
		return a.Compare(b)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		logger.Debugf("resolver: neither %q nor %q parse as semver, falling back to string order", va, vb)
		if va == vb {
			return 0
		}
		if va > vb {
			return 1
		}
		return -1
	}
}

func compareTime(a, b int64) int {
	switch {
	case a == b:
		return 0
	case a > b:
		return 1
	default:
		return -1
	}
}
