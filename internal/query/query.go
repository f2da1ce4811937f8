// Package query implements QueryEngine (§4.6): the read-only surface over
// the Store that every CLI/tool-call search operation goes through.
package query

import (
	"fmt"

	"github.com/flanksource/arch-unit/internal/store"
	"github.com/flanksource/arch-unit/models"
	"github.com/samber/lo"
)

// Engine is a thin, read-only wrapper over the Store: it rejects empty
// queries and groups resource results by artifact; search-mode selection
// and the joins themselves live in the Store.
type Engine struct {
	store *store.Store
}

// New builds a query Engine over an already-open Store.
func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// SearchArtifacts finds artifacts whose groupId or artifactId contains q.
func (e *Engine) SearchArtifacts(q string) ([]*models.Artifact, error) {
	if q == "" {
		return nil, fmt.Errorf("%w: empty artifact query", models.ErrInvalidQuery)
	}
	return e.store.SearchArtifacts(q)
}

// SearchClasses runs Store.SearchClasses, which dispatches to
// regex/glob/fragment search and groups the result by fully-qualified
// class name (§4.6).
func (e *Engine) SearchClasses(q string) ([]*models.ClassSearchResult, error) {
	if q == "" {
		return nil, fmt.Errorf("%w: empty class query", models.ErrInvalidQuery)
	}
	return e.store.SearchClasses(q)
}

// SearchImplementations returns every class that transitively extends or
// implements fqName, across every artifact.
func (e *Engine) SearchImplementations(fqName string) ([]*models.ClassSearchResult, error) {
	if fqName == "" {
		return nil, fmt.Errorf("%w: empty class name", models.ErrInvalidQuery)
	}
	return e.store.SearchImplementations(fqName)
}

// SearchResources finds resources (currently: .proto files) whose path
// contains substring.
func (e *Engine) SearchResources(substring string) ([]*models.ResourceSearchResult, error) {
	if substring == "" {
		return nil, fmt.Errorf("%w: empty resource query", models.ErrInvalidQuery)
	}
	return e.store.SearchResources(substring)
}

// ResourcesForClass returns the resource(s) a generated class (e.g. a
// protoc-gen-java message class) was produced from.
func (e *Engine) ResourcesForClass(fqName string) ([]*models.Resource, error) {
	if fqName == "" {
		return nil, fmt.Errorf("%w: empty class name", models.ErrInvalidQuery)
	}
	return e.store.GetResourcesForClass(fqName)
}

// ResourceSearchByArtifact groups a resource search's results by the
// artifact they came from, for callers that want to present results
// artifact-first rather than resource-first.
func (e *Engine) ResourceSearchByArtifact(substring string) (map[string][]*models.ResourceSearchResult, error) {
	results, err := e.SearchResources(substring)
	if err != nil {
		return nil, err
	}
	return lo.GroupBy(results, func(r *models.ResourceSearchResult) string {
		return r.Artifact.Coordinate()
	}), nil
}
