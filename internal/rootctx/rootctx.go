// Package rootctx wires together the explicitly-constructed components
// (§9): nothing in internal/* reaches for global state, so whatever
// creates a RootContext is the one place that decides where the config
// comes from and in what order components are built.
package rootctx

import (
	"fmt"

	"github.com/flanksource/arch-unit/config"
	"github.com/flanksource/arch-unit/internal/detail"
	"github.com/flanksource/arch-unit/internal/indexer"
	"github.com/flanksource/arch-unit/internal/query"
	"github.com/flanksource/arch-unit/internal/resolver"
	"github.com/flanksource/arch-unit/internal/scanner"
	"github.com/flanksource/arch-unit/internal/store"
)

// RootContext holds one fully-wired instance of every core component.
type RootContext struct {
	Options  *config.Options
	Store    *store.Store
	Scanner  *scanner.Scanner
	Indexer  *indexer.Indexer
	Query    *query.Engine
	Resolver *resolver.Resolver
	Detail   *detail.Extractor
}

// New constructs every component from opts, in dependency order: Store
// first (everything else reads or writes through it), then Scanner and
// Resolver (which need only opts), then Indexer and Detail (which need
// Store plus Scanner/Resolver).
func New(opts *config.Options) (*RootContext, error) {
	storePath := opts.StorePath
	if storePath == "" {
		storePath = "arch-unit-index.db"
	}

	st, err := store.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	sc := scanner.New(opts)
	res := resolver.New(opts.VersionStrategy)
	ix := indexer.New(st, sc, opts)
	qe := query.New(st)
	de := detail.New(st, res, opts.DecompilerPath, opts.JavapTool)

	return &RootContext{
		Options:  opts,
		Store:    st,
		Scanner:  sc,
		Indexer:  ix,
		Query:    qe,
		Resolver: res,
		Detail:   de,
	}, nil
}

// Close releases the Store's underlying connection and stops any running
// watcher.
func (rc *RootContext) Close() error {
	rc.Indexer.Stop()
	return rc.Store.Close()
}
