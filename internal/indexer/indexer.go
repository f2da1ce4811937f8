// Package indexer implements Indexer (§4.5): the orchestrator that scans
// configured Maven/Gradle roots, ingests newly-discovered artifacts into
// the Store, and keeps the index fresh via an fsnotify watcher and an
// hourly periodic sweep. Concurrent calls of the *same* kind (Index or
// Refresh) are collapsed by golang.org/x/sync/singleflight rather than left
// to race (§9 Open Question 1): a second Index call that arrives mid-run
// gets the in-flight run's result instead of kicking off a second,
// overlapping one. A Refresh that arrives while an Index is running is
// never coalesced into it and never dropped: it waits for the in-flight run
// to reach Idle, then performs its own full reset, since only Refresh
// actually calls RefreshAll.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/flanksource/arch-unit/config"
	"github.com/flanksource/arch-unit/internal/archive"
	"github.com/flanksource/arch-unit/internal/classfile"
	"github.com/flanksource/arch-unit/internal/protofile"
	"github.com/flanksource/arch-unit/internal/scanner"
	"github.com/flanksource/arch-unit/internal/store"
	"github.com/flanksource/arch-unit/models"
	"github.com/flanksource/commons/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// State is the Indexer's current activity, exposed for the CLI/status
// callers described in §4.5.
type State string

const (
	StateIdle       State = "idle"
	StateIndexing   State = "indexing"
	StateRefreshing State = "refreshing"
)

// watchDebounce is the minimum quiet period after the last filesystem event
// before a watch-triggered index run starts (§5).
const watchDebounce = 2 * time.Second

// periodicInterval is the period of the full sweep that runs alongside the
// watcher, so changes fsnotify never reports (e.g. on a network filesystem
// that doesn't support inotify) are still picked up.
const periodicInterval = time.Hour

// chunkSize bounds how many artifacts are handed to the worker pool per
// batch, matching §4.5's chunked ingestion contract.
const chunkSize = 50

// maxWorkers bounds ingestion concurrency within a chunk.
const maxWorkers = 8

// IndexResult summarizes one Index/Refresh run.
type IndexResult struct {
	RunID             string        `json:"runId"`
	ArtifactsScanned  int           `json:"artifactsScanned"`
	ArtifactsIndexed  int           `json:"artifactsIndexed"`
	ArtifactsFailed   int           `json:"artifactsFailed"`
	Duration          time.Duration `json:"duration"`
	WasRefresh        bool          `json:"wasRefresh"`
}

// Indexer orchestrates scanning and ingestion.
type Indexer struct {
	store   *store.Store
	scanner *scanner.Scanner
	opts    *config.Options

	// sfIndex and sfRefresh coalesce concurrent same-kind calls. runMu
	// serializes actual execution across kinds, since both share the Store
	// and Indexer.state: a call of one kind that arrives while the other is
	// running blocks here rather than running concurrently against it.
	sfIndex   singleflight.Group
	sfRefresh singleflight.Group
	runMu     sync.Mutex

	mu    sync.Mutex
	state State

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// New builds an Indexer from its already-constructed dependencies (§9:
// every component is explicitly wired, nothing reaches for global state).
func New(st *store.Store, sc *scanner.Scanner, opts *config.Options) *Indexer {
	return &Indexer{store: st, scanner: sc, opts: opts, state: StateIdle}
}

// State reports the current activity.
func (ix *Indexer) State() State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.state
}

func (ix *Indexer) setState(s State) {
	ix.mu.Lock()
	ix.state = s
	ix.mu.Unlock()
}

// Index scans for new artifacts and ingests any that are not yet indexed.
// Concurrent Index calls collapse into one run via singleflight; a Refresh
// running at the same time is waited out first (see runMu), never shared.
func (ix *Indexer) Index(ctx context.Context) (*IndexResult, error) {
	v, err, _ := ix.sfIndex.Do("index", func() (interface{}, error) {
		ix.runMu.Lock()
		defer ix.runMu.Unlock()
		return ix.runIndex(ctx, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*IndexResult), nil
}

// Refresh discards all derived index state and rebuilds it from scratch.
// Concurrent Refresh calls collapse into one run via singleflight. A
// Refresh that arrives while an Index is in flight is never folded into
// the index run's result: it waits for the Indexer to return to Idle
// (runMu), then performs the reset itself, so a requested refresh always
// actually executes.
func (ix *Indexer) Refresh(ctx context.Context) (*IndexResult, error) {
	v, err, _ := ix.sfRefresh.Do("refresh", func() (interface{}, error) {
		ix.runMu.Lock()
		defer ix.runMu.Unlock()
		return ix.runIndex(ctx, true)
	})
	if err != nil {
		return nil, err
	}
	return v.(*IndexResult), nil
}

func (ix *Indexer) runIndex(ctx context.Context, refresh bool) (*IndexResult, error) {
	start := time.Now()
	runID := uuid.NewString()

	if refresh {
		ix.setState(StateRefreshing)
		if err := ix.store.RefreshAll(); err != nil {
			ix.setState(StateIdle)
			return nil, fmt.Errorf("refresh: %w", err)
		}
	} else {
		ix.setState(StateIndexing)
		if err := ix.checkInheritanceConsistency(); err != nil {
			logger.Warnf("indexer: consistency check failed: %v", err)
		}
	}
	defer ix.setState(StateIdle)

	discovered := ix.scanner.Scan()
	logger.Infof("indexer: run %s discovered %d artifacts on disk", runID, len(discovered))

	for _, a := range discovered {
		if _, err := ix.store.UpsertArtifact(a); err != nil {
			logger.Warnf("indexer: upserting %s: %v", a.Coordinate(), err)
		}
	}

	unindexed, err := ix.store.FindUnindexed()
	if err != nil {
		return nil, fmt.Errorf("listing unindexed artifacts: %w", err)
	}

	var indexed, failed int
	for start := 0; start < len(unindexed); start += chunkSize {
		end := start + chunkSize
		if end > len(unindexed) {
			end = len(unindexed)
		}
		chunkIndexed, chunkFailed := ix.ingestChunk(ctx, unindexed[start:end])
		indexed += chunkIndexed
		failed += chunkFailed
	}

	result := &IndexResult{
		RunID:            runID,
		ArtifactsScanned: len(discovered),
		ArtifactsIndexed: indexed,
		ArtifactsFailed:  failed,
		Duration:         time.Since(start),
		WasRefresh:       refresh,
	}
	logger.Infof("indexer: run %s finished in %s: %d indexed, %d failed", runID, result.Duration, indexed, failed)
	return result, nil
}

// checkInheritanceConsistency implements §4.5 step 3: an older database
// may have artifacts marked indexed from before inheritance edges existed
// at all. If so, every class/edge/resource row is stale and must be
// rebuilt, so every artifact is reset to unindexed. An index whose classes
// produce no edges at all (each extends only java.lang.Object and implements
// nothing) meets the same condition, so it is reset and re-ingested on every
// Index run.
func (ix *Indexer) checkInheritanceConsistency() error {
	stats, err := ix.store.Stats()
	if err != nil {
		return err
	}
	if stats.IndexedArtifactCount == 0 {
		return nil
	}

	hasEdges, err := ix.store.HasInheritanceData()
	if err != nil {
		return err
	}
	if hasEdges {
		return nil
	}

	logger.Warnf("indexer: %d artifacts marked indexed with no inheritance data, resetting", stats.IndexedArtifactCount)
	return ix.store.ResetAllIndexedAndClasses()
}

// ingestChunk runs bounded-parallelism ingestion over one chunk of
// artifacts and returns (indexed, failed) counts.
func (ix *Indexer) ingestChunk(ctx context.Context, artifacts []*models.Artifact) (indexed, failed int) {
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, a := range artifacts {
		a := a
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := ix.ingestArtifact(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warnf("indexer: failed to ingest %s: %v", a.Coordinate(), err)
				failed++
			} else {
				indexed++
			}
		}()
	}
	wg.Wait()
	return indexed, failed
}

// ingestArtifact reads every .class and .proto entry out of one artifact's
// archive and commits the result in a single transaction. A single
// malformed class entry is skipped, logged, and does not fail the whole
// artifact; a wholly unreadable archive does fail the artifact, leaving it
// unindexed so the next run retries it.
func (ix *Indexer) ingestArtifact(ctx context.Context, a *models.Artifact) error {
	// A Maven-layout artifact's Abspath is its version directory; the
	// archive to read is the main jar inside it.
	path := a.Abspath
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, a.ArtifactID+"-"+a.Version+".jar")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrArchiveUnreadable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrArchiveUnreadable, err)
	}

	ar, err := archive.Open(f, info.Size())
	if err != nil {
		return err
	}

	tx, err := ix.store.BeginArtifact(a.ID)
	if err != nil {
		return err
	}

	if err := tx.DeleteArtifactRows(); err != nil {
		tx.Rollback()
		return err
	}

	prefixes := ix.opts.NormalizedPackages()

	for _, entry := range ar.ClassEntries() {
		if err := ctx.Err(); err != nil {
			tx.Rollback()
			return err
		}
		if err := ix.ingestClassEntry(tx, entry, prefixes); err != nil {
			logger.Debugf("indexer: skipping class entry %s in %s: %v", entry.Name, a.Coordinate(), err)
		}
	}

	for _, entry := range ar.Entries() {
		if !strings.HasSuffix(entry.Name, ".proto") {
			continue
		}
		if err := ix.ingestProtoEntry(tx, entry, prefixes); err != nil {
			logger.Debugf("indexer: skipping proto entry %s in %s: %v", entry.Name, a.Coordinate(), err)
		}
	}

	return tx.Commit()
}

func (ix *Indexer) ingestClassEntry(tx *store.ArtifactTxn, entry archive.Entry, prefixes []string) error {
	if classfile.IsNestedClass(entry.Name) {
		return nil
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	class, err := classfile.Read(rc)
	if err != nil {
		return err
	}

	if !config.MatchesPrefixes(class.Name, prefixes) {
		return nil
	}

	simple := class.Name
	if idx := strings.LastIndex(simple, "."); idx >= 0 {
		simple = simple[idx+1:]
	}
	if err := tx.InsertClass(class.Name, simple); err != nil {
		return err
	}

	if class.SuperName != "" {
		if err := tx.InsertInheritanceEdge(class.Name, class.SuperName, models.InheritanceExtends); err != nil {
			return err
		}
	}
	for _, iface := range class.InterfaceNames {
		if err := tx.InsertInheritanceEdge(class.Name, iface, models.InheritanceImplements); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) ingestProtoEntry(tx *store.ArtifactTxn, entry archive.Entry, prefixes []string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := rc.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}

	parsed := protofile.Parse(string(buf))
	base := entry.Name[strings.LastIndex(entry.Name, "/")+1:]
	classNames := parsed.GeneratedClassNames(base)

	var toInsert []string
	for _, name := range classNames {
		if config.MatchesPrefixes(name, prefixes) {
			toInsert = append(toInsert, name)
		}
	}
	if len(toInsert) == 0 {
		return nil
	}

	resID, err := tx.InsertResource(entry.Name, string(buf), models.ResourceTypeProto)
	if err != nil {
		return err
	}
	for _, name := range toInsert {
		if err := tx.LinkResourceClass(resID, name); err != nil {
			return err
		}
	}
	return nil
}

// Watch starts an fsnotify watcher over the configured Maven/Gradle roots
// and a hourly periodic sweep, both triggering Index in the background.
// Filesystem events are debounced: a burst of writes (e.g. a Gradle/Maven
// download in progress) resets a watchDebounce timer rather than
// triggering a run per event.
func (ix *Indexer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfigurationError, err)
	}

	for _, root := range []string{ix.opts.MavenRepo, ix.opts.GradleRepo} {
		if root == "" {
			continue
		}
		if err := addWatchRecursive(w, root); err != nil {
			logger.Warnf("indexer: watch setup for %s: %v", root, err)
		}
	}

	ix.watcher = w
	ix.stopCh = make(chan struct{})

	go ix.watchLoop(ctx, w)
	return nil
}

// Stop shuts down the watcher and periodic sweep started by Watch.
func (ix *Indexer) Stop() {
	if ix.stopCh != nil {
		close(ix.stopCh)
	}
	if ix.watcher != nil {
		ix.watcher.Close()
	}
}

func (ix *Indexer) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	var debounce *time.Timer
	ticker := time.NewTicker(periodicInterval)
	defer ticker.Stop()

	trigger := func() {
		if _, err := ix.Index(ctx); err != nil {
			logger.Warnf("indexer: watch-triggered index run failed: %v", err)
		}
	}

	for {
		select {
		case <-ix.stopCh:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !isWatchedEvent(ev) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, trigger)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warnf("indexer: watcher error: %v", err)
		case <-ticker.C:
			trigger()
		}
	}
}

// isWatchedEvent reports whether a filesystem event is one the watcher
// should react to: §4.5 scopes the watch to artifact files themselves
// (*.jar, *.pom), not every change under the cache root (lock files,
// directory creation, hash-dir scaffolding Maven/Gradle writes mid-download).
func isWatchedEvent(ev fsnotify.Event) bool {
	return strings.HasSuffix(ev.Name, ".jar") || strings.HasSuffix(ev.Name, ".pom")
}

// addWatchRecursive registers every subdirectory under root, since
// fsnotify does not watch recursively on its own.
func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				logger.Debugf("indexer: could not watch %s: %v", path, err)
			}
		}
		return nil
	})
}
