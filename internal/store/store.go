// Package store owns the persistent index: artifact rows (via GORM), and a
// full-text class index, inheritance edge table, and resource tables backed
// by hand-written SQLite schema (mirroring the split the teacher repo uses
// between internal/cache/db.go's GORM-managed models and
// internal/cache/ast_cache.go's raw-SQL schema layered on the same
// connection).
package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/flanksource/arch-unit/models"
	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
)

// Store is the sole owner of ingestion-related rows (§3 Ownership).
// QueryEngine and DetailExtractor only read from it.
type Store struct {
	db *DB
}

// Open creates (or reopens) the persistent store at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if err := s.db.GormDB().AutoMigrate(&models.Artifact{}); err != nil {
		return fmt.Errorf("migrating artifacts: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id INTEGER NOT NULL,
		fq_name TEXT NOT NULL,
		simple_name TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_classes_artifact ON classes(artifact_id);
	CREATE INDEX IF NOT EXISTS idx_classes_fq_name ON classes(fq_name);
	CREATE INDEX IF NOT EXISTS idx_classes_simple_name ON classes(simple_name);

	CREATE VIRTUAL TABLE IF NOT EXISTS classes_fts USING fts5(
		fq_name, simple_name,
		content='classes', content_rowid='id',
		tokenize='trigram case_sensitive 0'
	);

	CREATE TRIGGER IF NOT EXISTS classes_ai AFTER INSERT ON classes BEGIN
		INSERT INTO classes_fts(rowid, fq_name, simple_name) VALUES (new.id, new.fq_name, new.simple_name);
	END;
	CREATE TRIGGER IF NOT EXISTS classes_ad AFTER DELETE ON classes BEGIN
		INSERT INTO classes_fts(classes_fts, rowid, fq_name, simple_name) VALUES ('delete', old.id, old.fq_name, old.simple_name);
	END;

	CREATE TABLE IF NOT EXISTS inheritance_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id INTEGER NOT NULL,
		class_name TEXT NOT NULL,
		parent_class_name TEXT NOT NULL,
		kind TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_edges_artifact ON inheritance_edges(artifact_id);
	CREATE INDEX IF NOT EXISTS idx_edges_class ON inheritance_edges(class_name);
	CREATE INDEX IF NOT EXISTS idx_edges_parent ON inheritance_edges(parent_class_name);

	CREATE TABLE IF NOT EXISTS resources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resources_artifact ON resources(artifact_id);
	CREATE INDEX IF NOT EXISTS idx_resources_path ON resources(path);

	CREATE TABLE IF NOT EXISTS resource_class_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		resource_id INTEGER NOT NULL,
		class_name TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_links_resource ON resource_class_links(resource_id);
	CREATE INDEX IF NOT EXISTS idx_links_class ON resource_class_links(class_name);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	logger.Debugf("store schema ready")
	return nil
}

// UpsertArtifact inserts a row for (groupId, artifactId, version) if absent.
// It never downgrades an already-indexed row back to isIndexed=false, and
// never overwrites an existing row's IsIndexed flag at all (§4.2).
func (s *Store) UpsertArtifact(a *models.Artifact) (*models.Artifact, error) {
	var existing models.Artifact
	err := s.db.GormDB().Where("group_id = ? AND artifact_id = ? AND version = ?",
		a.GroupID, a.ArtifactID, a.Version).First(&existing).Error

	if err == nil {
		// Row exists: refresh location/source metadata, but never touch IsIndexed.
		existing.Abspath = a.Abspath
		existing.HasSource = a.HasSource
		if err := s.db.GormDB().Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("updating artifact %s: %w", a.Coordinate(), err)
		}
		return &existing, nil
	}

	a.IsIndexed = false
	if err := s.db.GormDB().Create(a).Error; err != nil {
		return nil, fmt.Errorf("inserting artifact %s: %w", a.Coordinate(), err)
	}
	return a, nil
}

// FindUnindexed returns every artifact with IsIndexed=false.
func (s *Store) FindUnindexed() ([]*models.Artifact, error) {
	var rows []*models.Artifact
	if err := s.db.GormDB().Where("is_indexed = ?", false).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetArtifact looks up one artifact by its exact coordinate, without going
// through ArtifactResolver.
func (s *Store) GetArtifact(groupID, artifactID, version string) (*models.Artifact, error) {
	var a models.Artifact
	err := s.db.GormDB().Where("group_id = ? AND artifact_id = ? AND version = ?",
		groupID, artifactID, version).First(&a).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %s:%s:%s", models.ErrNotFound, groupID, artifactID, version)
	}
	return &a, nil
}

// ArtifactsForClass returns every artifact known to carry fqName, with every
// column loaded (including PublishedAt/UsedAt), for ArtifactResolver.
func (s *Store) ArtifactsForClass(fqName string) ([]*models.Artifact, error) {
	var rows []*models.Artifact
	err := s.db.GormDB().
		Where("id IN (SELECT artifact_id FROM classes WHERE fq_name = ?)", fqName).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Stats is a read-only rollup used by the CLI and by tests asserting the
// §8 idempotency properties.
type Stats struct {
	ArtifactCount        int
	IndexedArtifactCount int
	ClassCount           int
	ResourceCount        int
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM artifacts`).Scan(&st.ArtifactCount); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM artifacts WHERE is_indexed = 1`).Scan(&st.IndexedArtifactCount); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM classes`).Scan(&st.ClassCount); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM resources`).Scan(&st.ResourceCount); err != nil {
		return st, err
	}
	return st, nil
}

// HasInheritanceData reports whether any edges exist, used by the
// one-time migration check in Indexer.Index step 3.
func (s *Store) HasInheritanceData() (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM inheritance_edges`).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResetAllIndexedAndClasses clears the class FTS/table and resets every
// artifact's IsIndexed flag to false. Used by the one-time inheritance
// migration described in §4.5 step 3.
func (s *Store) ResetAllIndexedAndClasses() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM classes`); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE artifacts SET is_indexed = 0`); err != nil {
		return err
	}
	return tx.Commit()
}

// RefreshAll implements §4.2 refreshAll(): in one transaction, clears class,
// inheritance, resource and resource-link tables, and resets IsIndexed on
// every artifact.
func (s *Store) RefreshAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM resource_class_links`,
		`DELETE FROM resources`,
		`DELETE FROM inheritance_edges`,
		`DELETE FROM classes`,
		`UPDATE artifacts SET is_indexed = 0`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Infof("store refreshed, all artifacts marked unindexed")
	return nil
}

// ArtifactTxn is the per-artifact ingestion unit described in §4.5/§5: every
// class, inheritance and resource row for one artifact commits atomically
// along with flipping IsIndexed to true.
type ArtifactTxn struct {
	tx         *Tx
	artifactID int64
}

// BeginArtifact starts the small, per-artifact transaction.
func (s *Store) BeginArtifact(artifactID int64) (*ArtifactTxn, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &ArtifactTxn{tx: tx, artifactID: artifactID}, nil
}

func (t *ArtifactTxn) InsertClass(fqName, simpleName string) error {
	_, err := t.tx.Exec(`INSERT INTO classes (artifact_id, fq_name, simple_name) VALUES (?, ?, ?)`,
		t.artifactID, fqName, simpleName)
	return err
}

func (t *ArtifactTxn) InsertInheritanceEdge(className, parentClassName string, kind models.InheritanceKind) error {
	_, err := t.tx.Exec(`INSERT INTO inheritance_edges (artifact_id, class_name, parent_class_name, kind) VALUES (?, ?, ?, ?)`,
		t.artifactID, className, parentClassName, string(kind))
	return err
}

// InsertResource stores a resource and returns its row id so callers can
// link generated class names to it.
func (t *ArtifactTxn) InsertResource(path, content string, typ models.ResourceType) (int64, error) {
	res, err := t.tx.Exec(`INSERT INTO resources (artifact_id, path, content, type) VALUES (?, ?, ?, ?)`,
		t.artifactID, path, content, string(typ))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *ArtifactTxn) LinkResourceClass(resourceID int64, className string) error {
	_, err := t.tx.Exec(`INSERT INTO resource_class_links (resource_id, class_name) VALUES (?, ?)`, resourceID, className)
	return err
}

// DeleteArtifactRows removes any previously committed class/edge/resource
// rows for this artifact, so re-ingesting it (e.g. after a transient
// failure) does not duplicate rows.
func (t *ArtifactTxn) DeleteArtifactRows() error {
	for _, stmt := range []string{
		`DELETE FROM resource_class_links WHERE resource_id IN (SELECT id FROM resources WHERE artifact_id = ?)`,
		`DELETE FROM resources WHERE artifact_id = ?`,
		`DELETE FROM inheritance_edges WHERE artifact_id = ?`,
		`DELETE FROM classes WHERE artifact_id = ?`,
	} {
		if _, err := t.tx.Exec(stmt, t.artifactID); err != nil {
			return err
		}
	}
	return nil
}

// Commit flips IsIndexed to true and commits everything in one go.
func (t *ArtifactTxn) Commit() error {
	if _, err := t.tx.Exec(`UPDATE artifacts SET is_indexed = 1 WHERE id = ?`, t.artifactID); err != nil {
		t.tx.Rollback()
		return err
	}
	return t.tx.Commit()
}

func (t *ArtifactTxn) Rollback() error {
	return t.tx.Rollback()
}

const maxClassRows = 100
const maxArtifactRows = 50

// SearchArtifacts does a substring match on groupId or artifactId, capped
// at 50 rows (§4.6).
func (s *Store) SearchArtifacts(q string) ([]*models.Artifact, error) {
	like := "%" + escapeLike(q) + "%"
	rows, err := s.db.Query(`
		SELECT id, group_id, artifact_id, version, abspath, has_source, is_indexed
		FROM artifacts
		WHERE group_id LIKE ? ESCAPE '\' OR artifact_id LIKE ? ESCAPE '\'
		LIMIT ?`, like, like, maxArtifactRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// SearchClasses dispatches to the regex/glob/FTS path selected by a cheap
// prefix inspection of q (§4.6), and groups results by FQ name.
func (s *Store) SearchClasses(q string) ([]*models.ClassSearchResult, error) {
	switch {
	case strings.HasPrefix(q, "regex:"):
		return s.searchClassesRegex(strings.TrimPrefix(q, "regex:"))
	case strings.ContainsAny(q, "*?"):
		return s.searchClassesGlob(q)
	default:
		return s.searchClassesFTS(q)
	}
}

type classRow struct {
	classID    int64
	artifactID int64
	fqName     string
	simpleName string
}

func (s *Store) groupClassRows(rows []classRow) ([]*models.ClassSearchResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	byFQ := lo.GroupBy(rows, func(r classRow) string { return r.fqName })

	artifactIDs := lo.Uniq(lo.Map(rows, func(r classRow, _ int) int64 { return r.artifactID }))
	artifacts, err := s.loadArtifactsByID(artifactIDs)
	if err != nil {
		return nil, err
	}

	var results []*models.ClassSearchResult
	for fq, grouped := range byFQ {
		var arts []*models.Artifact
		for _, r := range grouped {
			if a, ok := artifacts[r.artifactID]; ok {
				arts = append(arts, a)
			}
		}
		results = append(results, &models.ClassSearchResult{
			FQName:     fq,
			SimpleName: grouped[0].simpleName,
			Artifacts:  arts,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].FQName < results[j].FQName })
	return results, nil
}

func (s *Store) loadArtifactsByID(ids []int64) (map[int64]*models.Artifact, error) {
	out := map[int64]*models.Artifact{}
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id, group_id, artifact_id, version, abspath, has_source, is_indexed
		FROM artifacts WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list, err := scanArtifacts(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

// searchClassesFTS matches fragments of the FQ name or simple name. Trigram
// tokenization needs at least 3 characters per query term to produce a
// usable shingle; shorter terms fall back to a plain substring scan so
// single/double-letter queries still work, just without the FTS ranking.
func (s *Store) searchClassesFTS(term string) ([]*models.ClassSearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	var rows *sql.Rows
	var err error
	if len(term) < 3 {
		like := "%" + escapeLike(term) + "%"
		rows, err = s.db.Query(`
			SELECT c.id, c.artifact_id, c.fq_name, c.simple_name
			FROM classes c
			WHERE c.fq_name LIKE ? ESCAPE '\' OR c.simple_name LIKE ? ESCAPE '\'
			LIMIT ?`, like, like, maxClassRows)
	} else {
		matchExpr := ftsMatchExpr(term)
		rows, err = s.db.Query(`
			SELECT c.id, c.artifact_id, c.fq_name, c.simple_name
			FROM classes_fts f
			JOIN classes c ON c.id = f.rowid
			WHERE classes_fts MATCH ?
			ORDER BY rank
			LIMIT ?`, matchExpr, maxClassRows)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidQuery, err)
	}
	defer rows.Close()

	classRows, err := scanClassRows(rows)
	if err != nil {
		return nil, err
	}
	return s.groupClassRows(classRows)
}

// ftsMatchExpr builds the `"term"* OR term1 OR term2 ...` disjunction
// described in §4.6: a phrase-prefix match on the whole term, plus a
// sanitized free-text disjunction over its word fragments, so multi-word
// free text still surfaces reasonable matches.
func ftsMatchExpr(term string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r == '"' {
			return -1
		}
		return r
	}, term)

	parts := []string{fmt.Sprintf(`"%s"*`, sanitized)}
	for _, word := range strings.Fields(sanitized) {
		if len(word) >= 3 {
			parts = append(parts, fmt.Sprintf(`"%s"*`, word))
		}
	}
	return strings.Join(lo.Uniq(parts), " OR ")
}

func (s *Store) searchClassesGlob(pattern string) ([]*models.ClassSearchResult, error) {
	like := strings.NewReplacer("*", "%", "?", "_").Replace(pattern)
	rows, err := s.db.Query(`
		SELECT id, artifact_id, fq_name, simple_name
		FROM classes
		WHERE fq_name LIKE ? OR simple_name LIKE ?
		LIMIT ?`, like, like, maxClassRows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidQuery, err)
	}
	defer rows.Close()

	classRows, err := scanClassRows(rows)
	if err != nil {
		return nil, err
	}
	return s.groupClassRows(classRows)
}

// searchClassesRegex scans class rows in Go using the host regexp engine,
// per §4.2's "regex query via a host regex" contract: SQLite has no native
// regex support without a custom function, and none of the teacher's
// dependencies register one.
func (s *Store) searchClassesRegex(pattern string) ([]*models.ClassSearchResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidQuery, err)
	}

	const batchSize = 2000
	var matched []classRow
	offset := 0
	for len(matched) < maxClassRows {
		rows, err := s.db.Query(`SELECT id, artifact_id, fq_name, simple_name FROM classes LIMIT ? OFFSET ?`, batchSize, offset)
		if err != nil {
			return nil, err
		}
		batch, err := scanClassRows(rows)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, r := range batch {
			if re.MatchString(r.fqName) || re.MatchString(r.simpleName) {
				matched = append(matched, r)
				if len(matched) >= maxClassRows {
					break
				}
			}
		}
		offset += batchSize
		if len(batch) < batchSize {
			break
		}
	}

	return s.groupClassRows(matched)
}

// SearchImplementations returns the transitive descendants of fqName in the
// inheritance graph, bounded at 100 rows. The UNION (not UNION ALL) in the
// recursive CTE de-duplicates already-visited class names, which is what
// keeps a cycle (A extends B in artifact X, B extends A in artifact Y) from
// looping forever.
func (s *Store) SearchImplementations(fqName string) ([]*models.ClassSearchResult, error) {
	rows, err := s.db.Query(`
		WITH RECURSIVE descendants(name) AS (
			SELECT class_name FROM inheritance_edges WHERE parent_class_name = ?
			UNION
			SELECT e.class_name FROM inheritance_edges e
			JOIN descendants d ON e.parent_class_name = d.name
		)
		SELECT c.id, c.artifact_id, c.fq_name, c.simple_name
		FROM descendants d
		JOIN classes c ON c.fq_name = d.name
		LIMIT ?`, fqName, maxClassRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	classRows, err := scanClassRows(rows)
	if err != nil {
		return nil, err
	}
	return s.groupClassRows(classRows)
}

// SearchResources does a substring match on resource path.
func (s *Store) SearchResources(substring string) ([]*models.ResourceSearchResult, error) {
	like := "%" + escapeLike(substring) + "%"
	rows, err := s.db.Query(`
		SELECT r.id, r.artifact_id, r.path, r.content, r.type,
		       a.id, a.group_id, a.artifact_id, a.version, a.abspath, a.has_source, a.is_indexed
		FROM resources r JOIN artifacts a ON a.id = r.artifact_id
		WHERE r.path LIKE ? ESCAPE '\'
		LIMIT ?`, like, maxClassRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ResourceSearchResult
	for rows.Next() {
		var res models.Resource
		var a models.Artifact
		var typ string
		if err := rows.Scan(&res.ID, &res.ArtifactID, &res.Path, &res.Content, &typ,
			&a.ID, &a.GroupID, &a.ArtifactID, &a.Version, &a.Abspath, &a.HasSource, &a.IsIndexed); err != nil {
			return nil, err
		}
		res.Type = models.ResourceType(typ)
		results = append(results, &models.ResourceSearchResult{Resource: &res, Artifact: &a})
	}
	return results, nil
}

// GetResourcesForClass looks up resources via the resource-class link table.
func (s *Store) GetResourcesForClass(fqName string) ([]*models.Resource, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.artifact_id, r.path, r.content, r.type
		FROM resource_class_links l
		JOIN resources r ON r.id = l.resource_id
		WHERE l.class_name = ?`, fqName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Resource
	for rows.Next() {
		var res models.Resource
		var typ string
		if err := rows.Scan(&res.ID, &res.ArtifactID, &res.Path, &res.Content, &typ); err != nil {
			return nil, err
		}
		res.Type = models.ResourceType(typ)
		out = append(out, &res)
	}
	return out, nil
}

func scanArtifacts(rows *sql.Rows) ([]*models.Artifact, error) {
	var out []*models.Artifact
	for rows.Next() {
		var a models.Artifact
		if err := rows.Scan(&a.ID, &a.GroupID, &a.ArtifactID, &a.Version, &a.Abspath, &a.HasSource, &a.IsIndexed); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func scanClassRows(rows *sql.Rows) ([]classRow, error) {
	defer rows.Close()
	var out []classRow
	for rows.Next() {
		var r classRow
		if err := rows.Scan(&r.classID, &r.artifactID, &r.fqName, &r.simpleName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
