// Package scanner walks Maven-layout (~/.m2/repository) and Gradle-layout
// (~/.gradle/caches/modules-2/files-2.1) dependency caches and discovers
// artifact coordinates on disk, without reading any class bytes itself
// (§4.1). It mirrors the directory-walking and best-effort skip-on-error
// style of the teacher's analysis/java/java_dependency_scanner.go, but
// walks a filesystem cache instead of parsing a POM/build.gradle's
// declared dependencies.
package scanner

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/flanksource/arch-unit/config"
	"github.com/flanksource/arch-unit/models"
	"github.com/flanksource/commons/logger"
)

// modTimeUnix returns path's mtime as a unix timestamp, or 0 if it can't be
// stat'd. Used as the basis for PublishedAt/UsedAt: a real Maven/Gradle
// cache has no portable creation-time field, so mtime is the best
// filesystem-derived proxy available without shelling out.
func modTimeUnix(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().Unix()
}

// Scanner discovers artifacts under configured Maven and/or Gradle roots.
type Scanner struct {
	MavenRepo  string
	GradleRepo string
	// IncludePrefixes is the normalized (config.NormalizePackages) list of
	// package prefixes to restrict discovery to; empty means "everything".
	IncludePrefixes []string
}

// New builds a Scanner from resolved options.
func New(opts *config.Options) *Scanner {
	return &Scanner{
		MavenRepo:       opts.MavenRepo,
		GradleRepo:      opts.GradleRepo,
		IncludePrefixes: opts.NormalizedPackages(),
	}
}

// Scan walks both configured roots and returns every discovered artifact.
// Coordinates found in both layouts are returned independently; the Store's
// upsert naturally de-duplicates by (groupId, artifactId, version).
// Scan never fails outright because one artifact directory is unreadable:
// such entries are logged and skipped (§4.1 failure semantics).
func (s *Scanner) Scan() []*models.Artifact {
	var found []*models.Artifact

	if s.MavenRepo != "" {
		found = append(found, s.scanMaven(s.MavenRepo)...)
	}
	if s.GradleRepo != "" {
		found = append(found, s.scanGradle(s.GradleRepo)...)
	}

	return found
}

// scanMaven walks a standard Maven local repository layout:
//
//	<root>/<group/path/segments>/<artifactId>/<version>/<artifactId>-<version>.pom
func (s *Scanner) scanMaven(root string) []*models.Artifact {
	var out []*models.Artifact

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logger.Debugf("scanner: skipping unreadable path %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")

		if !s.shouldDescend(segments) {
			return filepath.SkipDir
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			logger.Debugf("scanner: skipping unreadable dir %s: %v", path, err)
			return nil
		}

		pom := findMavenPOM(entries)
		if pom == "" {
			return nil
		}
		if len(segments) < 2 {
			return nil
		}

		version := segments[len(segments)-1]
		artifactID := segments[len(segments)-2]
		groupID := strings.Join(segments[:len(segments)-2], ".")
		if groupID == "" {
			return nil
		}

		a := &models.Artifact{
			GroupID:     groupID,
			ArtifactID:  artifactID,
			Version:     version,
			Abspath:     path,
			HasSource:   hasMavenSourceJar(entries, artifactID, version),
			PublishedAt: publishedAtFromMavenDir(path, entries, pom),
			UsedAt:      modTimeUnix(path),
		}
		out = append(out, a)
		return filepath.SkipDir
	})
	if err != nil {
		logger.Warnf("scanner: maven walk of %s stopped early: %v", root, err)
	}

	return out
}

func findMavenPOM(entries []os.DirEntry) string {
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pom") {
			return e.Name()
		}
	}
	return ""
}

var lastUpdatedEntry = regexp.MustCompile(`lastUpdated=(\d+)`)

// publishedAtFromMavenDir prefers the *.pom.lastUpdated marker Maven writes
// when it resolves a snapshot from a remote repository: the marker records
// one "<repoId>.lastUpdated=<millis>" line per remote repository Maven
// checked, so the greatest of those values is the actual publish/resolve
// event, more reliable than the marker or pom file's own mtime (which local
// builds can touch for unrelated reasons).
func publishedAtFromMavenDir(dir string, entries []os.DirEntry, pom string) int64 {
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".lastUpdated") {
			if ts, ok := parseLastUpdated(filepath.Join(dir, e.Name())); ok {
				return ts
			}
		}
	}
	return modTimeUnix(filepath.Join(dir, pom))
}

// parseLastUpdated returns the greatest numeric lastUpdated=<millis> value
// found in a Maven *.lastUpdated marker file, converted to unix seconds.
func parseLastUpdated(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	var best int64
	found := false
	for _, m := range lastUpdatedEntry.FindAllSubmatch(data, -1) {
		millis, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err != nil {
			continue
		}
		if millis > best {
			best = millis
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best / 1000, true
}

func hasMavenSourceJar(entries []os.DirEntry, artifactID, version string) bool {
	want := artifactID + "-" + version + "-sources.jar"
	for _, e := range entries {
		if e.Name() == want {
			return true
		}
	}
	return false
}

// scanGradle walks a Gradle module cache:
//
//	<root>/<group>/<artifact>/<version>/<hash>/<file>
//
// Each hash directory holds exactly one file (the jar, the sources jar, the
// pom, ...), so discovering whether an artifact has sources means
// aggregating across every hash directory under its version directory.
func (s *Scanner) scanGradle(root string) []*models.Artifact {
	groupDirs, err := os.ReadDir(root)
	if err != nil {
		logger.Debugf("scanner: skipping unreadable gradle root %s: %v", root, err)
		return nil
	}

	var out []*models.Artifact
	for _, groupDir := range groupDirs {
		if !groupDir.IsDir() {
			continue
		}
		groupID := groupDir.Name()
		if !s.shouldDescend([]string{groupID}) {
			continue
		}

		artifactDirs, err := os.ReadDir(filepath.Join(root, groupID))
		if err != nil {
			logger.Debugf("scanner: skipping unreadable group dir %s: %v", groupID, err)
			continue
		}

		for _, artifactDir := range artifactDirs {
			if !artifactDir.IsDir() {
				continue
			}
			artifactID := artifactDir.Name()

			versionDirs, err := os.ReadDir(filepath.Join(root, groupID, artifactID))
			if err != nil {
				logger.Debugf("scanner: skipping unreadable artifact dir %s/%s: %v", groupID, artifactID, err)
				continue
			}

			for _, versionDir := range versionDirs {
				if !versionDir.IsDir() {
					continue
				}
				version := versionDir.Name()
				versionPath := filepath.Join(root, groupID, artifactID, version)

				files, hasSource := s.aggregateGradleHashDirs(versionPath)
				mainJar := selectMainJar(files, artifactID, version)
				if mainJar == "" {
					continue
				}

				out = append(out, &models.Artifact{
					GroupID:     groupID,
					ArtifactID:  artifactID,
					Version:     version,
					Abspath:     mainJar,
					HasSource:   hasSource,
					PublishedAt: modTimeUnix(mainJar),
					UsedAt:      modTimeUnix(versionPath),
				})
			}
		}
	}

	return out
}

func (s *Scanner) aggregateGradleHashDirs(versionPath string) (files []string, hasSource bool) {
	hashDirs, err := os.ReadDir(versionPath)
	if err != nil {
		logger.Debugf("scanner: skipping unreadable version dir %s: %v", versionPath, err)
		return nil, false
	}

	for _, hashDir := range hashDirs {
		if !hashDir.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(versionPath, hashDir.Name()))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			full := filepath.Join(versionPath, hashDir.Name(), e.Name())
			files = append(files, full)
			if strings.HasSuffix(e.Name(), "-sources.jar") {
				hasSource = true
			}
		}
	}

	sort.Strings(files)
	return files, hasSource
}

func selectMainJar(files []string, artifactID, version string) string {
	want := artifactID + "-" + version + ".jar"
	for _, f := range files {
		if filepath.Base(f) == want {
			return f
		}
	}
	// Fall back to any non-sources, non-javadoc jar.
	for _, f := range files {
		base := filepath.Base(f)
		if strings.HasSuffix(base, ".jar") &&
			!strings.HasSuffix(base, "-sources.jar") &&
			!strings.HasSuffix(base, "-javadoc.jar") {
			return f
		}
	}
	return ""
}

// shouldDescend reports whether a directory at the given group-path
// segments could possibly contain artifacts matching IncludePrefixes. An
// empty IncludePrefixes always descends. This only prunes on the group
// portion of the path (segments before artifactId/version are not yet
// known), so it is a conservative, best-effort optimization, not a
// symbol-level filter; class-level filtering of what gets indexed still
// happens in the Indexer (§6).
func (s *Scanner) shouldDescend(segments []string) bool {
	if len(s.IncludePrefixes) == 0 {
		return true
	}

	partial := strings.Join(segments, ".")
	for _, prefix := range s.IncludePrefixes {
		if strings.HasPrefix(prefix, partial) || strings.HasPrefix(partial, prefix) {
			return true
		}
	}
	return false
}
