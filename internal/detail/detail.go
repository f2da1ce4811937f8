// Package detail implements DetailExtractor (§4.7): resolving a single
// class's signatures, Javadoc, or raw source through a three-step chain of
// diminishing fidelity (source archive -> bytecode disassembly -> decompiler),
// and reporting whether the decompiler had to run. The bytecode step itself
// has two equivalent implementations per §4.7's "external tool or
// equivalent": an external javap-style binary when one is configured, and an
// in-process classfile.ReadWithMethods reader otherwise.
package detail

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/flanksource/arch-unit/internal/classfile"
	"github.com/flanksource/arch-unit/internal/resolver"
	"github.com/flanksource/arch-unit/internal/store"
	"github.com/flanksource/arch-unit/models"
	"github.com/flanksource/commons/logger"
)

// DecompileTimeout bounds the decompiler subprocess fallback so one
// pathological class can't hang a detail lookup indefinitely.
const DecompileTimeout = 20 * time.Second

// Extractor resolves class detail through source, then bytecode, then an
// external decompiler.
type Extractor struct {
	store          *store.Store
	resolver       *resolver.Resolver
	decompilerPath string
	javapTool      string
}

// New builds an Extractor. decompilerPath may be empty, in which case the
// third chain step is simply unavailable and its failure is reported as
// models.ErrDecompilerUnavailable rather than attempted. javapTool may also
// be empty, in which case the bytecode step always uses the in-process
// classfile reader instead of shelling out.
func New(st *store.Store, res *resolver.Resolver, decompilerPath, javapTool string) *Extractor {
	return &Extractor{store: st, resolver: res, decompilerPath: decompilerPath, javapTool: javapTool}
}

// GetClassDetail resolves fqName to the single best carrying artifact via
// the configured ArtifactResolver, then extracts the requested facet.
func (e *Extractor) GetClassDetail(ctx context.Context, fqName string, kind models.DetailKind) (*models.ClassDetail, error) {
	candidates, err := e.store.ArtifactsForClass(fqName)
	if err != nil {
		return nil, fmt.Errorf("resolving candidates for %s: %w", fqName, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no artifact carries %s", models.ErrNotFound, fqName)
	}

	artifact := e.resolver.Resolve(candidates)
	return e.extractFrom(ctx, artifact, fqName, kind)
}

// extractFrom runs the three-step chain against one already-resolved
// artifact.
func (e *Extractor) extractFrom(ctx context.Context, artifact *models.Artifact, fqName string, kind models.DetailKind) (*models.ClassDetail, error) {
	detail := &models.ClassDetail{ClassName: fqName, Kind: kind, Language: "java"}

	// A Maven-layout artifact's Abspath is its version directory; every step
	// below reads the main jar inside it (or that jar's -sources sibling).
	if info, err := os.Stat(artifact.Abspath); err == nil && info.IsDir() {
		resolved := *artifact
		resolved.Abspath = filepath.Join(artifact.Abspath, artifact.ArtifactID+"-"+artifact.Version+".jar")
		artifact = &resolved
	}

	if artifact.HasSource {
		if ok := e.fromSourceArchive(artifact, fqName, kind, detail); ok {
			return detail, nil
		}
		logger.Debugf("detail: source heuristic parse failed for %s in %s, falling back to bytecode", fqName, artifact.Coordinate())
	}

	if kind == models.DetailSignatures {
		if e.javapTool != "" {
			if ok := e.fromJavapTool(ctx, artifact, fqName, detail); ok {
				return detail, nil
			}
			logger.Debugf("detail: javapTool %s failed for %s in %s, falling back to classfile reader", e.javapTool, fqName, artifact.Coordinate())
		}
		if ok := e.fromBytecode(artifact, fqName, kind, detail); ok {
			return detail, nil
		}
	}

	if e.decompilerPath == "" {
		return nil, fmt.Errorf("%w: no source jar and no decompiler configured for %s", models.ErrDecompilerUnavailable, fqName)
	}

	if err := e.fromDecompiler(ctx, artifact, fqName, kind, detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// sourcesJarPath derives the sibling -sources.jar path for a Maven-layout
// artifact. Gradle-layout artifacts keep their sources jar in a sibling
// hash directory, which the Store does not track individually; for those,
// callers fall through to bytecode/decompiler.
func sourcesJarPath(artifact *models.Artifact) string {
	return strings.TrimSuffix(artifact.Abspath, ".jar") + "-sources.jar"
}

var (
	javadocBlock    = regexp.MustCompile(`(?s)/\*\*(.*?)\*/`)
	javadocStripper = regexp.MustCompile(`(?m)^\s*\*\s?`)
	methodSigRegex  = regexp.MustCompile(`(?m)^\s*(?:public|protected)\s+(?:static\s+|final\s+|abstract\s+)*[\w<>\[\],.\s]+?\s+(\w+)\s*\(([^)]*)\);?`)
)

// fromSourceArchive implements the source-archive heuristic parse step:
// find the matching .java entry inside the sibling sources jar, strip it
// down to a Javadoc comment and/or method-signature lines using regexes
// rather than a real Java parser.
func (e *Extractor) fromSourceArchive(artifact *models.Artifact, fqName string, kind models.DetailKind, detail *models.ClassDetail) bool {
	path := sourcesJarPath(artifact)
	zr, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer zr.Close()

	entryName := strings.ReplaceAll(fqName, ".", "/") + ".java"
	var src []byte
	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return false
		}
		defer rc.Close()
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(rc); err != nil {
			return false
		}
		src = buf.Bytes()
		break
	}
	if src == nil {
		return false
	}

	switch kind {
	case models.DetailSource:
		detail.Source = string(src)
	case models.DetailDocs:
		detail.Doc = firstClassJavadoc(string(src))
	case models.DetailSignatures:
		detail.Signatures = methodSignaturesFromSource(string(src))
	}
	return true
}

// firstClassJavadoc returns the Javadoc comment immediately preceding the
// first class/interface/enum declaration, with leading '*' decoration
// stripped.
func firstClassJavadoc(src string) string {
	idx := strings.Index(src, "class ")
	if idx < 0 {
		idx = strings.Index(src, "interface ")
	}
	if idx < 0 {
		return ""
	}

	preceding := src[:idx]
	matches := javadocBlock.FindAllStringSubmatch(preceding, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1][1]
	return strings.TrimSpace(javadocStripper.ReplaceAllString(last, ""))
}

// methodSignaturesFromSource is a best-effort heuristic: it finds lines
// shaped like a public/protected method declaration and returns them
// trimmed. It will miss unusual formatting and false-positive on the rare
// field declaration that happens to look like a call; it exists to give a
// reasonable signature list without a real Java grammar.
func methodSignaturesFromSource(src string) []string {
	var out []string
	for _, m := range methodSigRegex.FindAllString(src, -1) {
		out = append(out, strings.Join(strings.Fields(m), " "))
	}
	return out
}

// fromBytecode implements the bytecode-based signature disassembly step:
// parse the .class entry directly out of the (non-sources) archive, with
// no decompilation of method bodies.
func (e *Extractor) fromBytecode(artifact *models.Artifact, fqName string, kind models.DetailKind, detail *models.ClassDetail) bool {
	zr, err := zip.OpenReader(artifact.Abspath)
	if err != nil {
		return false
	}
	defer zr.Close()

	entryName := strings.ReplaceAll(fqName, ".", "/") + ".class"
	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return false
		}
		defer rc.Close()

		_, methods, err := classfile.ReadWithMethods(rc)
		if err != nil {
			return false
		}

		if kind == models.DetailSignatures {
			for _, m := range methods {
				detail.Signatures = append(detail.Signatures, m.Signature())
			}
		}
		return true
	}
	return false
}

// fromJavapTool shells out to the configured external signature extractor
// (javapTool) as the preferred implementation of the bytecode step: a real
// javap-compatible binary emits the same public/protected declaration shape
// classfile.ReadWithMethods synthesizes, so the same heuristic line-matcher
// parses its stdout.
func (e *Extractor) fromJavapTool(ctx context.Context, artifact *models.Artifact, fqName string, detail *models.ClassDetail) bool {
	ctx, cancel := context.WithTimeout(ctx, DecompileTimeout)
	defer cancel()

	internalName := strings.ReplaceAll(fqName, ".", "/")
	cmd := exec.CommandContext(ctx, e.javapTool, "-p", "-classpath", artifact.Abspath, internalName)
	out, err := cmd.Output()
	if err != nil {
		return false
	}

	sigs := methodSignaturesFromSource(string(out))
	if len(sigs) == 0 {
		return false
	}
	detail.Signatures = sigs
	return true
}

// fromDecompiler shells out to an external decompiler as the final,
// lowest-fidelity fallback, bounded by DecompileTimeout.
func (e *Extractor) fromDecompiler(ctx context.Context, artifact *models.Artifact, fqName string, kind models.DetailKind, detail *models.ClassDetail) error {
	ctx, cancel := context.WithTimeout(ctx, DecompileTimeout)
	defer cancel()

	entryName := strings.ReplaceAll(fqName, ".", "/") + ".class"
	outDir, err := os.MkdirTemp("", "arch-unit-decompile-*")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrDecompilerUnavailable, err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, e.decompilerPath, "-d", outDir, artifact.Abspath, entryName)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s: %s", models.ErrDecompilerUnavailable, err, string(out))
	}

	outPath := outDir + "/" + strings.ReplaceAll(fqName, ".", "/") + ".java"
	src, err := os.ReadFile(outPath)
	if err != nil {
		return fmt.Errorf("%w: reading decompiler output: %v", models.ErrDecompilerUnavailable, err)
	}

	detail.UsedDecompilation = true
	switch kind {
	case models.DetailSource:
		detail.Source = string(src)
	case models.DetailDocs:
		detail.Doc = firstClassJavadoc(string(src))
	case models.DetailSignatures:
		detail.Signatures = methodSignaturesFromSource(string(src))
	}
	return nil
}
