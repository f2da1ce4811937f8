package config

import (
	"sort"
	"strings"

	"github.com/flanksource/arch-unit/models"
)

// Options is the explicit configuration every core component is
// constructed with. Nothing in internal/* reads global/process config on
// its own (§9): the CLI (or any other external adapter) is responsible
// for discovering these values and passing them in.
type Options struct {
	MavenRepo        string   `yaml:"mavenRepo"`
	GradleRepo       string   `yaml:"gradleRepo"`
	IncludedPackages []string `yaml:"includedPackages"`
	DecompilerPath   string   `yaml:"decompilerPath"`
	VersionStrategy  string   `yaml:"versionStrategy"`
	StorePath        string   `yaml:"storePath"`
	JavapTool        string   `yaml:"javapTool"`
}

// NormalizedPackages returns the normalized include-pattern prefix list
// (§6): trimmed, wildcard-stripped, sorted, with sub-prefixes absorbed.
// An empty result means "match everything".
func (o *Options) NormalizedPackages() []string {
	return NormalizePackages(o.IncludedPackages)
}

// VersionStrategyOrDefault resolves legacy aliases and defaults to semver.
func (o *Options) VersionStrategyOrDefault() models.VersionStrategy {
	if o.VersionStrategy == "" {
		return models.StrategySemver
	}
	return models.NormalizeVersionStrategy(o.VersionStrategy)
}

// NormalizePackages implements the four-step normalization in §6:
//  1. trim, drop empty entries
//  2. "*" and "foo.*" become "foo" (strip the wildcard suffix)
//  3. if any entry became empty (i.e. was bare "*"), the whole result is "all packages" -> []
//  4. sort, then absorb sub-prefixes: if "com.a" is present, drop any "com.a.b"
func NormalizePackages(raw []string) []string {
	var trimmed []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		trimmed = append(trimmed, p)
	}

	var stripped []string
	for _, p := range trimmed {
		switch {
		case p == "*":
			stripped = append(stripped, "")
		case strings.HasSuffix(p, ".*"):
			stripped = append(stripped, strings.TrimSuffix(p, ".*"))
		default:
			stripped = append(stripped, p)
		}
	}

	for _, p := range stripped {
		if p == "" {
			return nil
		}
	}

	sort.Strings(stripped)

	var absorbed []string
	for _, p := range stripped {
		isSubPrefix := false
		for _, kept := range absorbed {
			if p == kept || strings.HasPrefix(p, kept+".") {
				isSubPrefix = true
				break
			}
		}
		if !isSubPrefix {
			absorbed = append(absorbed, p)
		}
	}

	return absorbed
}

// MatchesPrefixes reports whether fqName falls under one of the normalized
// prefixes, or prefixes is empty (meaning "accept everything").
func MatchesPrefixes(fqName string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if fqName == p || strings.HasPrefix(fqName, p+".") {
			return true
		}
	}
	return false
}
