package models

// DetailKind selects which facet of a class DetailExtractor should return.
type DetailKind string

const (
	DetailSignatures DetailKind = "signatures"
	DetailDocs       DetailKind = "docs"
	DetailSource     DetailKind = "source"
)

// ClassDetail is the result of a DetailExtractor lookup.
type ClassDetail struct {
	ClassName         string     `json:"className"`
	Signatures        []string   `json:"signatures,omitempty"`
	Doc               string     `json:"doc,omitempty"`
	Source            string     `json:"source,omitempty"`
	Language          string     `json:"language,omitempty"`
	UsedDecompilation bool       `json:"usedDecompilation"`
	Kind              DetailKind `json:"kind"`
}

// VersionStrategy selects ArtifactResolver's tie-break policy.
type VersionStrategy string

const (
	StrategySemver          VersionStrategy = "semver"
	StrategyLatestPublished VersionStrategy = "latest-published"
	StrategyLatestUsed      VersionStrategy = "latest-used"
)

// NormalizeVersionStrategy maps legacy aliases (§4.8) onto the three
// canonical strategies. Unknown input falls back to the default, semver.
func NormalizeVersionStrategy(s string) VersionStrategy {
	switch s {
	case "semver", "semver-latest":
		return StrategySemver
	case "latest-published", "date-latest", "modification-time", "publish-time":
		return StrategyLatestPublished
	case "latest-used", "creation-time", "usage-time":
		return StrategyLatestUsed
	default:
		return StrategySemver
	}
}
