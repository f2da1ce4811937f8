package models

import "time"

// Artifact identifies a single (groupId, artifactId, version) coordinate
// discovered in a Maven or Gradle dependency cache.
type Artifact struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID    string `gorm:"column:group_id;uniqueIndex:idx_artifact_coordinate" json:"groupId"`
	ArtifactID string `gorm:"column:artifact_id;uniqueIndex:idx_artifact_coordinate" json:"artifactId"`
	Version    string `gorm:"column:version;uniqueIndex:idx_artifact_coordinate" json:"version"`

	// Abspath is a directory for Maven layout, a full archive path for Gradle layout.
	Abspath string `gorm:"column:abspath" json:"abspath"`

	// HasSource is true iff a sibling -sources.jar exists.
	HasSource bool `gorm:"column:has_source" json:"hasSource"`

	// IsIndexed transitions false->true exactly once per successful ingestion.
	IsIndexed bool `gorm:"column:is_indexed;index:idx_artifact_indexed" json:"isIndexed"`

	// PublishedAt is, for Maven layout, the greatest lastUpdated=<millis>
	// value in a *.lastUpdated marker (in unix seconds), else the pom's
	// mtime; for Gradle layout, the main jar's mtime. Used by the
	// latest-published resolver strategy.
	PublishedAt int64 `gorm:"column:published_at" json:"publishedAt"`
	// UsedAt is the mtime (unix seconds) of the artifact's version
	// directory, used by the latest-used resolver strategy as a proxy for
	// "last resolved into a build by the local Maven/Gradle client". It is
	// not a file creation time.
	UsedAt int64 `gorm:"column:used_at" json:"usedAt"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Artifact) TableName() string { return "artifacts" }

// Coordinate renders the Maven-style group:artifact:version string.
func (a *Artifact) Coordinate() string {
	return a.GroupID + ":" + a.ArtifactID + ":" + a.Version
}

// ClassEntry associates a fully-qualified class name with the artifact that
// carries it. The same FQ name can appear against multiple artifacts
// (different versions, or even different libraries that happen to share a
// package).
type ClassEntry struct {
	ID         int64  `json:"id"`
	ArtifactID int64  `json:"artifactId"`
	FQName     string `json:"fqName"`
	SimpleName string `json:"simpleName"`
}

// InheritanceKind distinguishes a superclass edge from an interface edge.
type InheritanceKind string

const (
	InheritanceExtends    InheritanceKind = "extends"
	InheritanceImplements InheritanceKind = "implements"
)

// InheritanceEdge is a directed edge from a class to its immediate parent
// class or interface, scoped to the artifact it was discovered in.
type InheritanceEdge struct {
	ID             int64           `json:"id"`
	ArtifactID     int64           `json:"artifactId"`
	ClassName      string          `json:"className"`
	ParentClassName string         `json:"parentClassName"`
	Kind           InheritanceKind `json:"kind"`
}

// ResourceType enumerates the auxiliary, non-class resources the indexer
// understands. Only "proto" is produced today; the field exists so new
// generators (e.g. Avro, Thrift) can be added without a schema change.
type ResourceType string

const (
	ResourceTypeProto ResourceType = "proto"
)

// Resource is a non-class file (today: a .proto) found in an artifact,
// stored verbatim so DetailExtractor-adjacent callers can show its content.
type Resource struct {
	ID         int64        `json:"id"`
	ArtifactID int64        `json:"artifactId"`
	Path       string       `json:"path"`
	Content    string       `json:"content"`
	Type       ResourceType `json:"type"`
}

// ResourceClassLink maps a logical class name produced by a code generator
// (e.g. protoc-gen-java) back to the resource file it was generated from.
type ResourceClassLink struct {
	ID         int64  `json:"id"`
	ResourceID int64  `json:"resourceId"`
	ClassName  string `json:"className"`
}

// ClassSearchResult groups the artifacts carrying a given FQ class name,
// the shape QueryEngine.searchClasses / searchImplementations return.
type ClassSearchResult struct {
	FQName     string      `json:"fqName"`
	SimpleName string      `json:"simpleName"`
	Artifacts  []*Artifact `json:"artifacts"`
}

// ResourceSearchResult pairs a resource with the artifact it was found in.
type ResourceSearchResult struct {
	Resource *Resource `json:"resource"`
	Artifact *Artifact `json:"artifact"`
}
