package registry

import "time"

// Version is a semantic major.minor.patch triple (spec §3).
type Version struct {
	Major int
	Minor int
	Patch int
}

// IsCompatibleWith reports whether v and other share a major version
// (spec §3 "compatible iff their majors are equal").
func (v Version) IsCompatibleWith(other Version) bool {
	return v.Major == other.Major
}

// IsNewerThan reports whether v sorts after other under lexicographic
// (major, minor, patch) ordering (spec §3, §8 property 2).
func (v Version) IsNewerThan(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	return v.Patch > other.Patch
}

// Kind distinguishes the three component families the registry indexes
// (spec §1 "a component registry (agents/tools/workflows)").
type Kind string

const (
	KindAgent    Kind = "agent"
	KindTool     Kind = "tool"
	KindWorkflow Kind = "workflow"
)

// Metadata is the descriptive record attached to every registered
// component (spec §3 "ComponentMetadata").
type Metadata struct {
	ID          ComponentID
	Kind        Kind
	Name        string
	Version     Version
	Description string
	Category    string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
