// Package capability tracks the side-effect categories a computation may
// exercise, as a set of hierarchical tags attached to each task value.
//
// Composition unions annotations and never narrows them: a composed task's
// set is always a superset of every side effect reachable through it, so a
// platform can refuse a computation before running any of it.
package capability

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known categories and resources. The set is host-defined and open;
// bindings are free to introduce further ones.
const (
	CategoryRead  = "read"
	CategoryWrite = "write"

	ResourceDisk    = "disk"
	ResourceNetwork = "network"
)

// Tag names one side-effect category, optionally narrowed to a resource.
// An empty Resource means the whole category ("write/*").
type Tag struct {
	Category string
	Resource string
}

// Read builds a read tag for the given resource.
func Read(resource string) Tag { return Tag{Category: CategoryRead, Resource: resource} }

// Write builds a write tag for the given resource.
func Write(resource string) Tag { return Tag{Category: CategoryWrite, Resource: resource} }

// Covers reports whether t authorizes other: same category, and either t
// spans the whole category or both name the same resource.
func (t Tag) Covers(other Tag) bool {
	if t.Category != other.Category {
		return false
	}
	return t.Resource == "" || t.Resource == other.Resource
}

func (t Tag) String() string {
	if t.Resource == "" {
		return t.Category + "/*"
	}
	return t.Category + "/" + t.Resource
}

// Set is an immutable set of capability tags. The zero value is the empty
// set. Union returns a new set and never mutates its operands.
type Set struct {
	tags map[Tag]struct{}
}

// NewSet builds a set from the given tags.
func NewSet(tags ...Tag) Set {
	s := Set{tags: make(map[Tag]struct{}, len(tags))}
	for _, t := range tags {
		s.tags[t] = struct{}{}
	}
	return s
}

// Union returns the set union of both annotations.
func (s Set) Union(other Set) Set {
	merged := Set{tags: make(map[Tag]struct{}, len(s.tags)+len(other.tags))}
	for t := range s.tags {
		merged.tags[t] = struct{}{}
	}
	for t := range other.tags {
		merged.tags[t] = struct{}{}
	}
	return merged
}

// Contains reports whether the set authorizes the given tag, honoring
// category-wide grants.
func (s Set) Contains(tag Tag) bool {
	for t := range s.tags {
		if t.Covers(tag) {
			return true
		}
	}
	return false
}

// Covers reports whether every tag of other is authorized by s.
func (s Set) Covers(other Set) bool {
	for t := range other.tags {
		if !s.Contains(t) {
			return false
		}
	}
	return true
}

// Empty reports whether the set holds no tags.
func (s Set) Empty() bool { return len(s.tags) == 0 }

// Tags returns the tags in sorted order.
func (s Set) Tags() []Tag {
	tags := make([]Tag, 0, len(s.tags))
	for t := range s.tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].String() < tags[j].String() })
	return tags
}

func (s Set) String() string {
	parts := make([]string, 0, len(s.tags))
	for _, t := range s.Tags() {
		parts = append(parts, t.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// ErrUnauthorizedCapability reports a computation requiring a side-effect
// category the platform did not grant.
var ErrUnauthorizedCapability = fmt.Errorf("unauthorized capability")

// Authorize checks that granted covers required. The returned error names
// every missing tag so a refusal is actionable.
func Authorize(granted, required Set) error {
	var missing []string
	for _, t := range required.Tags() {
		if !granted.Contains(t) {
			missing = append(missing, t.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not in granted set %s", ErrUnauthorizedCapability, strings.Join(missing, ", "), granted)
	}
	return nil
}
