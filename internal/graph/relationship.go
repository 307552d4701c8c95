package graph

import (
	"fmt"
	"strings"
)

// RelationshipType is the kind of edge between topics.
type RelationshipType int

const (
	RelationshipUnknown RelationshipType = iota
	RelationshipRelated
	RelationshipPrerequisite
	RelationshipNext
	RelationshipPrevious
	RelationshipBranch
)

var relationshipKeywords = map[string]RelationshipType{
	"r":            RelationshipRelated,
	"related":      RelationshipRelated,
	"refer-to":     RelationshipRelated,
	"p":            RelationshipPrerequisite,
	"prerequisite": RelationshipPrerequisite,
	"next":         RelationshipNext,
	"prev":         RelationshipPrevious,
	"previous":     RelationshipPrevious,
	"b":            RelationshipBranch,
	"branch":       RelationshipBranch,
}

// ParseRelationshipType maps a bracket keyword ("R", "Prerequisite", ...) to its type.
func ParseRelationshipType(keyword string) (RelationshipType, bool) {
	t, ok := relationshipKeywords[strings.ToLower(strings.TrimSpace(keyword))]
	return t, ok
}

func (t RelationshipType) String() string {
	switch t {
	case RelationshipRelated:
		return "RELATED"
	case RelationshipPrerequisite:
		return "PREREQUISITE"
	case RelationshipNext:
		return "NEXT"
	case RelationshipPrevious:
		return "PREVIOUS"
	case RelationshipBranch:
		return "BRANCH"
	default:
		return fmt.Sprintf("RelationshipType(%d)", int(t))
	}
}

// Target is one end of a relationship. Raw is the text written in the document: either
// a topic identity tag or a target-id. Exactly one of Topic or Level is set once
// the target is resolved.
type Target struct {
	Raw   string
	Topic *TopicRef
	Level *Level
	// Alias is the target-id the relationship is rewritten to, when the raw
	// identifier will not survive post-processing.
	Alias string
}

// Resolved reports whether the target points at a node.
func (t *Target) Resolved() bool { return t.Topic != nil || t.Level != nil }

// Relationship is a typed edge from Source to one or more targets.
type Relationship struct {
	base
	Type    RelationshipType
	Source  *TopicRef
	Targets []*Target
	// Implicit marks edges derived from document structure (process ordering)
	// rather than written in the document.
	Implicit bool
}

// NewRelationship builds a relationship parsed from the given source line.
func NewRelationship(typ RelationshipType, targets []string, line int, text string) *Relationship {
	r := &Relationship{Type: typ}
	r.setSource(line, text)
	for _, raw := range targets {
		r.Targets = append(r.Targets, &Target{Raw: raw})
	}
	return r
}

func (r *Relationship) Kind() NodeKind { return KindRelationship }

// IsTargetID reports whether s has the target-id shape: T-<name> or T<digits>.
func IsTargetID(s string) bool {
	if len(s) < 2 || (s[0] != 'T' && s[0] != 't') {
		return false
	}
	if s[1] == '-' {
		return len(s) > 2
	}
	_, ok := parseUnsigned(s[1:])
	return ok
}
