package graph

import (
	"fmt"
	"slices"
	"strings"
)

// TopicRef is a placeholder for a reusable content unit.
type TopicRef struct {
	base
	Identity    Identity
	Title       string
	Type        string
	Writer      string
	Description string
	Tags        []string
	RemoveTags  []string
	SourceURLs  []string
	TargetID    string
	// Revision pins the reference to a historical version. A pinned topic is
	// frozen: its decoration and relationships may not be changed.
	Revision *int64
	// DBID is the resolved database id; 0 until resolved.
	DBID            int64
	DuplicateSuffix string
	Relationships   []*Relationship
	// UnknownOptions holds option keys the parser did not recognise, keyed by the
	// lower-cased key.
	UnknownOptions map[string]string

	// position is the index of this topic among the nodes parsed from its line.
	position int
}

// NewTopicRef builds a topic reference parsed from the given source line.
func NewTopicRef(identity Identity, title string, line int, text string) *TopicRef {
	t := &TopicRef{Identity: identity, Title: title}
	t.setSource(line, text)
	return t
}

func (t *TopicRef) Kind() NodeKind { return KindTopic }

// SetPosition records the index of the topic on its source line.
func (t *TopicRef) SetPosition(p int) { t.position = p }

// UniqueID is line number plus on-line position. Unlike the identity tag it never
// repeats within a document.
func (t *TopicRef) UniqueID() string { return fmt.Sprintf("%d-%d", t.line, t.position) }

// IdentityTag is the canonical identifier the topic is referenced by.
func (t *TopicRef) IdentityTag() string { return t.Identity.Tag() }

// Resolved reports whether a database id has been assigned.
func (t *TopicRef) Resolved() bool { return t.DBID > 0 }

// Pinned reports whether the topic references an explicit revision.
func (t *TopicRef) Pinned() bool { return t.Revision != nil }

// HasMutations reports whether the reference asks to change the remote topic's
// decoration: tags, removed tags, source urls or writer.
func (t *TopicRef) HasMutations() bool {
	return len(t.Tags) > 0 || len(t.RemoveTags) > 0 || len(t.SourceURLs) > 0 || t.Writer != ""
}

// AddTag appends a tag unless it is already present (case-insensitive).
func (t *TopicRef) AddTag(tag string) {
	if !containsFold(t.Tags, tag) {
		t.Tags = append(t.Tags, tag)
	}
}

// AddRemoveTag records a tag to strip from the remote topic.
func (t *TopicRef) AddRemoveTag(tag string) {
	if !containsFold(t.RemoveTags, tag) {
		t.RemoveTags = append(t.RemoveTags, tag)
	}
}

// AddRelationship attaches r with t as its source.
func (t *TopicRef) AddRelationship(r *Relationship) {
	r.Source = t
	r.setParent(t.parent)
	t.Relationships = append(t.Relationships, r)
}

func (t *TopicRef) setParent(l *Level) {
	t.parent = l
	for _, r := range t.Relationships {
		r.setParent(l)
	}
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}
