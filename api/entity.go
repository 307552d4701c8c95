package api

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned by an EntityDirectory when the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Tag categories understood by the processor.
const (
	CategoryType   = "Type"
	CategoryWriter = "Writer"
)

// PropertyLine is the topic property that records the content spec line owning the topic.
const PropertyLine = "cs-line"

// Tag is a remote classification label. Types and writers are tags in their own category.
type Tag struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// Property is a name/value pair attached to a topic.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Topic is a remotely persisted reusable content unit.
type Topic struct {
	ID           int64      `json:"id,omitempty"`
	Revision     int64      `json:"revision,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Body         string     `json:"body"`
	Locale       string     `json:"locale,omitempty"`
	Tags         []Tag      `json:"tags,omitempty"`
	SourceURLs   []string   `json:"source_urls,omitempty"`
	Properties   []Property `json:"properties,omitempty"`
	Created      time.Time  `json:"created,omitzero"`
	LastModified time.Time  `json:"last_modified,omitzero"`
}

// Clone returns a deep copy of the topic.
func (t *Topic) Clone() *Topic {
	if t == nil {
		return nil
	}
	c := *t
	c.Tags = slices.Clone(t.Tags)
	c.SourceURLs = slices.Clone(t.SourceURLs)
	c.Properties = slices.Clone(t.Properties)
	return &c
}

// HasTag reports whether the topic carries a tag with the given id.
func (t *Topic) HasTag(id int64) bool {
	for _, tag := range t.Tags {
		if tag.ID == id {
			return true
		}
	}
	return false
}

// TagsInCategory returns the topic's tags belonging to category.
func (t *Topic) TagsInCategory(category string) []Tag {
	return FilterCategory(t.Tags, category)
}

// FilterCategory returns the tags belonging to category, compared case-insensitively.
func FilterCategory(tags []Tag, category string) []Tag {
	var out []Tag
	for _, tag := range tags {
		if strings.EqualFold(tag.Category, category) {
			out = append(out, tag)
		}
	}
	return out
}

// RemoveTag drops every tag with the given id. It reports whether anything was removed.
func (t *Topic) RemoveTag(id int64) bool {
	n := len(t.Tags)
	t.Tags = slices.DeleteFunc(t.Tags, func(tag Tag) bool { return tag.ID == id })
	return len(t.Tags) != n
}

// Property returns the value of the named property.
func (t *Topic) Property(name string) (string, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// SetProperty replaces or appends the named property.
func (t *Topic) SetProperty(name, value string) {
	for i := range t.Properties {
		if t.Properties[i].Name == name {
			t.Properties[i].Value = value
			return
		}
	}
	t.Properties = append(t.Properties, Property{Name: name, Value: value})
}

// EntityDirectory is the read path into the remote entity space.
// A nil revision means the latest revision.
type EntityDirectory interface {
	GetTopic(ctx context.Context, id int64, revision *int64) (*Topic, error)
	GetTagsByName(ctx context.Context, name string) ([]Tag, error)
	GetTypeTag(ctx context.Context, name string) (*Tag, error)
}

// PersistenceService is the write path. DeleteTopic is only used for rollback.
type PersistenceService interface {
	CreateTopic(ctx context.Context, t *Topic) (*Topic, error)
	UpdateTopic(ctx context.Context, t *Topic) (*Topic, error)
	DeleteTopic(ctx context.Context, id int64) error
}

// Backend is a collaborator offering both the read and the write path.
type Backend interface {
	EntityDirectory
	PersistenceService
}
