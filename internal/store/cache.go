package store

import (
	"context"
	"errors"
	"strings"

	"github.com/agentic-research/cspec/api"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds each lookup cache of a CachedDirectory.
const DefaultCacheSize = 1024

// TopicKey identifies a topic lookup. A latest-revision lookup and a lookup of
// the same revision number are distinct entries.
type TopicKey struct {
	ID     int64
	Rev    int64
	HasRev bool
}

type topicResult struct {
	topic *api.Topic
	err   error
}

// CachedDirectory memoises an api.EntityDirectory for one pipeline run.
// Not-found answers are cached too; any other error is not.
type CachedDirectory struct {
	next   api.EntityDirectory
	topics *lru.Cache[TopicKey, topicResult]
	tags   *lru.Cache[string, []api.Tag]
	types  *lru.Cache[string, topicTypeResult]
}

type topicTypeResult struct {
	tag *api.Tag
	err error
}

// NewCachedDirectory wraps next with caches holding up to size entries each.
func NewCachedDirectory(next api.EntityDirectory, size int) (*CachedDirectory, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	topics, err := lru.New[TopicKey, topicResult](size)
	if err != nil {
		return nil, err
	}
	tags, err := lru.New[string, []api.Tag](size)
	if err != nil {
		return nil, err
	}
	types, err := lru.New[string, topicTypeResult](size)
	if err != nil {
		return nil, err
	}
	return &CachedDirectory{next: next, topics: topics, tags: tags, types: types}, nil
}

// GetTopic implements api.EntityDirectory. Callers receive a copy they may mutate.
func (c *CachedDirectory) GetTopic(ctx context.Context, id int64, revision *int64) (*api.Topic, error) {
	key := TopicKey{ID: id}
	if revision != nil {
		key.Rev, key.HasRev = *revision, true
	}
	if r, ok := c.topics.Get(key); ok {
		return r.topic.Clone(), r.err
	}
	t, err := c.next.GetTopic(ctx, id, revision)
	if err == nil || isNotFound(err) {
		c.topics.Add(key, topicResult{topic: t.Clone(), err: err})
	}
	return t, err
}

// GetTagsByName implements api.EntityDirectory.
func (c *CachedDirectory) GetTagsByName(ctx context.Context, name string) ([]api.Tag, error) {
	key := strings.ToLower(name)
	if tags, ok := c.tags.Get(key); ok {
		return append([]api.Tag(nil), tags...), nil
	}
	tags, err := c.next.GetTagsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.tags.Add(key, append([]api.Tag(nil), tags...))
	return tags, nil
}

// GetTypeTag implements api.EntityDirectory.
func (c *CachedDirectory) GetTypeTag(ctx context.Context, name string) (*api.Tag, error) {
	key := strings.ToLower(name)
	if r, ok := c.types.Get(key); ok {
		return copyTag(r.tag), r.err
	}
	tag, err := c.next.GetTypeTag(ctx, name)
	if err == nil || isNotFound(err) {
		c.types.Add(key, topicTypeResult{tag: copyTag(tag), err: err})
	}
	return tag, err
}

// Purge drops every cached answer. The pipeline purges between validation
// and resolution so the resolver re-reads remote state.
func (c *CachedDirectory) Purge() {
	c.topics.Purge()
	c.tags.Purge()
	c.types.Purge()
}

// Len returns the number of cached entries across all caches.
func (c *CachedDirectory) Len() int {
	return c.topics.Len() + c.tags.Len() + c.types.Len()
}

func copyTag(t *api.Tag) *api.Tag {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func isNotFound(err error) bool { return errors.Is(err, api.ErrNotFound) }
