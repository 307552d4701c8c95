package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentic-research/cspec/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cspec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Tags(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	task, err := s.EnsureTag(ctx, "Task", api.CategoryType)
	require.NoError(t, err)
	again, err := s.EnsureTag(ctx, "task", api.CategoryType)
	require.NoError(t, err)
	assert.Equal(t, task.ID, again.ID)

	_, err = s.EnsureTag(ctx, "task", "")
	require.NoError(t, err)

	tags, err := s.GetTagsByName(ctx, "TASK")
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	typ, err := s.GetTypeTag(ctx, "Task")
	require.NoError(t, err)
	assert.Equal(t, task.ID, typ.ID)

	_, err = s.GetTypeTag(ctx, "Reference")
	assert.ErrorIs(t, err, api.ErrNotFound)

	_, err = s.EnsureTag(ctx, "  ", "")
	assert.Error(t, err)
}

func TestStore_TopicLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	task, err := s.EnsureTag(ctx, "Task", api.CategoryType)
	require.NoError(t, err)
	a, err := s.EnsureTag(ctx, "a", "")
	require.NoError(t, err)

	created, err := s.CreateTopic(ctx, &api.Topic{
		Title:      "Foo",
		Tags:       []api.Tag{task},
		Properties: []api.Property{{Name: api.PropertyLine, Value: "2"}},
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(1), created.Revision)
	assert.False(t, created.Created.IsZero())
	assert.Equal(t, []api.Tag{task}, created.Tags)

	upd := created.Clone()
	upd.Tags = append(upd.Tags, a)
	upd.SourceURLs = []string{"http://foo.example"}
	updated, err := s.UpdateTopic(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Revision)
	assert.Len(t, updated.Tags, 2)

	rev1 := int64(1)
	old, err := s.GetTopic(ctx, created.ID, &rev1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), old.Revision)
	assert.Len(t, old.Tags, 1)
	assert.Empty(t, old.SourceURLs)

	rev9 := int64(9)
	_, err = s.GetTopic(ctx, created.ID, &rev9)
	assert.ErrorIs(t, err, api.ErrNotFound)

	line, ok := updated.Property(api.PropertyLine)
	assert.True(t, ok)
	assert.Equal(t, "2", line)

	require.NoError(t, s.DeleteTopic(ctx, created.ID))
	_, err = s.GetTopic(ctx, created.ID, nil)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTopic(ctx, created.ID), api.ErrNotFound)

	_, err = s.UpdateTopic(ctx, upd)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestStore_CreateNeedsTitle(t *testing.T) {
	s := openTemp(t)
	_, err := s.CreateTopic(context.Background(), &api.Topic{})
	assert.Error(t, err)
}

const seedDoc = `{
  "tags": [
    {"name": "Task", "category": "Type"},
    {"name": "Concept", "category": "Type"},
    {"name": "jdoe", "category": "Writer"},
    {"name": "a"}
  ],
  "topics": [
    {"title": "Intro", "type": "Concept", "writer": "jdoe", "tags": ["a", "b"],
     "source_urls": ["http://intro.example"], "properties": {"owner": "docs"}},
    {"title": "Install", "type": "Task", "body": "<para/>"}
  ]
}`

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	stats, err := s.LoadSeed(ctx, strings.NewReader(seedDoc))
	require.NoError(t, err)
	assert.Equal(t, SeedStats{Tags: 4, Topics: 2}, stats)

	n, err := s.CountTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	intro, err := s.GetTopic(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Intro", intro.Title)
	require.Len(t, intro.Tags, 4)
	assert.Equal(t, "Concept", intro.Tags[0].Name)
	assert.Equal(t, api.CategoryWriter, intro.Tags[1].Category)
	assert.Equal(t, []string{"http://intro.example"}, intro.SourceURLs)
	owner, _ := intro.Property("owner")
	assert.Equal(t, "docs", owner)

	// the topic tag "b" was created on demand
	b, err := s.GetTagsByName(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, b, 1)
}

func TestLoadSeed_Errors(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, err := s.LoadSeed(ctx, strings.NewReader(`{"tags": [`))
	assert.Error(t, err)

	_, err = s.LoadSeed(ctx, strings.NewReader(`{"tags": [{"category": "Type"}]}`))
	assert.ErrorContains(t, err, "tags[0]")

	_, err = s.LoadSeed(ctx, strings.NewReader(`{"topics": [{"type": "Task"}]}`))
	assert.ErrorContains(t, err, "topics[0]")
}

type countingDir struct {
	api.EntityDirectory
	topicCalls, tagCalls, typeCalls int
	fail                            error
}

func (c *countingDir) GetTopic(ctx context.Context, id int64, rev *int64) (*api.Topic, error) {
	c.topicCalls++
	if c.fail != nil {
		return nil, c.fail
	}
	return c.EntityDirectory.GetTopic(ctx, id, rev)
}

func (c *countingDir) GetTagsByName(ctx context.Context, name string) ([]api.Tag, error) {
	c.tagCalls++
	return c.EntityDirectory.GetTagsByName(ctx, name)
}

func (c *countingDir) GetTypeTag(ctx context.Context, name string) (*api.Tag, error) {
	c.typeCalls++
	return c.EntityDirectory.GetTypeTag(ctx, name)
}

func TestCachedDirectory(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	_, err := s.LoadSeed(ctx, strings.NewReader(seedDoc))
	require.NoError(t, err)

	inner := &countingDir{EntityDirectory: s}
	c, err := NewCachedDirectory(inner, 16)
	require.NoError(t, err)

	first, err := c.GetTopic(ctx, 1, nil)
	require.NoError(t, err)
	first.Title = "mutated"
	second, err := c.GetTopic(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Intro", second.Title)
	assert.Equal(t, 1, inner.topicCalls)

	// a revision-qualified lookup is a separate entry
	rev := int64(1)
	_, err = c.GetTopic(ctx, 1, &rev)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.topicCalls)

	// not found is cached
	_, err = c.GetTopic(ctx, 99, nil)
	assert.ErrorIs(t, err, api.ErrNotFound)
	_, err = c.GetTopic(ctx, 99, nil)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, 3, inner.topicCalls)

	_, err = c.GetTagsByName(ctx, "a")
	require.NoError(t, err)
	_, err = c.GetTagsByName(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.tagCalls)

	_, err = c.GetTypeTag(ctx, "Task")
	require.NoError(t, err)
	_, err = c.GetTypeTag(ctx, "Task")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.typeCalls)

	assert.Equal(t, 5, c.Len())
	c.Purge()
	assert.Zero(t, c.Len())
	_, err = c.GetTopic(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, inner.topicCalls)
}

func TestCachedDirectory_DoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	inner := &countingDir{EntityDirectory: openTemp(t), fail: errors.New("boom")}
	c, err := NewCachedDirectory(inner, 0)
	require.NoError(t, err)

	_, err = c.GetTopic(ctx, 1, nil)
	assert.Error(t, err)
	_, err = c.GetTopic(ctx, 1, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, inner.topicCalls)
}
