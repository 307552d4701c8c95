package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentic-research/cspec/api"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/store"
	"github.com/agentic-research/cspec/internal/validate"
	"github.com/agentic-research/cspec/internal/writeback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `{
  "tags": [
    {"name": "Task", "category": "Type"},
    {"name": "Concept", "category": "Type"},
    {"name": "jdoe", "category": "Writer"},
    {"name": "a"},
    {"name": "b"}
  ],
  "topics": [
    {"title": "Intro", "type": "Concept"}
  ]
}`

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cspec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.LoadSeed(context.Background(), strings.NewReader(seed))
	require.NoError(t, err)
	return s
}

func countTopics(t *testing.T, s *store.Store) int {
	t.Helper()
	n, err := s.CountTopics(context.Background())
	require.NoError(t, err)
	return n
}

func TestProcess_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p := NewWithBackend(Options{}, s)

	res, err := p.Process(ctx, "Chapter: Intro [1]\n  Concept: Foo [N, tags=[a,b]]\n")
	require.NoError(t, err, res.Log.Entries())
	assert.True(t, res.Parsed)
	assert.Zero(t, res.Log.Len())

	body := "Chapter: Intro [1]\n  Concept: Foo [2]\n"
	assert.Equal(t, "CHECKSUM="+writeback.Checksum(body)+"\n"+body, res.Text)
	assert.Equal(t, writeback.Checksum(body), res.Checksum)
	assert.Equal(t, 2, countTopics(t, s))

	foo, err := s.GetTopic(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "Foo", foo.Title)
	names := make([]string, 0, len(foo.Tags))
	for _, tag := range foo.Tags {
		names = append(names, tag.Name)
	}
	assert.Equal(t, []string{"Concept", "a", "b"}, names)
	line, _ := foo.Property(api.PropertyLine)
	assert.Equal(t, "2", line)
}

func TestProcess_MissingTagWritesNothing(t *testing.T) {
	s := openStore(t)
	p := NewWithBackend(Options{}, s)

	res, err := p.Process(context.Background(), "Chapter: Intro [1]\n  Concept: Foo [N, tags=[a,zzz]]\n")
	require.ErrorIs(t, err, diag.ErrReferential)
	assert.Empty(t, res.Text)
	assert.True(t, res.Log.HasErrorsOfKind(diag.KindReferential))
	assert.Equal(t, 1, countTopics(t, s))
}

func TestProcess_ReprocessingIsStable(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p := NewWithBackend(Options{}, s)

	first, err := p.Process(ctx, "Title = Book\nChapter: Intro [1]\n  Concept: Foo [N, tags=[a,b]]\n")
	require.NoError(t, err, first.Log.Entries())

	second, err := p.Process(ctx, first.Text)
	require.NoError(t, err, second.Log.Entries())
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 2, countTopics(t, s))
}

func TestProcess_DuplicatesAndRelationships(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p := NewWithBackend(Options{}, s)

	text := `Chapter: Setup
  One [N1, type=Task] [R: N2]
  Two [N2, type=Task]
Chapter: Again
  Copy [X1]
`
	res, err := p.Process(ctx, text)
	require.NoError(t, err, res.Log.Entries())

	want := `Chapter: Setup
  One [2, type=Task] [R: T-3-N2]
  Two [3, type=Task] [T-3-N2]
Chapter: Again
  Copy [2]
`
	assert.Equal(t, want, strings.TrimPrefix(res.Text, "CHECKSUM="+res.Checksum+"\n"))

	topics := res.Spec.Topics()
	require.Len(t, topics, 3)
	assert.Equal(t, topics[0].DBID, topics[2].DBID)
	assert.Equal(t, 3, countTopics(t, s))
}

func TestProcess_ExistingTopicDecoration(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p := NewWithBackend(Options{}, s)

	res, err := p.Process(ctx, "Chapter: Intro\n  Intro [1, +a, writer=jdoe, url=http://intro.example]\n")
	require.NoError(t, err, res.Log.Entries())
	assert.Contains(t, res.Text, "  Intro [1]\n")

	intro, err := s.GetTopic(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), intro.Revision)
	assert.Len(t, intro.TagsInCategory(api.CategoryWriter), 1)
	assert.Equal(t, []string{"http://intro.example"}, intro.SourceURLs)
}

// failThirdCreate lets two creates through and rejects the third.
type failThirdCreate struct {
	*store.Store
	creates int
}

func (f *failThirdCreate) CreateTopic(ctx context.Context, t *api.Topic) (*api.Topic, error) {
	f.creates++
	if f.creates == 3 {
		return nil, errors.New("server unavailable")
	}
	return f.Store.CreateTopic(ctx, t)
}

func TestProcess_RollbackLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p := NewWithBackend(Options{}, &failThirdCreate{Store: s})

	text := "Chapter: A\n  One [N1, type=Task]\n  Two [N2, type=Task]\n  Three [N3, type=Task]\n"
	res, err := p.Process(ctx, text)
	require.ErrorIs(t, err, diag.ErrPersistence)
	assert.ErrorContains(t, err, "server unavailable")
	assert.True(t, res.Log.HasErrorsOfKind(diag.KindPersistence))
	assert.Empty(t, res.Text)

	assert.Equal(t, 1, countTopics(t, s))
	for _, topic := range res.Spec.Topics() {
		assert.False(t, topic.Resolved(), "line %d", topic.Line())
	}
}

func TestValidate_StopsAfterFailedParse(t *testing.T) {
	s := openStore(t)
	text := "Chapter: A\n  Foo [1\n  Bar [99]\n"

	strict := NewWithBackend(Options{}, s)
	res, err := strict.Validate(context.Background(), text)
	require.ErrorIs(t, err, diag.ErrParse)
	assert.False(t, res.Parsed)
	assert.False(t, res.Log.HasErrorsOfKind(diag.KindReferential))

	permissive := NewWithBackend(Options{Validation: validate.Config{Permissive: true}}, s)
	res, err = permissive.Validate(context.Background(), text)
	require.ErrorIs(t, err, diag.ErrParse)
	assert.ErrorIs(t, err, diag.ErrReferential)
	assert.True(t, res.Log.HasErrorsOfKind(diag.KindReferential))
}

func TestProcess_FailedParseNeverPersists(t *testing.T) {
	s := openStore(t)
	p := NewWithBackend(Options{Validation: validate.Config{Permissive: true}}, s)

	_, err := p.Process(context.Background(), "Chapter: A\n  Dangling [1\n  Foo [N, type=Task]\n")
	require.ErrorIs(t, err, diag.ErrParse)
	assert.Equal(t, 1, countTopics(t, s))
}

func TestValidate_NoRemoteWrites(t *testing.T) {
	s := openStore(t)
	p := New(Options{}, s, nil)

	res, err := p.Validate(context.Background(), "Chapter: Intro [1]\n  Concept: Foo [N, tags=[a,b]]\n")
	require.NoError(t, err, res.Log.Entries())
	assert.Equal(t, 1, countTopics(t, s))

	_, err = p.Process(context.Background(), "Chapter: Intro [1]\n")
	assert.Error(t, err)
}

func TestProcess_Cancelled(t *testing.T) {
	s := openStore(t)
	p := NewWithBackend(Options{}, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Process(ctx, "Chapter: Intro [1]\n  Concept: Foo [N, tags=[a,b]]\n")
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Parsed)
	assert.Equal(t, 1, countTopics(t, s))
}

func TestProcess_RepeatedExistingTopicKeepsEveryTag(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	p := NewWithBackend(Options{}, s)

	res, err := p.Process(ctx, "Chapter: A\n  Intro [1, +a]\nChapter: B\n  Intro [1, +b]\n")
	require.NoError(t, err, res.Log.Entries())

	intro, err := s.GetTopic(ctx, 1, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(intro.Tags))
	for _, tag := range intro.Tags {
		names = append(names, tag.Name)
	}
	assert.Equal(t, []string{"Concept", "a", "b"}, names)
	assert.Equal(t, int64(2), intro.Revision)
}
