package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, text string) (*graph.ContentSpec, bool, *diag.Log) {
	t.Helper()
	var log diag.Log
	spec, ok := Parse(context.Background(), text, Config{}, &log)
	require.NotNil(t, spec)
	return spec, ok, &log
}

func TestParse_ChapterWithIntroAndNewTopic(t *testing.T) {
	spec, ok, log := parse(t, "Chapter: Intro [1]\n  Concept: Foo [N, tags=[a,b]]\n")
	require.True(t, ok, log.Entries())

	levels := spec.Root.ChildLevels()
	require.Len(t, levels, 1)
	ch := levels[0]
	assert.Equal(t, graph.LevelChapter, ch.LevelKind)
	assert.Equal(t, "Intro", ch.Title)

	topics := ch.ChildTopics()
	require.Len(t, topics, 2)
	assert.Equal(t, "1", topics[0].IdentityTag())
	assert.Equal(t, graph.IdentityExisting, topics[0].Identity.Kind)
	assert.Equal(t, 1, topics[0].Line())

	foo := topics[1]
	assert.Equal(t, "Foo", foo.Title)
	assert.Equal(t, "Concept", foo.Type)
	assert.Equal(t, "N", foo.IdentityTag())
	assert.Equal(t, graph.IdentityNew, foo.Identity.Kind)
	assert.Equal(t, []string{"a", "b"}, foo.Tags)
	assert.Equal(t, 2, foo.Line())

	assert.Equal(t, []string{"Chapter: Intro [1]", "  Concept: Foo [N, tags=[a,b]]"}, spec.Lines)
}

func TestParse_Metadata(t *testing.T) {
	text := strings.Join([]string{
		"CHECKSUM=abc123",
		"Title = My Book",
		"Product = Widget",
		"Version = 1.2",
		"Copyright Holder = ACME",
		"ID = 42",
		"",
		"Chapter: One",
		"  Topic [5]",
	}, "\n")
	spec, ok, log := parse(t, text)
	require.True(t, ok, log.Entries())
	assert.Equal(t, "abc123", spec.Meta.Checksum)
	assert.Equal(t, "My Book", spec.Meta.Title)
	assert.Equal(t, "Widget", spec.Meta.Product)
	assert.Equal(t, "1.2", spec.Meta.Version)
	assert.Equal(t, "ACME", spec.Meta.CopyrightHolder)
	assert.Equal(t, int64(42), spec.Meta.ID)
	assert.Len(t, spec.Lines, 9)
}

func TestParse_BadMetadataValue(t *testing.T) {
	_, ok, log := parse(t, "ID = abc\n")
	assert.False(t, ok)
	assert.Equal(t, []uint32{1}, log.ErrorLines().ToArray())
}

func TestParse_NestingAndDedent(t *testing.T) {
	text := `Part: One
  Chapter: A
    Section: A.1
      Topic A1 [1]
    Topic A2 [2]
  Chapter: B
    Topic B1 [3]
Appendix: Z
  Topic Z1 [4]
`
	spec, ok, log := parse(t, text)
	require.True(t, ok, log.Entries())

	parts := spec.Root.ChildLevels()
	require.Len(t, parts, 2)
	assert.Equal(t, graph.LevelPart, parts[0].LevelKind)
	assert.Equal(t, graph.LevelAppendix, parts[1].LevelKind)

	chapters := parts[0].ChildLevels()
	require.Len(t, chapters, 2)
	a := chapters[0]
	require.Len(t, a.ChildLevels(), 1)
	assert.Equal(t, "Topic A1", a.ChildLevels()[0].ChildTopics()[0].Title)
	assert.Equal(t, "Topic A2", a.ChildTopics()[0].Title)
	assert.Equal(t, "Topic B1", chapters[1].ChildTopics()[0].Title)
	assert.Equal(t, "Topic Z1", parts[1].ChildTopics()[0].Title)
}

func TestParse_TopicOptions(t *testing.T) {
	text := "Chapter: A\n  Install Foo [N1, type=Task, writer=jdoe, description=Installs foo, url=[http://a.example, http://b.example], tags=[x, -y], +z, -w, rev=3, colour=blue] [T-install]\n"
	spec, ok, log := parse(t, text)
	require.True(t, ok, log.Entries())

	topic := spec.Topics()[0]
	assert.Equal(t, "Install Foo", topic.Title)
	assert.Equal(t, "N1", topic.IdentityTag())
	assert.Equal(t, "Task", topic.Type)
	assert.Equal(t, "jdoe", topic.Writer)
	assert.Equal(t, "Installs foo", topic.Description)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, topic.SourceURLs)
	assert.Equal(t, []string{"x", "z"}, topic.Tags)
	assert.Equal(t, []string{"y", "w"}, topic.RemoveTags)
	require.NotNil(t, topic.Revision)
	assert.Equal(t, int64(3), *topic.Revision)
	assert.Equal(t, map[string]string{"colour": "blue"}, topic.UnknownOptions)
	assert.Equal(t, "T-install", topic.TargetID)
}

func TestParse_EscapedTitle(t *testing.T) {
	spec, ok, log := parse(t, "Chapter: A\n  Note\\: read \\[this\\] [12]\n")
	require.True(t, ok, log.Entries())
	topic := spec.Topics()[0]
	assert.Equal(t, "Note: read [this]", topic.Title)
	assert.Equal(t, "", topic.Type)
}

func TestParse_Relationships(t *testing.T) {
	text := `Chapter: A [T-a]
  First [N1, Task] [R: 5, T-a] [P: N2]
  Second [N2, Task]
  [Next: N1]
  [B: 7, 8]
`
	spec, ok, log := parse(t, text)
	require.True(t, ok, log.Entries())

	topics := spec.Topics()
	require.Len(t, topics, 2)
	assert.Equal(t, "T-a", spec.Levels()[0].TargetID)

	first := topics[0]
	require.Len(t, first.Relationships, 2)
	assert.Equal(t, graph.RelationshipRelated, first.Relationships[0].Type)
	assert.Equal(t, "5", first.Relationships[0].Targets[0].Raw)
	assert.Equal(t, "T-a", first.Relationships[0].Targets[1].Raw)
	assert.Equal(t, graph.RelationshipPrerequisite, first.Relationships[1].Type)

	second := topics[1]
	require.Len(t, second.Relationships, 2)
	assert.Equal(t, graph.RelationshipNext, second.Relationships[0].Type)
	assert.Equal(t, 4, second.Relationships[0].Line())
	assert.Equal(t, graph.RelationshipBranch, second.Relationships[1].Type)
	assert.Same(t, second, second.Relationships[1].Source)

	assert.Len(t, spec.Relationships(), 4)
}

func TestParse_CommentsAreNodes(t *testing.T) {
	spec, ok, log := parse(t, "# header\nChapter: A\n  # inside\n  Foo [1]\n")
	require.True(t, ok, log.Entries())
	require.Len(t, spec.Root.Children(), 2)
	c, isComment := spec.Root.Children()[0].(*graph.Comment)
	require.True(t, isComment)
	assert.Equal(t, "header", c.Value)

	ch := spec.Levels()[0]
	inner, isComment := ch.Children()[0].(*graph.Comment)
	require.True(t, isComment)
	assert.Equal(t, "inside", inner.Value)
}

func TestParse_ErrorsAreCollected(t *testing.T) {
	text := `Chapter: A
  Foo without brackets
   Odd indent [1]
  Bar [N, tags=[a, b]
  Baz [Q7]
      Too deep [3]
[R: 4]
`
	spec, ok, log := parse(t, text)
	assert.False(t, ok)
	assert.Equal(t, []uint32{2, 3, 4, 5, 6}, log.ErrorLines().ToArray())
	for _, e := range log.Entries() {
		assert.Equal(t, diag.KindParse, e.Kind)
	}
	// best effort: the invalid identifier still yields a node
	require.Len(t, spec.Topics(), 1)
	assert.False(t, spec.Topics()[0].Identity.Valid())
	assert.Len(t, spec.Lines, 7)
}

func TestParse_RelationshipWithoutTopic(t *testing.T) {
	_, ok, log := parse(t, "[R: 4]\n")
	assert.False(t, ok)
	assert.Equal(t, []uint32{1}, log.ErrorLines().ToArray())
}

func TestParse_TabsCountAsOneUnit(t *testing.T) {
	spec, ok, log := parse(t, "Chapter: A\n\tFoo [1]\n")
	require.True(t, ok, log.Entries())
	assert.Len(t, spec.Levels()[0].ChildTopics(), 1)
}

func TestParse_CustomIndentWidth(t *testing.T) {
	var log diag.Log
	spec, ok := Parse(context.Background(), "Chapter: A\n    Foo [1]\n", Config{IndentWidth: 4}, &log)
	require.True(t, ok, log.Entries())
	assert.Len(t, spec.Levels()[0].ChildTopics(), 1)
}

func TestParse_PreservesCarriageReturns(t *testing.T) {
	spec, ok, log := parse(t, "Chapter: A\r\n  Foo [1]\r\n")
	require.True(t, ok, log.Entries())
	assert.Equal(t, []string{"Chapter: A\r", "  Foo [1]\r"}, spec.Lines)
	assert.Equal(t, "A", spec.Levels()[0].Title)
}

func TestIsMetadataKey(t *testing.T) {
	assert.True(t, IsMetadataKey("Copyright  Holder"))
	assert.True(t, IsMetadataKey("CHECKSUM"))
	assert.False(t, IsMetadataKey("Chapter"))
}

func TestParser_AttachRejectsRelationshipChild(t *testing.T) {
	var log diag.Log
	p := New(Config{}, &log)
	level := graph.NewLevel(graph.LevelChapter, "A", 1, "Chapter: A")

	rel := graph.NewRelationship(graph.RelationshipRelated, []string{"N1"}, 2, "  [R: N1]")
	assert.False(t, p.attach(2, level, rel))
	assert.Empty(t, level.Children())
	assert.Equal(t, []uint32{2}, log.ErrorLines().ToArray())

	assert.True(t, p.attach(3, level, graph.NewComment(3, "  # note", "note")))
	assert.Len(t, level.Children(), 1)
	assert.Equal(t, 1, log.Len())
}
