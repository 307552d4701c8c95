package graph

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// LevelKind is the structural role of a Level.
type LevelKind int

const (
	LevelUnknown LevelKind = iota
	LevelBase
	LevelPart
	LevelChapter
	LevelSection
	LevelAppendix
	LevelProcess
	LevelPreface
)

var levelKeywords = map[string]LevelKind{
	"part":     LevelPart,
	"chapter":  LevelChapter,
	"section":  LevelSection,
	"appendix": LevelAppendix,
	"process":  LevelProcess,
	"preface":  LevelPreface,
}

// ParseLevelKind maps a line keyword ("Chapter", "section", ...) to a LevelKind.
func ParseLevelKind(keyword string) (LevelKind, bool) {
	k, ok := levelKeywords[strings.ToLower(strings.TrimSpace(keyword))]
	return k, ok
}

// Valid reports whether k is a recognised level kind.
func (k LevelKind) Valid() bool { return k >= LevelBase && k <= LevelPreface }

func (k LevelKind) String() string {
	switch k {
	case LevelBase:
		return "Base"
	case LevelPart:
		return "Part"
	case LevelChapter:
		return "Chapter"
	case LevelSection:
		return "Section"
	case LevelAppendix:
		return "Appendix"
	case LevelProcess:
		return "Process"
	case LevelPreface:
		return "Preface"
	default:
		return fmt.Sprintf("LevelKind(%d)", int(k))
	}
}

// Level is a titled container. Children keep presentation order; the level and
// topic indexes are kept consistent with it by every mutator.
type Level struct {
	base
	Title           string
	LevelKind       LevelKind
	TargetID        string
	DuplicateSuffix string

	children []Node
	levels   []*Level
	topics   []*TopicRef
}

// NewLevel builds a level parsed from the given source line.
func NewLevel(kind LevelKind, title string, line int, text string) *Level {
	l := &Level{Title: title, LevelKind: kind}
	l.setSource(line, text)
	return l
}

func (l *Level) Kind() NodeKind { return KindLevel }

// UniqueID identifies the level independently of its title.
func (l *Level) UniqueID() string { return fmt.Sprintf("L%d", l.line) }

// EscapedTitle is the comparable form of the title used for collision checks.
func (l *Level) EscapedTitle() string { return EscapeTitle(l.Title) }

// AppendChild adds n as the last child and takes ownership of it. A relationship
// cannot be a direct child of a level.
func (l *Level) AppendChild(n Node) error {
	return l.InsertChild(len(l.children), n)
}

// InsertChild places n at position i in the child list.
func (l *Level) InsertChild(i int, n Node) error {
	if i < 0 || i > len(l.children) {
		return fmt.Errorf("insert position %d out of range [0,%d]", i, len(l.children))
	}
	if _, ok := n.(*Relationship); ok {
		return fmt.Errorf("relationship on line %d cannot be a level child", n.Line())
	}
	if p := n.Parent(); p != nil {
		if p == l && slices.Index(l.children, n) < i {
			i--
		}
		p.RemoveChild(n)
	}
	l.children = slices.Insert(l.children, i, n)
	n.setParent(l)
	l.reindex()
	return nil
}

// RemoveChild detaches n. It reports whether n was a child of l.
func (l *Level) RemoveChild(n Node) bool {
	i := slices.Index(l.children, n)
	if i < 0 {
		return false
	}
	l.children = slices.Delete(l.children, i, i+1)
	n.setParent(nil)
	l.reindex()
	return true
}

func (l *Level) reindex() {
	l.levels = l.levels[:0]
	l.topics = l.topics[:0]
	for _, c := range l.children {
		switch v := c.(type) {
		case *Level:
			l.levels = append(l.levels, v)
		case *TopicRef:
			l.topics = append(l.topics, v)
		case *Comment, *Relationship:
		}
	}
}

// Children returns the children in presentation order.
func (l *Level) Children() []Node { return slices.Clone(l.children) }

// ChildLevels returns only the child levels.
func (l *Level) ChildLevels() []*Level { return slices.Clone(l.levels) }

// ChildTopics returns only the child topic references.
func (l *Level) ChildTopics() []*TopicRef { return slices.Clone(l.topics) }

// IsEmpty reports whether the level has no levels or topics below it.
func (l *Level) IsEmpty() bool { return len(l.levels) == 0 && len(l.topics) == 0 }

// EscapeTitle lower-cases title and collapses every run of non alphanumerics to "_".
func EscapeTitle(title string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pending = true
	}
	return b.String()
}
