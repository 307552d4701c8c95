package graph

import (
	"sort"
	"strconv"
	"strings"
)

// Metadata is the document-level header of a content spec.
type Metadata struct {
	Title           string
	Subtitle        string
	Product         string
	Version         string
	Edition         string
	DTD             string
	Checksum        string
	CreatedBy       string
	CopyrightHolder string
	Brand           string
	Description     string
	// ID is the database id of the content spec itself; 0 until persisted.
	ID int64
}

// ContentSpec is a whole parsed document.
type ContentSpec struct {
	Root *Level
	Meta Metadata
	// Lines mirrors the pre-processed input, one entry per source line, so the
	// document can be reproduced exactly apart from substitutions.
	Lines []string
}

// NewContentSpec returns an empty spec with a BASE root.
func NewContentSpec() *ContentSpec {
	return &ContentSpec{Root: NewLevel(LevelBase, "", 0, "")}
}

// Line returns the mirrored source line n (1-based).
func (s *ContentSpec) Line(n int) (string, bool) {
	if n < 1 || n > len(s.Lines) {
		return "", false
	}
	return s.Lines[n-1], true
}

// Walk visits every node reachable from the root in document order.
func (s *ContentSpec) Walk(fn func(Node) bool) {
	Walk(s.Root, fn)
}

// Topics returns every topic reference in document order.
func (s *ContentSpec) Topics() []*TopicRef {
	var out []*TopicRef
	s.Walk(func(n Node) bool {
		if t, ok := n.(*TopicRef); ok {
			out = append(out, t)
		}
		return true
	})
	return out
}

// Levels returns every level except the root, in document order.
func (s *ContentSpec) Levels() []*Level {
	var out []*Level
	s.Walk(func(n Node) bool {
		if l, ok := n.(*Level); ok && l != s.Root {
			out = append(out, l)
		}
		return true
	})
	return out
}

// Relationships returns every relationship in document order.
func (s *ContentSpec) Relationships() []*Relationship {
	var out []*Relationship
	s.Walk(func(n Node) bool {
		if r, ok := n.(*Relationship); ok {
			out = append(out, r)
		}
		return true
	})
	return out
}

// TopicsByTag groups topic references by their canonical identity tag.
func (s *ContentSpec) TopicsByTag() map[string][]*TopicRef {
	out := make(map[string][]*TopicRef)
	for _, t := range s.Topics() {
		if !t.Identity.Valid() {
			continue
		}
		tag := t.IdentityTag()
		out[tag] = append(out[tag], t)
	}
	return out
}

// NodesByTargetID indexes every level and topic that carries a target-id. Target
// ids compare case-insensitively; duplicates keep every node.
func (s *ContentSpec) NodesByTargetID() map[string][]Node {
	out := make(map[string][]Node)
	s.Walk(func(n Node) bool {
		switch v := n.(type) {
		case *Level:
			if v.TargetID != "" {
				key := strings.ToUpper(v.TargetID)
				out[key] = append(out[key], v)
			}
		case *TopicRef:
			if v.TargetID != "" {
				key := strings.ToUpper(v.TargetID)
				out[key] = append(out[key], v)
			}
		case *Comment, *Relationship:
		}
		return true
	})
	return out
}

// NodesByLine indexes levels and topics by their source line. Topics sharing a
// line (a level and its intro topic) keep on-line order.
func (s *ContentSpec) NodesByLine() map[int][]Node {
	out := make(map[int][]Node)
	s.Walk(func(n Node) bool {
		if n == s.Root {
			return true
		}
		switch n.(type) {
		case *Level, *TopicRef:
			out[n.Line()] = append(out[n.Line()], n)
		case *Comment, *Relationship:
		}
		return true
	})
	for line := range out {
		nodes := out[line]
		sort.SliceStable(nodes, func(i, j int) bool {
			return onLinePosition(nodes[i]) < onLinePosition(nodes[j])
		})
	}
	return out
}

func onLinePosition(n Node) int {
	if t, ok := n.(*TopicRef); ok {
		return t.position
	}
	return -1
}

// AssignDuplicateSuffixes gives every sibling level whose escaped title repeats an
// earlier sibling's a "-<n>" suffix. It returns the number of levels suffixed.
func (s *ContentSpec) AssignDuplicateSuffixes() int {
	n := 0
	s.Walk(func(node Node) bool {
		l, ok := node.(*Level)
		if !ok {
			return true
		}
		seen := make(map[string]int)
		for _, c := range l.levels {
			key := c.EscapedTitle()
			if count := seen[key]; count > 0 {
				c.DuplicateSuffix = "-" + strconv.Itoa(count)
				n++
			}
			seen[key]++
		}
		return true
	})
	return n
}
