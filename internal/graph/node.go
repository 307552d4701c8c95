package graph

import "fmt"

// NodeKind enumerates the closed set of node variants.
type NodeKind int

const (
	KindLevel NodeKind = iota
	KindTopic
	KindComment
	KindRelationship
)

func (k NodeKind) String() string {
	switch k {
	case KindLevel:
		return "level"
	case KindTopic:
		return "topic"
	case KindComment:
		return "comment"
	case KindRelationship:
		return "relationship"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Node is the universal primitive of a parsed content spec.
// Only *Level, *TopicRef, *Comment and *Relationship implement it; dispatch with a
// type switch over those four.
//
// A node never owns its parent. Ownership flows from a Level to its children and
// the parent link is cleared when a child is removed.
type Node interface {
	Kind() NodeKind
	// Line is the 1-based source line the node was parsed from.
	Line() int
	// Text is the raw source line.
	Text() string
	Parent() *Level

	setParent(l *Level)
	sealed()
}

type base struct {
	line   int
	text   string
	parent *Level
}

func (b *base) Line() int { return b.line }
func (b *base) Text() string { return b.text }
func (b *base) Parent() *Level { return b.parent }
func (b *base) setParent(l *Level) { b.parent = l }
func (b *base) sealed() {}
func (b *base) setSource(line int, text string) {
	b.line = line
	b.text = text
}

// Comment is free text kept for positioning only.
type Comment struct {
	base
	Value string
}

// NewComment builds a comment node for the given source line.
func NewComment(line int, text, value string) *Comment {
	c := &Comment{Value: value}
	c.setSource(line, text)
	return c
}

func (c *Comment) Kind() NodeKind { return KindComment }

// Step returns the 1-based position of n among its parent's non-comment children.
// Nodes without a parent report 0.
func Step(n Node) int {
	p := n.Parent()
	if p == nil {
		return 0
	}
	step := 0
	for _, c := range p.children {
		if c.Kind() == KindComment {
			continue
		}
		step++
		if c == n {
			return step
		}
	}
	return 0
}

// Walk visits n and its descendants depth-first in document order until fn
// returns false. Relationships are visited right after their source topic.
func Walk(n Node, fn func(Node) bool) bool {
	if !fn(n) {
		return false
	}
	switch v := n.(type) {
	case *Level:
		for _, c := range v.children {
			if !Walk(c, fn) {
				return false
			}
		}
	case *TopicRef:
		for _, r := range v.Relationships {
			if !fn(r) {
				return false
			}
		}
	case *Comment, *Relationship:
	}
	return true
}
