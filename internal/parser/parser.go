// Package parser turns content spec text into a graph.ContentSpec.
//
// Parsing is a single best-effort pass over the lines. A malformed line is logged
// with its line number and skipped; the result is marked failed but the rest of
// the document is still parsed so one run reports every problem.
package parser

import (
	"context"
	"strconv"
	"strings"

	"github.com/agentic-research/cspec/internal/ctxlog"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
	"github.com/agentic-research/cspec/internal/varset"
)

// DefaultIndentWidth is the number of spaces that make one nesting level.
const DefaultIndentWidth = 2

// Config controls the parser.
type Config struct {
	// IndentWidth is the width of one indentation unit. A tab counts as one unit.
	IndentWidth int
}

// Parser holds the state of one parse. It is not reusable across documents.
type Parser struct {
	cfg  Config
	log  *diag.Log
	spec *graph.ContentSpec

	// stack[d] is the level that receives children written at depth d.
	stack     []*graph.Level
	lastTopic *graph.TopicRef
	errors    int
}

// New returns a parser that records diagnostics into log.
func New(cfg Config, log *diag.Log) *Parser {
	if cfg.IndentWidth <= 0 {
		cfg.IndentWidth = DefaultIndentWidth
	}
	return &Parser{cfg: cfg, log: log}
}

// Parse is a convenience wrapper around New(cfg, log).Parse.
func Parse(ctx context.Context, text string, cfg Config, log *diag.Log) (*graph.ContentSpec, bool) {
	return New(cfg, log).Parse(ctx, text)
}

// Parse consumes text line by line. It returns the populated spec and whether the
// parse succeeded. The spec is returned even on failure.
func (p *Parser) Parse(ctx context.Context, text string) (*graph.ContentSpec, bool) {
	logger := ctxlog.FromContext(ctx)

	p.spec = graph.NewContentSpec()
	p.stack = []*graph.Level{p.spec.Root}
	p.lastTopic = nil
	p.errors = 0

	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, raw := range lines {
		p.spec.Lines = append(p.spec.Lines, raw)
		p.parseLine(i+1, raw)
	}

	logger.Debug("Content spec parsed.", "lines", len(lines), "topics", len(p.spec.Topics()), "errors", p.errors)
	return p.spec, p.errors == 0
}

func (p *Parser) errorf(line int, format string, args ...any) {
	p.errors++
	p.log.Errorf(diag.KindParse, line, format, args...)
}

// attach appends n to parent, logging a parse error when the tree refuses it.
func (p *Parser) attach(num int, parent *graph.Level, n graph.Node) bool {
	if err := parent.AppendChild(n); err != nil {
		p.errorf(num, "%v", err)
		return false
	}
	return true
}

func (p *Parser) parseLine(num int, raw string) {
	line := strings.TrimRight(raw, "\r")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	width := p.indentWidth(line)

	if strings.HasPrefix(trimmed, "#") {
		depth := min(width/p.cfg.IndentWidth, len(p.stack)-1)
		c := graph.NewComment(num, raw, strings.TrimSpace(trimmed[1:]))
		p.attach(num, p.stack[depth], c)
		return
	}

	if width%p.cfg.IndentWidth != 0 {
		p.errorf(num, "indentation of %d is not a multiple of %d", width, p.cfg.IndentWidth)
		return
	}
	depth := width / p.cfg.IndentWidth

	if depth == 0 && p.parseMetadata(num, trimmed) {
		return
	}

	if colon := varset.IndexUnescaped(trimmed, ':', 0); colon > 0 {
		if kind, ok := graph.ParseLevelKind(trimmed[:colon]); ok {
			p.parseLevel(num, raw, depth, kind, trimmed[colon+1:])
			return
		}
	}

	if strings.HasPrefix(trimmed, "[") {
		if span, ok := varset.Find(trimmed, '[', ']', 0); ok && span.Start == 0 {
			if isRelationshipSet(span.Contents(trimmed)) {
				p.parseRelationshipLine(num, raw, trimmed)
				return
			}
		}
	}

	p.parseTopic(num, raw, depth, trimmed)
}

func (p *Parser) indentWidth(line string) int {
	width := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			width++
		case '\t':
			width += p.cfg.IndentWidth
		default:
			return width
		}
	}
	return width
}

// parent returns the level that receives a node at depth, closing every deeper
// level. It logs and returns nil when depth skips a level.
func (p *Parser) parent(num, depth int) *graph.Level {
	if depth >= len(p.stack) {
		p.errorf(num, "line is indented %d level(s) but only %d level(s) are open", depth, len(p.stack)-1)
		return nil
	}
	p.stack = p.stack[:depth+1]
	return p.stack[depth]
}

func (p *Parser) parseLevel(num int, raw string, depth int, kind graph.LevelKind, rest string) {
	rawTitle, spans, ok := splitTitle(rest)
	if !ok {
		p.errorf(num, "missing closing bracket")
		return
	}
	title := varset.Unescape(rawTitle)
	level := graph.NewLevel(kind, title, num, raw)
	if title == "" {
		p.errorf(num, "%s has no title", kind)
	}

	var intro *graph.TopicRef
	for _, contents := range spans {
		switch {
		case graph.IsTargetID(strings.TrimSpace(contents)):
			if level.TargetID != "" {
				p.errorf(num, "%s %q has more than one target id", kind, title)
				continue
			}
			level.TargetID = strings.TrimSpace(contents)
		case isRelationshipSet(contents):
			p.errorf(num, "%s %q cannot declare relationships", kind, title)
		default:
			if intro != nil {
				p.errorf(num, "%s %q has more than one topic option set", kind, title)
				continue
			}
			intro = p.parseOptions(num, raw, "", contents)
		}
	}

	parent := p.parent(num, depth)
	if parent == nil {
		return
	}
	if !p.attach(num, parent, level) {
		return
	}
	p.stack = append(p.stack, level)
	if intro != nil {
		intro.SetPosition(0)
		if p.attach(num, level, intro) {
			p.lastTopic = intro
		}
	}
}

func (p *Parser) parseTopic(num int, raw string, depth int, trimmed string) {
	prefix, spans, ok := splitTitle(trimmed)
	if !ok {
		p.errorf(num, "missing closing bracket")
		return
	}
	if len(spans) == 0 {
		p.errorf(num, "line is not a level, topic or relationship: %q", trimmed)
		return
	}
	if graph.IsTargetID(strings.TrimSpace(spans[0])) || isRelationshipSet(spans[0]) {
		p.errorf(num, "topic %q must start with an option set", prefix)
		return
	}

	typ, title := "", varset.Unescape(prefix)
	if colon := varset.IndexUnescaped(prefix, ':', 0); colon > 0 {
		word := strings.TrimSpace(prefix[:colon])
		if word != "" && !strings.ContainsAny(word, " \t") {
			typ = varset.Unescape(word)
			title = strings.TrimSpace(varset.Unescape(prefix[colon+1:]))
		}
	}

	topic := p.parseOptions(num, raw, title, spans[0])
	if typ != "" {
		if topic.Type != "" && !strings.EqualFold(topic.Type, typ) {
			p.errorf(num, "topic %q declares type %q and %q", title, typ, topic.Type)
		}
		topic.Type = typ
	}

	for _, contents := range spans[1:] {
		switch {
		case graph.IsTargetID(strings.TrimSpace(contents)):
			if topic.TargetID != "" && !strings.EqualFold(topic.TargetID, strings.TrimSpace(contents)) {
				p.errorf(num, "topic %q has more than one target id", title)
				continue
			}
			topic.TargetID = strings.TrimSpace(contents)
		case isRelationshipSet(contents):
			if r := p.parseRelationship(num, raw, contents); r != nil {
				topic.AddRelationship(r)
			}
		default:
			p.errorf(num, "topic %q has an unexpected bracket [%s]", title, contents)
		}
	}

	parent := p.parent(num, depth)
	if parent == nil {
		return
	}
	if p.attach(num, parent, topic) {
		p.lastTopic = topic
	}
}

func (p *Parser) parseRelationshipLine(num int, raw, trimmed string) {
	if p.lastTopic == nil {
		p.errorf(num, "relationship has no preceding topic")
		return
	}
	for _, span := range varset.FindAll(trimmed, '[', ']', 0) {
		if !span.Closed() {
			p.errorf(num, "missing closing bracket")
			return
		}
		contents := span.Contents(trimmed)
		if !isRelationshipSet(contents) {
			p.errorf(num, "expected a relationship, found [%s]", contents)
			continue
		}
		if r := p.parseRelationship(num, raw, contents); r != nil {
			p.lastTopic.AddRelationship(r)
		}
	}
}

func (p *Parser) parseRelationship(num int, raw, contents string) *graph.Relationship {
	typ, rest, _ := relationshipKeyword(contents)
	var targets []string
	for _, t := range varset.Split(rest, ',') {
		targets = append(targets, varset.Unescape(t))
	}
	if len(targets) == 0 {
		p.errorf(num, "%s relationship has no targets", typ)
		return nil
	}
	return graph.NewRelationship(typ, targets, num, raw)
}

// parseOptions builds a topic reference from the contents of an option set.
// The first entry is the identifier; the rest are key=value options or bare tags.
func (p *Parser) parseOptions(num int, raw, title, contents string) *graph.TopicRef {
	parts := varset.Split(contents, ',')
	var idRaw string
	if len(parts) > 0 {
		idRaw = varset.Unescape(parts[0])
	}
	id := graph.ParseIdentity(idRaw)
	if !id.Valid() {
		p.errorf(num, "invalid topic identifier %q", idRaw)
	}
	topic := graph.NewTopicRef(id, title, num, raw)
	if len(parts) < 2 {
		return topic
	}

	for _, part := range parts[1:] {
		eq := varset.IndexUnescaped(part, '=', 0)
		if eq < 0 {
			addTag(topic, varset.Unescape(part))
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		value := strings.TrimSpace(part[eq+1:])
		p.applyOption(num, topic, key, value)
	}
	return topic
}

func (p *Parser) applyOption(num int, topic *graph.TopicRef, key, value string) {
	switch key {
	case "type":
		topic.Type = varset.Unescape(value)
	case "writer":
		topic.Writer = varset.Unescape(value)
	case "description":
		topic.Description = varset.Unescape(value)
	case "tags", "tag":
		for _, v := range p.listValue(num, value) {
			addTag(topic, v)
		}
	case "remove-tags", "remove-tag":
		for _, v := range p.listValue(num, value) {
			topic.AddRemoveTag(strings.TrimPrefix(v, "-"))
		}
	case "url", "urls", "source-url", "source-urls":
		topic.SourceURLs = append(topic.SourceURLs, p.listValue(num, value)...)
	case "rev", "revision":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			p.errorf(num, "revision %q is not a positive integer", value)
			return
		}
		topic.Revision = &n
	default:
		if topic.UnknownOptions == nil {
			topic.UnknownOptions = make(map[string]string)
		}
		topic.UnknownOptions[key] = value
	}
}

// listValue splits a "[a, b]" or a single "a" option value.
func (p *Parser) listValue(num int, value string) []string {
	if !strings.HasPrefix(value, "[") {
		if value == "" {
			return nil
		}
		return []string{varset.Unescape(value)}
	}
	span, _ := varset.Find(value, '[', ']', 0)
	if !span.Closed() {
		p.errorf(num, "missing closing bracket in %q", value)
		return nil
	}
	var out []string
	for _, v := range varset.Split(span.Contents(value), ',') {
		out = append(out, varset.Unescape(v))
	}
	return out
}

func addTag(topic *graph.TopicRef, tag string) {
	switch {
	case strings.HasPrefix(tag, "-"):
		topic.AddRemoveTag(strings.TrimSpace(tag[1:]))
	case strings.HasPrefix(tag, "+"):
		topic.AddTag(strings.TrimSpace(tag[1:]))
	case tag != "":
		topic.AddTag(tag)
	}
}

// splitTitle separates the leading title text, still escaped, from the bracket
// groups that follow. ok is false when a bracket is never closed.
func splitTitle(s string) (title string, sets []string, ok bool) {
	spans := varset.FindAll(s, '[', ']', 0)
	if len(spans) == 0 {
		return strings.TrimSpace(s), nil, true
	}
	for _, span := range spans {
		if !span.Closed() {
			return "", nil, false
		}
		sets = append(sets, span.Contents(s))
	}
	return strings.TrimSpace(s[:spans[0].Start]), sets, true
}

func isRelationshipSet(contents string) bool {
	_, _, ok := relationshipKeyword(contents)
	return ok
}

// relationshipKeyword returns the relationship type and target list of a
// "<kw>: a, b" bracket body.
func relationshipKeyword(contents string) (graph.RelationshipType, string, bool) {
	colon := varset.IndexUnescaped(contents, ':', 0)
	if colon <= 0 {
		return graph.RelationshipUnknown, "", false
	}
	typ, ok := graph.ParseRelationshipType(contents[:colon])
	if !ok {
		return graph.RelationshipUnknown, "", false
	}
	return typ, contents[colon+1:], true
}
