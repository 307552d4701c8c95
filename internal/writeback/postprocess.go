// Package writeback renders a resolved content spec back to text and stores it.
//
// Rendering works on the mirrored source lines rather than regenerating the
// document, so comments, spacing and ordering survive untouched. Only bracketed
// option sets and relationship targets are spliced.
package writeback

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/cspec/internal/ctxlog"
	"github.com/agentic-research/cspec/internal/graph"
	"github.com/agentic-research/cspec/internal/varset"
)

// Output is the post-processed artifact.
type Output struct {
	// Text is the checksum line followed by Body.
	Text string
	// Body is the processed lines, each terminated by "\n".
	Body     string
	Checksum string
}

// Checksum returns the hex MD5 of body.
func Checksum(body string) string {
	sum := md5.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

// edit replaces line[start:end] with text.
type edit struct {
	start, end int
	text       string
}

type lineIndex struct {
	topics        map[int][]*graph.TopicRef
	relationships map[int][]*graph.Relationship
	rewrite       *roaring.Bitmap
}

func index(spec *graph.ContentSpec) lineIndex {
	idx := lineIndex{
		topics:        make(map[int][]*graph.TopicRef),
		relationships: make(map[int][]*graph.Relationship),
		rewrite:       roaring.New(),
	}
	for line, nodes := range spec.NodesByLine() {
		for _, n := range nodes {
			if t, ok := n.(*graph.TopicRef); ok {
				idx.topics[line] = append(idx.topics[line], t)
				idx.rewrite.Add(uint32(line))
			}
		}
	}
	for _, r := range spec.Relationships() {
		if r.Implicit {
			continue
		}
		idx.relationships[r.Line()] = append(idx.relationships[r.Line()], r)
		idx.rewrite.Add(uint32(r.Line()))
	}
	return idx
}

// Process renders spec with every topic identifier replaced by its database id.
// Every topic must be resolved. A checksum line from the input is dropped and a
// fresh one computed over the processed lines.
func Process(ctx context.Context, spec *graph.ContentSpec) (Output, error) {
	logger := ctxlog.FromContext(ctx)
	idx := index(spec)

	var body strings.Builder
	for i, line := range spec.Lines {
		num := i + 1
		if isChecksumLine(line) {
			continue
		}
		if idx.rewrite.Contains(uint32(num)) {
			rewritten, err := rewriteLine(line, idx.topics[num], idx.relationships[num])
			if err != nil {
				return Output{}, fmt.Errorf("line %d: %w", num, err)
			}
			line = rewritten
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	out := Output{Body: body.String()}
	out.Checksum = Checksum(out.Body)
	out.Text = "CHECKSUM=" + out.Checksum + "\n" + out.Body
	logger.Debug("Content spec post-processed.", "lines", len(spec.Lines), "rewritten", idx.rewrite.GetCardinality(), "checksum", out.Checksum)
	return out, nil
}

// isChecksumLine matches an unindented "CHECKSUM = <hash>" header.
func isChecksumLine(line string) bool {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return false
	}
	key, _, ok := strings.Cut(line, "=")
	return ok && strings.EqualFold(strings.TrimSpace(key), "checksum")
}

func rewriteLine(line string, topics []*graph.TopicRef, rels []*graph.Relationship) (string, error) {
	spans := varset.FindAll(line, '[', ']', 0)
	var edits []edit
	present := make(map[string]bool)
	optionEnd := -1
	var owner *graph.TopicRef

	for _, span := range spans {
		if !span.Closed() {
			return "", fmt.Errorf("unclosed bracket at column %d", span.Start+1)
		}
		contents := span.Contents(line)
		trimmed := strings.TrimSpace(contents)
		switch {
		case graph.IsTargetID(trimmed):
			present[strings.ToUpper(trimmed)] = true
		case isRelationshipSet(contents):
			if len(rels) == 0 {
				continue
			}
			r := rels[0]
			rels = rels[1:]
			if text, changed := rewriteRelationship(contents, r); changed {
				edits = append(edits, edit{start: span.Start + 1, end: span.End, text: text})
			}
		default:
			if owner != nil || len(topics) == 0 {
				continue
			}
			owner = topics[0]
			text, err := rewriteOptions(contents, owner)
			if err != nil {
				return "", err
			}
			if text != contents {
				edits = append(edits, edit{start: span.Start + 1, end: span.End, text: text})
			}
			optionEnd = span.End + 1
		}
	}

	if owner != nil && owner.TargetID != "" && !present[strings.ToUpper(owner.TargetID)] && optionEnd >= 0 {
		edits = append(edits, edit{start: optionEnd, end: optionEnd, text: " [" + owner.TargetID + "]"})
	}
	return splice(line, edits), nil
}

// splice applies edits, which must not overlap and are given in line order.
func splice(line string, edits []edit) string {
	if len(edits) == 0 {
		return line
	}
	var b strings.Builder
	last := 0
	for _, e := range edits {
		b.WriteString(line[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(line[last:])
	return b.String()
}

func isRelationshipSet(contents string) bool {
	colon := varset.IndexUnescaped(contents, ':', 0)
	if colon <= 0 {
		return false
	}
	_, ok := graph.ParseRelationshipType(contents[:colon])
	return ok
}

// rewriteOptions renders the option set of a resolved topic. Existing topics and
// bare N placeholders collapse to the id (keeping a revision pin); numbered
// placeholders only have their identifier token replaced.
func rewriteOptions(contents string, t *graph.TopicRef) (string, error) {
	if !t.Resolved() {
		return "", fmt.Errorf("topic %q (%s) is unresolved", t.Title, t.IdentityTag())
	}
	id := strconv.FormatInt(t.DBID, 10)

	if t.Identity.Kind == graph.IdentityExisting || (t.Identity.Kind == graph.IdentityNew && !t.Identity.HasNumber) {
		if t.Pinned() {
			return id + ", rev=" + strconv.FormatInt(*t.Revision, 10), nil
		}
		return id, nil
	}

	end := varset.IndexUnescaped(contents, ',', 0)
	if end < 0 {
		end = len(contents)
	}
	token := contents[:end]
	lead := len(token) - len(strings.TrimLeft(token, " \t"))
	trail := len(strings.TrimRight(token, " \t"))
	return contents[:lead] + id + contents[trail:], nil
}

// rewriteRelationship substitutes aliased or placeholder targets. Unchanged sets
// are left byte-for-byte intact.
func rewriteRelationship(contents string, r *graph.Relationship) (string, bool) {
	colon := varset.IndexUnescaped(contents, ':', 0)
	keyword, rest := contents[:colon], contents[colon+1:]
	parts := varset.Split(rest, ',')

	changed := false
	for i, target := range r.Targets {
		if i >= len(parts) {
			break
		}
		switch {
		case target.Alias != "":
			parts[i] = target.Alias
			changed = true
		case target.Topic != nil && target.Topic.Identity.Placeholder() && target.Topic.Resolved():
			parts[i] = strconv.FormatInt(target.Topic.DBID, 10)
			changed = true
		}
	}
	if !changed {
		return contents, false
	}
	return keyword + ": " + strings.Join(parts, ", "), true
}
