package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/cspec/api"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
)

type references struct {
	cfg  Config
	dir  api.EntityDirectory
	log  *diag.Log
	spec *graph.ContentSpec
}

func (r *references) errorf(line int, format string, args ...any) {
	r.log.Errorf(diag.KindReferential, line, format, args...)
}

func (r *references) run(ctx context.Context) {
	if r.dir == nil {
		r.errorf(0, "no entity directory configured")
		return
	}
	for _, t := range r.spec.Topics() {
		if !t.Identity.Valid() {
			continue
		}
		r.checkTopic(ctx, t)
	}
	r.resolveRelationships()
}

func (r *references) checkTopic(ctx context.Context, t *graph.TopicRef) {
	switch t.Identity.Kind {
	case graph.IdentityExisting:
		if _, err := r.dir.GetTopic(ctx, t.Identity.Number, t.Revision); err != nil {
			r.reportTopic(t, t.Identity.Number, t.Revision, err)
		}
	case graph.IdentityCloned:
		if _, err := r.dir.GetTopic(ctx, t.Identity.Number, nil); err != nil {
			r.reportTopic(t, t.Identity.Number, nil, err)
		}
	case graph.IdentityNew, graph.IdentityDuplicate, graph.IdentityDuplicateOfCloned:
	}

	if t.Pinned() {
		if t.HasMutations() {
			r.errorf(t.Line(), "topic %s is pinned to revision %d and cannot change its tags, urls or writer", t.IdentityTag(), *t.Revision)
		}
		if explicitRelationships(t) > 0 {
			r.errorf(t.Line(), "topic %s is pinned to revision %d and cannot declare relationships", t.IdentityTag(), *t.Revision)
		}
	}

	if t.Type != "" {
		if _, err := r.dir.GetTypeTag(ctx, t.Type); err != nil {
			if errors.Is(err, api.ErrNotFound) {
				r.errorf(t.Line(), "topic type %q does not exist", t.Type)
			} else {
				r.errorf(t.Line(), "looking up topic type %q: %v", t.Type, err)
			}
		}
	}
	if t.Writer != "" {
		r.checkTag(ctx, t, t.Writer, api.CategoryWriter, "writer")
	}
	for _, name := range t.Tags {
		r.checkTag(ctx, t, name, "", "tag")
	}
	for _, name := range t.RemoveTags {
		r.checkTag(ctx, t, name, "", "tag")
	}
}

func (r *references) reportTopic(t *graph.TopicRef, id int64, rev *int64, err error) {
	what := fmt.Sprintf("topic %d", id)
	if rev != nil {
		what = fmt.Sprintf("revision %d of topic %d", *rev, id)
	}
	if errors.Is(err, api.ErrNotFound) {
		r.errorf(t.Line(), "%s does not exist", what)
		return
	}
	r.errorf(t.Line(), "looking up %s: %v", what, err)
}

// checkTag requires name to match exactly one remote tag, optionally restricted
// to category.
func (r *references) checkTag(ctx context.Context, t *graph.TopicRef, name, category, what string) {
	tags, err := r.dir.GetTagsByName(ctx, name)
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		r.errorf(t.Line(), "looking up %s %q: %v", what, name, err)
		return
	}
	if category != "" {
		tags = api.FilterCategory(tags, category)
	}
	switch len(tags) {
	case 1:
	case 0:
		r.errorf(t.Line(), "%s %q does not exist", what, name)
	default:
		r.errorf(t.Line(), "%s %q matches %d tags", what, name, len(tags))
	}
}

func explicitRelationships(t *graph.TopicRef) int {
	n := 0
	for _, rel := range t.Relationships {
		if !rel.Implicit {
			n++
		}
	}
	return n
}

// resolveRelationships points every written relationship target at its node.
// Targets naming a placeholder topic are aliased to a target-id, since the
// placeholder token does not survive post-processing.
func (r *references) resolveRelationships() {
	byTag := r.spec.TopicsByTag()
	byTarget := r.spec.NodesByTargetID()

	for _, rel := range r.spec.Relationships() {
		if rel.Implicit {
			continue
		}
		for _, target := range rel.Targets {
			if graph.IsTargetID(target.Raw) {
				nodes := byTarget[strings.ToUpper(target.Raw)]
				if len(nodes) != 1 {
					// missing targets were reported by the structural pass
					continue
				}
				switch n := nodes[0].(type) {
				case *graph.TopicRef:
					target.Topic = n
				case *graph.Level:
					target.Level = n
				}
				continue
			}

			id := graph.ParseIdentity(target.Raw)
			if !id.Valid() {
				continue
			}
			matches := byTag[id.Tag()]
			switch {
			case len(matches) == 0:
				continue
			case len(matches) > 1:
				r.errorf(rel.Line(), "%s relationship target %s matches %d topics; give the intended topic a target id", rel.Type, target.Raw, len(matches))
				continue
			}
			topic := matches[0]
			target.Topic = topic
			// an intro topic shares its level's line, so a target-id there
			// would name the level; it is rewritten to its database id instead
			if topic.Identity.Placeholder() && !isIntro(topic) {
				if topic.TargetID == "" {
					topic.TargetID = fmt.Sprintf("T-%d-%s", topic.Line(), topic.IdentityTag())
				}
				target.Alias = topic.TargetID
			}
		}
	}
}

func isIntro(t *graph.TopicRef) bool {
	p := t.Parent()
	return p != nil && p.LevelKind != graph.LevelBase && p.Line() == t.Line()
}
