// Package resolve turns placeholder topic references into persisted topics.
//
// Build classifies every reference and stages the entities that need a write
// into a Pool. After the pool commits, Apply copies the database ids back onto
// the tree and synchronises duplicates with their family.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/cspec/api"
	"github.com/agentic-research/cspec/internal/ctxlog"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
)

// Resolver builds persistence entities for one pipeline run.
type Resolver struct {
	dir api.EntityDirectory
	log *diag.Log
}

// New returns a resolver reading remote state through dir.
func New(dir api.EntityDirectory, log *diag.Log) *Resolver {
	return &Resolver{dir: dir, log: log}
}

func (r *Resolver) errorf(line int, format string, args ...any) {
	r.log.Errorf(diag.KindResolution, line, format, args...)
}

// Build stages every new, cloned and decoration-changed topic into a new pool
// committing to svc. Any build failure is logged and reported as
// diag.ErrResolution before anything is staged for commit.
func (r *Resolver) Build(ctx context.Context, spec *graph.ContentSpec, svc api.PersistenceService) (*Pool, error) {
	logger := ctxlog.FromContext(ctx)
	before := r.log.Count(diag.SeverityError)
	pool := NewPool(svc)
	deltas := make(map[int64]*delta)

	for _, t := range spec.Topics() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.build(ctx, t, pool, deltas); err != nil {
			r.errorf(t.Line(), "%v", err)
		}
	}

	if n := r.log.Count(diag.SeverityError) - before; n > 0 {
		return nil, fmt.Errorf("%w: %d topic(s) could not be built", diag.ErrResolution, n)
	}
	logger.Debug("Topics staged.", "entries", pool.Len())
	return pool, nil
}

func (r *Resolver) build(ctx context.Context, t *graph.TopicRef, pool *Pool, deltas map[int64]*delta) error {
	switch t.Identity.Kind {
	case graph.IdentityNew:
		topic, err := r.newTopic(ctx, t)
		if err != nil {
			return err
		}
		return pool.StageCreate(t, topic)
	case graph.IdentityCloned:
		topic, err := r.clonedTopic(ctx, t)
		if err != nil {
			return err
		}
		return pool.StageCreate(t, topic)
	case graph.IdentityExisting:
		if t.Pinned() || !t.HasMutations() {
			return nil
		}
		id := t.Identity.Number
		d, ok := deltas[id]
		if !ok {
			d = &delta{add: make(map[string]bool), remove: make(map[string]bool)}
			deltas[id] = d
		}
		if err := d.merge(t); err != nil {
			return err
		}
		// later references to the same topic decorate the staged record
		if e, ok := pool.StagedUpdate(id); ok {
			_, err := r.decorate(ctx, t, e.Topic)
			return err
		}
		current, err := r.dir.GetTopic(ctx, t.Identity.Number, nil)
		if err != nil {
			return fmt.Errorf("fetch topic %d: %w", t.Identity.Number, err)
		}
		updated := current.Clone()
		changed, err := r.decorate(ctx, t, updated)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return pool.StageUpdate(t, updated, current)
	case graph.IdentityDuplicate, graph.IdentityDuplicateOfCloned:
		return nil
	default:
		return fmt.Errorf("invalid topic identifier %q", t.Identity.Raw)
	}
}

// delta accumulates what every reference to one existing topic asks for.
// References may add to each other but never contradict.
type delta struct {
	writer string
	add    map[string]bool
	remove map[string]bool
}

func (d *delta) merge(t *graph.TopicRef) error {
	id := t.Identity.Number
	if t.Writer != "" {
		if d.writer != "" && !strings.EqualFold(d.writer, t.Writer) {
			return fmt.Errorf("topic %d is assigned writer %q and %q", id, d.writer, t.Writer)
		}
		d.writer = t.Writer
	}
	for _, name := range t.Tags {
		key := strings.ToLower(name)
		if d.remove[key] {
			return fmt.Errorf("topic %d both adds and removes tag %q", id, name)
		}
		d.add[key] = true
	}
	for _, name := range t.RemoveTags {
		key := strings.ToLower(name)
		if d.add[key] {
			return fmt.Errorf("topic %d both adds and removes tag %q", id, name)
		}
		d.remove[key] = true
	}
	return nil
}

func (r *Resolver) newTopic(ctx context.Context, t *graph.TopicRef) (*api.Topic, error) {
	topic := &api.Topic{
		Title:       t.Title,
		Description: t.Description,
		Body:        "",
	}
	typ, err := r.typeTag(ctx, t.Type)
	if err != nil {
		return nil, err
	}
	topic.Tags = append(topic.Tags, *typ)
	if _, err := r.decorate(ctx, t, topic); err != nil {
		return nil, err
	}
	topic.SetProperty(api.PropertyLine, strconv.Itoa(t.Line()))
	return topic, nil
}

func (r *Resolver) clonedTopic(ctx context.Context, t *graph.TopicRef) (*api.Topic, error) {
	src, err := r.dir.GetTopic(ctx, t.Identity.Number, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch clone source %d: %w", t.Identity.Number, err)
	}
	topic := src.Clone()
	topic.ID, topic.Revision = 0, 0
	topic.Created, topic.LastModified = time.Time{}, time.Time{}
	if t.Title != "" {
		topic.Title = t.Title
	}
	if t.Description != "" {
		topic.Description = t.Description
	}
	if t.Type != "" {
		typ, err := r.typeTag(ctx, t.Type)
		if err != nil {
			return nil, err
		}
		for _, old := range topic.TagsInCategory(api.CategoryType) {
			topic.RemoveTag(old.ID)
		}
		topic.Tags = append(topic.Tags, *typ)
	}
	if _, err := r.decorate(ctx, t, topic); err != nil {
		return nil, err
	}
	topic.SetProperty(api.PropertyLine, strconv.Itoa(t.Line()))
	return topic, nil
}

// decorate applies the reference's writer, tags, removed tags and source urls
// to topic. It reports whether anything changed.
func (r *Resolver) decorate(ctx context.Context, t *graph.TopicRef, topic *api.Topic) (bool, error) {
	changed := false
	if t.Writer != "" {
		writer, err := r.uniqueTag(ctx, t.Writer, api.CategoryWriter, "writer")
		if err != nil {
			return false, err
		}
		prior := topic.TagsInCategory(api.CategoryWriter)
		if len(prior) != 1 || prior[0].ID != writer.ID {
			for _, old := range prior {
				topic.RemoveTag(old.ID)
			}
			topic.Tags = append(topic.Tags, writer)
			changed = true
		}
	}
	for _, name := range t.Tags {
		tag, err := r.uniqueTag(ctx, name, "", "tag")
		if err != nil {
			return false, err
		}
		if !topic.HasTag(tag.ID) {
			topic.Tags = append(topic.Tags, tag)
			changed = true
		}
	}
	for _, name := range t.RemoveTags {
		tag, err := r.uniqueTag(ctx, name, "", "tag")
		if err != nil {
			return false, err
		}
		if topic.RemoveTag(tag.ID) {
			changed = true
		}
	}
	for _, url := range t.SourceURLs {
		if !slices.Contains(topic.SourceURLs, url) {
			topic.SourceURLs = append(topic.SourceURLs, url)
			changed = true
		}
	}
	return changed, nil
}

func (r *Resolver) typeTag(ctx context.Context, name string) (*api.Tag, error) {
	if name == "" {
		return nil, errors.New("topic has no type")
	}
	tag, err := r.dir.GetTypeTag(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("type %q: %w", name, err)
	}
	return tag, nil
}

// uniqueTag resolves name to exactly one remote tag, optionally restricted to
// category. Remote state is re-read since it may have changed after validation.
func (r *Resolver) uniqueTag(ctx context.Context, name, category, what string) (api.Tag, error) {
	tags, err := r.dir.GetTagsByName(ctx, name)
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		return api.Tag{}, fmt.Errorf("%s %q: %w", what, name, err)
	}
	if category != "" {
		tags = api.FilterCategory(tags, category)
	}
	switch len(tags) {
	case 1:
		return tags[0], nil
	case 0:
		return api.Tag{}, fmt.Errorf("%s %q does not exist", what, name)
	default:
		return api.Tag{}, fmt.Errorf("%s %q matches %d tags", what, name, len(tags))
	}
}

// Apply copies database ids onto the tree once pool has committed: staged
// references take the committed id, existing references their own id, and
// duplicates the id of their family.
func (r *Resolver) Apply(spec *graph.ContentSpec, pool *Pool) error {
	if pool.State() != StateCommitted {
		return fmt.Errorf("%w: cannot apply ids in state %s", ErrPoolState, pool.State())
	}
	for _, e := range pool.Entries() {
		e.Ref.DBID = e.Result.ID
	}
	for _, t := range spec.Topics() {
		if t.Identity.Kind == graph.IdentityExisting {
			t.DBID = t.Identity.Number
		}
	}
	if n := SyncDuplicates(spec); n > 0 {
		for _, t := range spec.Topics() {
			if isDuplicate(t) && !t.Resolved() {
				r.errorf(t.Line(), "duplicate %s has no resolved %s topic", t.IdentityTag(), t.Identity.FamilyTag())
			}
		}
		return fmt.Errorf("%w: %d duplicate(s) left unresolved", diag.ErrResolution, n)
	}
	return nil
}

func isDuplicate(t *graph.TopicRef) bool {
	k := t.Identity.Kind
	return k == graph.IdentityDuplicate || k == graph.IdentityDuplicateOfCloned
}

// SyncDuplicates copies the database id of every N<k> and C<k> topic onto the
// X<k> and XC<k> topics that duplicate it. It returns the number of duplicates
// whose family has no id.
func SyncDuplicates(spec *graph.ContentSpec) int {
	family := make(map[string]int64)
	for _, t := range spec.Topics() {
		if isDuplicate(t) || !t.Resolved() {
			continue
		}
		family[t.IdentityTag()] = t.DBID
	}
	missing := 0
	for _, t := range spec.Topics() {
		if !isDuplicate(t) {
			continue
		}
		id, ok := family[t.Identity.FamilyTag()]
		if !ok {
			missing++
			continue
		}
		t.DBID = id
	}
	return missing
}
