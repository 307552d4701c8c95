package store

import (
	"context"
	"fmt"
	"io"

	"github.com/agentic-research/cspec/api"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// SeedStats reports what LoadSeed imported.
type SeedStats struct {
	Tags   int
	Topics int
}

var (
	seedTags   = jp.MustParseString("$.tags[*]")
	seedTopics = jp.MustParseString("$.topics[*]")
)

// LoadSeed imports a JSON seed document into the store:
//
//	{
//	  "tags":   [{"name": "Task", "category": "Type"}, {"name": "jdoe", "category": "Writer"}],
//	  "topics": [{"title": "Foo", "type": "Task", "writer": "jdoe", "tags": ["a"],
//	              "description": "...", "body": "...", "source_urls": ["..."]}]
//	}
//
// Tags referenced by topics are created on demand. Topic ids are assigned by the store.
func (s *Store) LoadSeed(ctx context.Context, r io.Reader) (SeedStats, error) {
	var stats SeedStats
	raw, err := io.ReadAll(r)
	if err != nil {
		return stats, fmt.Errorf("read seed: %w", err)
	}
	doc, err := oj.Parse(raw)
	if err != nil {
		return stats, fmt.Errorf("parse seed: %w", err)
	}

	for i, v := range seedTags.Get(doc) {
		m, ok := v.(map[string]any)
		if !ok {
			return stats, fmt.Errorf("tags[%d]: expected an object", i)
		}
		name := stringField(m, "name")
		if name == "" {
			return stats, fmt.Errorf("tags[%d]: missing name", i)
		}
		if _, err := s.EnsureTag(ctx, name, stringField(m, "category")); err != nil {
			return stats, fmt.Errorf("tags[%d]: %w", i, err)
		}
		stats.Tags++
	}

	for i, v := range seedTopics.Get(doc) {
		m, ok := v.(map[string]any)
		if !ok {
			return stats, fmt.Errorf("topics[%d]: expected an object", i)
		}
		t, err := s.seedTopic(ctx, m)
		if err != nil {
			return stats, fmt.Errorf("topics[%d]: %w", i, err)
		}
		if _, err := s.CreateTopic(ctx, t); err != nil {
			return stats, fmt.Errorf("topics[%d]: %w", i, err)
		}
		stats.Topics++
	}
	return stats, nil
}

func (s *Store) seedTopic(ctx context.Context, m map[string]any) (*api.Topic, error) {
	t := &api.Topic{
		Title:       stringField(m, "title"),
		Description: stringField(m, "description"),
		Body:        stringField(m, "body"),
		Locale:      stringField(m, "locale"),
		SourceURLs:  stringList(m, "source_urls"),
	}
	add := func(name, category string) error {
		if name == "" {
			return nil
		}
		tag, err := s.EnsureTag(ctx, name, category)
		if err != nil {
			return err
		}
		t.Tags = append(t.Tags, tag)
		return nil
	}
	if err := add(stringField(m, "type"), api.CategoryType); err != nil {
		return nil, err
	}
	if err := add(stringField(m, "writer"), api.CategoryWriter); err != nil {
		return nil, err
	}
	for _, name := range stringList(m, "tags") {
		if err := add(name, ""); err != nil {
			return nil, err
		}
	}
	if props, ok := m["properties"].(map[string]any); ok {
		for k, v := range props {
			t.SetProperty(k, fmt.Sprint(v))
		}
	}
	return t, nil
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stringList(m map[string]any, key string) []string {
	list, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
