// Package store is a local entity space backed by SQLite. It implements both
// api.EntityDirectory and api.PersistenceService, so a content spec can be
// validated and pushed without a remote content server.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentic-research/cspec/api"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_name_category ON tags(name COLLATE NOCASE, category COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS topics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	revision INTEGER NOT NULL,
	title TEXT NOT NULL,
	created INTEGER NOT NULL,
	modified INTEGER NOT NULL,
	record JSON NOT NULL
);

CREATE TABLE IF NOT EXISTS topic_revisions (
	topic_id INTEGER NOT NULL,
	revision INTEGER NOT NULL,
	record JSON NOT NULL,
	PRIMARY KEY (topic_id, revision)
) WITHOUT ROWID;
`

// record is the JSON column. Scalar columns duplicate a few fields for queries.
type record struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Body        string         `json:"body"`
	Locale      string         `json:"locale,omitempty"`
	TagIDs      []int64        `json:"tag_ids,omitempty"`
	SourceURLs  []string       `json:"source_urls,omitempty"`
	Properties  []api.Property `json:"properties,omitempty"`
}

// Store is a SQLite entity space. Every write records a revision snapshot so
// revision-qualified lookups see historical state.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureTag returns the tag with name and category, creating it when missing.
func (s *Store) EnsureTag(ctx context.Context, name, category string) (api.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return api.Tag{}, errors.New("tag name is empty")
	}
	tag := api.Tag{Name: name, Category: category}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, category FROM tags WHERE name = ? COLLATE NOCASE AND category = ? COLLATE NOCASE`,
		name, category).Scan(&tag.ID, &tag.Name, &tag.Category)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return api.Tag{}, fmt.Errorf("lookup tag %q: %w", name, err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO tags (name, category) VALUES (?, ?)`, name, category)
	if err != nil {
		return api.Tag{}, fmt.Errorf("insert tag %q: %w", name, err)
	}
	if tag.ID, err = res.LastInsertId(); err != nil {
		return api.Tag{}, err
	}
	return tag, nil
}

// GetTagsByName returns every tag called name, across categories.
func (s *Store) GetTagsByName(ctx context.Context, name string) ([]api.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category FROM tags WHERE name = ? COLLATE NOCASE ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("query tags %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []api.Tag
	for rows.Next() {
		var t api.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Category); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTypeTag returns the topic type tag called name.
func (s *Store) GetTypeTag(ctx context.Context, name string) (*api.Tag, error) {
	var t api.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, category FROM tags WHERE name = ? COLLATE NOCASE AND category = ? COLLATE NOCASE`,
		name, api.CategoryType).Scan(&t.ID, &t.Name, &t.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("type %q: %w", name, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query type %q: %w", name, err)
	}
	return &t, nil
}

// GetTopic returns the latest revision of topic id, or the given revision.
func (s *Store) GetTopic(ctx context.Context, id int64, revision *int64) (*api.Topic, error) {
	var (
		rev              int64
		created, modTime int64
		raw              []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT revision, created, modified, record FROM topics WHERE id = ?`, id).
		Scan(&rev, &created, &modTime, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("topic %d: %w", id, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query topic %d: %w", id, err)
	}

	if revision != nil && *revision != rev {
		err := s.db.QueryRowContext(ctx,
			`SELECT record FROM topic_revisions WHERE topic_id = ? AND revision = ?`, id, *revision).
			Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("topic %d revision %d: %w", id, *revision, api.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("query topic %d revision %d: %w", id, *revision, err)
		}
		rev = *revision
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode topic %d: %w", id, err)
	}
	t := &api.Topic{
		ID:           id,
		Revision:     rev,
		Title:        rec.Title,
		Description:  rec.Description,
		Body:         rec.Body,
		Locale:       rec.Locale,
		SourceURLs:   rec.SourceURLs,
		Properties:   rec.Properties,
		Created:      time.Unix(0, created).UTC(),
		LastModified: time.Unix(0, modTime).UTC(),
	}
	if t.Tags, err = s.tagsByID(ctx, rec.TagIDs); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) tagsByID(ctx context.Context, ids []int64) ([]api.Tag, error) {
	out := make([]api.Tag, 0, len(ids))
	for _, id := range ids {
		t := api.Tag{ID: id}
		err := s.db.QueryRowContext(ctx, `SELECT name, category FROM tags WHERE id = ?`, id).
			Scan(&t.Name, &t.Category)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tag %d: %w", id, api.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("query tag %d: %w", id, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func encode(t *api.Topic) ([]byte, error) {
	rec := record{
		Title:       t.Title,
		Description: t.Description,
		Body:        t.Body,
		Locale:      t.Locale,
		SourceURLs:  t.SourceURLs,
		Properties:  t.Properties,
	}
	for _, tag := range t.Tags {
		rec.TagIDs = append(rec.TagIDs, tag.ID)
	}
	return json.Marshal(rec)
}

// CreateTopic inserts t as revision 1 and returns the stored topic.
func (s *Store) CreateTopic(ctx context.Context, t *api.Topic) (*api.Topic, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, errors.New("topic has no title")
	}
	raw, err := encode(t)
	if err != nil {
		return nil, err
	}
	now := s.now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO topics (revision, title, created, modified, record) VALUES (1, ?, ?, ?, ?)`,
		t.Title, now, now, raw)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert topic %q: %w", t.Title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO topic_revisions (topic_id, revision, record) VALUES (?, 1, ?)`, id, raw); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert revision for topic %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTopic(ctx, id, nil)
}

// UpdateTopic replaces the decoration and content of an existing topic and
// bumps its revision.
func (s *Store) UpdateTopic(ctx context.Context, t *api.Topic) (*api.Topic, error) {
	raw, err := encode(t)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	var rev int64
	err = tx.QueryRowContext(ctx, `SELECT revision FROM topics WHERE id = ?`, t.ID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, fmt.Errorf("topic %d: %w", t.ID, api.ErrNotFound)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	rev++
	if _, err := tx.ExecContext(ctx,
		`UPDATE topics SET revision = ?, title = ?, modified = ?, record = ? WHERE id = ?`,
		rev, t.Title, s.now().UnixNano(), raw, t.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("update topic %d: %w", t.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO topic_revisions (topic_id, revision, record) VALUES (?, ?, ?)`, t.ID, rev, raw); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert revision for topic %d: %w", t.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTopic(ctx, t.ID, nil)
}

// DeleteTopic removes a topic and its history.
func (s *Store) DeleteTopic(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete topic %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("topic %d: %w", id, api.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM topic_revisions WHERE topic_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete revisions of topic %d: %w", id, err)
	}
	return tx.Commit()
}

// CountTopics returns the number of stored topics.
func (s *Store) CountTopics(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&n)
	return n, err
}
