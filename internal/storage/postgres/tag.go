package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"tag_trends/internal/domain"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

// Upsert creates the tag or overwrites its display name.
func (s *TagStore) Upsert(ctx context.Context, tag domain.Tag) error {
	query := `
		INSERT INTO tags (slug, name) VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, tag.Slug, tag.Name)
	return err
}

// Ensure creates the tag with its slug as name. An existing row keeps its
// display name.
func (s *TagStore) Ensure(ctx context.Context, slug string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"INSERT INTO tags (slug, name) VALUES ($1, $1) ON CONFLICT (slug) DO NOTHING",
		slug,
	)
	return err
}

func (s *TagStore) ListSlugs(ctx context.Context) ([]string, error) {
	var slugs []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &slugs, "SELECT slug FROM tags ORDER BY slug")
	return slugs, err
}

func (s *TagStore) Get(ctx context.Context, slug string) (*domain.Tag, error) {
	var tag domain.Tag
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &tag, "SELECT slug, name FROM tags WHERE slug = $1", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}
