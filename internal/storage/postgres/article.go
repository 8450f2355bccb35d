package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"tag_trends/internal/domain"
)

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// InsertIfAbsent stores the article unless its URL is already present. A
// duplicate URL is not an error; it reports false.
func (s *ArticleStore) InsertIfAbsent(ctx context.Context, article *domain.Article) (bool, error) {
	query := `
		INSERT INTO articles (slug, title, url, likes, published_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO NOTHING`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		article.Slug,
		article.Title,
		article.URL,
		article.Likes,
		article.PublishedAt,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *ArticleStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM articles WHERE published_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// WindowMetrics counts the stored articles of slug published at or after
// since, and sums their likes.
func (s *ArticleStore) WindowMetrics(ctx context.Context, slug string, since time.Time) (domain.WindowMetrics, error) {
	query := `
		SELECT COUNT(*) AS articles, COALESCE(SUM(likes), 0) AS likes_sum
		FROM articles
		WHERE slug = $1 AND published_at >= $2`

	var row struct {
		Articles int   `db:"articles"`
		LikesSum int64 `db:"likes_sum"`
	}
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, slug, since); err != nil {
		return domain.WindowMetrics{}, err
	}
	return domain.WindowMetrics{Articles: row.Articles, LikesSum: row.LikesSum}, nil
}

// TopByTag returns the most liked articles of slug published at or after
// since, newest first among equal likes.
func (s *ArticleStore) TopByTag(ctx context.Context, slug string, since time.Time, limit int) ([]domain.Article, error) {
	query := `
		SELECT id, slug, title, url, likes, published_at
		FROM articles
		WHERE slug = $1 AND published_at >= $2
		ORDER BY likes DESC, published_at DESC
		LIMIT $3`

	articles := make([]domain.Article, 0, limit)
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &articles, query, slug, since, limit)
	return articles, err
}
