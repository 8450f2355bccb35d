package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"tag_trends/internal/domain"
)

type MetricStore struct {
	db *sqlx.DB
}

func NewMetricStore(db *sqlx.DB) *MetricStore {
	return &MetricStore{db: db}
}

// Replace writes the snapshot for (date, days, slug), overwriting any
// previous one in a single statement.
func (s *MetricStore) Replace(ctx context.Context, m domain.Metric) error {
	query := `
		INSERT INTO metrics (snapshot_date, days, slug, articles, likes_sum, score)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (snapshot_date, days, slug) DO UPDATE SET
			articles = EXCLUDED.articles,
			likes_sum = EXCLUDED.likes_sum,
			score = EXCLUDED.score`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		m.Date.Format(domain.DateLayout),
		m.Days,
		m.Slug,
		m.Articles,
		m.LikesSum,
		m.Score,
	)
	return err
}

// PruneBefore deletes snapshots dated strictly before date.
func (s *MetricStore) PruneBefore(ctx context.Context, date time.Time) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM metrics WHERE snapshot_date < $1",
		date.Format(domain.DateLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LatestDate returns the most recent snapshot date for a window.
func (s *MetricStore) LatestDate(ctx context.Context, days int) (time.Time, error) {
	var date time.Time
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &date,
		"SELECT snapshot_date FROM metrics WHERE days = $1 ORDER BY snapshot_date DESC LIMIT 1",
		days,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, domain.ErrNotFound
	}
	return date, err
}

// ListByDate returns the snapshots of one window and date, best score first.
func (s *MetricStore) ListByDate(ctx context.Context, days int, date time.Time, limit int) ([]domain.RankedMetric, error) {
	query := `
		SELECT m.snapshot_date, m.days, m.slug, t.name, m.articles, m.likes_sum, m.score
		FROM metrics m
		JOIN tags t ON t.slug = m.slug
		WHERE m.days = $1 AND m.snapshot_date = $2
		ORDER BY m.score DESC, m.slug
		LIMIT $3`

	rows := make([]domain.RankedMetric, 0)
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, days, date.Format(domain.DateLayout), limit)
	return rows, err
}

// LatestForTag returns the newest snapshot of slug for a window.
func (s *MetricStore) LatestForTag(ctx context.Context, slug string, days int) (*domain.Metric, error) {
	query := `
		SELECT snapshot_date, days, slug, articles, likes_sum, score
		FROM metrics
		WHERE slug = $1 AND days = $2
		ORDER BY snapshot_date DESC
		LIMIT 1`

	var m domain.Metric
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &m, query, slug, days)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
