package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"iter"
	"time"

	"tag_trends/internal/domain"
)

type ArticleStore interface {
	InsertIfAbsent(ctx context.Context, article *domain.Article) (bool, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	WindowMetrics(ctx context.Context, slug string, since time.Time) (domain.WindowMetrics, error)
	TopByTag(ctx context.Context, slug string, since time.Time, limit int) ([]domain.Article, error)
}

type TagStore interface {
	Upsert(ctx context.Context, tag domain.Tag) error
	// Ensure creates the tag named after its slug and leaves an existing row alone.
	Ensure(ctx context.Context, slug string) error
	ListSlugs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, slug string) (*domain.Tag, error)
}

type MetricStore interface {
	Replace(ctx context.Context, m domain.Metric) error
	PruneBefore(ctx context.Context, date time.Time) (int64, error)
	LatestDate(ctx context.Context, days int) (time.Time, error)
	ListByDate(ctx context.Context, days int, date time.Time, limit int) ([]domain.RankedMetric, error)
	LatestForTag(ctx context.Context, slug string, days int) (*domain.Metric, error)
}

type RunStateStore interface {
	Get(ctx context.Context, name string) (*domain.RunState, error)
	Update(ctx context.Context, state *domain.RunState) error
}

type Walker interface {
	Walk(ctx context.Context, params domain.WalkParams) iter.Seq2[domain.FeedPage, error]
}

// NameSource maps tag slugs to display names.
type NameSource interface {
	Names(ctx context.Context) (map[string]string, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// PassLock serializes passes across processes sharing one database.
// TryAcquire reports false when another holder has it.
type PassLock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

type Publisher interface {
	Publish(ctx context.Context, stats *domain.PassStats) error
	Close() error
}

// RankingCache stores rendered read results. Get reports false on a miss.
type RankingCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}
