//go:build integration

package postgres

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"time"

	"tag_trends/internal/domain"
	"tag_trends/internal/service"
)

// staticWalker yields the same pages on every walk.
type staticWalker []domain.FeedPage

func (w staticWalker) Walk(_ context.Context, _ domain.WalkParams) iter.Seq2[domain.FeedPage, error] {
	return func(yield func(domain.FeedPage, error) bool) {
		for _, page := range w {
			if !yield(page, nil) {
				return
			}
		}
	}
}

// blockingWalker parks the first walk until release is closed.
type blockingWalker struct {
	entered chan struct{}
	release chan struct{}
}

func (w blockingWalker) Walk(_ context.Context, _ domain.WalkParams) iter.Seq2[domain.FeedPage, error] {
	return func(yield func(domain.FeedPage, error) bool) {
		close(w.entered)
		<-w.release
	}
}

type storedArticle struct {
	URL   string `db:"url"`
	Slug  string `db:"slug"`
	Likes int    `db:"likes"`
}

type storedMetric struct {
	Days     int     `db:"days"`
	Slug     string  `db:"slug"`
	Articles int     `db:"articles"`
	LikesSum int64   `db:"likes_sum"`
	Score    float64 `db:"score"`
}

var passConfig = service.PassConfig{
	WindowDays:    30,
	MaxPages:      5,
	PageSize:      20,
	RetentionDays: 31,
	Location:      time.UTC,
}

func (s *PostgresIntegrationSuite) newAggregation(walker service.Walker, lock service.PassLock) *service.AggregationService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return service.NewAggregationService(
		walker,
		NewArticleStore(s.db),
		NewTagStore(s.db),
		NewMetricStore(s.db),
		NewRunStateStore(s.db),
		nil,
		NewTransactionManager(s.db),
		lock,
		nil,
		nil,
		logger,
	)
}

func (s *PostgresIntegrationSuite) storedArticles() []storedArticle {
	var rows []storedArticle
	s.Require().NoError(s.db.SelectContext(s.ctx, &rows, "SELECT url, slug, likes FROM articles ORDER BY url"))
	return rows
}

func (s *PostgresIntegrationSuite) storedMetrics() []storedMetric {
	var rows []storedMetric
	s.Require().NoError(s.db.SelectContext(s.ctx, &rows,
		"SELECT days, slug, articles, likes_sum, score FROM metrics ORDER BY days, slug"))
	return rows
}

func (s *PostgresIntegrationSuite) TestAggregation_EndToEnd() {
	now := time.Now().UTC()
	published := now.Add(-2 * time.Hour)

	// Expired rows left over from earlier passes.
	s.seedTags("legacy")
	_, err := NewArticleStore(s.db).InsertIfAbsent(s.ctx, &domain.Article{
		Slug: "legacy", Title: "old", URL: "https://zenn.dev/old", Likes: 99, PublishedAt: now.Add(-40 * 24 * time.Hour),
	})
	s.Require().NoError(err)
	s.Require().NoError(NewMetricStore(s.db).Replace(s.ctx, domain.Metric{
		Date: now.Add(-40 * 24 * time.Hour), Days: 7, Slug: "legacy", Articles: 1, LikesSum: 99, Score: 99,
	}))

	walker := staticWalker{{
		Number: 1,
		Listed: 2,
		Articles: []domain.ExtractedArticle{
			{URL: "https://zenn.dev/a", Title: "A", Likes: 3, PublishedAt: published, Tags: []string{"go"}},
			{URL: "https://zenn.dev/b", Title: "B", Likes: 4, PublishedAt: published, Tags: []string{"rust", "go"}},
		},
	}}
	aggregation := s.newAggregation(walker, NewAdvisoryLock(s.db, "test.end-to-end"))

	stats, err := aggregation.RunAggregation(s.ctx, passConfig)
	s.Require().NoError(err)
	s.Equal(2, stats.Inserted)
	s.Equal(1, stats.Duplicates)
	s.Equal(int64(1), stats.PrunedArticles)
	s.Equal(int64(1), stats.PrunedSnapshots)

	// Nothing older than the retention boundary survives.
	var expired int
	s.NoError(s.db.GetContext(s.ctx, &expired,
		"SELECT COUNT(*) FROM articles WHERE published_at < $1", domain.DaysBefore(now, 31)))
	s.Zero(expired)

	// Every reported snapshot is stored, and nothing else.
	var metricRows int
	s.NoError(s.db.GetContext(s.ctx, &metricRows, "SELECT COUNT(*) FROM metrics"))
	s.Equal(stats.Snapshots, metricRows)
	s.Equal(2*len(domain.Windows), metricRows)

	articles := s.storedArticles()
	s.Equal([]storedArticle{
		{URL: "https://zenn.dev/a", Slug: "go", Likes: 3},
		{URL: "https://zenn.dev/b", Slug: "rust", Likes: 4},
	}, articles)
	metrics := s.storedMetrics()

	// Running the same feed again changes nothing.
	again, err := aggregation.RunAggregation(s.ctx, passConfig)
	s.Require().NoError(err)
	s.Zero(again.Inserted)
	s.Equal(3, again.Duplicates)
	s.Equal(articles, s.storedArticles())
	s.Equal(metrics, s.storedMetrics())

	rankings := service.NewRankingService(
		NewArticleStore(s.db),
		NewTagStore(s.db),
		NewMetricStore(s.db),
		NewRunStateStore(s.db),
		nil,
		time.UTC,
		slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
	)

	got, err := rankings.Rankings(s.ctx, 1, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("rust", got[0].Slug)
	s.Equal(float64(4), got[0].Score)
	s.Require().Len(got[0].TopArticles, 1)
	s.Equal("B", got[0].TopArticles[0].Title)
	s.Equal("go", got[1].Slug)
	s.Equal(float64(3), got[1].Score)
	s.Require().Len(got[1].TopArticles, 1)
	s.Equal("A", got[1].TopArticles[0].Title)
}

func (s *PostgresIntegrationSuite) TestAggregation_PassesSerializedAcrossServices() {
	walker := blockingWalker{entered: make(chan struct{}), release: make(chan struct{})}
	first := s.newAggregation(walker, NewAdvisoryLock(s.db, "test.serialized"))
	second := s.newAggregation(staticWalker{}, NewAdvisoryLock(s.db, "test.serialized"))

	done := make(chan error, 1)
	go func() {
		_, err := first.RunAggregation(s.ctx, passConfig)
		done <- err
	}()

	<-walker.entered
	_, err := second.RunAggregation(s.ctx, passConfig)
	s.True(errors.Is(err, domain.ErrPassInProgress))

	close(walker.release)
	s.Require().NoError(<-done)

	_, err = second.RunAggregation(s.ctx, passConfig)
	s.NoError(err)
}

func (s *PostgresIntegrationSuite) TestAdvisoryLock_TryAcquire() {
	a := NewAdvisoryLock(s.db, "test.lock")
	b := NewAdvisoryLock(s.db, "test.lock")
	other := NewAdvisoryLock(s.db, "test.other")

	release, acquired, err := a.TryAcquire(s.ctx)
	s.Require().NoError(err)
	s.Require().True(acquired)

	_, acquired, err = b.TryAcquire(s.ctx)
	s.NoError(err)
	s.False(acquired)

	releaseOther, acquired, err := other.TryAcquire(s.ctx)
	s.NoError(err)
	s.True(acquired)
	releaseOther()

	release()

	releaseB, acquired, err := b.TryAcquire(s.ctx)
	s.NoError(err)
	s.True(acquired)
	releaseB()
}
