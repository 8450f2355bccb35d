package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tag_trends/internal/domain"
)

const (
	rankingTopArticles = 5
	detailTopArticles  = 10
)

// RankingService serves reads from the latest stored snapshots. It never
// recomputes metrics.
type RankingService struct {
	articles ArticleStore
	tags     TagStore
	metrics  MetricStore
	runState RunStateStore
	cache    RankingCache
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewRankingService builds a reader. cache may be nil.
func NewRankingService(
	articles ArticleStore,
	tags TagStore,
	metrics MetricStore,
	runState RunStateStore,
	cache RankingCache,
	loc *time.Location,
	logger *slog.Logger,
) *RankingService {
	if loc == nil {
		loc = time.UTC
	}
	return &RankingService{
		articles: articles,
		tags:     tags,
		metrics:  metrics,
		runState: runState,
		cache:    cache,
		loc:      loc,
		logger:   logger.With("component", "ranking"),
		now:      time.Now,
	}
}

// Rankings returns the tags of the latest snapshot for a window, best score
// first, each with its most liked articles of that window. No snapshot yet
// yields an empty list.
func (s *RankingService) Rankings(ctx context.Context, days, limit int) ([]domain.TagSummary, error) {
	date, err := s.metrics.LatestDate(ctx, days)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.TagSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot date: %w", err)
	}

	key, cacheable := s.cacheKey(ctx, days, date, limit)
	if cacheable {
		var cached []domain.TagSummary
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("ranking cache read failed", "key", key, "error", err)
		} else if hit {
			return cached, nil
		}
	}

	rows, err := s.metrics.ListByDate(ctx, days, date, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	since := domain.DaysBefore(s.snapshotStart(date), days)
	summaries := make([]domain.TagSummary, 0, len(rows))
	for _, row := range rows {
		top, err := s.articles.TopByTag(ctx, row.Slug, since, rankingTopArticles)
		if err != nil {
			return nil, fmt.Errorf("top articles %s: %w", row.Slug, err)
		}
		summaries = append(summaries, domain.TagSummary{
			Slug:        row.Slug,
			Name:        row.Name,
			Articles:    row.Articles,
			LikesSum:    row.LikesSum,
			Score:       row.Score,
			TopArticles: s.summarize(top),
		})
	}

	if cacheable {
		if err := s.cache.Set(ctx, key, summaries); err != nil {
			s.logger.Warn("ranking cache write failed", "key", key, "error", err)
		}
	}
	return summaries, nil
}

// cacheKey names a rankings result after the last committed pass as well as
// the snapshot date, since every pass of a day rewrites that day's snapshot.
// It reports false when the result must not be cached.
func (s *RankingService) cacheKey(ctx context.Context, days int, date time.Time, limit int) (string, bool) {
	if s.cache == nil {
		return "", false
	}

	state, err := s.runState.Get(ctx, runStateName)
	if err != nil {
		s.logger.Warn("ranking cache bypassed", "error", err)
		return "", false
	}

	return fmt.Sprintf("rankings:%d:%s:%d:%d",
		days, date.Format(domain.DateLayout), state.LastRunAt.UnixMicro(), limit), true
}

// ToolDetail returns one tag's latest snapshot and its most liked articles.
// An unknown tag yields nil. A tag without a snapshot reports zero metrics
// and no date.
func (s *RankingService) ToolDetail(ctx context.Context, slug string, days int) (*domain.ToolDetail, error) {
	tag, err := s.tags.Get(ctx, slug)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}

	detail := &domain.ToolDetail{Tool: *tag}
	start := s.now().In(s.loc)

	m, err := s.metrics.LatestForTag(ctx, slug, days)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// not recomputed yet
	case err != nil:
		return nil, fmt.Errorf("latest snapshot: %w", err)
	default:
		date := m.Date.Format(domain.DateLayout)
		detail.Metric = domain.MetricSummary{
			Date:     &date,
			Articles: m.Articles,
			LikesSum: m.LikesSum,
			Score:    m.Score,
		}
		start = s.snapshotStart(m.Date)
	}

	top, err := s.articles.TopByTag(ctx, slug, domain.DaysBefore(start, days), detailTopArticles)
	if err != nil {
		return nil, fmt.Errorf("top articles: %w", err)
	}
	detail.TopArticles = s.summarize(top)

	return detail, nil
}

// Stats reports the latest snapshot date of a window, if any.
func (s *RankingService) Stats(ctx context.Context, days int) (*domain.Stats, error) {
	date, err := s.metrics.LatestDate(ctx, days)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Stats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot date: %w", err)
	}
	last := date.Format(domain.DateLayout)
	return &domain.Stats{LastUpdated: &last}, nil
}

// snapshotStart is midnight of a stored snapshot date in the service's
// location. Dates come back from storage without a zone.
func (s *RankingService) snapshotStart(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
}

func (s *RankingService) summarize(articles []domain.Article) []domain.ArticleSummary {
	out := make([]domain.ArticleSummary, 0, len(articles))
	for _, a := range articles {
		out = append(out, domain.ArticleSummary{
			Title:       a.Title,
			URL:         a.URL,
			Likes:       a.Likes,
			PublishedAt: a.PublishedAt.In(s.loc).Format(time.RFC3339),
		})
	}
	return out
}
