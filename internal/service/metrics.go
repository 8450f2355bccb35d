package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tag_trends/internal/domain"
)

// Scorer turns the raw aggregates of one window into a ranking score.
type Scorer func(domain.WindowMetrics) float64

// LikeSumScore scores a window by its like-sum, with no recency weighting.
func LikeSumScore(m domain.WindowMetrics) float64 {
	return float64(m.LikesSum)
}

// Recomputer rebuilds metric snapshots from the stored articles.
type Recomputer struct {
	articles ArticleStore
	tags     TagStore
	metrics  MetricStore
	score    Scorer
	logger   *slog.Logger
}

func NewRecomputer(articles ArticleStore, tags TagStore, metrics MetricStore, score Scorer, logger *slog.Logger) *Recomputer {
	if score == nil {
		score = LikeSumScore
	}
	return &Recomputer{
		articles: articles,
		tags:     tags,
		metrics:  metrics,
		score:    score,
		logger:   logger.With("component", "recomputer"),
	}
}

// Recompute replaces today's snapshot of every window for each slug. An empty
// slug set means every known tag. When names is non-nil each tag's display
// name is re-synced first. The snapshot date is now's calendar date in now's
// location.
func (r *Recomputer) Recompute(ctx context.Context, slugs []string, names map[string]string, now time.Time) ([]domain.Metric, error) {
	if len(slugs) == 0 {
		all, err := r.tags.ListSlugs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		slugs = all
	}

	date := domain.DateOf(now, now.Location())
	updated := make([]domain.Metric, 0, len(slugs)*len(domain.Windows))

	for _, slug := range slugs {
		if names != nil {
			if err := r.tags.Upsert(ctx, domain.Tag{Slug: slug, Name: displayName(names, slug)}); err != nil {
				return nil, fmt.Errorf("sync tag name %s: %w", slug, err)
			}
		}

		for _, days := range domain.Windows {
			wm, err := r.articles.WindowMetrics(ctx, slug, domain.DaysBefore(now, days))
			if err != nil {
				return nil, fmt.Errorf("compute window metrics %s/%d: %w", slug, days, err)
			}

			m := domain.Metric{
				Date:     date,
				Days:     days,
				Slug:     slug,
				Articles: wm.Articles,
				LikesSum: wm.LikesSum,
				Score:    r.score(wm),
			}
			if err := r.metrics.Replace(ctx, m); err != nil {
				return nil, fmt.Errorf("replace snapshot %s/%d: %w", slug, days, err)
			}
			updated = append(updated, m)
		}
		r.logger.Debug("metrics updated", "slug", slug, "windows", domain.Windows)
	}

	r.logger.Info("metrics recomputed", "tags", len(slugs), "snapshots", len(updated), "date", date.Format(domain.DateLayout))
	return updated, nil
}

// displayName returns the mapped name of slug, or slug itself.
func displayName(names map[string]string, slug string) string {
	if name := names[slug]; name != "" {
		return name
	}
	return slug
}
