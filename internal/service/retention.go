package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tag_trends/internal/domain"
)

// Pruner removes articles and snapshots older than the retention window.
type Pruner struct {
	articles ArticleStore
	metrics  MetricStore
	logger   *slog.Logger
}

func NewPruner(articles ArticleStore, metrics MetricStore, logger *slog.Logger) *Pruner {
	return &Pruner{
		articles: articles,
		metrics:  metrics,
		logger:   logger.With("component", "pruner"),
	}
}

// Prune deletes articles published before now minus retentionDays and
// snapshots dated before that boundary's calendar date in now's location.
func (p *Pruner) Prune(ctx context.Context, now time.Time, retentionDays int) (articles, snapshots int64, err error) {
	boundary := domain.DaysBefore(now, retentionDays)

	articles, err = p.articles.PruneBefore(ctx, boundary)
	if err != nil {
		return 0, 0, fmt.Errorf("prune articles: %w", err)
	}

	snapshots, err = p.metrics.PruneBefore(ctx, domain.DateOf(boundary, now.Location()))
	if err != nil {
		return articles, 0, fmt.Errorf("prune snapshots: %w", err)
	}

	p.logger.Info("pruned expired rows",
		"boundary", boundary,
		"articles", articles,
		"snapshots", snapshots,
	)
	return articles, snapshots, nil
}
