package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tag_trends/internal/domain"
)

const runStateName = "aggregation"

// PassConfig holds the settings of one aggregation pass.
type PassConfig struct {
	// WindowDays is the window the caller is interested in. Every fixed
	// window is recomputed regardless.
	WindowDays    int
	MaxPages      int
	PageSize      int
	RetentionDays int
	Location      *time.Location
}

func (c PassConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c PassConfig) retentionDays() int {
	if c.RetentionDays <= 0 {
		return domain.RetentionDays
	}
	return c.RetentionDays
}

// AggregationService runs aggregation passes: walk the feed, persist what it
// yields, prune expired rows and recompute metric snapshots.
type AggregationService struct {
	walker     Walker
	articles   ArticleStore
	tags       TagStore
	runState   RunStateStore
	names      NameSource
	txManager  TransactionManager
	lock       PassLock
	publisher  Publisher
	pruner     *Pruner
	recomputer *Recomputer
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	state atomic.Int32
}

// NewAggregationService wires the orchestrator. names, lock and publisher may
// be nil. Without a lock, passes are only serialized within this process.
func NewAggregationService(
	walker Walker,
	articles ArticleStore,
	tags TagStore,
	metrics MetricStore,
	runState RunStateStore,
	names NameSource,
	txManager TransactionManager,
	lock PassLock,
	publisher Publisher,
	scorer Scorer,
	logger *slog.Logger,
) *AggregationService {
	return &AggregationService{
		walker:     walker,
		articles:   articles,
		tags:       tags,
		runState:   runState,
		names:      names,
		txManager:  txManager,
		lock:       lock,
		publisher:  publisher,
		pruner:     NewPruner(articles, metrics, logger),
		recomputer: NewRecomputer(articles, tags, metrics, scorer, logger),
		logger:     logger.With("component", "aggregation"),
		now:        time.Now,
	}
}

// State returns where the current pass is, or idle.
func (s *AggregationService) State() domain.PassState {
	return domain.PassState(s.state.Load())
}

func (s *AggregationService) setState(state domain.PassState) {
	s.state.Store(int32(state))
	if state != domain.StateIdle {
		s.logger.Debug("pass state", "state", state)
	}
}

// RunAggregation runs a single pass. A pass already running, here or in any
// process holding the pass lock, makes it return ErrPassInProgress. When the
// first feed page cannot be fetched, pruning and recomputation still run and
// the returned error wraps ErrFeedUnreachable.
func (s *AggregationService) RunAggregation(ctx context.Context, cfg PassConfig) (*domain.PassStats, error) {
	if !s.mu.TryLock() {
		return nil, domain.ErrPassInProgress
	}
	defer s.mu.Unlock()

	if s.lock != nil {
		release, acquired, err := s.lock.TryAcquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire pass lock: %w", err)
		}
		if !acquired {
			return nil, domain.ErrPassInProgress
		}
		defer release()
	}
	defer s.setState(domain.StateIdle)

	startTime := time.Now()
	loc := cfg.location()
	now := s.now().In(loc)
	retention := cfg.retentionDays()

	s.logger.Info("starting aggregation pass",
		"window_days", cfg.WindowDays,
		"max_pages", cfg.MaxPages,
		"retention_days", retention,
	)

	stats := &domain.PassStats{Date: domain.DateOf(now, loc).Format(domain.DateLayout)}

	s.setState(domain.StateWalking)
	articles, walkErr := s.walk(ctx, cfg, domain.DaysBefore(now, retention), stats)
	if walkErr != nil {
		s.logger.Error("feed unreachable", "error", walkErr)
	}

	names := s.loadNames(ctx)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		s.setState(domain.StatePersisting)
		touched, err := s.persist(txCtx, articles, names, stats)
		if err != nil {
			return fmt.Errorf("persist articles: %w", err)
		}
		stats.Tags = len(touched)

		s.setState(domain.StatePruning)
		stats.PrunedArticles, stats.PrunedSnapshots, err = s.pruner.Prune(txCtx, now, retention)
		if err != nil {
			return err
		}

		s.setState(domain.StateRecomputing)
		updated, err := s.recomputer.Recompute(txCtx, touched, names, now)
		if err != nil {
			return fmt.Errorf("recompute metrics: %w", err)
		}
		stats.Snapshots = len(updated)
		if stats.Tags == 0 {
			stats.Tags = len(updated) / len(domain.Windows)
		}

		// Committed with the snapshots: readers key cached rankings on it.
		if err := s.updateRunState(txCtx, now, stats); err != nil {
			return fmt.Errorf("update run state: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, stats); err != nil {
			s.logger.Warn("failed to publish pass event", "error", err)
		}
	}

	s.logger.Info("aggregation pass completed",
		"date", stats.Date,
		"pages", stats.Pages,
		"accepted", stats.Accepted,
		"inserted", stats.Inserted,
		"duplicates", stats.Duplicates,
		"tags", stats.Tags,
		"pruned_articles", stats.PrunedArticles,
		"pruned_snapshots", stats.PrunedSnapshots,
		"snapshots", stats.Snapshots,
		"duration", stats.Duration,
	)

	return stats, walkErr
}

// walk drains the feed. Only a failure on the first page is returned; later
// failures end the walk with what was gathered so far.
func (s *AggregationService) walk(ctx context.Context, cfg PassConfig, boundary time.Time, stats *domain.PassStats) ([]domain.ExtractedArticle, error) {
	params := domain.WalkParams{
		MaxPages: cfg.MaxPages,
		PageSize: cfg.PageSize,
		Boundary: boundary,
	}

	var articles []domain.ExtractedArticle
	for page, err := range s.walker.Walk(ctx, params) {
		if err != nil {
			if stats.Pages == 0 {
				return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnreachable, err)
			}
			s.logger.Warn("feed walk stopped early", "pages", stats.Pages, "error", err)
			break
		}

		stats.Pages++
		stats.Accepted += len(page.Articles)
		articles = append(articles, page.Articles...)
	}
	return articles, nil
}

// persist stores each article under every one of its tags. Article identity
// is the URL, so the first tag wins and the rest are duplicates. It returns
// the touched tags in first-seen order. With no names loaded, existing
// display names are left as they are.
func (s *AggregationService) persist(ctx context.Context, articles []domain.ExtractedArticle, names map[string]string, stats *domain.PassStats) ([]string, error) {
	var touched []string
	seen := make(map[string]struct{})

	for i := range articles {
		a := &articles[i]
		for _, slug := range a.Tags {
			if err := s.saveTag(ctx, slug, names); err != nil {
				return nil, fmt.Errorf("upsert tag %s: %w", slug, err)
			}

			inserted, err := s.articles.InsertIfAbsent(ctx, &domain.Article{
				Slug:        slug,
				Title:       a.Title,
				URL:         a.URL,
				Likes:       a.Likes,
				PublishedAt: a.PublishedAt,
			})
			if err != nil {
				return nil, fmt.Errorf("insert article %s: %w", a.URL, err)
			}
			if inserted {
				stats.Inserted++
			} else {
				stats.Duplicates++
			}

			if _, ok := seen[slug]; !ok {
				seen[slug] = struct{}{}
				touched = append(touched, slug)
			}
		}
	}
	return touched, nil
}

func (s *AggregationService) saveTag(ctx context.Context, slug string, names map[string]string) error {
	if names == nil {
		return s.tags.Ensure(ctx, slug)
	}
	return s.tags.Upsert(ctx, domain.Tag{Slug: slug, Name: displayName(names, slug)})
}

// loadNames returns nil when no mapping is available, which leaves stored
// display names untouched during recompute.
func (s *AggregationService) loadNames(ctx context.Context) map[string]string {
	if s.names == nil {
		return nil
	}
	names, err := s.names.Names(ctx)
	if err != nil {
		s.logger.Warn("failed to load tag names", "error", err)
		return nil
	}
	return names
}

func (s *AggregationService) updateRunState(ctx context.Context, now time.Time, stats *domain.PassStats) error {
	state, err := s.runState.Get(ctx, runStateName)
	if err != nil {
		return err
	}

	state.Name = runStateName
	state.LastRunAt = now
	state.LastInserted = int64(stats.Inserted)
	state.TotalInserted += int64(stats.Inserted)

	return s.runState.Update(ctx, state)
}
