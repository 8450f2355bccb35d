package walker

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"tag_trends/internal/domain"
)

// Lister fetches one page of the remote "latest" feed.
type Lister interface {
	FetchPage(ctx context.Context, page, pageSize int) (*domain.Listing, error)
}

// Resolver turns a listing entry into a normalized article.
type Resolver interface {
	Resolve(ctx context.Context, ref domain.ArticleRef) (*domain.ExtractedArticle, bool)
}

// Config paces and bounds the detail fetches of one page.
type Config struct {
	// Delay is the minimum spacing between detail fetches.
	Delay       time.Duration
	Concurrency int
}

// Walker pages through the feed newest first.
type Walker struct {
	lister      Lister
	resolver    Resolver
	delay       time.Duration
	concurrency int
	logger      *slog.Logger
}

func New(lister Lister, resolver Resolver, cfg Config, logger *slog.Logger) *Walker {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Walker{
		lister:      lister,
		resolver:    resolver,
		delay:       cfg.Delay,
		concurrency: concurrency,
		logger:      logger.With("component", "walker"),
	}
}

// Walk returns a lazy sequence of pages. Each call starts a fresh walk.
//
// A failed page fetch is yielded as an error and ends the sequence. The walk
// also ends after a page that is empty, crosses params.Boundary, accepts
// nothing new, or is the last one the feed advertises.
func (w *Walker) Walk(ctx context.Context, params domain.WalkParams) iter.Seq2[domain.FeedPage, error] {
	return func(yield func(domain.FeedPage, error) bool) {
		limiter := w.newLimiter()
		seen := make(map[string]struct{})

		for page := 1; page <= params.MaxPages; page++ {
			listing, err := w.lister.FetchPage(ctx, page, params.PageSize)
			if err != nil {
				w.logger.Warn("page fetch failed", "page", page, "error", err)
				yield(domain.FeedPage{Number: page}, fmt.Errorf("fetch page %d: %w", page, err))
				return
			}
			if len(listing.Refs) == 0 {
				w.logger.Info("empty page, stopping", "page", page)
				return
			}

			resolved := w.resolvePage(ctx, limiter, listing.Refs, seen)
			out := accept(page, len(listing.Refs), resolved, params.Boundary)

			w.logger.Info("page processed",
				"page", page,
				"listed", out.Listed,
				"accepted", len(out.Articles),
				"cutoff", out.Cutoff,
			)

			if !yield(out, nil) {
				return
			}
			if out.Cutoff || len(out.Articles) == 0 || !listing.HasNext {
				return
			}
		}
	}
}

// accept applies the boundary check in feed order. Every item before the
// first one older than boundary is kept; the rest of the page is dropped.
func accept(page, listed int, resolved []*domain.ExtractedArticle, boundary time.Time) domain.FeedPage {
	out := domain.FeedPage{Number: page, Listed: listed}
	for _, a := range resolved {
		if a == nil {
			continue
		}
		if a.PublishedAt.Before(boundary) {
			out.Cutoff = true
			break
		}
		out.Articles = append(out.Articles, *a)
	}
	return out
}

// resolvePage resolves every ref not seen earlier in this walk. The result
// is index-aligned with refs; nil marks skipped or unresolved entries. All
// items finish before the caller inspects any timestamp.
func (w *Walker) resolvePage(ctx context.Context, limiter *rate.Limiter, refs []domain.ArticleRef, seen map[string]struct{}) []*domain.ExtractedArticle {
	results := make([]*domain.ExtractedArticle, len(refs))

	var todo []int
	for i, ref := range refs {
		if _, ok := seen[ref.URL]; ok {
			continue
		}
		seen[ref.URL] = struct{}{}
		todo = append(todo, i)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, i := range todo {
		g.Go(func() error {
			if err := limiter.Wait(gCtx); err != nil {
				return nil
			}
			if article, ok := w.resolver.Resolve(gCtx, refs[i]); ok {
				results[i] = article
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (w *Walker) newLimiter() *rate.Limiter {
	if w.delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(w.delay), 1)
}
