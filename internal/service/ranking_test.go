package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tag_trends/internal/domain"
	"tag_trends/internal/service/mocks"
)

type RankingServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	articles *mocks.MockArticleStore
	tags     *mocks.MockTagStore
	metrics  *mocks.MockMetricStore
	runState *mocks.MockRunStateStore
	cache    *mocks.MockRankingCache

	service *RankingService
	date    time.Time
	lastRun time.Time
}

func (s *RankingServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.tags = mocks.NewMockTagStore(s.ctrl)
	s.metrics = mocks.NewMockMetricStore(s.ctrl)
	s.runState = mocks.NewMockRunStateStore(s.ctrl)
	s.cache = mocks.NewMockRankingCache(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewRankingService(s.articles, s.tags, s.metrics, s.runState, s.cache, jst, logger)
	s.service.now = func() time.Time { return time.Date(2025, 3, 12, 8, 0, 0, 0, jst) }

	// Dates scan back from a DATE column as UTC midnight.
	s.date = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	s.lastRun = time.UnixMicro(1741600000000000)
}

func (s *RankingServiceTestSuite) expectLastRun(at time.Time) {
	s.runState.EXPECT().Get(gomock.Any(), "aggregation").Return(&domain.RunState{Name: "aggregation", LastRunAt: at}, nil)
}

func (s *RankingServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestRankingServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RankingServiceTestSuite))
}

func (s *RankingServiceTestSuite) TestRankings_NoSnapshot() {
	ctx := context.Background()
	s.metrics.EXPECT().LatestDate(ctx, 7).Return(time.Time{}, domain.ErrNotFound)

	got, err := s.service.Rankings(ctx, 7, 10)

	s.NoError(err)
	s.NotNil(got)
	s.Empty(got)
}

func (s *RankingServiceTestSuite) TestRankings_BuildsSummaries() {
	ctx := context.Background()
	since := time.Date(2025, 3, 3, 0, 0, 0, 0, jst)
	published := time.Date(2025, 3, 9, 1, 0, 0, 0, time.UTC)

	s.metrics.EXPECT().LatestDate(ctx, 7).Return(s.date, nil)
	s.expectLastRun(s.lastRun)
	s.cache.EXPECT().Get(ctx, "rankings:7:2025-03-10:1741600000000000:10", gomock.Any()).Return(false, nil)
	s.metrics.EXPECT().ListByDate(ctx, 7, s.date, 10).Return([]domain.RankedMetric{
		{Metric: domain.Metric{Slug: "rust", Articles: 3, LikesSum: 30, Score: 30}, Name: "Rust"},
		{Metric: domain.Metric{Slug: "go", Articles: 2, LikesSum: 10, Score: 10}, Name: "Go"},
	}, nil)
	s.articles.EXPECT().TopByTag(ctx, "rust", since, 5).Return([]domain.Article{
		{Title: "Ownership", URL: "https://zenn.dev/r", Likes: 20, PublishedAt: published},
	}, nil)
	s.articles.EXPECT().TopByTag(ctx, "go", since, 5).Return([]domain.Article{}, nil)
	s.cache.EXPECT().Set(ctx, "rankings:7:2025-03-10:1741600000000000:10", gomock.Any()).Return(nil)

	got, err := s.service.Rankings(ctx, 7, 10)

	s.NoError(err)
	s.Require().Len(got, 2)
	s.Equal("rust", got[0].Slug)
	s.Equal("Rust", got[0].Name)
	s.Equal(float64(30), got[0].Score)
	s.Require().Len(got[0].TopArticles, 1)
	s.Equal("2025-03-09T10:00:00+09:00", got[0].TopArticles[0].PublishedAt)
	s.GreaterOrEqual(got[0].Score, got[1].Score)
	s.NotNil(got[1].TopArticles)
	s.Empty(got[1].TopArticles)
}

func (s *RankingServiceTestSuite) TestRankings_CacheHit() {
	ctx := context.Background()
	cached := []domain.TagSummary{{Slug: "go", Score: 5}}

	s.metrics.EXPECT().LatestDate(ctx, 1).Return(s.date, nil)
	s.expectLastRun(s.lastRun)
	s.cache.EXPECT().Get(ctx, "rankings:1:2025-03-10:1741600000000000:100", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, dest any) (bool, error) {
			*(dest.(*[]domain.TagSummary)) = cached
			return true, nil
		},
	)

	got, err := s.service.Rankings(ctx, 1, 100)

	s.NoError(err)
	s.Equal(cached, got)
}

func (s *RankingServiceTestSuite) TestRankings_CacheErrorsFallThrough() {
	ctx := context.Background()

	s.metrics.EXPECT().LatestDate(ctx, 1).Return(s.date, nil)
	s.expectLastRun(s.lastRun)
	s.cache.EXPECT().Get(ctx, gomock.Any(), gomock.Any()).Return(false, errors.New("connection refused"))
	s.metrics.EXPECT().ListByDate(ctx, 1, s.date, 3).Return([]domain.RankedMetric{}, nil)
	s.cache.EXPECT().Set(ctx, gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

	got, err := s.service.Rankings(ctx, 1, 3)

	s.NoError(err)
	s.Empty(got)
}

func (s *RankingServiceTestSuite) TestRankings_WithoutCache() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewRankingService(s.articles, s.tags, s.metrics, s.runState, nil, jst, logger)

	s.metrics.EXPECT().LatestDate(ctx, 30).Return(s.date, nil)
	s.metrics.EXPECT().ListByDate(ctx, 30, s.date, 10).Return([]domain.RankedMetric{}, nil)

	got, err := svc.Rankings(ctx, 30, 10)

	s.NoError(err)
	s.Empty(got)
}

func (s *RankingServiceTestSuite) TestRankings_RunStateErrorBypassesCache() {
	ctx := context.Background()

	s.metrics.EXPECT().LatestDate(ctx, 7).Return(s.date, nil)
	s.runState.EXPECT().Get(ctx, "aggregation").Return(nil, errors.New("db down"))
	s.metrics.EXPECT().ListByDate(ctx, 7, s.date, 10).Return([]domain.RankedMetric{}, nil)

	got, err := s.service.Rankings(ctx, 7, 10)

	s.NoError(err)
	s.Empty(got)
}

// memoryCache is a RankingCache kept in a map, JSON-encoded like the Redis one.
type memoryCache map[string][]byte

func (m memoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	data, ok := m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (m memoryCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m[key] = data
	return nil
}

func (s *RankingServiceTestSuite) TestRankings_SameDayPassReplacesCachedResult() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewRankingService(s.articles, s.tags, s.metrics, s.runState, memoryCache{}, jst, logger)
	secondRun := s.lastRun.Add(time.Hour)

	s.metrics.EXPECT().LatestDate(ctx, 7).Return(s.date, nil).Times(3)
	s.articles.EXPECT().TopByTag(ctx, gomock.Any(), gomock.Any(), 5).Return(nil, nil).AnyTimes()
	gomock.InOrder(
		s.runState.EXPECT().Get(ctx, "aggregation").Return(&domain.RunState{LastRunAt: s.lastRun}, nil).Times(2),
		s.runState.EXPECT().Get(ctx, "aggregation").Return(&domain.RunState{LastRunAt: secondRun}, nil),
	)
	gomock.InOrder(
		s.metrics.EXPECT().ListByDate(ctx, 7, s.date, 10).Return([]domain.RankedMetric{
			{Metric: domain.Metric{Slug: "go", Score: 5}, Name: "Go"},
		}, nil),
		s.metrics.EXPECT().ListByDate(ctx, 7, s.date, 10).Return([]domain.RankedMetric{
			{Metric: domain.Metric{Slug: "go", Score: 50}, Name: "Go"},
			{Metric: domain.Metric{Slug: "rust", Score: 40}, Name: "Rust"},
		}, nil),
	)

	first, err := svc.Rankings(ctx, 7, 10)
	s.NoError(err)
	s.Require().Len(first, 1)

	cached, err := svc.Rankings(ctx, 7, 10)
	s.NoError(err)
	s.Equal(first, cached)

	// A later pass of the same day rewrote the snapshot.
	got, err := svc.Rankings(ctx, 7, 10)
	s.NoError(err)
	s.Require().Len(got, 2)
	s.Equal(float64(50), got[0].Score)
	s.Equal("rust", got[1].Slug)
}

func (s *RankingServiceTestSuite) TestRankings_StorageError() {
	ctx := context.Background()
	s.metrics.EXPECT().LatestDate(ctx, 7).Return(time.Time{}, errors.New("db down"))

	_, err := s.service.Rankings(ctx, 7, 10)

	s.Error(err)
	s.Contains(err.Error(), "latest snapshot date")
}

func (s *RankingServiceTestSuite) TestToolDetail_UnknownTag() {
	ctx := context.Background()
	s.tags.EXPECT().Get(ctx, "nope").Return(nil, domain.ErrNotFound)

	got, err := s.service.ToolDetail(ctx, "nope", 7)

	s.NoError(err)
	s.Nil(got)
}

func (s *RankingServiceTestSuite) TestToolDetail_WithSnapshot() {
	ctx := context.Background()

	s.tags.EXPECT().Get(ctx, "go").Return(&domain.Tag{Slug: "go", Name: "Go"}, nil)
	s.metrics.EXPECT().LatestForTag(ctx, "go", 7).Return(&domain.Metric{
		Date: s.date, Days: 7, Slug: "go", Articles: 4, LikesSum: 12, Score: 12,
	}, nil)
	s.articles.EXPECT().TopByTag(ctx, "go", time.Date(2025, 3, 3, 0, 0, 0, 0, jst), 10).Return([]domain.Article{
		{Title: "A", URL: "u", Likes: 12, PublishedAt: time.Date(2025, 3, 9, 0, 0, 0, 0, jst)},
	}, nil)

	got, err := s.service.ToolDetail(ctx, "go", 7)

	s.NoError(err)
	s.Require().NotNil(got)
	s.Equal(domain.Tag{Slug: "go", Name: "Go"}, got.Tool)
	s.Require().NotNil(got.Metric.Date)
	s.Equal("2025-03-10", *got.Metric.Date)
	s.Equal(4, got.Metric.Articles)
	s.Len(got.TopArticles, 1)
}

func (s *RankingServiceTestSuite) TestToolDetail_NoSnapshotUsesNow() {
	ctx := context.Background()
	since := time.Date(2025, 3, 11, 8, 0, 0, 0, jst)

	s.tags.EXPECT().Get(ctx, "go").Return(&domain.Tag{Slug: "go", Name: "go"}, nil)
	s.metrics.EXPECT().LatestForTag(ctx, "go", 1).Return(nil, domain.ErrNotFound)
	s.articles.EXPECT().TopByTag(ctx, "go", gomock.Any(), 10).DoAndReturn(
		func(_ context.Context, _ string, got time.Time, _ int) ([]domain.Article, error) {
			s.True(since.Equal(got), "got %s", got)
			return nil, nil
		},
	)

	got, err := s.service.ToolDetail(ctx, "go", 1)

	s.NoError(err)
	s.Require().NotNil(got)
	s.Nil(got.Metric.Date)
	s.Zero(got.Metric.Articles)
	s.Zero(got.Metric.Score)
	s.NotNil(got.TopArticles)
}

func (s *RankingServiceTestSuite) TestStats() {
	ctx := context.Background()

	s.metrics.EXPECT().LatestDate(ctx, 30).Return(s.date, nil)
	got, err := s.service.Stats(ctx, 30)
	s.NoError(err)
	s.Require().NotNil(got.LastUpdated)
	s.Equal("2025-03-10", *got.LastUpdated)

	s.metrics.EXPECT().LatestDate(ctx, 1).Return(time.Time{}, domain.ErrNotFound)
	got, err = s.service.Stats(ctx, 1)
	s.NoError(err)
	s.Nil(got.LastUpdated)
}
