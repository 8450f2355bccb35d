// Package app wires configuration into the services shared by the commands.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"tag_trends/internal/cache"
	"tag_trends/internal/config"
	"tag_trends/internal/names"
	"tag_trends/internal/publisher"
	"tag_trends/internal/service"
	"tag_trends/internal/source/zenn"
	"tag_trends/internal/storage/postgres"
	"tag_trends/internal/walker"
)

// Every process running passes against the same database contends for this lock.
const passLockName = "tag_trends.aggregation"

func ConnectDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// ConnectRabbitMQ returns nil when RabbitMQ is disabled.
func ConnectRabbitMQ(cfg config.RabbitMQConfig, logger *slog.Logger) (*publisher.RabbitMQ, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.URL,
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
		QueueName:  cfg.QueueName,
	}, logger)
}

func PassConfig(cfg *config.Config) service.PassConfig {
	return service.PassConfig{
		WindowDays:    cfg.Aggregation.WindowDays,
		MaxPages:      cfg.Aggregation.MaxPages,
		PageSize:      cfg.Feed.PageSize,
		RetentionDays: cfg.Aggregation.RetentionDays,
		Location:      cfg.Aggregation.Location(),
	}
}

// NewAggregationService builds the orchestrator over Zenn. pub may be nil.
func NewAggregationService(cfg *config.Config, db *sqlx.DB, pub *publisher.RabbitMQ, logger *slog.Logger) *service.AggregationService {
	client := zenn.New(zenn.Config{
		BaseURL:        cfg.Feed.BaseURL,
		SiteURL:        cfg.Feed.SiteURL,
		Timeout:        cfg.Feed.Timeout,
		UserAgent:      cfg.Feed.UserAgent,
		MaxAttempts:    cfg.Feed.Retry.MaxAttempts,
		InitialBackoff: cfg.Feed.Retry.InitialBackoff,
		MaxBackoff:     cfg.Feed.Retry.MaxBackoff,
	}, logger)

	extractor := zenn.NewExtractor(client, cfg.Aggregation.Location(), logger)
	feed := walker.New(client, extractor, walker.Config{
		Delay:       cfg.Feed.DetailDelay,
		Concurrency: cfg.Feed.Concurrency,
	}, logger)

	var events service.Publisher
	if pub != nil {
		events = pub
	}

	return service.NewAggregationService(
		feed,
		postgres.NewArticleStore(db),
		postgres.NewTagStore(db),
		postgres.NewMetricStore(db),
		postgres.NewRunStateStore(db),
		names.NewCSVSource(cfg.Aggregation.NamesCSV),
		postgres.NewTransactionManager(db),
		postgres.NewAdvisoryLock(db, passLockName),
		events,
		service.LikeSumScore,
		logger.With("source", client.ID()),
	)
}

// NewRankingService builds the reader, backed by Redis when enabled. The
// returned func releases the cache connection.
func NewRankingService(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *slog.Logger) (*service.RankingService, func(), error) {
	var (
		rankingCache service.RankingCache
		closeCache   = func() {}
	)

	if cfg.Redis.Enabled {
		client, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		rankingCache = cache.NewRankingCache(client, cfg.Redis.TTL)
		closeCache = func() { client.Close() }
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	svc := service.NewRankingService(
		postgres.NewArticleStore(db),
		postgres.NewTagStore(db),
		postgres.NewMetricStore(db),
		postgres.NewRunStateStore(db),
		rankingCache,
		cfg.Aggregation.Location(),
		logger,
	)
	return svc, closeCache, nil
}
