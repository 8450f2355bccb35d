package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tag_trends/internal/app"
	"tag_trends/internal/config"
	"tag_trends/internal/export"
	"tag_trends/internal/publisher"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	listen := flag.Bool("listen", false, "re-export after every completed aggregation pass")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := app.ConnectDB(cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rankings, closeCache, err := app.NewRankingService(ctx, cfg, db, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	exporter := export.New(rankings, export.Config{
		OutDir:            cfg.Export.OutDir,
		RankingLimit:      cfg.Export.RankingLimit,
		DetailSourceLimit: cfg.Export.DetailSourceLimit,
	}, logger)

	if _, err := exporter.Export(ctx); err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if !*listen {
		return
	}

	rabbitMQ, err := app.ConnectRabbitMQ(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	if rabbitMQ == nil {
		logger.Error("-listen requires rabbitmq.enabled")
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	err = rabbitMQ.Subscribe(ctx, func(ctx context.Context, msg publisher.PassMessage) error {
		logger.Info("pass completed, exporting", "date", msg.Stats.Date, "inserted", msg.Stats.Inserted)
		_, err := exporter.Export(ctx)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("subscription ended", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
