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
	"tag_trends/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single aggregation pass and exit")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
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
	logger.Info("connected to database")

	// Pass events are optional
	rabbitMQ, err := app.ConnectRabbitMQ(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	if rabbitMQ != nil {
		defer rabbitMQ.Close()
	}

	aggregation := app.NewAggregationService(cfg, db, rabbitMQ, logger)
	pass := app.PassConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		passCtx, passCancel := context.WithTimeout(ctx, cfg.Aggregation.PassTimeout)
		defer passCancel()

		stats, err := aggregation.RunAggregation(passCtx, pass)
		if err != nil {
			logger.Error("aggregation failed", "error", err)
			os.Exit(1)
		}
		logger.Info("aggregation finished", "date", stats.Date, "inserted", stats.Inserted)
		return
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	sched := scheduler.NewScheduler(aggregation, pass, cfg.Aggregation.Schedule, cfg.Aggregation.PassTimeout, logger)

	logger.Info("starting tag trends aggregator",
		"schedule", cfg.Aggregation.Schedule,
		"max_pages", cfg.Aggregation.MaxPages,
		"retention_days", pass.RetentionDays,
		"timezone", pass.Location.String(),
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
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
