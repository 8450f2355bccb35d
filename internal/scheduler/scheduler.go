package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"tag_trends/internal/domain"
	"tag_trends/internal/service"
)

// Aggregator defines the interface for aggregation passes.
type Aggregator interface {
	RunAggregation(ctx context.Context, cfg service.PassConfig) (*domain.PassStats, error)
}

type Scheduler struct {
	aggregator Aggregator
	pass       service.PassConfig
	spec       string
	timeout    time.Duration
	logger     *slog.Logger
}

func NewScheduler(aggregator Aggregator, pass service.PassConfig, spec string, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		aggregator: aggregator,
		pass:       pass,
		spec:       spec,
		timeout:    timeout,
		logger:     logger.With("component", "scheduler"),
	}
}

// Start runs one pass immediately and then on every tick of the cron spec
// until ctx is done. A tick that fires while a pass is still running is
// skipped. Cancelling ctx stops scheduling; a pass already running is
// allowed to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	loc := s.pass.Location
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.runPass(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}

	s.logger.Info("scheduler started", "schedule", s.spec, "timezone", loc.String())

	s.runPass(ctx)

	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()

	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err := s.aggregator.RunAggregation(passCtx, s.pass)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPassInProgress):
		s.logger.Warn("pass skipped, another one is running")
	default:
		s.logger.Error("aggregation failed", "error", err)
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
