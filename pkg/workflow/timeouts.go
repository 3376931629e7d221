package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "@every 1m"

// TimeoutSweeper periodically fails instances whose user-task timed out.
type TimeoutSweeper struct {
	executor *Executor
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewTimeoutSweeper(logger *slog.Logger, executor *Executor, schedule string) *TimeoutSweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &TimeoutSweeper{
		executor: executor,
		schedule: schedule,
		logger:   logger.With("module", "timeout_sweeper"),
	}
}

func (s *TimeoutSweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "timeout sweeper started", "schedule", s.schedule)

	return nil
}

// Stop halts the schedule; the returned context is done once a running sweep returned.
func (s *TimeoutSweeper) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		return ctx
	}

	return s.cron.Stop()
}

func (s *TimeoutSweeper) Sweep(ctx context.Context) {
	expired, err := s.executor.ExpireWaiting(ctx, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "timeout sweep failed", "error", err)

		return
	}

	if expired > 0 {
		s.logger.InfoContext(ctx, "expired waiting instances", "count", expired)
	}
}
