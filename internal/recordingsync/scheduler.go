package recordingsync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a pass shortly after startup and then on a fixed interval.
type Scheduler struct {
	runner       *Runner
	interval     time.Duration
	startupDelay time.Duration
	windowDays   int
	filter       Filter
	now          func() time.Time
	logger       *zap.Logger
}

// NewScheduler creates a scheduler. Scheduled passes always use the strict filter.
func NewScheduler(runner *Runner, interval, startupDelay time.Duration, windowDays int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		runner:       runner,
		interval:     interval,
		startupDelay: startupDelay,
		windowDays:   windowDays,
		filter:       StrictVideoFilter,
		now:          time.Now,
		logger:       logger,
	}
}

// Run blocks until ctx is done. Tick failures are logged only.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("recording sync scheduler started",
		zap.Duration("interval", s.interval), zap.Duration("startup_delay", s.startupDelay))

	startup := time.NewTimer(s.startupDelay)
	defer startup.Stop()
	select {
	case <-ctx.Done():
		s.logger.Info("recording sync scheduler stopping")
		return
	case <-startup.C:
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("recording sync scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	w := WindowEndingAt(s.now(), s.windowDays)
	_, err := s.runner.Run(ctx, TriggerScheduled, w, s.filter)
	if err != nil && !errors.Is(err, ErrAlreadyRunning) && ctx.Err() == nil {
		s.logger.Warn("scheduled recording sync failed", zap.Error(err))
	}
}
