package recordingsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/classroom-lms/backend/internal/models"
)

// ErrAlreadyRunning is returned when a pass is requested while another one holds the guard.
var ErrAlreadyRunning = errors.New("sync already running")

// Trigger identifies what started a pass.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerCLI       Trigger = "cli"
)

// EventPublisher fans events out to dashboards. *realtime.Publisher implements it.
type EventPublisher interface {
	Publish(ctx context.Context, topic, event string, data interface{}) error
}

// Completed is the payload of a sync.completed event.
type Completed struct {
	Trigger  Trigger `json:"trigger"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Ingested int     `json:"ingested"`
	Skipped  int     `json:"skipped"`
	Failed   int     `json:"failed"`
}

// Runner is the single entry point for every trigger: it takes the guard, runs the
// reconciler and records metrics and events.
type Runner struct {
	reconciler *Reconciler
	guard      Guard
	metrics    *Metrics
	events     EventPublisher
	now        func() time.Time
	logger     *zap.Logger
}

// NewRunner creates a runner. guard defaults to a LocalGuard; metrics and events may be nil.
func NewRunner(reconciler *Reconciler, guard Guard, metrics *Metrics, events EventPublisher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = &LocalGuard{}
	}
	return &Runner{
		reconciler: reconciler,
		guard:      guard,
		metrics:    metrics,
		events:     events,
		now:        time.Now,
		logger:     logger,
	}
}

// Run executes one guarded pass. It returns ErrAlreadyRunning without touching the source
// when another pass is in progress.
func (r *Runner) Run(ctx context.Context, trigger Trigger, w Window, filter Filter) (*Result, error) {
	release, ok, err := r.guard.TryAcquire(ctx)
	if err != nil {
		r.metrics.observe(trigger, "error", nil, 0)
		return nil, fmt.Errorf("acquire sync guard: %w", err)
	}
	if !ok {
		r.metrics.observe(trigger, "busy", nil, 0)
		r.logger.Info("recording sync skipped, already running", zap.String("trigger", string(trigger)))
		return nil, ErrAlreadyRunning
	}
	defer release()

	log := r.logger.With(zap.String("trigger", string(trigger)), zap.String("window", w.String()))
	log.Info("recording sync started")
	if eg, ok := r.guard.(expiringGuard); ok && eg.TTL() > 0 {
		ttl := eg.TTL()
		overrun := time.AfterFunc(ttl, func() {
			log.Warn("recording sync outlived its lock lease, another pass may start", zap.Duration("lease_ttl", ttl))
		})
		defer overrun.Stop()
	}
	start := r.now()
	res, err := r.reconciler.Reconcile(ctx, w, filter)
	elapsed := r.now().Sub(start)
	if err != nil {
		r.metrics.observe(trigger, "error", res, elapsed.Seconds())
		log.Error("recording sync failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return res, err
	}
	r.metrics.observe(trigger, "success", res, elapsed.Seconds())
	log.Info("recording sync completed",
		zap.Int("meetings", res.Meetings),
		zap.Int("ingested", res.Ingested),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", elapsed))

	if r.events != nil {
		evt := Completed{
			Trigger:  trigger,
			From:     w.From.Format("2006-01-02"),
			To:       w.To.Format("2006-01-02"),
			Ingested: res.Ingested,
			Skipped:  res.Skipped,
			Failed:   res.Failed,
		}
		if err := r.events.Publish(ctx, models.TopicRecordings, models.EventSyncCompleted, evt); err != nil {
			log.Warn("publish sync.completed failed", zap.Error(err))
		}
	}
	return res, nil
}
