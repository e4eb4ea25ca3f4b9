// Package main is the operator CLI: one-off recording sync passes and migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classroom-lms/backend/config"
	"github.com/classroom-lms/backend/internal/classes"
	"github.com/classroom-lms/backend/internal/cli"
	"github.com/classroom-lms/backend/internal/realtime"
	"github.com/classroom-lms/backend/internal/recordings"
	"github.com/classroom-lms/backend/internal/recordingsync"
	"github.com/classroom-lms/backend/internal/zoom"
	"github.com/classroom-lms/backend/pkg/database"
	"github.com/classroom-lms/backend/pkg/queue"
	"github.com/classroom-lms/backend/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: 2}, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	deps := &cli.Dependencies{
		Config:  cfg,
		Migrate: func(ctx context.Context) ([]string, error) { return database.Migrate(ctx, pool) },
	}

	// Redis is optional here: without it the pass takes a process-local guard and publishes nothing.
	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, running without cross-process lock", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	if cfg.Zoom.Configured() {
		deps.Sync = newRunner(cfg, pool, rdb, logger)
	}

	return cli.NewRootCmd(deps).ExecuteContext(ctx)
}

func newRunner(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) *recordingsync.Runner {
	recordingRepo := recordings.NewRepository(pool)
	reconciler := recordingsync.NewReconciler(zoom.NewClient(cfg.Zoom, logger), classes.NewRepository(pool), recordingRepo, cfg.Sync.DefaultInstructor, logger)

	var guard recordingsync.Guard = &recordingsync.LocalGuard{}
	var events recordingsync.EventPublisher
	if rdb != nil {
		if cfg.Sync.Lock == "redis" {
			guard = redis.NewLease(rdb.Client, recordingsync.LockKey, cfg.Sync.LockTTL())
		}
		events = realtime.NewPublisher(nil, realtime.NewRedisPubSub(rdb.Client, logger))
		reconciler.OnIngest(recordingsync.EventHook(events, logger))
		if cfg.Sync.ArchiveEnabled {
			reconciler.OnIngest(recordingsync.ArchiveHook(queue.NewQueue(rdb.Client, logger), recordingRepo, logger))
		}
	}
	return recordingsync.NewRunner(reconciler, guard, nil, events, logger)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}
	logger, _ := config.Build()
	return logger
}
