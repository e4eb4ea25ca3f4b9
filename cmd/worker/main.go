// Package main runs the background worker that archives Zoom recordings into S3.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classroom-lms/backend/config"
	"github.com/classroom-lms/backend/internal/realtime"
	"github.com/classroom-lms/backend/internal/recordings"
	"github.com/classroom-lms/backend/internal/worker"
	"github.com/classroom-lms/backend/internal/zoom"
	"github.com/classroom-lms/backend/pkg/database"
	"github.com/classroom-lms/backend/pkg/queue"
	"github.com/classroom-lms/backend/pkg/redis"
	"github.com/classroom-lms/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if !cfg.Zoom.Configured() {
		logger.Fatal("zoom credentials are required to download recordings")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: 4}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, cfg.AWS, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	recRepo := recordings.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	zoomClient := zoom.NewClient(cfg.Zoom, logger)
	events := realtime.NewPublisher(nil, realtime.NewRedisPubSub(rdb.Client, logger))
	archiver := worker.NewRecordingArchiver(recRepo, zoomClient, s3Client, jobQueue, events, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		archiver.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(worker.ShutdownGrace + 10*time.Second):
		logger.Warn("archive job still running at shutdown")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
