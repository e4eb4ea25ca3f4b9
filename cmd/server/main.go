// Package main runs the LMS HTTP server with the recording sync scheduler and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classroom-lms/backend/config"
	"github.com/classroom-lms/backend/internal/auth"
	"github.com/classroom-lms/backend/internal/classes"
	"github.com/classroom-lms/backend/internal/middleware"
	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/internal/realtime"
	"github.com/classroom-lms/backend/internal/recordings"
	"github.com/classroom-lms/backend/internal/recordingsync"
	"github.com/classroom-lms/backend/internal/zoom"
	"github.com/classroom-lms/backend/pkg/database"
	"github.com/classroom-lms/backend/pkg/queue"
	"github.com/classroom-lms/backend/pkg/redis"
	"github.com/classroom-lms/backend/pkg/response"
	"github.com/classroom-lms/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	applied, err := database.Migrate(ctx, pool)
	if err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("names", applied))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, cfg.AWS, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub)
	events := realtime.NewPublisher(hub, redisPubSub)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Zoom
	var zoomClient *zoom.Client
	if cfg.Zoom.Configured() {
		zoomClient = zoom.NewClient(cfg.Zoom, logger)
	} else {
		logger.Warn("zoom credentials missing, recording sync and meeting creation disabled")
	}

	// Scheduled classes
	classRepo := classes.NewRepository(pool)
	var meetings classes.MeetingScheduler
	if zoomClient != nil {
		meetings = zoomClient
	}
	classHandler := classes.NewHandler(classRepo, meetings, logger)

	// Recordings
	recordingRepo := recordings.NewRepository(pool)
	var archive recordings.ArchiveStorage
	if s3Client != nil {
		archive = s3Client
	}
	recordingHandler := recordings.NewHandler(recordingRepo, archive, logger)

	// Recording sync
	var syncHandler *recordingsync.Handler
	var scheduler *recordingsync.Scheduler
	if zoomClient != nil {
		reconciler := recordingsync.NewReconciler(zoomClient, classRepo, recordingRepo, cfg.Sync.DefaultInstructor, logger)
		reconciler.OnIngest(recordingsync.EventHook(events, logger))
		if cfg.Sync.ArchiveEnabled {
			if s3Client == nil {
				logger.Warn("SYNC_ARCHIVE_ENABLED set but s3 is not configured, archiving disabled")
			} else {
				reconciler.OnIngest(recordingsync.ArchiveHook(queue.NewQueue(rdb.Client, logger), recordingRepo, logger))
			}
		}

		var guard recordingsync.Guard = &recordingsync.LocalGuard{}
		if cfg.Sync.Lock == "redis" {
			guard = redis.NewLease(rdb.Client, recordingsync.LockKey, cfg.Sync.LockTTL())
		}
		runner := recordingsync.NewRunner(reconciler, guard, recordingsync.NewMetrics(registry), events, logger)
		syncHandler = recordingsync.NewHandler(runner, cfg.Sync.ManualWindowDays, recordingsync.FilterFor(cfg.Sync.ManualFilter), cfg.Sync.ManualTimeout(), logger)
		if cfg.Sync.Enabled {
			scheduler = recordingsync.NewScheduler(runner, cfg.Sync.Interval(), cfg.Sync.StartupDelay(), cfg.Sync.ScheduledWindowDays, logger)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	staff := middleware.RequireRole(models.RoleAdmin, models.RoleInstructor)
	admin := middleware.RequireRole(models.RoleAdmin)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", admin, authHandler.List)

		// Recordings
		api.GET("/recordings", recordingHandler.List)
		api.GET("/recordings/:id", recordingHandler.Get)
		api.GET("/recordings/:id/playback-url", recordingHandler.PlaybackURL)
		api.PATCH("/recordings/:id", admin, recordingHandler.Update)
		api.DELETE("/recordings/:id", admin, recordingHandler.Delete)

		// Scheduled classes
		api.POST("/classes", staff, classHandler.Create)
		api.GET("/classes", classHandler.List)
		api.GET("/classes/:id", classHandler.Get)
		api.DELETE("/classes/:id", admin, classHandler.Delete)

		// On-demand sync
		if syncHandler != nil {
			api.POST("/admin/recordings/sync", admin, syncHandler.Trigger)
		} else {
			api.POST("/admin/recordings/sync", admin, func(c *gin.Context) {
				response.ServiceUnavailable(c, "zoom integration is not configured")
			})
		}
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, jwtService, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.WriteDeadline(router, cfg.Sync.ManualTimeout()+time.Minute, "/admin/recordings/sync"),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	if scheduler != nil {
		go scheduler.Run(bgCtx)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
