package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	internalhandler "github.com/noah-isme/sma-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/events"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

// @title SMA Timetable API
// @version 0.1.0
// @description Weekly timetable generation and teacher conflict verification
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache and shared lock", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	grid, err := service.GridFromConfig(cfg.Scheduler)
	if err != nil {
		logr.Fatal("invalid scheduler grid", zap.Error(err))
	}

	var publisher interface {
		Publish(ctx context.Context, routingKey string, data interface{}) error
	} = events.NopPublisher{}
	if cfg.Events.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events, logr)
		if err != nil {
			logr.Warn("event publishing disabled", zap.Error(err))
		} else {
			publisher = amqpPublisher
			defer amqpPublisher.Close() //nolint:errcheck
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduler.VerifyCacheTTL, logr, redisClient != nil)

	timetableRepo := repository.NewTimetableRepository(db)
	classRepo := repository.NewClassRepository(db)
	termRepo := repository.NewTermRepository(db)
	loadRepo := repository.NewClassSubjectRepository(db)
	preferenceRepo := repository.NewTeacherPreferenceRepository(db)

	generator := service.NewTimetableGeneratorService(
		timetableRepo,
		classRepo,
		termRepo,
		loadRepo,
		preferenceRepo,
		timetableRepo,
		service.NewGenerationLocker(cache.NewLock(redisClient), cfg.Scheduler.LockTTL, logr),
		publisher,
		cacheSvc,
		metricsSvc,
		validator.New(),
		logr,
		service.TimetableGeneratorConfig{
			Grid:        grid,
			MaxPerDay:   cfg.Scheduler.MaxPerDay,
			TieBreakers: scheduler.NewTieBreakerFactory(cfg.Scheduler.TieBreak, cfg.Scheduler.Seed),
		},
	)
	queue := jobs.NewQueue("timetables", generator.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Scheduler.Workers,
		MaxRetries: cfg.Scheduler.WorkerRetries,
		Logger:     logr,
	})
	generator.AttachQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	verifier := service.NewTimetableVerifierService(timetableRepo, cacheSvc, cfg.Scheduler.VerifyCacheTTL, metricsSvc, publisher, logr)

	checks := map[string]internalhandler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return pingRedis(ctx, redisClient) }
	}
	metricsHandler := internalhandler.NewMetricsHandler(metricsSvc, checks)
	timetableHandler := internalhandler.NewTimetableHandler(generator, verifier)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	timetableHandler.Register(r.Group(cfg.APIPrefix))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "days", len(grid.Days()), "periods", grid.PeriodsPerDay())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
