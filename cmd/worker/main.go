package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"jobboard/internal/config"
	"jobboard/internal/database"
	"jobboard/internal/logging"
	"jobboard/internal/matching"
	"jobboard/internal/metrics"
	"jobboard/internal/notify"
	"jobboard/internal/recommend"
	"jobboard/internal/savedsearch"
	"jobboard/internal/tasks"
	"jobboard/internal/worker"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.Log, "worker")

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	ranker, err := matching.NewRanker(
		matching.Weights{Skill: cfg.Recommend.SkillWeight, Location: cfg.Recommend.LocationWeight},
		cfg.Recommend.Threshold,
		cfg.Recommend.TopK,
	)
	if err != nil {
		log.Fatalf("init ranker: %v", err)
	}
	recs := recommend.NewService(db, recommend.NewStore(db, cfg.Recommend.StickyDismissal), ranker, logger)
	publisher := notify.NewRedisPublisher(redisClient)
	searches := savedsearch.NewService(db, publisher, logger)
	generations := tasks.NewRedisGenerations(redisClient)
	dispatcher := tasks.NewDispatcher(asynqClient, generations, cfg.Worker.MaxRetry, logger)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.Worker.Concurrency,
		Queues:         map[string]int{tasks.QueueRecommendations: 1},
		RetryDelayFunc: worker.RetryDelayFunc(cfg.Recommend.BusyRetryDelay),
		IsFailure:      worker.IsFailure,
		Logger:         newAsynqLogger(logger),
	})

	regenHandler := worker.NewRegenerateHandler(
		recs,
		generations,
		worker.NewRedisLocker(redisClient),
		publisher,
		cfg.Recommend.LockTTL,
		logger,
	)
	searchHandler := worker.NewSavedSearchHandler(searches, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeRecommendJob, regenHandler)
	mux.Handle(tasks.TypeRecommendCandidate, regenHandler)
	mux.Handle(tasks.TypeSavedSearchRun, searchHandler)

	scheduler, err := worker.NewScheduler(cfg.SavedSearch.Schedule, searches, dispatcher, logger)
	if err != nil {
		log.Fatalf("init saved search scheduler: %v", err)
	}
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	metricsSrv := startMetricsServer(cfg.Worker.MetricsPort, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.String("saved_search_schedule", cfg.SavedSearch.Schedule),
	)
	// Run 在收到 SIGTERM/SIGINT 后返回。
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}

func startMetricsServer(port int, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	return srv
}

// asynqLogger 把 asynq 的日志接到 slog。
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) asynqLogger {
	return asynqLogger{logger: logger.With(slog.String("source", "asynq"))}
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	log.Fatal(args...)
}
