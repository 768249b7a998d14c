package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"jobboard/internal/api"
	"jobboard/internal/auth"
	"jobboard/internal/config"
	"jobboard/internal/database"
	"jobboard/internal/logging"
	"jobboard/internal/matching"
	"jobboard/internal/notify"
	"jobboard/internal/pipeline"
	"jobboard/internal/recommend"
	"jobboard/internal/savedsearch"
	"jobboard/internal/storage"
	"jobboard/internal/tasks"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.Log, "api")

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
		slog.String("db", cfg.Database.Name),
	)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	dispatcher := tasks.NewDispatcher(asynqClient, tasks.NewRedisGenerations(redisClient), cfg.Worker.MaxRetry, logger)

	ranker, err := matching.NewRanker(
		matching.Weights{Skill: cfg.Recommend.SkillWeight, Location: cfg.Recommend.LocationWeight},
		cfg.Recommend.Threshold,
		cfg.Recommend.TopK,
	)
	if err != nil {
		log.Fatalf("init ranker: %v", err)
	}
	store := recommend.NewStore(db, cfg.Recommend.StickyDismissal)
	recs := recommend.NewService(db, store, ranker, logger)
	publisher := notify.NewRedisPublisher(redisClient)

	authService, err := loadAuthService(cfg.Auth)
	if err != nil {
		log.Fatalf("init auth: %v", err)
	}

	links, err := newResumeLinker(cfg.MinIO, logger)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	deps := api.Deps{
		DB:               db,
		Validator:        authService,
		Redis:            redisClient,
		Recommend:        recs,
		Scheduler:        dispatcher,
		Pipeline:         pipeline.NewService(db, store, dispatcher, publisher, logger),
		SavedSearch:      savedsearch.NewService(db, publisher, logger),
		Links:            links,
		Logger:           logger,
		InternalSecret:   cfg.Internal.Secret,
		AllowedOrigins:   cfg.API.AllowedOrigins,
		LoginRateLimit:   cfg.API.LoginRateLimit,
		RefreshRateLimit: cfg.API.RefreshRateLimit,
	}
	if authService.CanSign() {
		deps.Issuer = authService
	} else {
		logger.Warn("jwt private key not configured, login endpoint disabled")
	}

	router := api.NewRouter(db, logger)
	api.RegisterRoutes(router, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
}

// loadAuthService 读取公钥（必需）与私钥（可选）。
func loadAuthService(cfg config.AuthConfig) (*auth.AuthService, error) {
	publicPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key: %w", err)
	}
	var privatePEM []byte
	if path := strings.TrimSpace(cfg.PrivateKeyPath); path != "" {
		privatePEM, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read jwt private key: %w", err)
		}
	}
	return auth.NewAuthService(privatePEM, publicPEM, cfg.AccessTokenTTL)
}

func newResumeLinker(cfg config.MinIOConfig, logger *slog.Logger) (*storage.ResumeLinker, error) {
	if !cfg.Enabled() {
		logger.Info("object storage disabled, resume links are omitted")
		return storage.NewResumeLinker(nil, cfg.ResumeLinkTTL, logger), nil
	}
	client, err := storage.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.Bucket))
	return storage.NewResumeLinker(client, cfg.ResumeLinkTTL, logger), nil
}
