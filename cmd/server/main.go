package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/rl-arena-matchmaker/internal/api"
	"github.com/rl-arena/rl-arena-matchmaker/internal/api/handlers"
	"github.com/rl-arena/rl-arena-matchmaker/internal/config"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/repository"
	"github.com/rl-arena/rl-arena-matchmaker/internal/service"
	"github.com/rl-arena/rl-arena-matchmaker/internal/websocket"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/database"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/distributed"
	jwtutil "github.com/rl-arena/rl-arena-matchmaker/pkg/jwt"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/logger"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/ratelimit"
	"github.com/rs/cors"
)

const (
	queueClaimPrefix = "matchmaking:queued"
	reviewQueueName  = "matchmaking"
	reviewQueueLimit = 1000
	tokenDuration    = 24 * time.Hour
)

// store 매치 기록 저장소 (Postgres 또는 메모리)
type store interface {
	matchmaking.MatchRecorder
	service.MatchReader
}

// reviewStore 실패 매칭 검토 큐 (Redis 또는 메모리)
type reviewStore interface {
	matchmaking.ReviewSink
	service.ReviewStore
}

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting RL-Arena Matchmaker",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]handlers.HealthChecker{}

	// 데이터베이스 연결 (선택)
	var (
		matches  store = repository.NewMemoryMatchStore()
		profiles service.ProfileSource
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		matches = repository.NewMatchRepository(db)
		profiles = repository.NewProfileRepository(db)
		healthChecks["database"] = db.PingContext
		logger.Info("Database connection established")
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory match store")
	}

	// WebSocket Hub
	hub := websocket.NewHub(logger.Named("websocket"), cfg.CORSAllowedOrigins)
	go hub.Run(ctx)

	// Redis 연결 (선택)
	var (
		publisher matchmaking.Publisher = hub
		reviews   reviewStore           = repository.NewMemoryReviewStore(reviewQueueLimit)
		claims    matchmaking.QueueClaims
		limiter   ratelimit.Limiter
		notifier  *distributed.RedisNotifier
	)
	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer client.Close()

		notifier = distributed.NewRedisNotifier(client, distributed.DefaultNotificationChannel, logger.Named("notifier"))
		go func() {
			if err := notifier.Start(ctx, hub.Deliver); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Match notifier stopped", "error", err)
			}
		}()

		publisher = notifier
		reviews = distributed.NewReviewQueue(client, reviewQueueName, reviewQueueLimit)
		claims = distributed.NewQueueClaims(client, queueClaimPrefix, cfg.QueueClaimTTL)
		limiter = ratelimit.NewRedisRateLimiter(client, "ratelimit:queue", cfg.RateLimitCapacity, cfg.RateLimitRefill)
		healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.Info("Redis connection established")
	} else {
		memoryLimiter := ratelimit.NewRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Minute)
		defer memoryLimiter.Stop()
		limiter = memoryLimiter
		logger.Warn("REDIS_URL not set, running as a single instance")
	}

	// Matchmaker
	matchmaker, err := matchmaking.NewMatchmaker(cfg.Thresholds(), matches, publisher,
		matchmaking.WithLogger(logger.Named("matchmaker")),
		matchmaking.WithScheduleOffset(cfg.ScheduleOffset),
		matchmaking.WithReviewSink(reviews),
		matchmaking.WithQueueClaims(claims),
		matchmaking.WithPairingTimeout(cfg.PairingTimeout),
	)
	if err != nil {
		logger.Fatal("Failed to create matchmaker", "error", err)
	}

	sweeper, err := matchmaking.NewSweeper(matchmaker, cfg.Sweeper(), logger.Named("sweeper"))
	if err != nil {
		logger.Fatal("Failed to create sweeper", "error", err)
	}
	sweeper.Start()

	// JWT (선택)
	var jwtManager *jwtutil.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = jwtutil.NewJWTManager(cfg.JWTSecret, tokenDuration)
	} else {
		logger.Warn("JWT_SECRET not set, player auth disabled")
	}

	// 라우터 설정
	router := api.SetupRouter(cfg, api.Dependencies{
		QueueService: service.NewQueueService(matchmaker, profiles, service.ProfileDefaults{
			Rating:          cfg.DefaultRating,
			RatingDeviation: cfg.DefaultRatingDeviation,
		}, logger.Named("queue")),
		MatchService: service.NewMatchService(matches, reviews),
		Hub:          hub,
		Limiter:      limiter,
		JWTManager:   jwtManager,
		HealthChecks: healthChecks,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	<-ctx.Done()

	logger.Info("Shutting down server...")

	sweeper.Stop()
	if notifier != nil {
		notifier.Stop()
	}

	// 10초 타임아웃으로 종료
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited", "queuedPlayers", matchmaker.QueueSize())
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
