package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database (empty = in-memory match store, profiles from the request)
	DatabaseURL string

	// Redis (empty = single instance: no queue claims, local websocket delivery only)
	RedisURL string

	// JWT (empty = player auth disabled)
	JWTSecret string

	// CORS
	CORSAllowedOrigins []string

	// Matching thresholds
	MaxRatingDiff    float64
	MaxDeviationDiff float64
	MaxDistanceKm    float64
	MaxQueueWait     time.Duration

	// Sweep driver
	SweepInterval      time.Duration
	StatusInterval     time.Duration
	MaxMatchesPerSweep int
	ScheduleOffset     time.Duration
	PairingTimeout     time.Duration

	// Lifetime of a player's cross-instance queue claim, refreshed every StatusInterval
	QueueClaimTTL time.Duration

	// Defaults for players without a stored profile
	DefaultRating          float64
	DefaultRatingDeviation float64

	// Rate limiting (token bucket per client IP)
	RateLimitCapacity int
	RateLimitRefill   time.Duration
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    getEnv("ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins:     parseList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		MaxRatingDiff:          parseFloat(getEnv("MATCH_MAX_RATING_DIFF", "300"), 300),
		MaxDeviationDiff:       parseFloat(getEnv("MATCH_MAX_DEVIATION_DIFF", "100"), 100),
		MaxDistanceKm:          parseFloat(getEnv("MATCH_MAX_DISTANCE_KM", "2"), 2),
		MaxQueueWait:           parseDuration(getEnv("MATCH_MAX_QUEUE_WAIT", "300s"), 300*time.Second),
		SweepInterval:          parseDuration(getEnv("MATCH_SWEEP_INTERVAL", "5s"), 5*time.Second),
		StatusInterval:         parseDuration(getEnv("MATCH_STATUS_INTERVAL", "10s"), 10*time.Second),
		MaxMatchesPerSweep:     parseInt(getEnv("MATCH_MAX_PER_SWEEP", "1"), 1),
		ScheduleOffset:         parseDuration(getEnv("MATCH_SCHEDULE_OFFSET", "5m"), 5*time.Minute),
		PairingTimeout:         parseDuration(getEnv("MATCH_PAIRING_TIMEOUT", "10s"), 10*time.Second),
		QueueClaimTTL:          parseDuration(getEnv("QUEUE_CLAIM_TTL", "2m"), 2*time.Minute),
		DefaultRating:          parseFloat(getEnv("DEFAULT_RATING", "1500"), 1500),
		DefaultRatingDeviation: parseFloat(getEnv("DEFAULT_RATING_DEVIATION", "350"), 350),
		RateLimitCapacity:      parseInt(getEnv("RATE_LIMIT_CAPACITY", "20"), 20),
		RateLimitRefill:        parseDuration(getEnv("RATE_LIMIT_REFILL", "3s"), 3*time.Second),
	}

	if err := cfg.Thresholds().Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueClaimTTL <= cfg.StatusInterval {
		return nil, fmt.Errorf("QUEUE_CLAIM_TTL (%v) must exceed MATCH_STATUS_INTERVAL (%v)", cfg.QueueClaimTTL, cfg.StatusInterval)
	}

	return cfg, nil
}

// Thresholds 매칭 임계값
func (c *Config) Thresholds() matchmaking.Thresholds {
	return matchmaking.Thresholds{
		MaxRatingDiff:    c.MaxRatingDiff,
		MaxDeviationDiff: c.MaxDeviationDiff,
		MaxDistanceKm:    c.MaxDistanceKm,
		MaxQueueWait:     c.MaxQueueWait,
	}
}

// Sweeper 스윕 주기 설정
func (c *Config) Sweeper() matchmaking.SweeperConfig {
	return matchmaking.SweeperConfig{
		MatchInterval:      c.SweepInterval,
		StatusInterval:     c.StatusInterval,
		MaxMatchesPerSweep: c.MaxMatchesPerSweep,
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
