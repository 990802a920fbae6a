package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nasermirzaei89/env"

	platformconfig "github.com/example/acadmate/internal/platform/config"
)

type Config struct {
	platformconfig.AppConfig

	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string
	GRPCAddr    string
	AutoMigrate bool

	CommentCacheTTL   time.Duration
	ReconcileInterval time.Duration
	IdempotencyTTL    time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	// Chatbot upstream and its retry and circuit-breaker settings.
	ChatbotURL            string
	ChatbotMaxRetries     int
	ChatbotRetryBaseDelay time.Duration
	ChatbotTimeout        time.Duration
	CBMaxRequests         uint32
	CBInterval            time.Duration
	CBTimeout             time.Duration
	CBFailureThreshold    uint32
}

func Load() (Config, error) {
	app, err := platformconfig.Load()
	if err != nil {
		return Config{}, err
	}

	secret := strings.TrimSpace(env.GetString("JWT_SECRET", ""))
	if secret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if app.IsProduction() && len(secret) < 32 {
		return Config{}, errors.New("JWT_SECRET must be at least 32 bytes in production")
	}
	grpcAddr := strings.TrimSpace(env.GetString("GRPC_ADDR", ""))
	if grpcAddr == "" {
		grpcAddr = ":9090"
	}

	return Config{
		AppConfig:   app,
		DatabaseURL: strings.TrimSpace(env.GetString("DATABASE_URL", "")),
		RedisURL:    strings.TrimSpace(env.GetString("REDIS_URL", "")),
		NATSURL:     strings.TrimSpace(env.GetString("NATS_URL", "")),
		JWTSecret:   secret,
		GRPCAddr:    grpcAddr,
		AutoMigrate: env.GetBool("AUTO_MIGRATE", false),

		CommentCacheTTL:   envDuration("COMMENT_CACHE_TTL", 30*time.Second),
		ReconcileInterval: envDuration("RECONCILE_INTERVAL", 10*time.Minute),
		IdempotencyTTL:    envDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		ChatbotURL:            strings.TrimSpace(env.GetString("CHATBOT_URL", "")),
		ChatbotMaxRetries:     envInt("CHATBOT_MAX_RETRIES", 2),
		ChatbotRetryBaseDelay: envDuration("CHATBOT_RETRY_BASE_DELAY", 300*time.Millisecond),
		ChatbotTimeout:        envDuration("CHATBOT_TIMEOUT", 15*time.Second),
		CBMaxRequests:         uint32(envInt("CB_MAX_REQUESTS", 5)),
		CBInterval:            envDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:             envDuration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold:    uint32(envInt("CB_FAILURE_THRESHOLD", 5)),
	}, nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(env.GetString(key, ""))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(env.GetString(key, ""))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(env.GetString(key, ""))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
