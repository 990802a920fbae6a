package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/acadmate/internal/platform/analytics"
	"github.com/example/acadmate/internal/platform/auth"
	"github.com/example/acadmate/internal/platform/db"
	"github.com/example/acadmate/internal/platform/httpserver"
	"github.com/example/acadmate/internal/platform/idempotency"
	"github.com/example/acadmate/internal/platform/logging"
	"github.com/example/acadmate/internal/platform/natsconn"
	"github.com/example/acadmate/internal/platform/run"
	"github.com/example/acadmate/services/forum/internal/cache"
	"github.com/example/acadmate/services/forum/internal/chatbot"
	"github.com/example/acadmate/services/forum/internal/config"
	"github.com/example/acadmate/services/forum/internal/handlers"
	"github.com/example/acadmate/services/forum/internal/store"
	"github.com/example/acadmate/services/forum/internal/worker"
	"github.com/example/acadmate/services/forum/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	forum, pool := initStore(cfg, log)

	var (
		nc *nats.Conn
		js nats.JetStreamContext
	)
	if conn, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName}); err != nil {
		log.Warn("nats unavailable, running without events", zap.Error(err))
	} else {
		nc = conn
		if js, err = nc.JetStream(); err != nil {
			log.Warn("jetstream unavailable", zap.Error(err))
			js = nil
		} else {
			ensureStreams(js, log)
		}
	}

	rdb := initRedis(cfg, log)

	// A shared Redis cache needs no peer broadcast; per-instance caches do.
	var (
		threads cache.ThreadCache
		pub     cache.Publisher
	)
	if rdb != nil {
		threads = cache.NewRedisCache(rdb, cfg.CommentCacheTTL)
	} else {
		local, err := cache.NewTTLCache(cfg.CommentCacheTTL, nc, cache.InvalidateSubject)
		if err != nil {
			log.Error("thread cache", zap.Error(err))
			run.Exit(1)
		}
		defer func() { _ = local.Close() }()
		threads = local
		if nc != nil {
			pub = nc
		}
	}

	idem, err := idempotency.NewStore(idempotency.Options{
		Redis:      rdb,
		Pool:       pool,
		TTL:        cfg.IdempotencyTTL,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		log.Error("idempotency store", zap.Error(err))
		run.Exit(1)
	}

	bot := chatbot.New(cfg.ChatbotURL, chatbot.ClientConfig{
		MaxRetries:     cfg.ChatbotMaxRetries,
		RetryBaseDelay: cfg.ChatbotRetryBaseDelay,
		Timeout:        cfg.ChatbotTimeout,
	},
		chatbot.WithLogger(log),
		chatbot.WithCircuitBreaker(chatbot.NewBreaker(chatbot.BreakerConfig{
			MaxRequests:      cfg.CBMaxRequests,
			Interval:         cfg.CBInterval,
			Timeout:          cfg.CBTimeout,
			FailureThreshold: cfg.CBFailureThreshold,
		}, log)),
	)

	deps := handlers.Deps{
		Store:       forum,
		Cache:       threads,
		Invalidator: cache.NewInvalidator(threads, pub, cache.InvalidateSubject, log),
		Idempotency: idem,
		Chatbot:     bot,
		Log:         log,
	}
	if js != nil {
		deps.Analytics = analytics.New(js, log)
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return forum.Ping(ctx)
		},
		Logger:         log,
		AllowedOrigins: cfg.CORSOrigins,
		TrustProxy:     cfg.TrustProxy,
	})
	limiter := httpserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, handlers.UserOrIP)
	handlers.Mount(r, deps, auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}, limiter)

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Handler: r, Logger: log})

	// gRPC health
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go watchHealth(ctx, healthSrv, forum, cfg.ServiceName, log)

		reconciler := worker.NewReconciler(log, forum, cfg.ReconcileInterval)
		go func() { _ = reconciler.Run(ctx) }()

		if js != nil {
			if err := worker.StartReconcileConsumer(ctx, js, forum, log); err != nil {
				log.Warn("reconcile consumer not started", zap.Error(err))
			}
		}
		return srv.Start()
	})

	runner.Graceful(
		func(ctx context.Context) error { return srv.Shutdown(ctx) },
		func(ctx context.Context) error {
			healthSrv.Shutdown()
			stopped := make(chan struct{})
			go func() {
				grpcSrv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				grpcSrv.Stop()
			}
			return nil
		},
		func(context.Context) error {
			if nc != nil {
				return nc.Drain()
			}
			return nil
		},
		func(context.Context) error {
			if rdb != nil {
				return rdb.Close()
			}
			return nil
		},
		func(context.Context) error {
			if pool != nil {
				pool.Close()
			}
			return nil
		},
	)

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStore selects the ForumStore backend. Outside production a missing or
// unreachable database falls back to the in-memory store.
func initStore(cfg config.Config, log *zap.Logger) (store.ForumStore, *pgxpool.Pool) {
	fallback := func(msg string, err error) (store.ForumStore, *pgxpool.Pool) {
		if cfg.IsProduction() {
			log.Error(msg+" (required in production)", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn(msg+", using in-memory forum store (development only)", zap.Error(err))
		return store.NewInMemoryForumStore(), nil
	}

	if cfg.DatabaseURL == "" {
		return fallback("DATABASE_URL not set", nil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fallback("postgres unavailable", err)
	}

	if cfg.AutoMigrate {
		if err := db.MigrateUp(cfg.DatabaseURL, migrations.FS, log); err != nil {
			pool.Close()
			log.Error("migrations failed", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
	}

	log.Info("forum store: postgres")
	return store.NewPostgresForumStore(pool), pool
}

func initRedis(cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL, redis disabled", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Warn("redis ping failed, redis disabled", zap.Error(err))
		return nil
	}
	log.Info("redis connected")
	return client
}

func ensureStreams(js nats.JetStreamContext, log *zap.Logger) {
	if err := natsconn.EnsureStream(js, analytics.Stream, "analytics.>"); err != nil {
		log.Warn("ensure analytics stream", zap.Error(err))
	}
	if err := natsconn.EnsureStream(js, worker.Stream, worker.SubjectReconcile); err != nil {
		log.Warn("ensure forum stream", zap.Error(err))
	}
}

// watchHealth mirrors store reachability into the gRPC health service.
func watchHealth(ctx context.Context, hs *health.Server, st store.ForumStore, service string, log *zap.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		status := healthpb.HealthCheckResponse_SERVING
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := st.Ping(pingCtx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if last != status {
				log.Warn("store ping failed", zap.Error(err))
			}
		}
		cancel()
		if status != last {
			hs.SetServingStatus("", status)
			hs.SetServingStatus(service, status)
			last = status
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
