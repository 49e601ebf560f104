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
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/httpserver"
	"github.com/WamalwaSydney/civicpulse/internal/adapter/metrics"
	"github.com/WamalwaSydney/civicpulse/internal/adapter/postgres"
	"github.com/WamalwaSydney/civicpulse/internal/adapter/redis"
	"github.com/WamalwaSydney/civicpulse/internal/app"
	"github.com/WamalwaSydney/civicpulse/internal/classifier"
	"github.com/WamalwaSydney/civicpulse/internal/platform/config"
	"github.com/WamalwaSydney/civicpulse/internal/platform/crypto"
	"github.com/WamalwaSydney/civicpulse/internal/platform/logging"
	"github.com/WamalwaSydney/civicpulse/internal/platform/retry"
	"github.com/WamalwaSydney/civicpulse/internal/platform/version"
)

const (
	shutdownTimeout = 10 * time.Second
	trendingJob     = "trending"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not initialized yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupDB retries the initial connect so the server survives a database that
// is still starting, then applies migrations under the advisory lock.
func setupDB(cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tracer := postgres.NewMetricsTracer(metrics.NewDBMetrics(reg))
	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Clock:          clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Database not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	pool, err := retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, tracer)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m := metrics.NewRedisMetrics(reg)
	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(m), redis.NewCircuitBreakerHook(m))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupContactCipher(cfg *config.Config) crypto.Cipher {
	if cfg.ContactEncryptionKey == "" {
		if cfg.IsProduction() {
			slog.Warn("CONTACT_ENCRYPTION_KEY not set, feedback contacts are stored in plaintext")
		}
		return crypto.Plaintext{}
	}
	cipher, err := crypto.NewAESGCM(cfg.ContactEncryptionKey)
	if err != nil {
		slog.Error("Failed to create contact cipher", "error", err)
		os.Exit(1)
	}
	return cipher
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func runGracefulShutdown(srv *httpserver.Server, stopTicker context.CancelFunc, lease *redis.LeaderLease) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		stopTicker()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := lease.Release(shutdownCtx); err != nil {
			slog.Warn("Failed to release trending lease", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()

	pool := setupDB(cfg, reg, clock)
	defer pool.Close()

	redisClient := setupRedis(cfg, reg)
	defer func() { _ = redisClient.Close() }()

	feedbackRepo := postgres.NewFeedbackRepo(pool, setupContactCipher(cfg))
	pollRepo := postgres.NewPollRepo(pool)
	alertRepo := postgres.NewAlertRepo(pool)

	voteMetrics := metrics.NewVoteMetrics(reg)
	feedbackMetrics := metrics.NewFeedbackMetrics(reg)
	pollRepo.OnRepair = func(pollID uuid.UUID) {
		voteMetrics.OptionsRepaired.WithLabelValues("read").Inc()
		slog.Debug("Repaired poll options on read", "poll_id", pollID.String())
	}

	clf := classifier.New(classifier.DefaultLexicon(), classifier.NewVaderScorer(), classifier.Config{
		AdjustmentWeight:  cfg.ClassifierAdjustmentWeight,
		CategoryThreshold: cfg.ClassifierCategoryThreshold,
	})

	feedbackSvc := app.NewFeedbackService(feedbackRepo, clf, feedbackMetrics, clock)
	pollSvc := app.NewPollService(
		pollRepo,
		redis.NewVoteDeduper(redisClient),
		redis.NewTallyCache(redisClient, 0),
		voteMetrics,
		metrics.NewCacheMetrics(reg),
		clock,
		cfg.VoteDedupeTTL,
	)
	alertSvc := app.NewAlertService(feedbackRepo, alertRepo, feedbackMetrics, clock, cfg.TrendingWindow, cfg.TrendingThreshold)
	dashboardSvc := app.NewDashboardService(feedbackRepo, pollSvc, alertSvc, clock)

	lease := redis.NewLeaderLease(redisClient, trendingJob, instanceID(), 2*cfg.TrendingInterval)
	tickerCtx, stopTicker := context.WithCancel(context.Background())
	go app.NewTrendingTicker(alertSvc, lease, clock, cfg.TrendingInterval).Run(tickerCtx)

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }, Optional: true},
	}

	services := httpserver.Services{
		Feedback:  feedbackSvc,
		Polls:     pollSvc,
		Alerts:    alertSvc,
		Dashboard: dashboardSvc,
	}
	if cfg.RateLimitShared {
		services.RateLimits = redis.NewRateLimitStore(redisClient, clock, cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}

	srv := httpserver.NewServer(cfg, services, metrics.NewHTTPMetrics(reg), metrics.Handler(reg), healthChecks)

	done := runGracefulShutdown(srv, stopTicker, lease)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
