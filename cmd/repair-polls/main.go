// Command repair-polls rewrites stored poll options into canonical
// {id, text, votes} form. Reads already repair in memory; this makes the fix
// permanent for every row in one pass.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/postgres"
	"github.com/WamalwaSydney/civicpulse/internal/adapter/redis"
	"github.com/WamalwaSydney/civicpulse/internal/app"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/platform/logging"
)

const runTimeout = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		redisURL    = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL for tally cache invalidation (optional, or set REDIS_URL env)")
		dryRun      = flag.Bool("dry-run", false, "Report polls that need repair without writing")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
		format      = flag.String("log-format", "text", "Log format: text, json or tint")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Database URL required (--database or DATABASE_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, *format)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, *databaseURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	var cache domain.TallyCache
	if *redisURL != "" && !*dryRun {
		rdb, err := redis.NewClient(ctx, *redisURL)
		if err != nil {
			slog.Warn("Redis unavailable, cached tallies will expire on their own", "error", err)
		} else {
			defer func() { _ = rdb.Close() }()
			cache = redis.NewTallyCache(rdb, 0)
		}
	}

	svc := app.NewPollService(postgres.NewPollRepo(pool), nil, cache, nil, nil, clockwork.NewRealClock(), 0)

	start := time.Now()
	report, err := svc.RepairAll(ctx, *dryRun)
	if err != nil {
		log.Fatalf("Repair failed: %v", err)
	}

	for _, id := range report.FixedIDs {
		slog.Debug("Repaired poll", "poll_id", id.String())
	}
	slog.Info("Repair complete",
		"total", report.Total,
		"fixed", report.Fixed,
		"dry_run", report.DryRun,
		"duration", time.Since(start))
}
