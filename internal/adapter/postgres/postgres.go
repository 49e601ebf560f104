package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

// Schema files live in migrations/ as NNN_name.sql in tern format: the
// forward DDL, a "---- create above / drop below ----" line, then the
// rollback. They are applied in file-number order.
//
//go:embed migrations/*.sql
var schemaFiles embed.FS

const (
	schemaVersionTable = "public.schema_version"

	// schemaLockKey is hashed by Postgres into the advisory lock that
	// serializes migrations across server replicas and cmd/repair-polls.
	schemaLockKey     = "civicpulse:schema"
	schemaLockTimeout = 5 * time.Second
)

// Connect opens a pool and pings it. tracer may be nil.
func Connect(ctx context.Context, databaseURL string, tracer pgx.QueryTracer) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if tracer != nil {
		poolCfg.ConnConfig.Tracer = tracer
	}

	mode, plaintextRemote := sslPosture(databaseURL)
	if plaintextRemote {
		slog.Warn("Database connection to a remote host is unencrypted; feedback contacts travel in the clear", "sslmode", mode)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"sslmode", mode,
		"max_conns", poolCfg.MaxConns)
	return pool, nil
}

// sslPosture returns the effective sslmode and whether the URL points at a
// non-loopback host with TLS switched off.
func sslPosture(databaseURL string) (mode string, plaintextRemote bool) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown", false
	}
	mode = strings.ToLower(u.Query().Get("sslmode"))
	if mode == "" {
		mode = "prefer"
	}
	if mode != "disable" {
		return mode, false
	}

	host := u.Hostname()
	if host == "" || host == "localhost" {
		return mode, false
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return mode, false
	}
	return mode, true
}

// RunMigrationsWithLock brings the schema up to the newest file in
// migrations/. Concurrent callers wait on the advisory lock and then find
// nothing left to apply.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", schemaLockKey); err != nil {
		return fmt.Errorf("failed to acquire schema lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), schemaLockTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock(hashtext($1))", schemaLockKey); err != nil {
			slog.Error("Failed to release schema lock", "error", err)
		}
	}()

	return migrateSchema(ctx, conn.Conn())
}

func migrateSchema(ctx context.Context, conn *pgx.Conn) error {
	files, err := fs.Sub(schemaFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewMigrator(ctx, conn, schemaVersionTable)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.LoadMigrations(files); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	target := int32(len(m.Migrations))
	from, err := m.GetCurrentVersion(ctx)
	if err != nil {
		// fresh database: the version table is created by Migrate
		from = 0
	}
	if from == target {
		slog.Info("Database schema up to date", "version", from)
		return nil
	}

	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema from version %d to %d: %w", from, target, err)
	}
	slog.Info("Database schema migrated", "from", from, "to", target)
	return nil
}
