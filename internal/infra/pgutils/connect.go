package pgutils

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/billwallet/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Connect opens a pool sized from cfg, retrying the initial ping with a
// doubling delay while the database comes up.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	delay := cfg.ConnectBackoff
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	attempts := max(cfg.ConnectAttempts, 1)

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := OpenDB(ctx, cfg.DSN)
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

			return db, nil
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		slog.Warn("database not ready", "attempt", attempt, "retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
	}

	return nil, fmt.Errorf("connect after retries: %w", lastErr)
}
