package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"     // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/m3rciful/regbot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	readyPoll      = 2 * time.Second
)

// Connect opens a pool for cfg and pings it. SQLite gets a single connection
// because the engine serializes writers anyway.
func Connect(cfg Config) (*sqlx.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, cfg.DriverName(), cfg.DSN())
	if err != nil {
		logger.Error(ctx, "db", "db.connect", cfg.logAttrs(
			slog.String("status", "fail"),
			slog.Duration("duration", time.Since(start)),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if cfg.DriverName() == DriverSQLite {
		pool = 1
	}
	if pool > 0 {
		db.SetMaxOpenConns(pool)
		db.SetMaxIdleConns(pool)
	}
	logger.Info(ctx, "db", "db.connect", cfg.logAttrs(
		slog.String("status", "ok"),
		slog.Int("pool_open", pool),
		slog.Duration("duration", time.Since(start)),
	)...)
	return db, nil
}

// logAttrs describes the target without credentials.
func (c Config) logAttrs(extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{slog.String("driver", c.DriverName())}
	if c.DriverName() == DriverSQLite {
		attrs = append(attrs, slog.String("db", c.Path))
	} else {
		attrs = append(attrs,
			slog.String("host", c.Host),
			slog.String("port", c.Port),
			slog.String("db", c.Name),
		)
	}
	return append(attrs, extra...)
}

// WaitReady pings the server until it answers or ctx expires.
// SQLite is always ready.
func WaitReady(ctx context.Context, cfg Config) error {
	if cfg.DriverName() == DriverSQLite {
		return nil
	}
	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()
	attempts := 0
	for {
		attempts++
		err := ping(ctx, cfg)
		if err == nil {
			return nil
		}
		logger.Debug(ctx, "db", "db.wait", slog.String("status", "retry"),
			slog.Int("attempts", attempts), slog.String("err", err.Error()))
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
		case <-ticker.C:
		}
	}
}

func ping(ctx context.Context, cfg Config) error {
	pctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	db, err := sqlx.ConnectContext(pctx, cfg.DriverName(), cfg.DSN())
	if err != nil {
		return err
	}
	return db.Close()
}
