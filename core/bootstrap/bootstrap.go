// Package bootstrap prepares process infrastructure before the bot starts:
// logger, database schema, connection, storage and seed data.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/regbot/core/config"
	coredatabase "github.com/m3rciful/regbot/core/database"
	"github.com/m3rciful/regbot/core/logger"
)

type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	// SkipDatabase skips migrate and connect, e.g. for in-memory storage.
	SkipDatabase bool
	// Migrations holds one migration directory per driver.
	Migrations fs.FS

	// Overridable steps; nil selects the real implementation.
	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config, fs.FS) error
	// OpenStorage receives a nil db when SkipDatabase is set.
	OpenStorage func(db *sqlx.DB) (Storage, error)

	Modules Modules
}

// Result is what the pipeline built. The caller owns both handles.
type Result struct {
	DB      *sqlx.DB
	Storage Storage
}

// Run executes the pipeline in order and releases whatever it opened when a
// later step fails.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	opts.defaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}

	res := &Result{}
	if !opts.SkipDatabase {
		if err := opts.Migrate(opts.Database, opts.Migrations); err != nil {
			return nil, fmt.Errorf("bootstrap: migrate: %w", err)
		}
		db, err := opts.Connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect: %w", err)
		}
		res.DB = db
	}

	if opts.OpenStorage != nil {
		st, err := opts.OpenStorage(res.DB)
		if err != nil {
			res.release()
			return nil, fmt.Errorf("bootstrap: storage: %w", err)
		}
		res.Storage = st
	}

	for i, s := range opts.Modules.Seeders {
		if s == nil {
			continue
		}
		start := time.Now()
		if err := s.Seed(ctx, res.Storage); err != nil {
			logger.Error(ctx, "db.seed", "seed.run",
				slog.String("status", "fail"),
				slog.Int("count", i),
				slog.String("err", err.Error()),
			)
			res.release()
			return nil, fmt.Errorf("bootstrap: seeder %d: %w", i, err)
		}
		logger.Debug(ctx, "db.seed", "seed.run",
			slog.String("status", "ok"),
			slog.Int("count", i),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return res, nil
}

func (o *Options) defaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
}

func (r *Result) release() {
	if c, ok := r.Storage.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
}
