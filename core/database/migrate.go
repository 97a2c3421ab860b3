package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // migrate driver
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"   // migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/regbot/core/logger"
)

const readyTimeout = 30 * time.Second

// RunMigrations applies every pending up migration for cfg's driver.
// source holds one directory per driver ("postgres", "sqlite").
func RunMigrations(cfg Config, source fs.FS) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if source == nil {
		return errors.New("migrations: nil source")
	}
	ctx := logger.Background()
	driver := cfg.DriverName()

	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	err := WaitReady(waitCtx, cfg)
	cancel()
	if err != nil {
		return migrateFailed(ctx, "wait", err)
	}

	files := upFiles(source, driver)
	preview, cut := logger.Preview(files, 6)
	logger.Debug(ctx, "db.migrate", "migrate.resolve",
		slog.String("driver", driver),
		slog.Int("count", len(files)),
		slog.String("files", preview),
		slog.Bool("truncated", cut),
	)

	src, err := iofs.New(source, driver)
	if err != nil {
		return migrateFailed(ctx, "source", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL())
	if err != nil {
		return migrateFailed(ctx, "init", err)
	}
	defer func() {
		if err := errors.Join(m.Close()); err != nil {
			logger.Warn(ctx, "db.migrate", "migrate.close", slog.String("err", err.Error()))
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return migrateFailed(ctx, "apply", err)
	}
	to, _, _ := m.Version()

	applied := between(files, uint64(from), uint64(to))
	if len(applied) > 0 {
		preview, cut := logger.Preview(applied, 6)
		logger.Debug(ctx, "db.migrate", "migrate.apply",
			slog.String("files", preview),
			slog.Bool("truncated", cut),
		)
	}
	logger.Info(ctx, "db.migrate", "migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("count", len(applied)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func migrateFailed(ctx context.Context, stage string, err error) error {
	logger.Error(ctx, "db.migrate", "migrate."+stage,
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("migrations %s: %w", stage, err)
}

// upFiles lists the *.up.sql names under dir in version order.
func upFiles(source fs.FS, dir string) []string {
	matches, err := fs.Glob(source, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, path.Base(m))
	}
	slices.SortFunc(names, func(a, b string) int {
		if va, vb := fileVersion(a), fileVersion(b); va != vb {
			if va < vb {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	return names
}

func fileVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// between returns the files with from < version <= to.
func between(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := fileVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
