package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredatabase "github.com/m3rciful/regbot/core/database"
	"github.com/m3rciful/regbot/internal/storage"
	"github.com/m3rciful/regbot/internal/storage/sqlstore"
	"github.com/m3rciful/regbot/internal/storage/storetest"
	"github.com/m3rciful/regbot/migrations"
)

func openSQLite(t *testing.T, opts ...sqlstore.Option) *sqlstore.Store {
	t.Helper()
	cfg := coredatabase.Config{
		Driver: coredatabase.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "regbot.db"),
	}
	require.NoError(t, coredatabase.RunMigrations(cfg, migrations.FS))
	db, err := coredatabase.Connect(cfg)
	require.NoError(t, err)
	st := sqlstore.New(db, opts...)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return openSQLite(t)
	})
}

func TestSQLiteTimestampsFollowClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	st := openSQLite(t, sqlstore.WithClock(func() time.Time { return at }))
	ctx := context.Background()

	_, err := st.AddRegistration(ctx, storage.NewRegistration{
		ExternalID: 1,
		Profile:    storage.Profile{FullName: "Ivan", Email: "i@e.co", Phone: "+79991234567", BirthDate: "01.01.1990"},
	})
	require.NoError(t, err)
	reg, err := st.GetRegistration(ctx, 1)
	require.NoError(t, err)
	assert.True(t, reg.RegisteredAt.Equal(at), "registered_at = %v", reg.RegisteredAt)
	assert.Equal(t, "01.01.1990", reg.BirthDate)
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	migratePostgres(t, dsn)

	storetest.Run(t, func(t *testing.T) storage.Store {
		db, err := sqlx.Connect("postgres", dsn)
		require.NoError(t, err)
		_, err = db.Exec(`TRUNCATE event_registrations, events, users RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		st := sqlstore.New(db)
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func migratePostgres(t *testing.T, dsn string) {
	t.Helper()
	src, err := iofs.New(migrations.FS, coredatabase.DriverPostgres)
	require.NoError(t, err)
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	require.NoError(t, err)
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatal(fmt.Errorf("migrate: %w", err))
	}
}
