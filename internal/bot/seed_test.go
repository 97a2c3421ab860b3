package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/m3rciful/regbot/internal/config"
	"github.com/m3rciful/regbot/internal/storage"
)

func TestDemoSeederDefaults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory(nil)
	seeder := DemoSeeder(nil, time.UTC)

	require.NoError(t, seeder.Seed(ctx, store))
	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Конференция разработчиков", events[0].Title)
	assert.Equal(t, time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC), events[0].Date.UTC())
	assert.Equal(t, `Кафе "Уголок", Невский проспект, 50`, events[2].Location)

	// a second start keeps the existing rows
	require.NoError(t, seeder.Seed(ctx, store))
	events, err = store.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestDemoSeederConfiguredEvents(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory(nil)
	seeder := DemoSeeder([]appconfig.SeedEvent{{Title: "Meetup", Date: "25.12.2024"}}, time.UTC)

	require.NoError(t, seeder.Seed(ctx, store))
	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC), events[0].Date.UTC())
}

func TestDemoSeederErrors(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, DemoSeeder(nil, time.UTC).Seed(ctx, "not a store"))

	bad := DemoSeeder([]appconfig.SeedEvent{{Title: "x", Date: "someday"}}, time.UTC)
	assert.Error(t, bad.Seed(ctx, storage.NewMemory(nil)))
}
