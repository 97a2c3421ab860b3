package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/regbot/internal/storage"
	"github.com/m3rciful/regbot/internal/storage/storetest"
)

func TestMemoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return storage.NewMemory(nil)
	})
}

func TestTracingContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return storage.WithTracing(storage.NewMemory(nil), "memory")
	})
}

func TestMemoryUsesClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := storage.NewMemory(func() time.Time { return at })
	ctx := context.Background()

	_, err := st.AddRegistration(ctx, storage.NewRegistration{ExternalID: 7})
	require.NoError(t, err)
	reg, err := st.GetRegistration(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, at, reg.RegisteredAt)
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	st := storage.NewMemory(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.AddRegistration(ctx, storage.NewRegistration{ExternalID: 7})
	assert.ErrorIs(t, err, context.Canceled)
	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalUsers)
}
