// Package storetest holds the behavioural contract every storage.Store must satisfy.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/regbot/internal/storage"
)

// Factory returns a fresh, empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) storage.Store

var ivan = storage.NewRegistration{
	ExternalID: 1001,
	Profile: storage.Profile{
		FullName:  "Ivan Petrov",
		Email:     "ivan@example.com",
		Phone:     "+79991234567",
		BirthDate: "01.01.1990",
	},
}

// Run executes the whole contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("AddRegistrationDuplicate", func(t *testing.T) { testAddDuplicate(t, newStore(t)) })
	t.Run("AddRegistrationConcurrent", func(t *testing.T) { testAddConcurrent(t, newStore(t)) })
	t.Run("GetRegistrationNotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("UpdateRegistration", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore(t)) })
	t.Run("ListEventsOrdered", func(t *testing.T) { testListEvents(t, newStore(t)) })
	t.Run("RegisterForEventIdempotent", func(t *testing.T) { testRegisterForEvent(t, newStore(t)) })
	t.Run("RegisterForEventUnknown", func(t *testing.T) { testRegisterUnknown(t, newStore(t)) })
	t.Run("EventRosters", func(t *testing.T) { testRosters(t, newStore(t)) })
}

func testAddDuplicate(t *testing.T, st storage.Store) {
	ctx := context.Background()
	id, err := st.AddRegistration(ctx, ivan)
	require.NoError(t, err)
	assert.Positive(t, id)

	second := ivan
	second.FullName = "Someone Else"
	second.Email = "else@example.com"
	_, err = st.AddRegistration(ctx, second)
	require.ErrorIs(t, err, storage.ErrAlreadyRegistered)

	got, err := st.GetRegistration(ctx, ivan.ExternalID)
	require.NoError(t, err)
	want := storage.Registration{ID: id, ExternalID: ivan.ExternalID, Profile: ivan.Profile}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(storage.Registration{}, "RegisteredAt")); diff != "" {
		t.Fatalf("stored registration mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got.RegisteredAt.IsZero())
}

func testAddConcurrent(t *testing.T, st storage.Store) {
	ctx := context.Background()
	const workers = 8
	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		dupes   atomic.Int32
		unknown atomic.Value
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.AddRegistration(ctx, ivan)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, storage.ErrAlreadyRegistered):
				dupes.Add(1)
			default:
				unknown.Store(err)
			}
		}()
	}
	wg.Wait()
	if err, _ := unknown.Load().(error); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(workers-1), dupes.Load())

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalUsers)
}

func testNotFound(t *testing.T, st storage.Store) {
	_, err := st.GetRegistration(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdate(t *testing.T, st storage.Store) {
	ctx := context.Background()
	require.NoError(t, st.UpdateRegistration(ctx, 555, storage.Profile{FullName: "Ghost"}))
	_, err := st.GetRegistration(ctx, 555)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.AddRegistration(ctx, ivan)
	require.NoError(t, err)
	updated := storage.Profile{
		FullName:  "Ivan P.",
		Email:     "ivan.p@example.com",
		Phone:     "8 (999) 123-45-67",
		BirthDate: "02.02.1991",
	}
	require.NoError(t, st.UpdateRegistration(ctx, ivan.ExternalID, updated))
	got, err := st.GetRegistration(ctx, ivan.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, updated, got.Profile)
}

func testStats(t *testing.T, st storage.Store) {
	ctx := context.Background()
	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Stats{}, stats)

	regID, err := st.AddRegistration(ctx, ivan)
	require.NoError(t, err)
	evID, err := st.AddEvent(ctx, storage.NewEvent{Title: "Meetup", Date: time.Date(2030, 1, 10, 18, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, st.RegisterForEvent(ctx, regID, evID))

	stats, err = st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Stats{TotalUsers: 1, TotalEvents: 1, TotalRegistrations: 1}, stats)
}

func testListEvents(t *testing.T, st storage.Store) {
	ctx := context.Background()
	evs, err := st.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, evs)

	late := storage.NewEvent{Title: "Hackathon", Description: "48h", Date: time.Date(2031, 3, 1, 9, 0, 0, 0, time.UTC), Location: "Hall B"}
	early := storage.NewEvent{Title: "Meetup", Date: time.Date(2030, 1, 10, 18, 30, 0, 0, time.UTC), Location: "Room 1"}
	_, err = st.AddEvent(ctx, late)
	require.NoError(t, err)
	_, err = st.AddEvent(ctx, early)
	require.NoError(t, err)

	evs, err = st.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "Meetup", evs[0].Title)
	assert.True(t, evs[0].Date.Equal(early.Date), "date round trip: %v", evs[0].Date)
	assert.Equal(t, "Hackathon", evs[1].Title)
	assert.Equal(t, "48h", evs[1].Description)
	assert.Equal(t, "Hall B", evs[1].Location)
	assert.False(t, evs[1].CreatedAt.IsZero())
}

func testRegisterForEvent(t *testing.T, st storage.Store) {
	ctx := context.Background()
	regID, err := st.AddRegistration(ctx, ivan)
	require.NoError(t, err)
	evID, err := st.AddEvent(ctx, storage.NewEvent{Title: "Meetup", Date: time.Date(2030, 1, 10, 18, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	require.NoError(t, st.RegisterForEvent(ctx, regID, evID))
	require.NoError(t, st.RegisterForEvent(ctx, regID, evID))

	joined, err := st.RegistrationsForUser(ctx, regID)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, evID, joined[0].EventID)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRegistrations)
}

func testRegisterUnknown(t *testing.T, st storage.Store) {
	ctx := context.Background()
	regID, err := st.AddRegistration(ctx, ivan)
	require.NoError(t, err)
	evID, err := st.AddEvent(ctx, storage.NewEvent{Title: "Meetup", Date: time.Date(2030, 1, 10, 18, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	assert.ErrorIs(t, st.RegisterForEvent(ctx, regID, evID+100), storage.ErrEventNotFound)
	assert.ErrorIs(t, st.RegisterForEvent(ctx, regID+100, evID), storage.ErrNotFound)
}

func testRosters(t *testing.T, st storage.Store) {
	ctx := context.Background()
	anna := storage.NewRegistration{
		ExternalID: 2002,
		Profile:    storage.Profile{FullName: "Anna", Email: "anna@example.com", Phone: "+4930123456", BirthDate: "15.06.1995"},
	}
	ivanID, err := st.AddRegistration(ctx, ivan)
	require.NoError(t, err)
	annaID, err := st.AddRegistration(ctx, anna)
	require.NoError(t, err)

	meetup, err := st.AddEvent(ctx, storage.NewEvent{Title: "Meetup", Date: time.Date(2030, 1, 10, 18, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	workshop, err := st.AddEvent(ctx, storage.NewEvent{Title: "Workshop", Date: time.Date(2029, 12, 1, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	require.NoError(t, st.RegisterForEvent(ctx, ivanID, meetup))
	require.NoError(t, st.RegisterForEvent(ctx, ivanID, workshop))
	require.NoError(t, st.RegisterForEvent(ctx, annaID, meetup))

	joined, err := st.RegistrationsForUser(ctx, ivanID)
	require.NoError(t, err)
	require.Len(t, joined, 2)
	assert.Equal(t, "Workshop", joined[0].Title)
	assert.Equal(t, "Meetup", joined[1].Title)

	attendees, err := st.RegistrationsForEvent(ctx, meetup)
	require.NoError(t, err)
	names := make([]string, 0, len(attendees))
	for _, a := range attendees {
		names = append(names, a.FullName)
		assert.False(t, a.RegisteredAt.IsZero())
	}
	assert.ElementsMatch(t, []string{"Ivan Petrov", "Anna"}, names)

	empty, err := st.RegistrationsForUser(ctx, 9999)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
