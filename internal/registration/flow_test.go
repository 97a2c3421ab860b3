package registration_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/regbot/internal/i18n"
	"github.com/m3rciful/regbot/internal/registration"
	"github.com/m3rciful/regbot/internal/storage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	flow  *registration.Flow
	store *storage.Memory
	clock *clock
}

func newHarness(t *testing.T) harness {
	t.Helper()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemory(clk.Now)
	flow, err := registration.New(registration.Options{
		Store:    store,
		Messages: i18n.NewTranslator("ru").For("ru"),
		Now:      clk.Now,
		Location: time.UTC,
	})
	require.NoError(t, err)
	return harness{flow: flow, store: store, clock: clk}
}

func (h harness) send(t *testing.T, userID int64, inputs ...string) registration.Reply {
	t.Helper()
	var last registration.Reply
	for _, in := range inputs {
		var err error
		last, err = h.flow.Handle(context.Background(), userID, in)
		require.NoError(t, err, in)
	}
	return last
}

func (h harness) step(t *testing.T, userID int64) registration.Step {
	t.Helper()
	sess, ok := h.flow.Session(userID)
	require.True(t, ok)
	return sess.Step
}

const uid = int64(100500)

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := registration.New(registration.Options{Messages: i18n.NewTranslator("ru").For("ru")})
	assert.Error(t, err)
	_, err = registration.New(registration.Options{Store: storage.NewMemory(nil)})
	assert.Error(t, err)
}

func TestRegistersNewUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reply, err := h.flow.Start(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "name_request", reply.Key)
	assert.Equal(t, [][]string{{"❌ Отмена"}}, reply.Options)
	assert.True(t, h.flow.Active(uid))

	reply = h.send(t, uid, "Ivan Petrov")
	assert.Contains(t, strings.ToLower(reply.Text), "email")
	reply = h.send(t, uid, "ivan@example.com")
	assert.Contains(t, strings.ToLower(reply.Text), "номер телефона")
	reply = h.send(t, uid, "+79991234567")
	assert.Contains(t, strings.ToLower(reply.Text), "дату рождения")

	reply = h.send(t, uid, "01.01.1990")
	assert.Equal(t, "confirm_summary", reply.Key)
	assert.Contains(t, reply.Text, "подтвердите ваши данные")
	assert.Contains(t, reply.Text, "Имя: Ivan Petrov")
	assert.Contains(t, reply.Text, "Дата рождения: 1 Январь 1990")
	assert.Equal(t, [][]string{{"✅ Подтвердить", "❌ Отмена"}}, reply.Options)

	reply = h.send(t, uid, "✅ Подтвердить")
	assert.Equal(t, "registration_success", reply.Key)
	assert.True(t, reply.Done)
	assert.True(t, reply.RemoveKeyboard)
	assert.False(t, h.flow.Active(uid))

	got, err := h.store.GetRegistration(ctx, uid)
	require.NoError(t, err)
	want := storage.Profile{
		FullName:  "Ivan Petrov",
		Email:     "ivan@example.com",
		Phone:     "+79991234567",
		BirthDate: "01.01.1990",
	}
	if diff := cmp.Diff(want, got.Profile); diff != "" {
		t.Fatalf("stored profile mismatch (-want +got):\n%s", diff)
	}
	stats, err := h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalUsers)
}

func TestRejectsRegisteredUserAtEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.AddRegistration(ctx, storage.NewRegistration{ExternalID: uid})
	require.NoError(t, err)

	reply, err := h.flow.Start(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "already_registered", reply.Key)
	assert.Contains(t, reply.Text, "уже зарегистрированы")
	assert.True(t, reply.Done)
	assert.False(t, h.flow.Active(uid))

	_, err = h.flow.Handle(ctx, uid, "Ivan Petrov")
	assert.ErrorIs(t, err, registration.ErrNoSession)
}

func TestInvalidCalendarDateStaysOnBirthDate(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.Start(context.Background(), uid)
	require.NoError(t, err)
	h.send(t, uid, "Ivan Petrov", "ivan@example.com", "+79991234567")

	reply := h.send(t, uid, "32.13.1990")
	assert.Equal(t, "invalid_date", reply.Key)
	assert.Contains(t, strings.ToLower(reply.Text), "некорректная дата")
	assert.NotContains(t, reply.Text, "будущем")

	sess, ok := h.flow.Session(uid)
	require.True(t, ok)
	assert.Equal(t, registration.StepBirthDate, sess.Step)
	assert.Empty(t, sess.Fields.BirthDate)
}

func TestFutureBirthDate(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.Start(context.Background(), uid)
	require.NoError(t, err)
	h.send(t, uid, "Ivan Petrov", "ivan@example.com", "+79991234567")

	reply := h.send(t, uid, "02.05.2024")
	assert.Equal(t, "invalid_date_future", reply.Key)
	assert.Contains(t, strings.ToLower(reply.Text), "некорректная дата")
	assert.Contains(t, reply.Text, "будущем")
	assert.Equal(t, registration.StepBirthDate, h.step(t, uid))

	// today is accepted
	reply = h.send(t, uid, "01.05.2024")
	assert.Equal(t, "confirm_summary", reply.Key)
	assert.Equal(t, registration.StepConfirm, h.step(t, uid))
}

func TestCancelAtEveryStepDiscardsFields(t *testing.T) {
	inputs := []string{"Ivan Petrov", "ivan@example.com", "+79991234567"}
	steps := []registration.Step{
		registration.StepName,
		registration.StepEmail,
		registration.StepPhone,
		registration.StepBirthDate,
	}
	for i, want := range steps {
		t.Run(want.String(), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			_, err := h.flow.Start(ctx, uid)
			require.NoError(t, err)
			h.send(t, uid, inputs[:i]...)
			first, _ := h.flow.Session(uid)
			assert.Equal(t, want, first.Step)

			reply := h.send(t, uid, h.flow.CancelToken())
			assert.Equal(t, "registration_cancelled", reply.Key)
			assert.Equal(t, "Регистрация отменена.", reply.Text)
			assert.True(t, reply.Done)
			assert.False(t, h.flow.Active(uid))

			_, err = h.flow.Start(ctx, uid)
			require.NoError(t, err)
			fresh, ok := h.flow.Session(uid)
			require.True(t, ok)
			assert.Equal(t, registration.StepName, fresh.Step)
			assert.Equal(t, registration.Fields{}, fresh.Fields)
			assert.NotEqual(t, first.ID, fresh.ID)
		})
	}
}

func TestCancelTokenIsExactBeforeConfirm(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.Start(context.Background(), uid)
	require.NoError(t, err)

	// not the exact token, so it is a valid name
	h.send(t, uid, "отмена")
	sess, _ := h.flow.Session(uid)
	assert.Equal(t, registration.StepEmail, sess.Step)
	assert.Equal(t, "отмена", sess.Fields.FullName)
}

func TestNameStoresExactText(t *testing.T) {
	for _, name := range []string{"Ivan", "  padded  ", "Анна-Мария О'Нил", "✨"} {
		h := newHarness(t)
		_, err := h.flow.Start(context.Background(), uid)
		require.NoError(t, err)
		h.send(t, uid, name)
		sess, _ := h.flow.Session(uid)
		assert.Equal(t, registration.StepEmail, sess.Step)
		assert.Equal(t, name, sess.Fields.FullName)
	}
}

func TestInvalidEmailDoesNotMutateSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.Start(context.Background(), uid)
	require.NoError(t, err)
	h.send(t, uid, "Ivan")
	before, _ := h.flow.Session(uid)

	for _, in := range []string{"plain", "a@b", "@x.y", "a@b@c.d", ""} {
		reply := h.send(t, uid, in)
		assert.Equal(t, "invalid_email", reply.Key, in)
		assert.Contains(t, strings.ToLower(reply.Text), "некорректный email")
		after, _ := h.flow.Session(uid)
		assert.Equal(t, before.Fields, after.Fields)
		assert.Equal(t, registration.StepEmail, after.Step)
	}
}

func TestPhoneKeepsRawText(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.Start(context.Background(), uid)
	require.NoError(t, err)

	reply := h.send(t, uid, "Ivan", "ivan@example.com", "12")
	assert.Equal(t, "invalid_phone", reply.Key)
	assert.Contains(t, strings.ToLower(reply.Text), "некорректный номер")

	h.send(t, uid, "+7 (999) 123-45-67")
	sess, _ := h.flow.Session(uid)
	assert.Equal(t, registration.StepBirthDate, sess.Step)
	assert.Equal(t, "+7 (999) 123-45-67", sess.Fields.Phone)
}

func reachConfirm(t *testing.T, h harness) {
	t.Helper()
	_, err := h.flow.Start(context.Background(), uid)
	require.NoError(t, err)
	h.send(t, uid, "Ivan Petrov", "ivan@example.com", "+79991234567", "12.06.1995")
	require.Equal(t, registration.StepConfirm, h.step(t, uid))
}

func TestConfirmMatchesByContainment(t *testing.T) {
	tests := []struct {
		in      string
		key     string
		stored  bool
		session bool
	}{
		{in: "хочу ПОДТВЕРДИТЬ", key: "registration_success", stored: true},
		{in: "Подтвердить и отмена", key: "registration_success", stored: true},
		{in: "❌ Отмена", key: "registration_cancelled"},
		{in: "ну ОТМЕНА", key: "registration_cancelled"},
		{in: "да", key: "confirm_choice", session: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			h := newHarness(t)
			reachConfirm(t, h)

			reply := h.send(t, uid, tc.in)
			assert.Equal(t, tc.key, reply.Key)
			assert.Equal(t, tc.session, h.flow.Active(uid))

			_, err := h.store.GetRegistration(context.Background(), uid)
			if tc.stored {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, storage.ErrNotFound)
			}
		})
	}
}

func TestConfirmSummaryFormatsMonth(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.Start(context.Background(), uid)
	require.NoError(t, err)
	reply := h.send(t, uid, "Ivan Petrov", "ivan@example.com", "+79991234567", "12.06.1995")
	assert.Contains(t, reply.Text, "Дата рождения: 12 Июнь 1995")
	assert.Contains(t, reply.Text, "Нажмите '✅ Подтвердить' для подтверждения или '❌ Отмена' для отмены.")

	reply = h.send(t, uid, "что?")
	assert.Equal(t, "Пожалуйста, нажмите '✅ Подтвердить' для подтверждения или '❌ Отмена' для отмены.", reply.Text)
	assert.Equal(t, [][]string{{"✅ Подтвердить", "❌ Отмена"}}, reply.Options)
}

func TestDuplicateAtConfirm(t *testing.T) {
	h := newHarness(t)
	reachConfirm(t, h)

	// registered from another conversation in the meantime
	_, err := h.store.AddRegistration(context.Background(), storage.NewRegistration{
		ExternalID: uid,
		Profile:    storage.Profile{FullName: "First"},
	})
	require.NoError(t, err)

	reply := h.send(t, uid, h.flow.ConfirmToken())
	assert.Equal(t, "registration_duplicate", reply.Key)
	assert.True(t, reply.Done)
	assert.False(t, h.flow.Active(uid))

	got, err := h.store.GetRegistration(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, "First", got.FullName)
}

type faultyStore struct {
	lookupErr error
	addErr    error
}

func (f faultyStore) GetRegistration(context.Context, int64) (storage.Registration, error) {
	if f.lookupErr != nil {
		return storage.Registration{}, f.lookupErr
	}
	return storage.Registration{}, storage.ErrNotFound
}

func (f faultyStore) AddRegistration(context.Context, storage.NewRegistration) (int64, error) {
	return 0, f.addErr
}

func newFaultyFlow(t *testing.T, st faultyStore) *registration.Flow {
	t.Helper()
	flow, err := registration.New(registration.Options{
		Store:    st,
		Messages: i18n.NewTranslator("ru").For("ru"),
		Location: time.UTC,
	})
	require.NoError(t, err)
	return flow
}

func TestStoreFaultAtConfirmKeepsSession(t *testing.T) {
	boom := errors.New("disk full")
	flow := newFaultyFlow(t, faultyStore{addErr: boom})
	ctx := context.Background()

	_, err := flow.Start(ctx, uid)
	require.NoError(t, err)
	for _, in := range []string{"Ivan", "ivan@example.com", "+79991234567", "01.01.1990"} {
		_, err = flow.Handle(ctx, uid, in)
		require.NoError(t, err)
	}

	_, err = flow.Handle(ctx, uid, flow.ConfirmToken())
	assert.ErrorIs(t, err, boom)
	sess, ok := flow.Session(uid)
	require.True(t, ok)
	assert.Equal(t, registration.StepConfirm, sess.Step)
	assert.Equal(t, "Ivan", sess.Fields.FullName)
}

func TestLookupFaultAtEntry(t *testing.T) {
	boom := errors.New("connection reset")
	flow := newFaultyFlow(t, faultyStore{lookupErr: boom})

	_, err := flow.Start(context.Background(), uid)
	assert.ErrorIs(t, err, boom)
	assert.False(t, flow.Active(uid))
}

func TestStartDuringDialogRepeatsPrompt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.flow.Start(ctx, uid)
	require.NoError(t, err)
	h.send(t, uid, "Ivan")
	before, _ := h.flow.Session(uid)

	reply, err := h.flow.Start(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "email_request", reply.Key)
	after, _ := h.flow.Session(uid)
	assert.Equal(t, before, after)
}

func TestCancelWithoutSession(t *testing.T) {
	h := newHarness(t)
	reply := h.flow.Cancel(context.Background(), uid)
	assert.Equal(t, "nothing_to_cancel", reply.Key)
	assert.True(t, reply.Done)
}

func TestCancelCommandFromConfirm(t *testing.T) {
	h := newHarness(t)
	reachConfirm(t, h)

	reply := h.flow.Cancel(context.Background(), uid)
	assert.Equal(t, "registration_cancelled", reply.Key)
	assert.False(t, h.flow.Active(uid))
	assert.Zero(t, h.flow.Len())
}

func TestEvictIdleSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.flow.Start(ctx, 1)
	require.NoError(t, err)
	h.clock.Advance(50 * time.Minute)
	_, err = h.flow.Start(ctx, 2)
	require.NoError(t, err)
	h.clock.Advance(20 * time.Minute)

	assert.Equal(t, 1, h.flow.Evict(ctx, time.Hour))
	assert.False(t, h.flow.Active(1))
	assert.True(t, h.flow.Active(2))
}

func TestSessionsAreIndependent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.flow.Start(ctx, 1)
	require.NoError(t, err)
	_, err = h.flow.Start(ctx, 2)
	require.NoError(t, err)

	h.send(t, 1, "Alice")
	assert.Equal(t, registration.StepEmail, h.step(t, 1))
	assert.Equal(t, registration.StepName, h.step(t, 2))
}
