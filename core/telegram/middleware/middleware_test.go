package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	user   *tele.User
	update tele.Update
	store  map[string]any
	sent   int
}

func newFake(userID int64) *fakeContext {
	return &fakeContext{user: &tele.User{ID: userID}, store: map[string]any{}}
}

func (f *fakeContext) Sender() *tele.User       { return f.user }
func (f *fakeContext) Chat() *tele.Chat         { return &tele.Chat{ID: 9} }
func (f *fakeContext) Update() tele.Update      { return f.update }
func (f *fakeContext) Callback() *tele.Callback { return f.update.Callback }
func (f *fakeContext) Text() string             { return "" }
func (f *fakeContext) Get(k string) any         { return f.store[k] }
func (f *fakeContext) Set(k string, v any)      { f.store[k] = v }
func (f *fakeContext) Send(any, ...any) error   { f.sent++; return nil }

func (f *fakeContext) Respond(...*tele.CallbackResponse) error { return nil }

func TestRecoverConvertsPanic(t *testing.T) {
	h := Recover(func(tele.Context) error { panic("boom") })
	err := h(newFake(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRateLimitPerUser(t *testing.T) {
	now := time.Unix(1000, 0)
	limited := 0
	mw := RateLimit(RateLimitOptions{
		Interval:  time.Second,
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return now },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	c := newFake(1)
	c.update.Message = &tele.Message{}
	require.NoError(t, h(c))
	require.NoError(t, h(c))
	require.NoError(t, h(newFake(2)))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, limited)

	now = now.Add(time.Second)
	require.NoError(t, h(c))
	assert.Equal(t, 3, calls)
}

func TestRateLimitExcludedKind(t *testing.T) {
	mw := RateLimit(RateLimitOptions{Interval: time.Hour, Exclude: []string{"callback"}})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })
	c := newFake(1)
	c.update.Callback = &tele.Callback{Data: "\fx"}
	for range 3 {
		require.NoError(t, h(c))
	}
	assert.Equal(t, 3, calls)
}

func TestAdminOnly(t *testing.T) {
	rejected := 0
	mw := AdminOnly(func(id int64) bool { return id == 1 }, func(tele.Context) error {
		rejected++
		return nil
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(newFake(1)))
	require.NoError(t, h(newFake(2)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rejected)

	require.NoError(t, AdminOnly(nil, nil)(h)(newFake(1)))
	assert.Equal(t, 1, calls)
}

func TestCountReplies(t *testing.T) {
	c := newFake(1)
	h := CountReplies(func(c tele.Context) error {
		if err := c.Send("plain"); err != nil {
			return err
		}
		return c.Send("menu", &tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{RemoveKeyboard: true}})
	})
	require.NoError(t, h(c))
	k := CountersOf(c)
	assert.Equal(t, 2, k.Messages())
	assert.True(t, k.Keyboard())
	assert.Equal(t, 2, c.sent)

	assert.Zero(t, CountersOf(newFake(2)).Messages())
}

func TestTraceStoresContextOnce(t *testing.T) {
	c := newFake(1)
	c.update.ID = 5
	wantErr := errors.New("handler")
	depth := 0
	inner := Trace(func(tele.Context) error { depth++; return wantErr })
	err := Trace(func(c tele.Context) error { depth++; return inner(c) })(c)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 2, depth)
	assert.NotNil(t, c.Get("regbot.ctx"))
}
