package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tg "github.com/m3rciful/regbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	user      *tele.User
	text      string
	cb        *tele.Callback
	store     map[string]any
	responded int
}

func newFake(userID int64, text string) *fakeContext {
	return &fakeContext{user: &tele.User{ID: userID}, text: text, store: map[string]any{}}
}

func (f *fakeContext) Sender() *tele.User       { return f.user }
func (f *fakeContext) Chat() *tele.Chat         { return &tele.Chat{ID: f.user.ID} }
func (f *fakeContext) Update() tele.Update      { return tele.Update{ID: 3} }
func (f *fakeContext) Text() string             { return f.text }
func (f *fakeContext) Callback() *tele.Callback { return f.cb }
func (f *fakeContext) Get(k string) any         { return f.store[k] }
func (f *fakeContext) Set(k string, v any)      { f.store[k] = v }
func (f *fakeContext) Respond(...*tele.CallbackResponse) error {
	f.responded++
	return nil
}

type dialog struct {
	active  map[int64]bool
	handled []string
}

func (d *dialog) InProgress(id int64) bool { return d.active[id] }
func (d *dialog) HandleUpdate(c tele.Context) error {
	d.handled = append(d.handled, c.Text())
	return nil
}

func handlerFor(t *testing.T, routes []tg.Route, endpoint any) tele.HandlerFunc {
	t.Helper()
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	t.Fatalf("no route for %v", endpoint)
	return nil
}

func TestTextRoutesPrecedence(t *testing.T) {
	reg := tg.NewRegistry()
	var ran []string
	reg.RegisterCommand("/help", tg.Command{Description: "help", Handler: func(tele.Context) error {
		ran = append(ran, "help")
		return nil
	}})
	conv := &dialog{active: map[int64]bool{1: true}}
	fb := Fallbacks{Text: func(tele.Context) error { ran = append(ran, "fallback"); return nil }}
	onText := handlerFor(t, TextRoutes(conv, reg, fb), tele.OnText)

	require.NoError(t, onText(newFake(1, "/help")))
	assert.Equal(t, []string{"/help"}, conv.handled)
	assert.Empty(t, ran)

	require.NoError(t, onText(newFake(2, "/help")))
	require.NoError(t, onText(newFake(2, "hello")))
	assert.Equal(t, []string{"help", "fallback"}, ran)
}

func TestDocumentWithoutFallbackIsSkipped(t *testing.T) {
	onDoc := handlerFor(t, TextRoutes(nil, nil, Fallbacks{}), tele.OnDocument)
	assert.NoError(t, onDoc(newFake(1, "")))
}

func TestCommandRoutesGateAdmins(t *testing.T) {
	reg := tg.NewRegistry()
	calls := 0
	reg.RegisterCommand("/stats", tg.Command{Description: "stats", AdminOnly: true, Handler: func(tele.Context) error {
		calls++
		return nil
	}})
	rejected := 0
	routes := CommandRoutes(reg, func(id int64) bool { return id == 7 }, func(tele.Context) error {
		rejected++
		return nil
	})
	require.Len(t, routes, 1)
	h := handlerFor(t, routes, "/stats")
	require.NoError(t, h(newFake(7, "/stats")))
	require.NoError(t, h(newFake(8, "/stats")))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rejected)
}

func TestCallbackRouteDispatch(t *testing.T) {
	reg := tg.NewRegistry()
	var payloads []string
	require.NoError(t, reg.RegisterCallback("event_join", func(c tele.Context) error {
		payloads = append(payloads, c.Callback().Data)
		return nil
	}))
	unknown := 0
	route := CallbackRoute(reg, func(tele.Context) error { unknown++; return nil })

	c := newFake(1, "")
	c.cb = &tele.Callback{Unique: "event_join", Data: "4"}
	require.NoError(t, route.Handler(c))
	assert.Equal(t, []string{"4"}, payloads)
	assert.Equal(t, 1, c.responded)

	c.cb = &tele.Callback{Data: "\fgone|1"}
	require.NoError(t, route.Handler(c))
	assert.Equal(t, 1, unknown)
}

type codedErr struct{}

func (codedErr) Error() string { return "x" }
func (codedErr) Code() string  { return "bad input" }

type plainErr struct{}

func (*plainErr) Error() string { return "y" }

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "BAD_INPUT", errorCode(codedErr{}))
	assert.Equal(t, "PLAINERR", errorCode(&plainErr{}))
	assert.Equal(t, "ERRORSTRING", errorCode(errors.New("z")))
	assert.Equal(t, "stats", handlerName(" /Stats "))
	assert.Equal(t, "unknown", handlerName(""))
}
