package router

import (
	"log/slog"

	"github.com/m3rciful/regbot/core/logger"
	tg "github.com/m3rciful/regbot/core/telegram"
	"github.com/m3rciful/regbot/core/telegram/callbacks"
	"github.com/m3rciful/regbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversation receives free-form updates while a user has a dialog in progress.
type Conversation interface {
	InProgress(userID int64) bool
	HandleUpdate(c tele.Context) error
}

func active(conv Conversation, c tele.Context) bool {
	return conv != nil && c.Sender() != nil && conv.InProgress(c.Sender().ID)
}

// CommandRoutes exposes every registered command. Admin-only commands are
// gated by isAdmin and rejected senders are passed to onReject.
func CommandRoutes(reg *tg.Registry, isAdmin func(int64) bool, onReject tele.HandlerFunc) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	gate := middleware.AdminOnly(isAdmin, onReject)
	routes := make([]tg.Route, 0, len(cmds))
	for endpoint, cmd := range cmds {
		name, h := handlerName(endpoint), cmd.Handler
		if cmd.AdminOnly {
			h = gate(h)
		}
		routes = append(routes, tg.Route{
			Endpoint: endpoint,
			Handler:  func(c tele.Context) error { return run(c, name, h) },
		})
	}
	logger.Info(logger.Background(), "tg", "tg.wire",
		slog.String("status", "ok"),
		slog.Int("count", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

// TextRoutes handles text and documents. An active conversation takes
// precedence, then a command typed as plain text, then the fallbacks.
func TextRoutes(conv Conversation, reg *tg.Registry, fb Fallbacks) []tg.Route {
	onText := func(c tele.Context) error {
		if active(conv, c) {
			return run(c, "conversation", conv.HandleUpdate)
		}
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				return run(c, handlerName(key), cmd.Handler)
			}
		}
		return run(c, "unknown_text", fb.Text)
	}
	onDocument := func(c tele.Context) error {
		if active(conv, c) {
			return run(c, "conversation_document", conv.HandleUpdate)
		}
		return run(c, "unexpected_document", fb.Document)
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: onText},
		{Endpoint: tele.OnDocument, Handler: onDocument},
	}
}

// CallbackRoute acknowledges every button press and dispatches it by key.
// A non-nil fallback becomes the registry's handler for unknown keys.
func CallbackRoute(reg *tg.Registry, fallback tele.HandlerFunc) tg.Route {
	if fallback != nil {
		reg.SetCallbackNotFound(fallback)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler: func(c tele.Context) error {
			if c.Callback() == nil {
				return nil
			}
			_ = c.Respond()
			key, _ := callbacks.Parse(c.Callback())
			h, known := reg.Callback(key)
			extra := []slog.Attr{slog.String("cb_key", key)}
			if !known {
				extra = append(extra, slog.String("reason", "not_found"))
			}
			return run(c, "callback."+handlerName(key), h, extra...)
		},
	}
}
