package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/regbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command. AdminOnly commands are routed through the
// allow-list check and left out of the public command menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
}

// Registry collects commands and callback handlers before the bot starts.
// Callbacks are looked up concurrently while serving.
type Registry struct {
	commands map[string]Command

	mu        sync.RWMutex
	callbacks map[string]tele.HandlerFunc
	notFound  tele.HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		callbacks: make(map[string]tele.HandlerFunc),
		notFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand adds a command named with a leading slash. Invalid or
// repeated registrations are logged and ignored.
func (r *Registry) RegisterCommand(name string, cmd Command) {
	reason := ""
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		reason = "bad_name"
	case cmd.Handler == nil || cmd.Description == "":
		reason = "incomplete"
	case r.commands[name].Handler != nil:
		reason = "duplicate"
	}
	if reason != "" {
		logger.Warn(context.Background(), "tg.wire", "register.command",
			slog.String("status", "skip"), slog.String("op", name), slog.String("reason", reason))
		return
	}
	r.commands[name] = cmd
}

// Commands returns the registered commands keyed by name.
func (r *Registry) Commands() map[string]Command { return maps.Clone(r.commands) }

// LookupCommand resolves "/name" or "name" to its command.
func (r *Registry) LookupCommand(name string) (string, Command, bool) {
	name = "/" + strings.TrimPrefix(strings.TrimSpace(name), "/")
	cmd, ok := r.commands[name]
	return name, cmd, ok
}

// ListCommands returns commands sorted by name; public drops admin-only ones.
func (r *Registry) ListCommands(public bool) []tele.Command {
	var out []tele.Command
	for _, name := range slices.Sorted(maps.Keys(r.commands)) {
		cmd := r.commands[name]
		if public && cmd.AdminOnly {
			continue
		}
		out = append(out, tele.Command{Text: name, Description: cmd.Description})
	}
	return out
}

// RegisterCallback binds a handler to an inline button unique key.
func (r *Registry) RegisterCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return fmt.Errorf("telegram: invalid callback %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("telegram: callback %q already registered", key)
	}
	r.callbacks[key] = h
	return nil
}

// Callback returns the handler for key, or the not-found handler.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.callbacks[key]; ok {
		return h, true
	}
	return r.notFound, false
}

// ListCallbacks returns the registered keys sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the handler for unknown callback keys; nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.notFound = h
	r.mu.Unlock()
}

// Publish sets the public command menu shown by Telegram clients.
func (r *Registry) Publish(ctx context.Context, bot *tele.Bot) {
	cmds := r.ListCommands(true)
	if err := bot.SetCommands(cmds); err != nil {
		logger.Error(ctx, "tg.wire", "commands.publish",
			slog.String("status", "fail"), slog.String("err", err.Error()))
		return
	}
	logger.Info(ctx, "tg.wire", "commands.publish",
		slog.String("status", "ok"), slog.Int("count", len(cmds)))
}
