// Package bot wires the registration dialog, the store and the admin
// commands onto the Telegram runtime.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/regbot/core/logger"
	coretelegram "github.com/m3rciful/regbot/core/telegram"
	"github.com/m3rciful/regbot/core/telegram/router"
	appconfig "github.com/m3rciful/regbot/internal/config"
	"github.com/m3rciful/regbot/internal/i18n"
	"github.com/m3rciful/regbot/internal/registration"
	"github.com/m3rciful/regbot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

const (
	eventTimeLayout = "02.01.2006 15:04"

	cbEventJoin      = "event_join"
	cbEventAttendees = "event_attendees"
)

// App is the regbot Telegram application.
type App struct {
	cfg   *appconfig.Config
	store storage.Store
	flow  *registration.Flow
	msg   i18n.Locale
	loc   *time.Location

	sweepMu   sync.Mutex
	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// New builds the application around an opened store.
func New(cfg *appconfig.Config, store storage.Store, tr *i18n.Translator) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bot: nil config")
	}
	if store == nil {
		return nil, errors.New("bot: nil store")
	}
	if tr == nil {
		tr = i18n.NewTranslator(cfg.Registration.Locale)
	}
	msg := tr.For(cfg.Registration.Locale)

	flow, err := registration.New(registration.Options{
		Store:    store,
		Messages: msg,
		Location: cfg.Location(),
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:   cfg,
		store: store,
		flow:  flow,
		msg:   msg,
		loc:   cfg.Location(),
	}, nil
}

// Flow exposes the registration dialog.
func (a *App) Flow() *registration.Flow { return a.flow }

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	reg := a.Registry()

	fb := router.Fallbacks{
		Text:     a.unknownText,
		Document: a.unknownDocument,
		Callback: a.unknownCallback,
	}
	routes := router.CommandRoutes(reg, core.Telegram.IsAdmin, a.noAdminRights)
	routes = append(routes, router.TextRoutes(conversation{app: a}, reg, fb)...)
	routes = append(routes, router.CallbackRoute(reg, fb.Callback))

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(core, a.rateLimited),
		Routes:      routes,
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			a.StartSweeper(ctx, a.cfg.SessionTTL())
			return nil
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			a.StopSweeper()
			return nil
		},
	}, nil
}

// Close stops background work and releases the store.
func (a *App) Close() error {
	a.StopSweeper()
	return a.store.Close()
}

// StartSweeper evicts idle dialogs until ctx ends or StopSweeper is called.
func (a *App) StartSweeper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	a.sweepMu.Lock()
	defer a.sweepMu.Unlock()
	if a.stopSweep != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.stopSweep = cancel
	a.sweepDone = done

	interval := sweepInterval(ttl)
	logger.Info(ctx, "service.registration", "sweeper.start",
		slog.String("status", "ok"),
		slog.Duration("ttl", ttl),
		slog.Duration("interval", interval),
	)
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.flow.Evict(ctx, ttl)
			}
		}
	}()
}

// StopSweeper stops the eviction loop and waits for it to exit.
func (a *App) StopSweeper() {
	a.sweepMu.Lock()
	cancel, done := a.stopSweep, a.sweepDone
	a.stopSweep, a.sweepDone = nil, nil
	a.sweepMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}

// Registry declares the bot commands.
func (a *App) Registry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()
	for _, c := range a.commandTable() {
		reg.RegisterCommand(c.name, c.cmd)
	}
	_ = reg.RegisterCallback(cbEventJoin, a.handleEventJoin)
	_ = reg.RegisterCallback(cbEventAttendees, a.handleEventAttendees)
	return reg
}

func (a *App) t(key string, data map[string]any) string {
	return a.msg.T(key, data)
}

func (a *App) isAdmin(c tele.Context) bool {
	if c.Sender() == nil {
		return false
	}
	return a.cfg.Telegram.IsAdmin(c.Sender().ID)
}
