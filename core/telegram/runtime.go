// Package telegram runs a telebot bot from declarative routes and middlewares
// and owns the process-wide outbound dispatcher.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/regbot/core/config"
	"github.com/m3rciful/regbot/core/logger"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"
	"github.com/m3rciful/regbot/core/telegram/netutil"
	tgsender "github.com/m3rciful/regbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPoll = 10 * time.Second

// Middleware is installed globally with bot.Use, in slice order.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint (a command string or tele.On* constant).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	Dispatcher        *tgsender.Dispatcher // built from DispatcherOptions when nil
	DispatcherOptions tgsender.Options

	Middlewares []Middleware
	Routes      []Route

	// KeepWebhook skips removing a stale webhook before long polling.
	KeepWebhook bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is handed to lifecycle hooks.
type Runtime struct {
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram serves updates until ctx is cancelled. Cancellation is a clean stop.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	start := time.Now()
	poller, mode := newPoller(cfg)
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: newHTTPClient(),
	})
	if err != nil {
		return fmt.Errorf("telegram: new bot: %w", err)
	}
	logger.Info(ctx, "tg", "tg.mode", append(mode,
		slog.Duration("duration", time.Since(start)))...)

	if _, polling := poller.(*tele.LongPoller); polling && !opts.KeepWebhook {
		if err := bot.RemoveWebhook(); err != nil {
			logger.Warn(ctx, "tg", "tg.webhook_remove", slog.String("status", "fail"), slog.String("err", err.Error()))
		}
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	tghelpers.SetDispatcher(dispatcher)
	defer func() {
		tghelpers.SetDispatcher(nil)
		dispatcher.Close()
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	opts.Registry.Publish(ctx, bot)

	rt := Runtime{Dispatcher: dispatcher, Registry: opts.Registry}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-stopped
	case <-stopped:
	}

	if opts.OnStop != nil {
		return opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	return nil
}

// newPoller picks a webhook or long poller and describes it for the startup log.
func newPoller(cfg *coreconfig.Config) (tele.Poller, []slog.Attr) {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		listen := net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port))
		return &tele.Webhook{
				Listen:   listen,
				Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
			}, []slog.Attr{
				slog.String("mode", coreconfig.RunModeWebhook),
				slog.String("listen", listen),
				slog.String("public_url", cfg.Webhook.URL),
			}
	}
	timeout := defaultLongPoll
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		timeout = time.Duration(s) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}, []slog.Attr{
		slog.String("mode", coreconfig.RunModeLongpoll),
		slog.Duration("timeout", timeout),
	}
}

// newHTTPClient bounds every API call and retries transient transport errors.
func newHTTPClient() *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: &retryTransport{next: base, attempts: 3, backoff: 2 * time.Second},
	}
}

// retryTransport replays requests whose body can be rebuilt.
type retryTransport struct {
	next     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var err error
	for i := 1; ; i++ {
		attempt := req
		if i > 1 {
			if req.Body != nil && req.GetBody == nil {
				return nil, err
			}
			attempt = req.Clone(req.Context())
			if req.GetBody != nil {
				if attempt.Body, err = req.GetBody(); err != nil {
					return nil, err
				}
			}
		}
		var resp *http.Response
		resp, err = t.next.RoundTrip(attempt)
		if err == nil || i >= t.attempts || !netutil.ShouldRetry(err) {
			return resp, err
		}
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(t.backoff * time.Duration(i)):
		}
	}
}
