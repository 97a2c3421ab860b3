package middleware

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/m3rciful/regbot/core/logger"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds (callback, message, inline_query) that are never limited.
	Exclude []string
	// OnLimited answers a dropped update; its error is ignored.
	OnLimited tele.HandlerFunc
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// limiter remembers when each user was last let through.
type limiter struct {
	mu       sync.Mutex
	last     map[int64]time.Time
	interval time.Duration
	sweptAt  time.Time
}

func (l *limiter) allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.sweptAt) > 10*l.interval {
		for id, seen := range l.last {
			if now.Sub(seen) >= l.interval {
				delete(l.last, id)
			}
		}
		l.sweptAt = now
	}
	if seen, ok := l.last[userID]; ok && now.Sub(seen) < l.interval {
		return false
	}
	l.last[userID] = now
	return true
}

// RateLimit drops updates that arrive faster than opts.Interval per user.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &limiter{last: make(map[int64]time.Time), interval: opts.Interval}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 || slices.Contains(opts.Exclude, updateKind(c.Update())) {
				return next(c)
			}
			if l.allow(user.ID, opts.Now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.Duration("interval", opts.Interval),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}

func updateKind(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return "callback"
	case u.Message != nil:
		return "message"
	case u.Query != nil:
		return "inline_query"
	}
	return "other"
}
