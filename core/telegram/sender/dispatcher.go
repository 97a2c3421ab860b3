// Package sender runs outbound Telegram calls on a small worker pool so
// handlers return before the API answers. Transient failures are retried.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/regbot/core/logger"
	"github.com/m3rciful/regbot/core/telegram/netutil"
)

var (
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	ErrQueueFull   = errors.New("telegram sender: queue full")
)

var tokenPattern = regexp.MustCompile(`bot\d+:[A-Za-z0-9_-]+`)

// Options tune the pool; zero values select the defaults noted per field.
type Options struct {
	QueueSize    int           // 256
	Workers      int           // 4
	MaxRetries   int           // 0, negative is treated as 0
	RetryBackoff time.Duration // 2s, multiplied by the attempt number
	MaxDuration  time.Duration // 12s across all attempts of one call
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
}

type call struct {
	ctx    context.Context
	action string
	run    func() error
}

// Dispatcher is safe for concurrent use. Close drains queued calls.
type Dispatcher struct {
	opts     Options
	queue    chan call
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	failures atomic.Uint64
}

func NewDispatcher(opts Options) *Dispatcher {
	opts.defaults()
	d := &Dispatcher{opts: opts, queue: make(chan call, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for c := range d.queue {
				d.execute(c)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run may execute more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil call")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- call{ctx: context.WithoutCancel(ctx), action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Failures counts calls that gave up.
func (d *Dispatcher) Failures() uint64 { return d.failures.Load() }

func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) execute(c call) {
	ctx, cancel := context.WithTimeout(c.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	var err error
	attempt := 0
retry:
	for attempt < d.opts.MaxRetries+1 {
		attempt++
		if err = c.run(); err == nil || !netutil.ShouldRetry(err) || attempt > d.opts.MaxRetries {
			break
		}
		wait := d.opts.RetryBackoff * time.Duration(attempt)
		logger.Debug(c.ctx, "tg.sender", "send.retry",
			slog.String("op", c.action),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", wait),
			slog.String("err", redact(err)),
		)
		select {
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
			break retry
		case <-time.After(wait):
		}
	}

	if err != nil {
		d.failures.Add(1)
		logger.Error(c.ctx, "tg.sender", "send.fail",
			slog.String("status", "fail"),
			slog.String("op", c.action),
			slog.Int("attempts", attempt),
			slog.String("err", redact(err)),
			slog.String("err_code", netutil.Kind(err)),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	logger.Debug(c.ctx, "tg.sender", "send.ok",
		slog.String("status", "ok"),
		slog.String("op", c.action),
		slog.Int("attempts", attempt),
		slog.Duration("duration", time.Since(start)),
	)
}

// redact hides bot tokens that net/http embeds in request URLs.
func redact(err error) string {
	return tokenPattern.ReplaceAllString(err.Error(), "bot<redacted>")
}
