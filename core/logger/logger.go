// Package logger provides the bot's structured slog output and the
// context helpers that correlate log lines with Telegram updates.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/m3rciful/regbot/core/buildinfo"
	coreconfig "github.com/m3rciful/regbot/core/config"
)

var (
	root atomic.Pointer[slog.Logger]

	initOnce sync.Once
	closeMu  sync.Mutex
	sinks    []*asyncWriter
	files    []io.Closer

	debugSample sampler
)

func init() {
	root.Store(slog.New(slog.DiscardHandler))
	debugSample.set(1, 50)
}

func base() *slog.Logger { return root.Load() }

// InitLogger builds the process logger from cfg. Only the first call has effect;
// until then every log call is discarded.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}

		outs := []io.Writer{os.Stdout}
		if f, openErr := openLogFile(lc.Dir, lc.BotFile); openErr != nil {
			err = openErr
			return
		} else if f != nil {
			outs = append(outs, f)
			files = append(files, f)
		}
		primary := newAsyncWriter(outs, 64<<10)
		sinks = append(sinks, primary)

		var errSink *asyncWriter
		if f, openErr := openLogFile(lc.Dir, lc.ErrorsFile); openErr != nil {
			err = openErr
			return
		} else if f != nil {
			errSink = newAsyncWriter([]io.Writer{f}, 16<<10)
			sinks = append(sinks, errSink)
			files = append(files, f)
		}

		debugSample.set(parseSample(lc.DebugSample))
		if truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE")) {
			debugSample.set(0, 0)
		}

		l := slog.New(newStructuredHandler(handlerConfig{
			level:     parseLevel(lc.Level),
			writer:    primary,
			errWriter: errSink,
			format:    pickFormat(lc),
			keyOrder:  parseKeyOrder(lc.KeysOrder),
		}))
		root.Store(l)
		slog.SetDefault(l)
		announce(cfg, lc)
	})
	return err
}

func announce(cfg *coreconfig.Config, lc coreconfig.LoggingConfig) {
	build := buildinfo.Get()
	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", build.Version),
		slog.String("build_commit", build.Commit),
		slog.String("build_time", build.Date),
		slog.String("cfg_profile", cmpOr(strings.ToLower(strings.TrimSpace(lc.Profile)), "prod")),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("mode", cfg.Telegram.RunMode),
			slog.Int("admins", len(cfg.Telegram.AdminIDs)),
		)
	}
	Info(context.Background(), "app", "startup", attrs...)
}

// Shutdown drains buffered output and closes log files. Safe to call twice.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	var errs []error
	for _, s := range sinks {
		errs = append(errs, s.Close())
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	sinks, files = nil, nil
	root.Store(slog.New(slog.DiscardHandler))
	return errors.Join(errs...)
}

func pickFormat(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch strings.ToLower(strings.TrimSpace(lc.Profile)) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openLogFile returns nil, nil when dir or name is unset.
func openLogFile(dir, name string) (*os.File, error) {
	dir, name = strings.TrimSpace(dir), strings.TrimSpace(name)
	if dir == "" || name == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	return f, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// sampler passes num out of every den calls; den == 0 passes everything.
type sampler struct {
	ratio atomic.Uint64 // num<<32 | den
	n     atomic.Uint64
}

func (s *sampler) set(num, den int) {
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
		return
	}
	num = min(num, den)
	s.ratio.Store(uint64(num)<<32 | uint64(den))
}

func (s *sampler) allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	return (s.n.Add(1)-1)%den < num
}

// parseSample reads "n/d", a bare "d" meaning 1/d, or "0" to log every debug line.
// Anything unparsable falls back to 1/50.
func parseSample(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, 50
	}
	numStr, denStr, ok := strings.Cut(raw, "/")
	if !ok {
		numStr, denStr = "1", raw
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(numStr))
	den, err2 := strconv.Atoi(strings.TrimSpace(denStr))
	switch {
	case err1 != nil || err2 != nil:
		return 1, 50
	case num == 0 || den == 0:
		return 0, 0
	case num < 0 || den < 0:
		return 1, 50
	}
	return num, den
}

// ShouldSampleDebug reports whether a high-volume debug line should be written.
// TRACE=1 disables sampling.
func ShouldSampleDebug() bool { return debugSample.allow() }

// Background is context.Background for call sites outside an update.
func Background() context.Context { return context.Background() }

// Component returns the base logger tagged with component=name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return base()
	}
	return base().With("component", name)
}

// LogEvent writes one event line through log, falling back to the logger
// stored in ctx and then to the base logger.
func LogEvent(ctx context.Context, log *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = loggerFrom(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	log.LogAttrs(ctx, level, "", attrs...)
}

// Event logs under the named component.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
