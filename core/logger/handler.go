package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// defaultKeyOrder pins the leading keys of every line; the rest follow alphabetically.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "trace_id", "span_id", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"operation", "op", "cb_key",
	"session_id", "step", "next_step", "reason", "outcome",
	"duration_ms", "messages", "kb", "count", "payload", "lang", "username",
	"mode", "listen", "public_url",
	"driver", "db", "host", "port",
	"external_id", "registration_id", "event_id",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
	"rate_limited", "evicted", "sessions",
}

type handlerConfig struct {
	level     slog.Leveler
	writer    *asyncWriter
	errWriter *asyncWriter // receives ERROR and above in addition to writer
	format    logFormat
	keyOrder  []string
}

// structuredHandler renders records as flat kv or json lines with a stable key order.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = defaultKeyOrder
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, k := range cfg.keyOrder {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &structuredHandler{cfg: cfg, rank: rank}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	asJSON := h.cfg.format == formatJSON

	e := newEntry()
	ts := r.Time.UTC()
	e.set("ts", ts.Truncate(time.Millisecond).Format(tsLayout))
	e.set("level", r.Level.String())
	if asJSON {
		e.set("ts_unix_nano", ts.UnixNano())
	}
	for _, a := range h.attrs {
		e.add(h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		e.add(h.prefix, a)
		return true
	})
	metaFrom(ctx).fill(e)

	if rid := e.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			if asJSON {
				e.setDefault("rid_full", rid)
			}
			e.set("rid", short)
		}
	}
	if e.str("event") == "" {
		e.set("event", cmpOr(r.Message, "unknown"))
	}
	if e.str("component") == "" {
		e.set("component", "app")
	}
	for _, k := range []string{"status", "outcome"} {
		if v := e.str(k); v != "" {
			e.set(k, strings.ToLower(v))
		}
	}

	keys := e.ordered(h.rank)
	var line []byte
	if asJSON {
		var err error
		if line, err = e.encodeJSON(keys); err != nil {
			return err
		}
	} else {
		line = e.encodeKV(keys)
	}
	line = append(line, '\n')

	if h.cfg.errWriter != nil && r.Level >= slog.LevelError {
		if err := h.cfg.errWriter.Write(line); err != nil {
			return err
		}
	}
	return h.cfg.writer.Write(line)
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clip(h.attrs), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func cmpOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// entry collects the flattened fields of one line.
type entry struct {
	vals map[string]any
}

func newEntry() *entry { return &entry{vals: make(map[string]any, 16)} }

func (e *entry) set(k string, v any) { e.vals[k] = v }

func (e *entry) setDefault(k string, v any) {
	if _, ok := e.vals[k]; !ok {
		e.vals[k] = v
	}
}

func (e *entry) str(k string) string {
	switch v := e.vals[k].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// add flattens groups into dotted keys; empty strings and nil values are dropped.
func (e *entry) add(prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			e.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	var out any
	switch v.Kind() {
	case slog.KindString:
		out = strings.TrimSpace(v.String())
	case slog.KindBool:
		out = v.Bool()
	case slog.KindInt64:
		out = v.Int64()
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			out = int64(u)
		} else {
			out = u
		}
	case slog.KindFloat64:
		out = v.Float64()
	case slog.KindDuration:
		key, out = millisKey(key), RoundMS(v.Duration()).Milliseconds()
	case slog.KindTime:
		out = v.Time().UTC().Format(time.RFC3339Nano)
	default:
		switch x := v.Any().(type) {
		case nil:
		case error:
			out = x.Error()
		case time.Duration:
			key, out = millisKey(key), RoundMS(x).Milliseconds()
		case fmt.Stringer:
			out = x.String()
		case string:
			out = strings.TrimSpace(x)
		default:
			out = fmt.Sprint(x)
		}
	}
	if out == nil || out == "" {
		delete(e.vals, key)
		return
	}
	e.vals[key] = out
}

// millisKey renames duration attrs: duration -> duration_ms, x_duration -> x_duration_ms, x -> x_ms.
func millisKey(key string) string {
	if key == "duration" {
		return "duration_ms"
	}
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func (e *entry) ordered(rank map[string]int) []string {
	keys := make([]string, 0, len(e.vals))
	for k := range e.vals {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ra, okA := rank[a]
		rb, okB := rank[b]
		switch {
		case okA && okB:
			return ra - rb
		case okA:
			return -1
		case okB:
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}

func (e *entry) encodeJSON(keys []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		val, err := json.Marshal(e.vals[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *entry) encodeKV(keys []string) []byte {
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		s := fmt.Sprint(e.vals[k])
		if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
			s = strconv.Quote(s)
		}
		buf.WriteString(s)
	}
	return buf.Bytes()
}
