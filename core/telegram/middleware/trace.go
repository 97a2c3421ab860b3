package middleware

import (
	"log/slog"

	"github.com/m3rciful/regbot/core/logger"
	"github.com/m3rciful/regbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tele "gopkg.in/telebot.v4"
)

const spanSlot = "regbot.span"

var tracer = otel.Tracer("github.com/m3rciful/regbot/core/telegram")

// Trace opens one span per update and stores a request-scoped context on c.
// Nested applications of the middleware reuse the outer span.
func Trace(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := c.Get(spanSlot).(trace.Span); ok {
			return next(c)
		}
		upd := c.Update()
		var userID, chatID int64
		if u := c.Sender(); u != nil {
			userID = u.ID
		}
		if ch := c.Chat(); ch != nil {
			chatID = ch.ID
		}

		ctx, span := tracer.Start(logger.Background(), "tg.update",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.Int("tg.update_id", upd.ID),
				attribute.Int64("tg.user_id", userID),
				attribute.Int64("tg.chat_id", chatID),
			),
		)
		defer span.End()
		c.Set(spanSlot, span)

		ctx = logger.WithRID(ctx, logger.BuildRID(upd.ID, chatID, userID))
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = logger.WithTrace(ctx, sc.TraceID().String(), sc.SpanID().String())
		}
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c)...)
		}

		err := next(c)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, logger.SanitizeLimit(err.Error(), 128))
		}
		return err
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if ch := c.Chat(); ch != nil {
		attrs = append(attrs, slog.String("chat_type", string(ch.Type)))
	}
	if u := c.Sender(); u != nil {
		if u.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
		}
		if u.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", u.LanguageCode))
		}
	}
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.Parse(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	case upd.Message != nil:
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
	}
	return attrs
}
