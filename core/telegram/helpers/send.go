package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/regbot/core/logger"
	"github.com/m3rciful/regbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes SendText and SendReply through d; nil sends inline.
func SetDispatcher(d *sender.Dispatcher) { dispatcher.Store(d) }

// SendText sends plain text to the update's chat.
func SendText(c tele.Context, text string) error {
	return deliver(c, "send.text", func() error { return c.Send(text) })
}

// SendReply sends text with markup; a nil markup sends plain text.
func SendReply(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if markup == nil {
		return SendText(c, text)
	}
	opts := &tele.SendOptions{ReplyMarkup: markup}
	return deliver(c, "send.reply", func() error { return c.Send(text, opts) })
}

// deliver queues run on the dispatcher and falls back to a synchronous call
// when the queue is saturated or already closed.
func deliver(c tele.Context, action string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "send.inline",
			slog.String("op", action),
			slog.String("reason", err.Error()),
		)
		return run()
	}
	return err
}
