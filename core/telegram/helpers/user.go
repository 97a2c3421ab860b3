package helpers

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"
)

var ErrNoSender = errors.New("telegram: update has no sender")

// CurrentUser loads the domain record of the update's sender.
func CurrentUser[T any](ctx context.Context, c tele.Context, lookup func(context.Context, int64) (T, error)) (T, error) {
	var zero T
	user := c.Sender()
	if user == nil {
		return zero, ErrNoSender
	}
	return lookup(ctx, user.ID)
}
