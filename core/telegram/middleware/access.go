package middleware

import (
	"log/slog"

	"github.com/m3rciful/regbot/core/logger"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOnly lets through senders accepted by isAdmin and hands everyone
// else to onReject. A nil isAdmin rejects all.
func AdminOnly(isAdmin func(userID int64) bool, onReject tele.HandlerFunc) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if u := c.Sender(); u != nil && isAdmin != nil && isAdmin(u.ID) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "admin.reject",
				slog.String("status", "skip"),
				slog.String("reason", "not_admin"),
			)
			if onReject == nil {
				return nil
			}
			return onReject(c)
		}
	}
}
