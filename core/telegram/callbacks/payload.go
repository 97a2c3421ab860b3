// Package callbacks decodes inline button data.
package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse splits a callback into its unique key and payload.
// Raw updates carry "\f<unique>|<payload>"; callbacks already matched by
// telebot arrive with Unique set and Data holding only the payload.
func Parse(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	key, payload, _ = strings.Cut(strings.TrimPrefix(cb.Data, "\f"), "|")
	return strings.TrimSpace(key), payload
}

// Payload returns the payload of the current callback, or "".
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}

// ID parses the current callback payload as a numeric identifier.
func ID(c tele.Context) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(Payload(c)), 10, 64)
}
