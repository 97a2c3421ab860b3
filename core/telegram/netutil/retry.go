// Package netutil classifies transport errors from Telegram API calls.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether err looks transient: a timeout, a failed dial
// or a reset connection. API-level errors are never retried.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "read")
}

// Kind names the failure class of err for logs:
// timeout, dns, dial, tls, flood, api or unknown.
func Kind(err error) string {
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
		alert  tls.AlertError
		flood  tele.FloodError
		apiErr *tele.Error
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alert):
		return "tls"
	case errors.As(err, &flood):
		return "flood"
	case errors.As(err, &apiErr):
		return "api"
	}
	return "unknown"
}
