// Package diag provides rate-limited diagnostic logging for chatty TLS and
// syscall failure modes, per spec.md §6: "bursts of roughly 10 messages
// then 25 per interval, to prevent log flooding".
//
// It wraps the teacher's xlog.PackageLogger with a golang.org/x/time/rate
// limiter per diagnostic class, the same token-bucket shape the teacher
// pulls in through didip/tollbooth/v7 for HTTP rate limiting.
package diag

import (
	"time"

	"github.com/effective-security/xlog"
	"golang.org/x/time/rate"
)

const (
	burstSize  = 10
	steadyRate = 25
	interval   = time.Minute
)

// Limiter rate-limits diagnostics for one class of failure (e.g. one
// Stream's handshake errors), so one chatty peer cannot starve another
// stream's log budget.
type Limiter struct {
	logger *xlog.PackageLogger
	rl     *rate.Limiter
}

// New returns a Limiter that logs through logger, allowing an initial burst
// of burstSize messages and a steady rate of steadyRate per interval
// thereafter.
func New(logger *xlog.PackageLogger) *Limiter {
	return &Limiter{
		logger: logger,
		rl:     rate.NewLimiter(rate.Limit(float64(steadyRate)/interval.Seconds()), burstSize),
	}
}

// KV logs a rate-limited, leveled key-value diagnostic. Suppressed
// messages are silently dropped, matching the teacher's fire-and-forget
// xlog.KV call sites.
func (l *Limiter) KV(level xlog.LogLevel, keyvals ...interface{}) {
	if !l.rl.Allow() {
		return
	}
	l.logger.KV(level, keyvals...)
}
