// Package ratelimit guards the optional wire-proxy front-end's accept
// loop against abusive dialers. The core protocol listener applies no
// backpressure of its own (spec.md §5 is explicit that the reactor never
// throttles); this package only ever fronts the proxy's TCP/WS accept
// path.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/metrics"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// ConnectionLimiter admits or rejects a dialing IP for the wire-proxy.
// The reactor is single-process per spec.md §5, so an in-memory store is
// sufficient; there is no multi-instance deployment to coordinate across.
type ConnectionLimiter struct {
	perIP *limiter.Limiter
}

// NewConnectionLimiter builds a limiter from a rate string in
// ulule/limiter's "<count>-<period>" format (e.g. "20-M" for 20 per
// minute).
func NewConnectionLimiter(rate string) (*ConnectionLimiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid connection admission rate %q: %w", rate, err)
	}
	store := memory.NewStore()
	return &ConnectionLimiter{perIP: limiter.New(store, r)}, nil
}

// Allow reports whether a new dial from ip should be admitted. On a store
// failure it fails open, logging the error, since refusing all traffic on
// a local bookkeeping fault is worse than temporarily under-enforcing.
func (l *ConnectionLimiter) Allow(ctx context.Context, ip string) bool {
	lctx, err := l.perIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "connection admission limiter store failed", zap.Error(err), zap.String("ip", ip))
		return true
	}
	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("wireproxy_admission").Inc()
		return false
	}
	return true
}

// RetryAfter reports the duration until ip's window resets, for logging
// or an explicit rejection message.
func (l *ConnectionLimiter) RetryAfter(ctx context.Context, ip string) time.Duration {
	lctx, err := l.perIP.Get(ctx, ip)
	if err != nil {
		return 0
	}
	d := time.Until(time.Unix(lctx.Reset, 0))
	if d < 0 {
		return 0
	}
	return d
}
