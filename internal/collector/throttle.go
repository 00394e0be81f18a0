package collector

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces requests to one provider at least interval apart.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a throttle allowing one request per interval.
// A zero interval disables throttling.
func NewThrottle(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request may be sent.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
