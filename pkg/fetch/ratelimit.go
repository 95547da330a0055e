package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter spaces requests to each host by at least the configured delay.
// Every attempt waits, including retries and requests that follow a failure.
type RateLimiter struct {
	limiters map[string]*rate.Limiter // host -> limiter with burst 1
	mu       sync.Mutex
	delay    time.Duration
	log      *logrus.Entry
}

// NewRateLimiter creates a RateLimiter; delay <= 0 disables gating.
func NewRateLimiter(delay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
		log:      log,
	}
}

// Wait blocks until a request to host may be issued or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil || rl.delay <= 0 {
		return nil
	}
	lim := rl.limiterFor(strings.ToLower(host))

	reservation := lim.Reserve()
	wait := reservation.Delay()
	if wait <= 0 {
		return nil
	}
	rl.log.WithFields(logrus.Fields{"host": host, "sleep": wait, "required_delay": rl.delay}).Debug("Rate limit applying sleep")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(rl.delay), 1)
		rl.limiters[host] = lim
	}
	return lim
}
