package rfb

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// connRateLimiter tracks per-IP accept-rate limits. Rate limiting here is
// per-process: a single rfbd instance maintains its own counters, which
// is sufficient since the server owns the whole listening port.
type connRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rateVisitor
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

type rateVisitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newConnRateLimiter creates a limiter allowing r accepts/sec per source IP
// with burst b.
func newConnRateLimiter(r rate.Limit, b int) *connRateLimiter {
	rl := &connRateLimiter{
		visitors: make(map[string]*rateVisitor),
		rate:     r,
		burst:    b,
		cleanup:  3 * time.Minute,
	}
	return rl
}

// allow reports whether a new connection from ip should be accepted.
func (rl *connRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &rateVisitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()
	return v.limiter.Allow()
}

// evictStale removes visitors not seen within the cleanup window, so the
// map doesn't grow without bound over the life of a long-running server.
func (rl *connRateLimiter) evictStale(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.cleanup {
			delete(rl.visitors, ip)
		}
	}
}

// runCleanup evicts stale visitor entries on a fixed tick until ctx is
// cancelled. Serve starts one of these alongside its accept loop.
func (rl *connRateLimiter) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evictStale(now)
		}
	}
}
