package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New builds a limiter allowing rps requests per second with the given burst.
// Idle visitors are forgotten after ttl.
func New(rps float64, burst int, ttl time.Duration) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &Limiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow consumes a token for key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	l.mu.Unlock()

	return v.limiter.Allow()
}

// Sweep drops visitors idle for longer than the ttl and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	cutoff := l.now().Add(-l.ttl)
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle visitors every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Middleware rejects requests over the limit with RATE_LIMITED, keyed by client IP.
func Middleware(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		if !l.Allow(c.ClientIP()) {
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
