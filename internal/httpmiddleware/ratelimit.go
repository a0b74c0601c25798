// Package httpmiddleware holds gin middleware shared by every route.
package httpmiddleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"presensi/internal/apperr"
)

// IPThrottle is a coarse per-client-IP token bucket in front of the
// per-session limiter. It protects endpoints reachable without a session.
type IPThrottle struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu    sync.Mutex
	state map[string]*ipEntry
	now   func() time.Time
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPThrottle allows perMinute requests per IP with the given burst.
func NewIPThrottle(perMinute, burst int) *IPThrottle {
	if burst <= 0 {
		burst = perMinute
	}
	return &IPThrottle{
		limit: rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
		ttl:   10 * time.Minute,
		state: make(map[string]*ipEntry),
		now:   time.Now,
	}
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (t *IPThrottle) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !t.allow(ip) {
			retry := 1
			if t.limit > 0 {
				retry = int(1/float64(t.limit)) + 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			log.Warn().Str("ip", ip).Str("path", c.FullPath()).Msg("ip throttle exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperr.BodyOf(apperr.New(apperr.RateLimited)))
			return
		}
		c.Next()
	}
}

func (t *IPThrottle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	e, ok := t.state[key]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.state[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Sweep drops entries idle for longer than the ttl and returns how many were
// removed.
func (t *IPThrottle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.ttl)
	n := 0
	for k, e := range t.state {
		if e.lastSeen.Before(cutoff) {
			delete(t.state, k)
			n++
		}
	}
	return n
}
