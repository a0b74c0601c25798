// Package ratelimit implements a fixed-length sliding window counter per
// caller key. A window opens on the first admit after the previous one
// elapsed; admits beyond the limit inside an open window are denied.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults used when a zero Config is supplied.
const (
	DefaultLimit  = 5
	DefaultWindow = 60 * time.Second
)

// Config tunes the limiter.
type Config struct {
	Limit  int
	Window time.Duration
}

// Counter is the stored state for one key.
type Counter struct {
	Count       int
	WindowStart time.Time
}

// CounterStore performs the reset-or-increment step atomically for one key and
// returns the counter after the increment. Implementations must serialise
// concurrent calls for the same key.
type CounterStore interface {
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Counter, error)
}

// Outcome is the limiter's verdict. Store failure is reported separately from
// the verdict so a denial can never be confused with an infrastructure error.
type Outcome int

const (
	Allowed Outcome = iota
	Denied
	// AllowedDegraded means the counter store failed and the request was let
	// through unchecked.
	AllowedDegraded
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case AllowedDegraded:
		return "degraded"
	}
	return "unknown"
}

// Decision is the result of one admit call.
type Decision struct {
	Outcome   Outcome
	Count     int
	Remaining int
	ResetAt   time.Time
	// StoreErr holds the counter store failure for AllowedDegraded decisions.
	StoreErr error
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Outcome != Denied }

// Observer receives every decision, used for metrics.
type Observer func(Decision)

// Limiter admits or denies requests per key.
type Limiter struct {
	store    CounterStore
	cfg      atomic.Pointer[Config]
	observer Observer
}

// New creates a limiter over store.
func New(store CounterStore, cfg Config) *Limiter {
	l := &Limiter{store: store}
	l.SetConfig(cfg)
	return l
}

// SetConfig replaces the limits. Counters already in the store keep their
// window start.
func (l *Limiter) SetConfig(cfg Config) {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	l.cfg.Store(&cfg)
}

// WithObserver registers a decision observer.
func (l *Limiter) WithObserver(o Observer) *Limiter {
	l.observer = o
	return l
}

// Config returns the active limits.
func (l *Limiter) Config() Config { return *l.cfg.Load() }

// Admit counts one request for key at now.
func (l *Limiter) Admit(ctx context.Context, key string, now time.Time) Decision {
	cfg := l.Config()
	c, err := l.store.Increment(ctx, key, now, cfg.Window)
	var d Decision
	switch {
	case err != nil:
		log.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable, failing open")
		d = Decision{Outcome: AllowedDegraded, StoreErr: err}
	case c.Count > cfg.Limit:
		d = Decision{Outcome: Denied, Count: c.Count, ResetAt: c.WindowStart.Add(cfg.Window)}
	default:
		d = Decision{
			Outcome:   Allowed,
			Count:     c.Count,
			Remaining: cfg.Limit - c.Count,
			ResetAt:   c.WindowStart.Add(cfg.Window),
		}
	}
	if l.observer != nil {
		l.observer(d)
	}
	return d
}
