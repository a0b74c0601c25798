package config

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Holder owns the active configuration snapshot. Components read it through
// Current; administrators replace it through Reload.
type Holder struct {
	current  atomic.Pointer[App]
	load     func() (App, error)
	onReload []func(App)
}

// NewHolder wraps an already loaded configuration. load is used by Reload.
func NewHolder(initial App, load func() (App, error)) *Holder {
	h := &Holder{load: load}
	h.current.Store(&initial)
	return h
}

// Current returns the active snapshot.
func (h *Holder) Current() App {
	return *h.current.Load()
}

// OnReload registers a callback run after every successful reload.
func (h *Holder) OnReload(fn func(App)) {
	h.onReload = append(h.onReload, fn)
}

// Reload re-reads configuration. A failed reload keeps the previous snapshot.
func (h *Holder) Reload() (App, error) {
	next, err := h.load()
	if err != nil {
		log.Error().Err(err).Msg("config reload rejected, keeping previous configuration")
		return h.Current(), err
	}
	h.current.Store(&next)
	for _, fn := range h.onReload {
		fn(next)
	}
	log.Info().Str("windows", next.Window.String()).Int("rate_limit", next.RateLimit).Msg("configuration reloaded")
	return next, nil
}
