// Package gatekeeper authorizes privileged requests.
//
// Every call re-reads the directory so role or status changes take effect on
// the next request; the token only says who is asking.
package gatekeeper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"presensi/internal/apperr"
	"presensi/internal/directory"
	"presensi/internal/ratelimit"
	"presensi/internal/session"
)

// Snapshot is what the client believes about itself. It is only compared
// against the directory, never trusted.
type Snapshot struct {
	Role   string `json:"role"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// Verifier checks tokens.
type Verifier interface {
	VerifyAt(token string, now time.Time) (session.Payload, error)
}

// Admitter is the rate limiter.
type Admitter interface {
	Admit(ctx context.Context, key string, now time.Time) ratelimit.Decision
}

// Gatekeeper combines token verification, rate limiting and directory lookup.
type Gatekeeper struct {
	tokens    Verifier
	directory directory.Lookup
	limiter   Admitter
	now       func() time.Time
	observer  func(code apperr.Code)
}

// New creates a Gatekeeper.
func New(tokens Verifier, dir directory.Lookup, limiter Admitter) *Gatekeeper {
	return &Gatekeeper{tokens: tokens, directory: dir, limiter: limiter, now: time.Now}
}

// WithClock overrides the clock.
func (g *Gatekeeper) WithClock(now func() time.Time) *Gatekeeper {
	g.now = now
	return g
}

// WithObserver receives the outcome code of every call ("" on success).
func (g *Gatekeeper) WithObserver(fn func(code apperr.Code)) *Gatekeeper {
	g.observer = fn
	return g
}

// Authorize returns the fresh directory identity of the token's subject when
// it holds capability. snapshot may be nil.
func (g *Gatekeeper) Authorize(ctx context.Context, token string, capability directory.Capability, snapshot *Snapshot) (directory.Identity, error) {
	id, err := g.authorize(ctx, token, capability, snapshot)
	if g.observer != nil {
		g.observer(apperr.CodeOf(err))
	}
	if err != nil {
		log.Debug().Str("code", string(apperr.CodeOf(err))).Str("key", session.LimiterKey(token)).Msg("authorization denied")
	}
	return id, err
}

func (g *Gatekeeper) authorize(ctx context.Context, token string, capability directory.Capability, snapshot *Snapshot) (directory.Identity, error) {
	if token == "" {
		return directory.Identity{}, apperr.New(apperr.NoToken)
	}
	now := g.now()
	if d := g.limiter.Admit(ctx, session.LimiterKey(token), now); !d.Allowed() {
		return directory.Identity{}, apperr.RateLimitedFor(d.ResetAt.Sub(now))
	}

	payload, err := g.tokens.VerifyAt(token, now)
	if err != nil {
		return directory.Identity{}, err
	}

	fresh, err := g.directory.LookupBySubject(ctx, payload.SubjectID)
	if err != nil {
		return directory.Identity{}, apperr.Storage(err)
	}
	if fresh == nil {
		return directory.Identity{}, apperr.New(apperr.UnknownSubject)
	}
	if !fresh.Role.Grants(capability) {
		return directory.Identity{}, apperr.New(apperr.InsufficientRole)
	}

	if snapshot != nil {
		if snapshot.Role != string(fresh.Role) {
			log.Warn().Str("subject_id", fresh.SubjectID).Str("claimed_role", snapshot.Role).Msg("role manipulation detected")
			return directory.Identity{}, apperr.New(apperr.TamperedRole)
		}
		if snapshot.Email != fresh.Email {
			log.Warn().Str("subject_id", fresh.SubjectID).Msg("email manipulation detected")
			return directory.Identity{}, apperr.New(apperr.TamperedEmail)
		}
	}
	if fresh.Status != directory.StatusActive {
		return directory.Identity{}, apperr.New(apperr.AccountDisabled)
	}
	return *fresh, nil
}
