// Package portal is the request surface of the attendance portal. Every
// privileged operation goes through the gatekeeper first and then acts on the
// fresh directory identity it returns.
package portal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"presensi/internal/apperr"
	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/config"
	"presensi/internal/directory"
	"presensi/internal/gatekeeper"
	"presensi/internal/ratelimit"
	"presensi/internal/session"
	"presensi/internal/settings"
)

// Broadcaster sends a push notification to every subscriber.
type Broadcaster interface {
	Broadcast(ctx context.Context, title, message string) error
}

// Deps are the collaborators of a Service. Notifier may be nil.
type Deps struct {
	Directory directory.Store
	Records   attendance.RecordStore
	Settings  settings.Store
	Tokens    *session.Service
	Limiter   gatekeeper.Admitter
	Gate      *gatekeeper.Gatekeeper
	Engine    *attendance.Engine
	Config    *config.Holder
	Notifier  Broadcaster
}

// Service implements the portal operations.
type Service struct {
	dir      directory.Store
	records  attendance.RecordStore
	settings settings.Store
	tokens   *session.Service
	limiter  gatekeeper.Admitter
	gate     *gatekeeper.Gatekeeper
	engine   *attendance.Engine
	config   *config.Holder
	notifier Broadcaster
	now      func() time.Time
}

// New creates a Service.
func New(d Deps) *Service {
	return &Service{
		dir:      d.Directory,
		records:  d.Records,
		settings: d.Settings,
		tokens:   d.Tokens,
		limiter:  d.Limiter,
		gate:     d.Gate,
		engine:   d.Engine,
		config:   d.Config,
		notifier: d.Notifier,
		now:      time.Now,
	}
}

// WithClock overrides the clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AuthRequest carries the caller's token, the capability the action needs
// and the optional client-held identity snapshot.
type AuthRequest struct {
	Token      string
	Capability directory.Capability
	Snapshot   *gatekeeper.Snapshot
}

// AuthorizeAndFetch runs the gatekeeper and, on success, action with the
// fresh identity. No action runs for a denied request.
func AuthorizeAndFetch[T any](ctx context.Context, s *Service, req AuthRequest, action func(ctx context.Context, who directory.Identity) (T, error)) (T, error) {
	var zero T
	who, err := s.gate.Authorize(ctx, req.Token, req.Capability, req.Snapshot)
	if err != nil {
		return zero, err
	}
	return action(ctx, who)
}

// LoginResult is returned by Authenticate.
type LoginResult struct {
	Token    string             `json:"token"`
	Identity directory.Identity `json:"user"`
}

// Authenticate checks email and password and issues a session token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, apperr.New(apperr.InvalidCredentials)
	}
	now := s.now()
	if d := s.limiter.Admit(ctx, anonKey(email), now); d.Outcome == ratelimit.Denied {
		return LoginResult{}, apperr.RateLimitedFor(d.ResetAt.Sub(now))
	}

	acct, err := s.dir.LookupByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, apperr.Storage(err)
	}
	if acct == nil || !auth.CheckPassword(acct.PasswordHash, password) {
		return LoginResult{}, apperr.New(apperr.InvalidCredentials)
	}
	if acct.Status != directory.StatusActive {
		return LoginResult{}, apperr.New(apperr.AccountDisabled)
	}

	st, err := s.settings.Get(ctx)
	if err != nil {
		return LoginResult{}, apperr.Storage(err)
	}
	if st.Maintenance && !acct.Role.Privileged() {
		return LoginResult{}, apperr.New(apperr.Maintenance)
	}

	token, err := s.tokens.IssueAt(acct.SubjectID, now)
	if err != nil {
		return LoginResult{}, apperr.Storage(err)
	}
	log.Info().Str("subject_id", acct.SubjectID).Str("role", string(acct.Role)).Msg("login")
	return LoginResult{Token: token, Identity: acct.Identity}, nil
}

// anonKey buckets unauthenticated attempts per email so one noisy address
// cannot lock everybody else out.
func anonKey(email string) string {
	return "anon:" + strings.ToLower(email)
}

// PasswordChange is the input of ChangeOwnPassword.
type PasswordChange struct {
	SubjectID   string `json:"subject_id"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangeOwnPassword lets any authenticated subject change their own password.
func (s *Service) ChangeOwnPassword(ctx context.Context, req AuthRequest, in PasswordChange) error {
	req.Capability = directory.CapabilityAny
	_, err := AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, who directory.Identity) (struct{}, error) {
		if in.SubjectID != "" && in.SubjectID != who.SubjectID {
			return struct{}{}, apperr.Newf(apperr.Forbidden, "You can only change your own password.")
		}
		acct, err := s.dir.LookupByEmail(ctx, who.Email)
		if err != nil {
			return struct{}{}, apperr.Storage(err)
		}
		if acct == nil || acct.SubjectID != who.SubjectID {
			return struct{}{}, apperr.New(apperr.UnknownSubject)
		}
		if !auth.CheckPassword(acct.PasswordHash, in.OldPassword) {
			return struct{}{}, apperr.New(apperr.WrongPassword)
		}
		hash, err := auth.HashPassword(in.NewPassword)
		if err != nil {
			return struct{}{}, passwordErr(err)
		}
		return struct{}{}, dirErr(s.dir.SetPasswordHash(ctx, who.SubjectID, hash))
	})
	return err
}

func passwordErr(err error) error {
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return apperr.Newf(apperr.InvalidInput, "Password must be at least %d characters.", auth.MinPasswordLength)
	}
	return apperr.Storage(err)
}

// dirErr maps directory sentinel errors to rejection codes.
func dirErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrNotFound):
		return apperr.New(apperr.NotFound)
	case errors.Is(err, directory.ErrConflict):
		return apperr.New(apperr.Conflict)
	}
	return apperr.Storage(err)
}
