// Package session issues and verifies self-contained session tokens.
//
// Wire format: base64url(JSON{subject_id, issued_at}) + "." + base64url(HMAC-SHA256(secret, JSON)).
// There is no server-side session record; verification is a pure function of
// the token, the secret and the current time.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"presensi/internal/apperr"
)

// DefaultTTL is the validity window of a token counted from issued_at.
const DefaultTTL = 24 * time.Hour

const separator = "."

var encoding = base64.RawURLEncoding.Strict()

// Payload is the signed content of a token.
type Payload struct {
	SubjectID string `json:"subject_id"`
	IssuedAt  int64  `json:"issued_at"` // epoch ms
}

// IssuedTime returns IssuedAt as a time.Time.
func (p Payload) IssuedTime() time.Time {
	return time.UnixMilli(p.IssuedAt)
}

// Service signs and verifies tokens with one process-wide secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds a token service. Rotating the secret means building a new
// Service; tokens signed with the old secret stop verifying.
func NewService(secret []byte, ttl time.Duration) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Service{secret: key, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the clock used by Issue and Verify.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Issue signs a token for subjectID at the current time.
func (s *Service) Issue(subjectID string) (string, error) {
	return s.IssueAt(subjectID, s.now())
}

// IssueAt signs a token with an explicit issue time.
func (s *Service) IssueAt(subjectID string, at time.Time) (string, error) {
	if subjectID == "" {
		return "", errors.New("subject id required")
	}
	raw, err := json.Marshal(Payload{SubjectID: subjectID, IssuedAt: at.UnixMilli()})
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(raw) + separator + encoding.EncodeToString(s.mac(raw)), nil
}

// Verify checks the token against the current time.
func (s *Service) Verify(token string) (Payload, error) {
	return s.VerifyAt(token, s.now())
}

// VerifyAt checks structure, signature and expiry, in that order.
func (s *Service) VerifyAt(token string, now time.Time) (Payload, error) {
	parts := strings.Split(token, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Payload{}, apperr.New(apperr.MalformedToken)
	}
	raw, err := encoding.DecodeString(parts[0])
	if err != nil {
		return Payload{}, apperr.Wrap(apperr.MalformedToken, err)
	}
	sig, err := encoding.DecodeString(parts[1])
	if err != nil {
		return Payload{}, apperr.Wrap(apperr.MalformedToken, err)
	}
	if !hmac.Equal(sig, s.mac(raw)) {
		return Payload{}, apperr.New(apperr.SignatureMismatch)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil || p.SubjectID == "" {
		return Payload{}, apperr.New(apperr.MalformedToken)
	}
	if now.UnixMilli()-p.IssuedAt > s.ttl.Milliseconds() {
		return Payload{}, apperr.New(apperr.Expired)
	}
	return p, nil
}

func (s *Service) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(payload)
	return h.Sum(nil)
}

// LimiterKey derives the rate limiter key for a caller: eight characters of
// the token, or a shared anonymous marker. Every payload segment opens with
// the same encoded JSON prefix, so the characters are taken from the MAC
// segment when there is one.
func LimiterKey(token string) string {
	if token == "" {
		return "anon"
	}
	if i := strings.LastIndex(token, separator); i >= 0 && i < len(token)-1 {
		token = token[i+1:]
	}
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
