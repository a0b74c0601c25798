// Package auth issues and checks kiosk device tokens and hashes portal
// passwords.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// DeviceClaims identifies a registered kiosk.
type DeviceClaims struct {
	DeviceID     string `json:"device_id"`
	RegisteredBy string `json:"registered_by,omitempty"`
	Kind         string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs device tokens with HS256.
type Issuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an Issuer. An empty key is rejected.
func NewIssuer(key, issuer string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if key == "" {
		return nil, errors.New("auth: signing key must not be empty")
	}
	return &Issuer{key: []byte(key), issuer: issuer, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}, nil
}

// WithClock overrides the time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue issues signed access and refresh tokens for a device.
func (i *Issuer) Issue(deviceID, registeredBy string) (TokenPair, error) {
	if deviceID == "" {
		return TokenPair{}, errors.New("auth: device id must not be empty")
	}
	now := i.now()
	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)

	accessToken, err := i.sign(deviceID, registeredBy, KindAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := i.sign(deviceID, registeredBy, KindRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (i *Issuer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := i.Parse(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return i.Issue(claims.DeviceID, claims.RegisteredBy)
}

func (i *Issuer) sign(deviceID, registeredBy, kind string, now, exp time.Time) (string, error) {
	claims := DeviceClaims{
		DeviceID:     deviceID,
		RegisteredBy: registeredBy,
		Kind:         kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Parse validates a token of the given kind and returns its claims.
func (i *Issuer) Parse(tokenStr, kind string) (DeviceClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return DeviceClaims{}, err
	}
	claims, ok := parsed.Claims.(*DeviceClaims)
	if !ok || !parsed.Valid {
		return DeviceClaims{}, errors.New("invalid token")
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return DeviceClaims{}, errors.New("issuer mismatch")
	}
	if claims.Kind != kind {
		return DeviceClaims{}, errors.New("wrong token kind")
	}
	return *claims, nil
}
