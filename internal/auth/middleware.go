package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"presensi/internal/apperr"
)

// ClaimsKey is the gin context key holding the kiosk DeviceClaims.
const ClaimsKey = "device_claims"

// DeviceAuth enforces bearer device access tokens.
func DeviceAuth(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.BodyOf(apperr.Newf(apperr.NoToken, "Device token not found.")))
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := issuer.Parse(tokenStr, KindAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.BodyOf(TokenError(err)))
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// DeviceFrom returns the claims stored by DeviceAuth.
func DeviceFrom(c *gin.Context) (DeviceClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return DeviceClaims{}, false
	}
	claims, ok := v.(DeviceClaims)
	return claims, ok
}

// TokenError classifies a Parse failure into a rejection code.
func TokenError(err error) *apperr.Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Wrap(apperr.Expired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperr.Wrap(apperr.SignatureMismatch, err)
	}
	return apperr.Wrap(apperr.MalformedToken, err)
}
