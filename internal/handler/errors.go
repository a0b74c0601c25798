package handler

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"presensi/internal/apperr"
)

var statusByCode = map[apperr.Code]int{
	apperr.NoToken:             http.StatusUnauthorized,
	apperr.MalformedToken:      http.StatusUnauthorized,
	apperr.SignatureMismatch:   http.StatusUnauthorized,
	apperr.Expired:             http.StatusUnauthorized,
	apperr.UnknownSubject:      http.StatusUnauthorized,
	apperr.InvalidCredentials:  http.StatusUnauthorized,
	apperr.InsufficientRole:    http.StatusForbidden,
	apperr.TamperedRole:        http.StatusForbidden,
	apperr.TamperedEmail:       http.StatusForbidden,
	apperr.AccountDisabled:     http.StatusForbidden,
	apperr.Forbidden:           http.StatusForbidden,
	apperr.RateLimited:         http.StatusTooManyRequests,
	apperr.UnknownCredential:   http.StatusNotFound,
	apperr.NotFound:            http.StatusNotFound,
	apperr.DuplicateStatus:     http.StatusConflict,
	apperr.TooFrequent:         http.StatusConflict,
	apperr.Conflict:            http.StatusConflict,
	apperr.MalformedCredential: http.StatusUnprocessableEntity,
	apperr.InvalidInput:        http.StatusUnprocessableEntity,
	apperr.WrongPassword:       http.StatusUnprocessableEntity,
	apperr.Maintenance:         http.StatusServiceUnavailable,
	apperr.StorageUnavailable:  http.StatusServiceUnavailable,
}

// StatusFor maps a rejection code to its HTTP status.
func StatusFor(code apperr.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody = apperr.Body

// respondError writes the public code and message of err. Internal causes
// only go to the log.
func respondError(c *gin.Context, err error) {
	body := apperr.BodyOf(err)
	status := StatusFor(body.Code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	if status == http.StatusTooManyRequests {
		c.Header("Retry-After", retryAfterSeconds(apperr.RetryAfterOf(err)))
	}
	c.AbortWithStatusJSON(status, body)
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorBody{Code: apperr.InvalidInput, Message: msg})
}
