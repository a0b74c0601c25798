// Package apperr defines the closed set of rejection codes surfaced to callers.
// Every rejection carries exactly one code and one human-readable message.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Code is a machine-readable rejection reason.
type Code string

const (
	NoToken           Code = "NO_TOKEN"
	MalformedToken    Code = "MALFORMED_TOKEN"
	SignatureMismatch Code = "SIGNATURE_MISMATCH"
	Expired           Code = "EXPIRED"
	UnknownSubject    Code = "UNKNOWN_SUBJECT"
	InsufficientRole  Code = "INSUFFICIENT_ROLE"
	TamperedRole      Code = "TAMPERED_ROLE"
	TamperedEmail     Code = "TAMPERED_EMAIL"
	AccountDisabled   Code = "ACCOUNT_DISABLED"

	RateLimited Code = "RATE_LIMITED"

	UnknownCredential   Code = "UNKNOWN_CREDENTIAL"
	MalformedCredential Code = "MALFORMED_CREDENTIAL"
	DuplicateStatus     Code = "DUPLICATE_STATUS"
	TooFrequent         Code = "TOO_FREQUENT"

	StorageUnavailable Code = "STORAGE_UNAVAILABLE"

	InvalidCredentials Code = "INVALID_CREDENTIALS"
	Maintenance        Code = "MAINTENANCE"
	NotFound           Code = "NOT_FOUND"
	Conflict           Code = "CONFLICT"
	InvalidInput       Code = "INVALID_INPUT"
	WrongPassword      Code = "WRONG_PASSWORD"
	Forbidden          Code = "FORBIDDEN"
)

var messages = map[Code]string{
	NoToken:             "Access denied: session token not found.",
	MalformedToken:      "Session token is malformed.",
	SignatureMismatch:   "Session token is not valid.",
	Expired:             "Session expired. Please log in again.",
	UnknownSubject:      "Account not found in the directory.",
	InsufficientRole:    "Access denied: your role does not allow this action.",
	TamperedRole:        "Security alert: role manipulation detected.",
	TamperedEmail:       "Security alert: email manipulation detected.",
	AccountDisabled:     "Account has been disabled by an administrator.",
	RateLimited:         "Too many requests. Try again in a moment.",
	UnknownCredential:   "QR code is not registered.",
	MalformedCredential: "QR code could not be read.",
	DuplicateStatus:     "Attendance for this status was already recorded today.",
	TooFrequent:         "Scan rejected: please wait before scanning again.",
	StorageUnavailable:  "Service temporarily unavailable. Please try again.",
	InvalidCredentials:  "Wrong email or password.",
	Maintenance:         "The system is under maintenance.",
	NotFound:            "Record not found.",
	Conflict:            "Record already exists.",
	InvalidInput:        "Request is invalid.",
	WrongPassword:       "Old password is wrong.",
	Forbidden:           "Access denied.",
}

// Error is a structured rejection.
type Error struct {
	Code    Code
	Message string
	// RetryAfter is set on RateLimited rejections when the window reset is known.
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error carrying the same code, so sentinel comparisons work
// with errors.Is(err, apperr.New(apperr.Expired)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns a rejection with the default message for code.
func New(code Code) *Error {
	return &Error{Code: code, Message: Message(code)}
}

// Newf returns a rejection with a custom message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// RateLimitedFor returns a RateLimited rejection that clears after d.
func RateLimitedFor(d time.Duration) *Error {
	e := New(RateLimited)
	if d > 0 {
		e.RetryAfter = d
	}
	return e
}

// Wrap attaches an internal cause. The cause is kept for logs and never shown
// to callers.
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, Message: Message(code), cause: cause}
}

// Storage marks a collaborator failure as StorageUnavailable. Errors that
// already carry a code pass through unchanged.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Wrap(StorageUnavailable, err)
}

// Message returns the default human-readable message for code.
func Message(code Code) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[StorageUnavailable]
}

// CodeOf extracts the code from err. Errors without a code are reported as
// StorageUnavailable since they originate from collaborators.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return StorageUnavailable
}

// Public returns the code and message safe to show an untrusted caller.
func Public(err error) (Code, string) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code, ae.Message
	}
	return StorageUnavailable, Message(StorageUnavailable)
}

// RetryAfterOf returns the retry hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// Body is the JSON shape of every rejection sent to clients.
type Body struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// BodyOf returns the public Body for err.
func BodyOf(err error) Body {
	code, msg := Public(err)
	return Body{Code: code, Message: msg}
}
