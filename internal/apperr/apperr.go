// Package apperr defines the error taxonomy shared by services and HTTP handlers.
package apperr

import (
	"fmt"
	"net/http"
)

// Machine-readable error codes returned to clients.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeConflict        = "CONFLICT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeRefreshExpired  = "REFRESH_EXPIRED"
	CodeInvalidRefresh  = "INVALID_REFRESH"
	CodeNotVerified     = "ACCOUNT_NOT_VERIFIED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMITED"
	CodeTooSoon         = "TOO_SOON"
	CodeDeliveryFailure = "DELIVERY_ERROR"
	CodeServer          = "SERVER_ERROR"
)

// Error is an application error carrying an HTTP status and a stable code.
type Error struct {
	Status  int
	Code    string
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel kinds for errors.Is comparisons.
var (
	ErrValidation     = &Error{Status: http.StatusBadRequest, Code: CodeValidation}
	ErrConflict       = &Error{Status: http.StatusConflict, Code: CodeConflict}
	ErrUnauthorized   = &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized}
	ErrTokenExpired   = &Error{Status: http.StatusUnauthorized, Code: CodeTokenExpired}
	ErrInvalidToken   = &Error{Status: http.StatusUnauthorized, Code: CodeInvalidToken}
	ErrRefreshExpired = &Error{Status: http.StatusUnauthorized, Code: CodeRefreshExpired}
	ErrInvalidRefresh = &Error{Status: http.StatusUnauthorized, Code: CodeInvalidRefresh}
	ErrNotVerified    = &Error{Status: http.StatusUnauthorized, Code: CodeNotVerified}
	ErrForbidden      = &Error{Status: http.StatusForbidden, Code: CodeForbidden}
	ErrNotFound       = &Error{Status: http.StatusNotFound, Code: CodeNotFound}
	ErrRateLimited    = &Error{Status: http.StatusTooManyRequests, Code: CodeRateLimited}
	ErrTooSoon        = &Error{Status: http.StatusTooManyRequests, Code: CodeTooSoon}
	ErrDelivery       = &Error{Status: http.StatusInternalServerError, Code: CodeDeliveryFailure}
	ErrServer         = &Error{Status: http.StatusInternalServerError, Code: CodeServer}
)

func newErr(kind *Error, msg string) *Error {
	return &Error{Status: kind.Status, Code: kind.Code, Message: msg}
}

// Validation reports malformed or missing input. Fields lists every offending key.
func Validation(msg string, fields ...string) *Error {
	e := newErr(ErrValidation, msg)
	e.Fields = fields
	return e
}

func Conflict(msg string) *Error { return newErr(ErrConflict, msg) }
func Unauthorized(msg string) *Error { return newErr(ErrUnauthorized, msg) }
func TokenExpired(msg string) *Error { return newErr(ErrTokenExpired, msg) }
func InvalidToken(msg string) *Error { return newErr(ErrInvalidToken, msg) }
func RefreshExpired(msg string) *Error { return newErr(ErrRefreshExpired, msg) }
func InvalidRefresh(msg string) *Error { return newErr(ErrInvalidRefresh, msg) }
func NotVerified(msg string) *Error { return newErr(ErrNotVerified, msg) }
func Forbidden(msg string) *Error { return newErr(ErrForbidden, msg) }
func NotFound(msg string) *Error { return newErr(ErrNotFound, msg) }
func RateLimited(msg string) *Error { return newErr(ErrRateLimited, msg) }
func TooSoon(msg string) *Error { return newErr(ErrTooSoon, msg) }

// Delivery wraps an OTP gateway failure.
func Delivery(msg string, err error) *Error {
	e := newErr(ErrDelivery, msg)
	e.Err = err
	return e
}

// Server wraps an unexpected failure. The cause is logged, never rendered.
func Server(msg string, err error) *Error {
	e := newErr(ErrServer, msg)
	e.Err = err
	return e
}
