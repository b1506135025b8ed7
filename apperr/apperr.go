// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer. Every error returned to a caller wraps one of these sentinels.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound signals an unknown username or certificate record.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals missing or invalid submission fields.
	ErrValidation = errors.New("validation failed")
	// ErrAuthFailed signals a wrong password.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrLockedOut signals that the account's login rate limit is engaged.
	ErrLockedOut = errors.New("account locked out")
	// ErrConflict signals a duplicate username at sign-up.
	ErrConflict = errors.New("already exists")
	// ErrStoreUnavailable signals a storage-layer outage. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// HTTPStatus maps a taxonomy error to its response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrLockedOut):
		return http.StatusLocked
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
