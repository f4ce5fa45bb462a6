package whitelist

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidUsername    = errors.New("invalid username format: must be 3-16 alphanumeric characters and underscores")
	ErrAlreadyWhitelisted = errors.New("user is already whitelisted")
	ErrNotFound           = errors.New("user not found in whitelist")
	ErrUnavailable        = errors.New("whitelist backend unavailable")
	ErrPathEscape         = errors.New("whitelist file must be within the server root directory")
	ErrIO                 = errors.New("whitelist I/O failure")
)

// Code maps a store error onto the HTTP status the API reports for it.
func Code(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyWhitelisted):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message safe to show to remote callers.
// Wrapped detail (paths, addresses) is stripped for I/O failures.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidUsername):
		return ErrInvalidUsername.Error()
	case errors.Is(err, ErrAlreadyWhitelisted):
		return ErrAlreadyWhitelisted.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrUnavailable):
		return "RCON is not enabled"
	case errors.Is(err, ErrPathEscape):
		return ErrPathEscape.Error()
	default:
		return "failed to access whitelist"
	}
}
