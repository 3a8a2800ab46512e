package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any *StatusError carrying HTTP 401
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is returned when the server answered with a non-2xx status.
// Its presence means a response was received: callers use it to tell an
// explicit rejection from a network failure.
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Is reports 401 responses as ErrUnauthorized
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// IsStatusError reports whether err carries a server response
func IsStatusError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}
