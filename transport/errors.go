package transport

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized indicates the server rejected the supplied credential
	// (HTTP 401). It is never retried here; recovery is the caller's job.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidRequest indicates the server rejected the request shape
	// (HTTP 400).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNetwork indicates a connection-level failure after retries were
	// exhausted.
	ErrNetwork = errors.New("network failure")
	// ErrDecode indicates a well-formed response with an unexpected shape.
	// Retrying cannot fix a shape mismatch, so it is never retried.
	ErrDecode = errors.New("could not read response")
)

// StatusError is a terminal non-2xx response. It matches ErrUnauthorized
// for 401 and ErrInvalidRequest for 400 via errors.Is.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrInvalidRequest:
		return e.Code == http.StatusBadRequest
	}
	return false
}
