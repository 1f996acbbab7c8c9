package shopper

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors shared by the client packages.
var (
	ErrNetwork      = errors.New("network failure")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
)

// NetworkError reports a transport-level failure where no response arrived.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNetwork) match any NetworkError.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// HTTPStatusError is a non-2xx response, or a 2xx response whose body carries
// an error object. Message is always a single normalized string.
type HTTPStatusError struct {
	Status  int
	Message string
}

func (e *HTTPStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d: %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// Is makes a 401 HTTPStatusError match ErrUnauthorized.
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// ValidationError rejects input before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IsUnauthorized reports whether err is, or wraps, a 401.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
