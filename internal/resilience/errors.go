package resilience

import (
	"context"
	"errors"
	"net/http"
)

// StatusCoder is implemented by provider errors that carry the HTTP status
// of a failed response.
type StatusCoder interface {
	HTTPStatus() int
}

// Retryable is the default retry classifier. Context errors and errors marked
// with Permanent are never retried. A provider response is retried only for
// 408, 429 and 5xx. Anything else, including transport failures, is retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return TransientStatus(sc.HTTPStatus())
	}
	return true
}

// TransientStatus reports whether an HTTP status may succeed on retry.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// Permanent marks err so that Retry gives up on it immediately and breakers
// do not count it against the provider.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
