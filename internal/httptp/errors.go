package httptp

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrClosed is delivered for requests made after Close.
	ErrClosed = errors.New("httptp: closed")
	// ErrInvalidEndpoint indicates an endpoint that is not an absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("httptp: invalid endpoint")
	// ErrBodyTooLarge indicates a response body over the configured limit.
	ErrBodyTooLarge = errors.New("httptp: response body too large")
)

// StatusError is delivered when the server answered with a non-2xx status and
// a body that is not a GraphQL response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("httptp: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("httptp: unexpected status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}
