// Package api provides the TableRAG HTTP client and its error types.
package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
)

// ErrMissingTaskID indicates a submission was accepted but the body carried no task id.
var ErrMissingTaskID = errors.New("response did not include a task id")

// TransportError is returned for any non-2xx response or network failure.
// StatusCode is zero when no response was received.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s %s failed: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s failed: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a
// TransportError with a response.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the server, e.g. an unknown task id.
func IsNotFound(err error) bool {
	return StatusCode(err) == nethttp.StatusNotFound
}
