package client

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError reports that the device could not be reached at all.
type NetworkError struct {
	Resource string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: connection failed: %v", e.Resource, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx response from the device.
type HTTPError struct {
	Resource   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Resource, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d: %s", e.Resource, e.StatusCode, e.Body)
}

// IsNetworkError reports whether err is (or wraps) a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNotReady reports whether err is the 409 Conflict OctoPrint answers with
// while the printer itself is disconnected.
func IsNotReady(err error) bool {
	return StatusCode(err) == http.StatusConflict
}
