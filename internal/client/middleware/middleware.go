// Package middleware provides http.RoundTripper wrappers used by the device client.
package middleware

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Middleware wraps an http.RoundTripper to add behavior.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain applies middleware so the first one is outermost: Chain(base, A, B) == A(B(base)).
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// HeaderAuth sets headerName to value on every request (OctoPrint uses X-Api-Key).
func HeaderAuth(headerName, value string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			req = cloneRequest(req)
			req.Header.Set(headerName, value)
			return next.RoundTrip(req)
		})
	}
}

// QueryAuth adds param=value to the query string (Unifi Video uses apiKey).
func QueryAuth(param, value string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			req = cloneRequest(req)
			u := *req.URL
			q := u.Query()
			q.Set(param, value)
			u.RawQuery = q.Encode()
			req.URL = &u
			return next.RoundTrip(req)
		})
	}
}

// JSON marks requests as JSON for devices that reject requests without a content type.
func JSON() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			req = cloneRequest(req)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
			return next.RoundTrip(req)
		})
	}
}

// RateLimit delays requests so they do not exceed limiter. A nil limiter disables limiting.
func RateLimit(limiter *rate.Limiter) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		if limiter == nil {
			return next
		}
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := wait(req.Context(), limiter); err != nil {
				return nil, err
			}
			return next.RoundTrip(req)
		})
	}
}

// NewLimiter returns a token bucket allowing requestsPerMinute with an equal burst,
// or nil when requestsPerMinute is not positive.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	reservation := limiter.Reserve()
	if !reservation.OK() {
		return fmt.Errorf("rate limit reservation failed")
	}
	delay := reservation.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	}
}

// cloneRequest creates a shallow copy of the request with a cloned header map.
func cloneRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = make(http.Header, len(req.Header))
	maps.Copy(r.Header, req.Header)
	return r
}
