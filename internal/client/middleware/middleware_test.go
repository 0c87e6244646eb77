package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures the last request that reached the end of the chain.
type recorder struct {
	last *http.Request
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.last = req
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	return rec.Result(), nil
}

func TestHeaderAuth(t *testing.T) {
	rec := &recorder{}
	rt := Chain(rec, HeaderAuth("X-Api-Key", "secret"))

	req := httptest.NewRequest(http.MethodGet, "http://octo/api/job", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, "secret", rec.last.Header.Get("X-Api-Key"))
	assert.Empty(t, req.Header.Get("X-Api-Key"), "original request must not be modified")
}

func TestQueryAuth(t *testing.T) {
	rec := &recorder{}
	rt := Chain(rec, QueryAuth("apiKey", "k1"))

	req := httptest.NewRequest(http.MethodGet, "http://nvr:7080/api/2.0/camera?x=1", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, "k1", rec.last.URL.Query().Get("apiKey"))
	assert.Equal(t, "1", rec.last.URL.Query().Get("x"))
	assert.Empty(t, req.URL.Query().Get("apiKey"))
}

func TestJSON(t *testing.T) {
	rec := &recorder{}
	rt := Chain(rec, JSON())

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://octo/api/job", nil))
	require.NoError(t, err)

	assert.Equal(t, "application/json", rec.last.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", rec.last.Header.Get("Accept"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}

	rt := Chain(&recorder{}, mark("a"), mark("b"), mark("c"))
	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://x/", nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.Nil(t, NewLimiter(-5))

	l := NewLimiter(120)
	require.NotNil(t, l)
	assert.Equal(t, 120, l.Burst())
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	rec := &recorder{}
	rt := Chain(rec, RateLimit(nil))

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://x/", nil))
	require.NoError(t, err)
	assert.NotNil(t, rec.last)
}

func TestRateLimit_CancelledWhileWaiting(t *testing.T) {
	// One request per minute with burst 1: the second request has to wait ~60s.
	limiter := NewLimiter(1)
	rt := Chain(&recorder{}, RateLimit(limiter))

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://x/", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "http://x/", nil).WithContext(ctx)

	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
