package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassista/go_devwatch/internal/model"
)

// newTestClient creates a Client pointed at the given test server URL.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(ClientConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(ClientConfig{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(ClientConfig{BaseURL: "http://octo/api"})
	require.NoError(t, err)

	assert.Equal(t, DefaultRequestTimeout, c.http.Timeout)
	assert.Equal(t, AuthHeader, c.config.AuthMode)
	assert.Equal(t, "X-Api-Key", c.config.AuthName)
	assert.Equal(t, "http://octo/api", c.BaseURL())
}

func TestNew_UnknownAuthMode(t *testing.T) {
	_, err := New(ClientConfig{BaseURL: "http://x", APIKey: "k", AuthMode: "cookie"})
	assert.Error(t, err)
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/job", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state":"Printing","progress":{"completion":42.5}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/")
	payload, err := c.Fetch(context.Background(), model.ResourceJob)
	require.NoError(t, err)

	assert.Equal(t, "Printing", payload["state"])
	progress, ok := payload["progress"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 42.5, progress["completion"])
}

func TestFetch_QueryAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.0/camera", r.URL.Path)
		assert.Equal(t, "nvr-key", r.URL.Query().Get("apiKey"))
		assert.Empty(t, r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c, err := New(ClientConfig{BaseURL: srv.URL + "/api/2.0", APIKey: "nvr-key", AuthMode: AuthQuery})
	require.NoError(t, err)

	payload, err := c.Fetch(context.Background(), model.ResourceCamera)
	require.NoError(t, err)
	assert.Contains(t, payload, "data")
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Printer is not operational", http.StatusConflict)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background(), model.ResourcePrinter)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusConflict, httpErr.StatusCode)
	assert.Equal(t, model.ResourcePrinter, httpErr.Resource)
	assert.True(t, IsNotReady(err))
	assert.False(t, IsNetworkError(err))
	assert.Contains(t, err.Error(), "409")
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background(), model.ResourceJob)

	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.False(t, IsNotReady(err))
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.Fetch(context.Background(), model.ResourceJob)
	require.Error(t, err)

	assert.True(t, IsNetworkError(err))
	assert.Equal(t, 0, StatusCode(err))
}

func TestFetch_ClientTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(ClientConfig{BaseURL: srv.URL, RequestTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), model.ResourceJob)
	assert.True(t, IsNetworkError(err))
}

func TestFetch_ContextCancelledIsNotNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, model.ResourceJob)
	require.Error(t, err)
	assert.False(t, IsNetworkError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"state":`},
		{"array", `[1,2,3]`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			_, err := c.Fetch(context.Background(), model.ResourceJob)
			require.Error(t, err)
			assert.False(t, IsNetworkError(err))
			assert.Equal(t, 0, StatusCode(err))
		})
	}
}

func TestValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	assert.NoError(t, Validate(context.Background(), newTestClient(t, srv.URL), model.ResourceJob))

	bad, err := New(ClientConfig{BaseURL: srv.URL, APIKey: "wrong"})
	require.NoError(t, err)
	err = Validate(context.Background(), bad, model.ResourceJob)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate([]byte("abc"), 5))
	assert.Equal(t, "ab...", truncate([]byte("abcdef"), 2))
}

func TestFetch_SelfSignedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	strict, err := New(ClientConfig{BaseURL: srv.URL + "/api/2.0/", APIKey: "k", AuthMode: AuthQuery})
	require.NoError(t, err)
	_, err = strict.Fetch(context.Background(), model.ResourceCamera)
	assert.True(t, IsNetworkError(err), "expected certificate error to be a network error, got %v", err)

	lenient, err := New(ClientConfig{BaseURL: srv.URL + "/api/2.0/", APIKey: "k", AuthMode: AuthQuery, InsecureSkipVerify: true})
	require.NoError(t, err)
	payload, err := lenient.Fetch(context.Background(), model.ResourceCamera)
	require.NoError(t, err)
	assert.Contains(t, payload, "data")
}

func TestFetch_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(ClientConfig{BaseURL: srv.URL, APIKey: "k", RequestsPerMinute: 1})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), model.ResourceJob)
	require.NoError(t, err)

	// the second request would wait a minute for a token
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Fetch(ctx, model.ResourceJob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.False(t, IsNetworkError(err))
}
