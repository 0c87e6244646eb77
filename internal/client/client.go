// Package client fetches named resources from a device's JSON HTTP API.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bassista/go_devwatch/internal/client/middleware"
	"github.com/bassista/go_devwatch/internal/logger"
	"github.com/bassista/go_devwatch/internal/model"
)

// DefaultRequestTimeout bounds a single resource request.
const DefaultRequestTimeout = 9 * time.Second

const maxResponseBytes = 8 * 1024 * 1024

// AuthMode selects how the API key is sent.
type AuthMode string

const (
	AuthHeader AuthMode = "header"
	AuthQuery  AuthMode = "query"
)

// Fetcher fetches one named resource and decodes it.
type Fetcher interface {
	Fetch(ctx context.Context, resource string) (model.Payload, error)
}

// ClientConfig holds configuration for Client. It is copied on construction.
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	AuthMode           AuthMode
	AuthName           string // header or query parameter name, defaults per AuthMode
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
	RequestsPerMinute  int
	Transport          http.RoundTripper // optional, mainly for tests
}

// Client implements Fetcher over net/http.
type Client struct {
	http   *http.Client
	config ClientConfig
}

// New constructs a Client. Returns an error if BaseURL is empty.
func New(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthHeader
	}
	if cfg.AuthName == "" {
		switch cfg.AuthMode {
		case AuthQuery:
			cfg.AuthName = "apiKey"
		default:
			cfg.AuthName = "X-Api-Key"
		}
	}

	base := cfg.Transport
	if base == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
		}
		base = transport
	}

	mws := []middleware.Middleware{
		middleware.RateLimit(middleware.NewLimiter(cfg.RequestsPerMinute)),
		middleware.JSON(),
	}
	if cfg.APIKey != "" {
		switch cfg.AuthMode {
		case AuthQuery:
			mws = append(mws, middleware.QueryAuth(cfg.AuthName, cfg.APIKey))
		case AuthHeader:
			mws = append(mws, middleware.HeaderAuth(cfg.AuthName, cfg.APIKey))
		default:
			return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
		}
	}

	return &Client{
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: middleware.Chain(base, mws...),
		},
		config: cfg,
	}, nil
}

// BaseURL returns the configured base URL of the device API.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Fetch performs GET {BaseURL}/{resource} and decodes the JSON object body.
//
// Errors:
//   - *NetworkError when the device cannot be reached (including the client timeout);
//   - *HTTPError on a non-2xx status;
//   - the context error (wrapped) when ctx is cancelled or expires;
//   - a decode error when the body is not a JSON object.
func (c *Client) Fetch(ctx context.Context, resource string) (model.Payload, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(resource, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: create request: %w", resource, err)
	}

	logger.WithComponent("client").Tracef("GET %s", url)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", resource, ctxErr)
		}
		return nil, &NetworkError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", resource, ctxErr)
		}
		return nil, &NetworkError{Resource: resource, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Resource: resource, StatusCode: resp.StatusCode, Body: truncate(body, 200)}
	}

	var payload model.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("fetch %s: decode: %w", resource, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("fetch %s: decode: empty response", resource)
	}
	return payload, nil
}

// Validate fetches resource once, bypassing any cache, to check that the
// device is reachable and the API key is accepted.
func Validate(ctx context.Context, f Fetcher, resource string) error {
	if _, err := f.Fetch(ctx, resource); err != nil {
		return fmt.Errorf("validate connection: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
