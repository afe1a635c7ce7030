// Package graph is the authenticated fetch layer for the Microsoft Graph
// API: bearer-authenticated GETs with bounded timeouts and transparent
// continuation-link pagination.
package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/metrics"
)

// TokenSource supplies a currently valid bearer token. Invalidate marks the
// cached access token stale so the next Token call refreshes it.
type TokenSource interface {
	Token(ctx context.Context) (*domain.TokenSet, error)
	Invalidate()
}

// Client issues bearer-authenticated requests against the Graph API. The
// bearer header is attached per call from the token source, never cached.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        *slog.Logger
}

// NewClient creates a Graph API client.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tokens: tokens,
		log:    slog.Default().With("component", "graph"),
	}
}

// URL resolves an endpoint path against the API base. Absolute URLs
// (continuation links, image resource URLs) pass through unchanged.
func (c *Client) URL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// Get performs an authenticated GET and returns the response body. A single
// 401 triggers one token refresh-and-retry; a second consecutive 401 on the
// same request surfaces domain.ErrAuthExpired without another refresh.
func (c *Client) Get(ctx context.Context, endpoint, operation string) ([]byte, error) {
	resp, err := c.get(ctx, endpoint, operation)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.RequestError{
			Operation: operation,
			Resource:  endpoint,
			Err:       fmt.Errorf("read response: %w", err),
		}
	}
	return body, nil
}

// Fetch performs an authenticated GET and streams the response body to w.
// Used for binary image downloads so large resources never sit in memory.
func (c *Client) Fetch(ctx context.Context, endpoint, operation string, w io.Writer) error {
	resp, err := c.get(ctx, endpoint, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return &domain.RequestError{
			Operation: operation,
			Resource:  endpoint,
			Err:       fmt.Errorf("copy response: %w", err),
		}
	}
	return nil
}

// get performs the request with the one-refresh-per-call 401 rule.
func (c *Client) get(ctx context.Context, endpoint, operation string) (*http.Response, error) {
	refreshed := false
	for {
		resp, err := c.do(ctx, endpoint, operation)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			if refreshed {
				// Second consecutive 401: the refreshed token was rejected
				// too. Do not loop on refreshes.
				return nil, &domain.RequestError{
					Operation: operation,
					Resource:  endpoint,
					Status:    http.StatusUnauthorized,
					Err:       domain.ErrAuthExpired,
				}
			}
			c.log.Debug("Unauthorized, refreshing token", "operation", operation)
			c.tokens.Invalidate()
			refreshed = true
			continue
		}

		if err := checkStatus(resp, endpoint, operation); err != nil {
			resp.Body.Close()
			return nil, err
		}
		return resp, nil
	}
}

// do issues one attempt with a freshly obtained bearer token.
func (c *Client) do(ctx context.Context, endpoint, operation string) (*http.Response, error) {
	ts, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &domain.RequestError{Operation: operation, Resource: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(endpoint), nil)
	if err != nil {
		return nil, &domain.RequestError{Operation: operation, Resource: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)
	req.Header.Set("Accept", "*/*")

	start := time.Now()
	metrics.RequestsTotal.WithLabelValues(operation).Inc()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.RequestError{
			Operation: operation,
			Resource:  endpoint,
			Err:       fmt.Errorf("request failed: %w", err),
		}
	}

	metrics.RequestLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return resp, nil
}

// checkStatus maps non-2xx responses to RequestError, extracting the
// Retry-After hint on 429.
func checkStatus(resp *http.Response, endpoint, operation string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	reqErr := &domain.RequestError{
		Operation: operation,
		Resource:  endpoint,
		Status:    resp.StatusCode,
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		reqErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return reqErr
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
