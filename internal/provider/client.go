// internal/provider/client.go
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pursuit-ops/isochroned/pkg/core"
)

// DefaultTimeout bounds a single external call when none is configured.
const DefaultTimeout = 10 * time.Second

// Client is the shared HTTP client for external reachability providers.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a provider client. Every call made through it carries
// its own timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether both base URL and API key are set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// GetJSON issues a GET to baseURL+path with the API key appended as the
// "key" query parameter and decodes the JSON body into out.
//
// 4xx responses wrap core.ErrUpstreamRejected; network errors, timeouts and
// 5xx responses wrap core.ErrUpstreamUnavailable.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}

	u := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", path, err, core.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if err := classifyStatus(path, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: empty body: %w", path, core.ErrEmptyResult)
		}
		return fmt.Errorf("%s: decode response: %v: %w", path, err, core.ErrUpstreamUnavailable)
	}
	return nil
}

// StatusError carries the HTTP status of a failed provider call.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

func classifyStatus(path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	se := &StatusError{
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		kind:       core.ErrUpstreamUnavailable,
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		se.kind = core.ErrUpstreamRejected
	}
	return se
}
