// Package xbrlapi implements the HTTP transport for the filings.xbrl.org
// JSON:API. All methods are context-aware, respect the shared rate limiter,
// and retry on transient errors (429, 5xx).
package xbrlapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/derickschaefer/filings/internal/filter"
	"github.com/derickschaefer/filings/internal/jsonapi"
)

const (
	// DefaultBaseURL is the filings entry point of the public API.
	DefaultBaseURL = "https://filings.xbrl.org/api/filings"
	mediaType      = "application/vnd.api+json"
	userAgent      = "filings-cli/1.0"
	maxRetries     = 4
)

// Client is the filings.xbrl.org HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	debug      bool
}

// NewClient creates a Client for baseURL with the given timeout and
// request rate.
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64, debug bool) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		debug:   debug,
	}
}

// BaseURL returns the filings entry point the client queries.
func (c *Client) BaseURL() string { return c.baseURL }

// ─── Errors ───────────────────────────────────────────────────────────────────

// APIError is a response carrying a JSON:API "errors" member.
type APIError struct {
	Status int
	Errors []jsonapi.ErrorObject
}

func (e *APIError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, o := range e.Errors {
		switch {
		case o.Title != "" && o.Detail != "":
			msgs = append(msgs, o.Title+": "+o.Detail)
		case o.Detail != "":
			msgs = append(msgs, o.Detail)
		default:
			msgs = append(msgs, o.Title)
		}
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, strings.Join(msgs, "; "))
}

// StatusError is a non-200 response without a JSON:API error document.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// NotFound reports whether the server answered 404.
func (e *StatusError) NotFound() bool { return e.Status == http.StatusNotFound }

// ─── Pages ────────────────────────────────────────────────────────────────────

// PageResponse is one decoded page with the URL it was fetched from.
type PageResponse struct {
	Document *jsonapi.Document
	URL      string
	Fetched  time.Time
}

// FetchPage retrieves the first page of q, or the page at cursor when one
// is given. Cursor is the "links.next" value of the previous page and may
// be relative to the entry point.
func (c *Client) FetchPage(ctx context.Context, q filter.Query, cursor string) (*PageResponse, error) {
	reqURL, err := c.pageURL(q, cursor)
	if err != nil {
		return nil, err
	}

	body, status, err := c.get(ctx, reqURL, mediaType)
	if err != nil {
		return nil, err
	}

	doc, decodeErr := jsonapi.Decode(body)
	if status != http.StatusOK {
		if decodeErr == nil && len(doc.Errors) > 0 {
			return nil, &APIError{Status: status, Errors: doc.Errors}
		}
		return nil, &StatusError{Status: status, Body: snippet(body)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if len(doc.Errors) > 0 {
		return nil, &APIError{Status: status, Errors: doc.Errors}
	}
	return &PageResponse{Document: doc, URL: reqURL, Fetched: time.Now().UTC()}, nil
}

func (c *Client) pageURL(q filter.Query, cursor string) (string, error) {
	if cursor == "" {
		params := q.Params()
		if len(params) == 0 {
			return c.baseURL, nil
		}
		return c.baseURL + "?" + params.Encode(), nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	ref, err := url.Parse(cursor)
	if err != nil {
		return "", fmt.Errorf("parsing next link %q: %w", cursor, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// ─── Files ────────────────────────────────────────────────────────────────────

// FetchFile opens a download of the file at rawURL. The caller must close
// the returned body. Retries cover connecting and the response status;
// once the body is returned a transfer error is final.
func (c *Client) FetchFile(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.backoff(ctx, attempt); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if c.debug {
			slog.Debug("file request", "url", rawURL)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}
		if c.debug {
			slog.Debug("file response", "status", resp.StatusCode, "length", resp.ContentLength)
		}
		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		lastErr = &StatusError{Status: resp.StatusCode, Body: snippet(body)}
		if !retryable(resp.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs a GET request, handling rate limiting and retries. Any
// non-retryable response is returned with its status for the caller to
// interpret.
func (c *Client) get(ctx context.Context, reqURL, accept string) ([]byte, int, error) {
	if c.debug {
		slog.Debug("api request", "url", reqURL)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.backoff(ctx, attempt); err != nil {
			return nil, 0, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}

		if c.debug {
			slog.Debug("api response", "status", resp.StatusCode, "bytes", len(body))
		}

		if retryable(resp.StatusCode) {
			lastErr = &StatusError{Status: resp.StatusCode, Body: snippet(body)}
			continue
		}
		return body, resp.StatusCode, nil
	}
	return nil, 0, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}
	d := time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
	slog.Debug("retrying after backoff", "attempt", attempt, "backoff", d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
