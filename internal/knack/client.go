// Package knack is a thin client for the Knack objects/records REST API.
// It exposes the four operations the reconciliation pipeline needs
// (paginated fetch, create, update, delete) and nothing else.
package knack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.knack.com/v1"

// Defaults mirror the API's documented limits: 1000 rows per page, and a
// conservative request budget well under the published rate limit.
const (
	defaultPageSize    = 1000
	defaultMaxPages    = 1000
	defaultRatePerSec  = 4
	defaultCallTimeout = 60 * time.Second
)

// APIError is a non-2xx response from the store, preserved with enough
// context to report per-item failures without retrying.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to one Knack application. All calls share a single rate
// limiter so corrective writes and pagination loops pace themselves the
// same way.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	appID       string
	apiKey      string
	pageSize    int
	maxPages    int
	rateLimiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithPageSize sets the rows-per-page for fetches.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRate sets the request budget in requests per second.
func WithRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given application credentials.
func NewClient(appID, apiKey string, opts ...Option) (*Client, error) {
	if appID == "" {
		return nil, fmt.Errorf("application ID is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: defaultCallTimeout},
		baseURL:     defaultBaseURL,
		appID:       appID,
		apiKey:      apiKey,
		pageSize:    defaultPageSize,
		maxPages:    defaultMaxPages,
		rateLimiter: rate.NewLimiter(rate.Limit(defaultRatePerSec), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchAll retrieves every record of an object, following pagination until
// an empty page. The result reflects one snapshot per run; callers must not
// assume consistency across separate calls.
func (c *Client) FetchAll(ctx context.Context, objectKey string, filters []Filter) ([]Record, error) {
	var all []Record

	for page := 1; page <= c.maxPages; page++ {
		params := url.Values{}
		params.Set("rows_per_page", strconv.Itoa(c.pageSize))
		params.Set("page", strconv.Itoa(page))
		if len(filters) > 0 {
			fj, err := json.Marshal(filters)
			if err != nil {
				return nil, fmt.Errorf("marshal filters: %w", err)
			}
			params.Set("filters", string(fj))
		}

		var pageData recordsPage
		endpoint := fmt.Sprintf("/objects/%s/records", objectKey)
		if err := c.doJSON(ctx, http.MethodGet, endpoint, params, nil, &pageData); err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", objectKey, page, err)
		}

		if len(pageData.Records) == 0 {
			break
		}
		all = append(all, pageData.Records...)

		if pageData.TotalPages > 0 && page >= pageData.TotalPages {
			break
		}
	}

	return all, nil
}

// Create inserts a new record and returns its ID.
func (c *Client) Create(ctx context.Context, objectKey string, fields map[string]interface{}) (string, error) {
	var resp createResponse
	endpoint := fmt.Sprintf("/objects/%s/records", objectKey)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, nil, fields, &resp); err != nil {
		return "", fmt.Errorf("create in %s: %w", objectKey, err)
	}
	return resp.ID, nil
}

// Update overwrites the given fields on an existing record.
func (c *Client) Update(ctx context.Context, objectKey, recordID string, fields map[string]interface{}) error {
	endpoint := fmt.Sprintf("/objects/%s/records/%s", objectKey, recordID)
	if err := c.doJSON(ctx, http.MethodPut, endpoint, nil, fields, nil); err != nil {
		return fmt.Errorf("update %s/%s: %w", objectKey, recordID, err)
	}
	return nil
}

// Delete removes a record permanently.
func (c *Client) Delete(ctx context.Context, objectKey, recordID string) error {
	endpoint := fmt.Sprintf("/objects/%s/records/%s", objectKey, recordID)
	if err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", objectKey, recordID, err)
	}
	return nil
}

// doJSON performs one rate-limited request and decodes the response body
// into out when non-nil. A non-2xx status becomes an *APIError; there is
// no retry here, callers decide what a failed item means.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, params url.Values, body, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Knack-Application-Id", c.appID)
	req.Header.Set("X-Knack-REST-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
