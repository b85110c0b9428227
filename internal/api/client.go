// Package api is the typed HTTP client for the backend notification
// endpoints. It is the single place where raw transport failures and
// non-2xx responses become normalized errors; every layer above works
// only with *errs.Error values.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/notify-agent/internal/errs"
	"github.com/nhle/notify-agent/internal/model"
	"github.com/nhle/notify-agent/internal/retry"
)

// DefaultTimeout is the per-request deadline when none is configured.
const DefaultTimeout = 30 * time.Second

// Client is a thin HTTP client for the admin notification API. It
// handles Bearer token authentication, JSON marshaling, the response
// envelope, and retry through the shared driver.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	driver     *retry.Driver
}

// NewClient creates a notification API client. The baseURL should be
// the admin API root (e.g., https://admin.example.com/api/admin). The
// token is sent as a Bearer credential on every request.
func NewClient(baseURL, token string, timeout time.Duration, driver *retry.Driver) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if driver == nil {
		driver = retry.NewDriver()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		driver:     driver,
	}
}

// List retrieves a page of notifications matching opts.
func (c *Client) List(ctx context.Context, opts model.ListOptions) (*model.ListResult, error) {
	path := "/notifications"
	if q := encodeListQuery(opts); q != "" {
		path += "?" + q
	}

	var result model.ListResult
	if err := c.request(ctx, "list", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get retrieves a single notification by id.
func (c *Client) Get(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := c.request(ctx, "get:"+id, http.MethodGet, "/notifications/"+url.PathEscape(id), nil, &n)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Create submits a new notification and returns the created record,
// including its server-assigned id.
func (c *Client) Create(ctx context.Context, n model.Notification) (*model.Notification, error) {
	var created model.Notification
	err := c.request(ctx, "create", http.MethodPost, "/notifications", n, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update applies a generic patch to a notification.
func (c *Client) Update(ctx context.Context, id string, patch model.UpdatePatch) (*model.Notification, error) {
	var updated model.Notification
	err := c.request(ctx, "update:"+id, http.MethodPatch,
		"/notifications/"+url.PathEscape(id), patch, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a notification by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.request(ctx, "delete:"+id, http.MethodDelete,
		"/notifications/"+url.PathEscape(id), nil, nil)
}

// MarkRead flags a single notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.request(ctx, "mark-read:"+id, http.MethodPatch,
		"/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllRead flags every unread notification as read and returns the
// number of records the backend updated.
func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var data updateCountData
	err := c.request(ctx, "mark-all-read", http.MethodPatch, "/notifications/read-all", nil, &data)
	if err != nil {
		return 0, err
	}
	return data.UpdatedCount, nil
}

// BulkUpdate applies the same patch to several notifications at once.
func (c *Client) BulkUpdate(ctx context.Context, ids []string, patch model.UpdatePatch) (int, error) {
	var data updateCountData
	body := bulkUpdateRequest{IDs: ids, Updates: patch}
	err := c.request(ctx, "bulk-update", http.MethodPatch, "/notifications/bulk-update", body, &data)
	if err != nil {
		return 0, err
	}
	return data.UpdatedCount, nil
}

// Stats retrieves the backend-computed notification summary.
func (c *Client) Stats(ctx context.Context) (*model.Stats, error) {
	var s model.Stats
	if err := c.request(ctx, "stats", http.MethodGet, "/notifications/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// request delegates to do through the retry driver. Timeouts are never
// retried here; structured API errors retry only on 5xx or 429;
// transport-level failures always retry.
func (c *Client) request(
	ctx context.Context,
	opID string,
	method, path string,
	body interface{},
	result interface{},
) error {
	return c.driver.DoWith(ctx, opID, func(ctx context.Context) error {
		return c.do(ctx, method, path, body, result)
	}, shouldRetry)
}

// shouldRetry is the client's retryability policy on top of the
// classifier's taxonomy.
func shouldRetry(e *errs.Error) bool {
	if e.Code == errs.CodeTimeout {
		return false
	}
	if e.Status != 0 {
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	}
	return true
}

// do performs a single HTTP exchange: builds the request, parses the
// envelope, and normalizes any failure exactly once.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	body interface{},
	result interface{},
) error {
	reqURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Classify(fmt.Errorf("executing request %s %s: %w", method, path, err))
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return errs.Classify(fmt.Errorf("reading response body: %w", readErr))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp, respBody, method, path)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return errs.Wrap(errs.CodeUnknown,
			fmt.Sprintf("unmarshaling response from %s %s", method, path), true, err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return errs.Wrap(errs.CodeUnknown,
			fmt.Sprintf("unmarshaling data from %s %s", method, path), true, err)
	}

	return nil
}

// statusError turns a non-2xx response into a normalized error,
// synthesizing one when the body does not carry a parseable envelope.
func (c *Client) statusError(resp *http.Response, body []byte, method, path string) *errs.Error {
	message := fmt.Sprintf("unexpected status %d on %s %s", resp.StatusCode, method, path)
	var retryAfter time.Duration

	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		message = fmt.Sprintf("%s on %s %s: %s",
			env.Error.Code, method, path, env.Error.Message)
		if env.Error.RetryAfter > 0 {
			retryAfter = time.Duration(env.Error.RetryAfter) * time.Second
		}
	}

	if retryAfter == 0 {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
	}

	return errs.FromStatus(resp.StatusCode, message, retryAfter)
}

// encodeListQuery serializes filter, pagination, and sort fields.
// Date filters use RFC 3339; all other scalars are stringified
// directly; unset fields are omitted entirely.
func encodeListQuery(opts model.ListOptions) string {
	q := url.Values{}

	f := opts.Filter
	if f.Type != nil {
		q.Set("type", string(*f.Type))
	}
	if f.Read != nil {
		q.Set("read", strconv.FormatBool(*f.Read))
	}
	if f.Priority != nil {
		q.Set("priority", string(*f.Priority))
	}
	if f.DateFrom != nil {
		q.Set("dateFrom", f.DateFrom.UTC().Format(time.RFC3339))
	}
	if f.DateTo != nil {
		q.Set("dateTo", f.DateTo.UTC().Format(time.RFC3339))
	}

	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.SortBy != "" {
		q.Set("sortBy", opts.SortBy)
	}
	if opts.SortOrder != "" {
		q.Set("sortOrder", opts.SortOrder)
	}

	return q.Encode()
}
