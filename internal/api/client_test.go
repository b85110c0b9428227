package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notify-agent/internal/errs"
	"github.com/nhle/notify-agent/internal/model"
	"github.com/nhle/notify-agent/internal/retry"
)

// newFastClient builds a client whose retry driver never sleeps.
func newFastClient(baseURL string) *Client {
	driver := retry.NewDriver()
	driver.BaseDelay = time.Millisecond
	driver.MaxDelay = time.Millisecond
	driver.Jitter = 0
	return NewClient(baseURL, "test-token", 5*time.Second, driver)
}

func writeEnvelope(w http.ResponseWriter, data interface{}) {
	payload, _ := json.Marshal(data)
	resp := envelope{Success: true, Data: payload, Timestamp: time.Now().Format(time.RFC3339)}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   false,
		"error":     map[string]interface{}{"code": code, "message": message},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func TestListQueryEncoding(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeEnvelope(w, model.ListResult{})
	}))
	defer server.Close()

	read := true
	nType := model.TypeSystemError
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := newFastClient(server.URL)
	_, err := c.List(context.Background(), model.ListOptions{
		Filter: model.ListFilter{
			Type:     &nType,
			Read:     &read,
			DateFrom: &from,
		},
		Page:      2,
		Limit:     20,
		SortBy:    model.SortByTimestamp,
		SortOrder: model.SortDesc,
	})
	require.NoError(t, err)

	assert.Equal(t, "system_error", gotQuery["type"][0])
	assert.Equal(t, "true", gotQuery["read"][0])
	assert.Equal(t, "2026-03-01T12:00:00Z", gotQuery["dateFrom"][0])
	assert.Equal(t, "2", gotQuery["page"][0])
	assert.Equal(t, "20", gotQuery["limit"][0])
	assert.Equal(t, "timestamp", gotQuery["sortBy"][0])
	assert.Equal(t, "desc", gotQuery["sortOrder"][0])

	// Unset filters must be omitted entirely, never encoded as empty.
	_, hasPriority := gotQuery["priority"]
	assert.False(t, hasPriority)
	_, hasDateTo := gotQuery["dateTo"]
	assert.False(t, hasDateTo)
}

func TestListParsesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, model.ListResult{
			Notifications: []model.Notification{
				{ID: "n1", Type: model.TypeUserRegistered, Title: "t", Message: "m"},
			},
			Total:       1,
			UnreadCount: 1,
			HasMore:     false,
		})
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	result, err := c.List(context.Background(), model.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.UnreadCount)
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, "n1", result.Notifications[0].ID)
}

func TestValidationErrorSingleAttempt(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "title required")
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	_, err := c.Create(context.Background(), model.Notification{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var norm *errs.Error
	require.True(t, errors.As(err, &norm))
	assert.Equal(t, errs.CodeValidation, norm.Code)
	assert.False(t, norm.Retryable)
	assert.Contains(t, norm.Message, "title required")
}

func TestServerErrorRetriesThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "boom")
			return
		}
		writeEnvelope(w, model.Notification{ID: "n1", Title: "t", Message: "m"})
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	n, err := c.Get(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, 3, calls)
}

func TestServerErrorExhaustsBudget(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "boom")
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	_, err := c.Get(context.Background(), "n1")
	require.Error(t, err)
	assert.Equal(t, retry.DefaultMaxAttempts, calls)

	var norm *errs.Error
	require.True(t, errors.As(err, &norm))
	assert.Equal(t, errs.CodeServer, norm.Code)
}

func TestUnparseableErrorBodySynthesized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>forbidden</html>"))
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	_, err := c.Get(context.Background(), "n1")
	require.Error(t, err)

	var norm *errs.Error
	require.True(t, errors.As(err, &norm))
	assert.Equal(t, errs.CodeAuthorization, norm.Code)
	assert.Contains(t, norm.Message, "403")
}

func TestRateLimitRetryAfterFromEnvelope(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error": map[string]interface{}{
					"code": "RATE_LIMIT_ERROR", "message": "slow down", "retryAfter": 1,
				},
			})
			return
		}
		writeEnvelope(w, updateCountData{UpdatedCount: 4})
	}))
	defer server.Close()

	c := newFastClient(server.URL)

	start := time.Now()
	count, err := c.MarkAllRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 2, calls)

	// The 1s retryAfter hint from the envelope overrides the
	// millisecond backoff configured on the driver.
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestMarkReadPath(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		writeEnvelope(w, map[string]bool{"ok": true})
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	require.NoError(t, c.MarkRead(context.Background(), "n42"))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/notifications/n42/read", gotPath)
}

func TestDeletePath(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		writeEnvelope(w, map[string]bool{"ok": true})
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	require.NoError(t, c.Delete(context.Background(), "n7"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/notifications/n7", gotPath)
}

func TestBulkUpdate(t *testing.T) {
	var gotBody bulkUpdateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/bulk-update", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeEnvelope(w, updateCountData{UpdatedCount: 2})
	}))
	defer server.Close()

	read := true
	c := newFastClient(server.URL)
	count, err := c.BulkUpdate(context.Background(), []string{"a", "b"}, model.UpdatePatch{Read: &read})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"a", "b"}, gotBody.IDs)
}

func TestStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/stats", r.URL.Path)
		writeEnvelope(w, model.Stats{Total: 10, Unread: 3})
	}))
	defer server.Close()

	c := newFastClient(server.URL)
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 3, stats.Unread)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	c := newFastClient(server.URL)
	_, err := c.Get(context.Background(), "n1")
	require.Error(t, err)

	var norm *errs.Error
	require.True(t, errors.As(err, &norm))
	assert.Equal(t, errs.CodeNetwork, norm.Code)
	assert.True(t, norm.Retryable)
}
