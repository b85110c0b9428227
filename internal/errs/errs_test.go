package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatus(t *testing.T) {
	cases := []struct {
		status    int
		wantCode  Code
		retryable bool
	}{
		{400, CodeValidation, false},
		{401, CodeAuthentication, false},
		{403, CodeAuthorization, false},
		{404, CodeNotFound, false},
		{429, CodeRateLimit, true},
		{500, CodeServer, true},
		{502, CodeServer, true},
		{503, CodeServer, true},
		{504, CodeServer, true},
		{418, CodeHTTP, false},
		{409, CodeHTTP, false},
		{599, CodeHTTP, true},
	}
	for _, c := range cases {
		e := FromStatus(c.status, "boom", 0)
		if e.Code != c.wantCode {
			t.Errorf("FromStatus(%d).Code = %s, want %s", c.status, e.Code, c.wantCode)
		}
		if e.Retryable != c.retryable {
			t.Errorf("FromStatus(%d).Retryable = %v, want %v", c.status, e.Retryable, c.retryable)
		}
		if e.Status != c.status {
			t.Errorf("FromStatus(%d).Status = %d", c.status, e.Status)
		}
	}
}

func TestFromStatusRateLimitHint(t *testing.T) {
	e := FromStatus(429, "slow down", 10*time.Second)
	assert.Equal(t, 10*time.Second, e.RetryAfter)

	// Default hint applies when the response carries none.
	e = FromStatus(429, "slow down", 0)
	assert.Greater(t, e.RetryAfter, time.Duration(0))
}

func TestClassifyDeadline(t *testing.T) {
	e := Classify(fmt.Errorf("request: %w", context.DeadlineExceeded))
	assert.Equal(t, CodeTimeout, e.Code)
}

func TestClassifyNetwork(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	e := Classify(fmt.Errorf("executing request: %w", netErr))
	assert.Equal(t, CodeNetwork, e.Code)
	assert.True(t, e.Retryable)
}

func TestClassifyUnknownIsRetryable(t *testing.T) {
	e := Classify(errors.New("something odd"))
	assert.Equal(t, CodeUnknown, e.Code)
	assert.True(t, e.Retryable)
}

func TestClassifyPassThrough(t *testing.T) {
	orig := FromStatus(403, "nope", 0)
	wrapped := fmt.Errorf("calling backend: %w", orig)

	e := Classify(wrapped)
	require.Same(t, orig, e)
}

func TestUserMessageDistinctFromInternal(t *testing.T) {
	e := New(CodeServer, "pg connection pool exhausted", true)
	assert.NotEmpty(t, e.UserMessage)
	assert.NotContains(t, e.UserMessage, "pg connection pool")
}

func TestIsConnectivity(t *testing.T) {
	assert.True(t, IsConnectivity(New(CodeNetwork, "down", true)))
	assert.True(t, IsConnectivity(New(CodeTimeout, "slow", true)))
	assert.False(t, IsConnectivity(FromStatus(500, "boom", 0)))
	assert.False(t, IsConnectivity(nil))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("root cause")
	e := Wrap(CodeNetwork, "transport", true, cause)
	assert.True(t, errors.Is(e, cause))
}
