package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyModelError(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		err    error
		reason Reason
		scope  QuotaScope
		retry  time.Duration
	}{
		{"plain failure", errors.New("connection reset"), ReasonAPIError, "", 0},
		{"429 with hint", errors.New("Error 429: Please retry in 12.5s"), ReasonQuotaExceeded, ScopeMinute, 12500 * time.Millisecond},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED retryDelay seconds: 7"), ReasonQuotaExceeded, ScopeMinute, 7 * time.Second},
		{"quota no hint", errors.New("quota exceeded for metric"), ReasonQuotaExceeded, ScopeMinute, DefaultRetryAfter},
		{"daily quota", errors.New("429 GenerateRequestsPerDayPerProjectPerModel-FreeTier"), ReasonQuotaExceeded, ScopeDaily, 2 * time.Hour},
		{"status line", errors.New("unexpected status (429): Too Many Requests"), ReasonQuotaExceeded, ScopeMinute, DefaultRetryAfter},
		{"429 inside a number", errors.New("prompt used 4290 tokens, request abc-14291 failed"), ReasonAPIError, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyModelError(tt.err, now)
			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.reason, e.Reason)
			assert.Equal(t, tt.scope, e.Scope)
			assert.Equal(t, tt.retry, e.RetryAfter)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassifyModelError_KeepsTyped(t *testing.T) {
	typed := NewError(ReasonMalformedModelOutput, "bad json", nil)
	assert.Same(t, typed, ClassifyModelError(typed, time.Now()))
	assert.NoError(t, ClassifyModelError(nil, time.Now()))
}

func TestErrorIsByReason(t *testing.T) {
	err := fmt.Errorf("step: %w", QuotaError(ScopeMinute, time.Second, nil))
	assert.ErrorIs(t, err, &Error{Reason: ReasonQuotaExceeded})
	assert.NotErrorIs(t, err, &Error{Reason: ReasonAPIError})
	assert.True(t, IsQuota(err))
	assert.Equal(t, ReasonAPIError, ReasonOf(errors.New("x")))
}

func TestQuotaErrorMessage(t *testing.T) {
	assert.Equal(t, "API rate limit reached, please wait 13 seconds",
		QuotaError(ScopeMinute, 12200*time.Millisecond, nil).Message)
	assert.Contains(t, QuotaError(ScopeDaily, 3*time.Hour, nil).Message, "3h0m0s")
}

func TestUntilMidnight(t *testing.T) {
	now := time.Date(2026, 12, 31, 23, 59, 30, 0, time.UTC)
	assert.Equal(t, 30*time.Second, UntilMidnight(now))
}

func TestFailureOf(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	f := FailureOf(QuotaError(ScopeMinute, 1500*time.Millisecond, nil), now)
	assert.False(t, f.Success)
	assert.Equal(t, ReasonQuotaExceeded, f.Reason)
	assert.Equal(t, ScopeMinute, f.Scope)
	require.NotNil(t, f.RetryAfter)
	assert.Equal(t, 2, *f.RetryAfter)
	assert.Equal(t, "2026-03-01T10:00:01Z", f.RetryAt)

	f = FailureOf(NewError(ReasonInvalidInput, "input is required", nil), now)
	assert.Equal(t, ReasonInvalidInput, f.Reason)
	assert.Nil(t, f.RetryAfter)
	assert.Empty(t, f.RetryAt)

	f = FailureOf(errors.New("boom"), now)
	assert.Equal(t, ReasonAPIError, f.Reason)
	assert.Equal(t, "boom", f.Message)
}
