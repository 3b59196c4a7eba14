package engine

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Reason is the machine-readable failure kind reported to callers.
type Reason string

const (
	ReasonQuotaExceeded         Reason = "QUOTA_EXCEEDED"
	ReasonTranscriptUnavailable Reason = "TRANSCRIPT_UNAVAILABLE"
	ReasonMalformedModelOutput  Reason = "MALFORMED_MODEL_OUTPUT"
	ReasonAlreadyProcessing     Reason = "ALREADY_PROCESSING"
	ReasonStorageUnavailable    Reason = "STORAGE_UNAVAILABLE"
	ReasonAPIError              Reason = "API_ERROR"
	ReasonInvalidInput          Reason = "INVALID_INPUT"
)

// QuotaScope distinguishes a per-key daily cap from a per-minute burst cap.
type QuotaScope string

const (
	ScopeDaily  QuotaScope = "daily"
	ScopeMinute QuotaScope = "minute"
)

// DefaultRetryAfter is used when a quota rejection carries no retry hint.
const DefaultRetryAfter = 60 * time.Second

// Error is the typed failure carried through the core.
type Error struct {
	Reason     Reason
	Scope      QuotaScope    // set for ReasonQuotaExceeded
	Message    string        // human-readable
	RetryAfter time.Duration // zero when not retryable
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Reason, so errors.Is(err, &Error{Reason: r}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// NewError builds an *Error.
func NewError(reason Reason, msg string, err error) *Error {
	return &Error{Reason: reason, Message: msg, Err: err}
}

// ReasonOf returns the Reason of err, or ReasonAPIError for untyped errors.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonAPIError
}

// IsQuota reports whether err is a quota rejection.
func IsQuota(err error) bool { return ReasonOf(err) == ReasonQuotaExceeded }

// QuotaError builds a quota rejection with its retry delay.
func QuotaError(scope QuotaScope, retryAfter time.Duration, err error) *Error {
	var msg string
	switch scope {
	case ScopeDaily:
		msg = fmt.Sprintf("daily API quota exhausted, try again in %s", roundDuration(retryAfter))
	default:
		msg = fmt.Sprintf("API rate limit reached, please wait %d seconds", int(math.Ceil(retryAfter.Seconds())))
	}
	return &Error{Reason: ReasonQuotaExceeded, Scope: scope, Message: msg, RetryAfter: retryAfter, Err: err}
}

var (
	retryInRe   = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*s`)
	retrySecsRe = regexp.MustCompile(`seconds:\s*(\d+)`)
	dailyHintRe = regexp.MustCompile(`(?i)per ?day|perday|daily`)
	status429Re = regexp.MustCompile(`\b429\b`)
)

// ClassifyModelError maps a provider error to the failure taxonomy.
// 429, RESOURCE_EXHAUSTED and any mention of "quota" count as QuotaExceeded.
func ClassifyModelError(err error, now time.Time) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	if !status429Re.MatchString(msg) && !strings.Contains(lower, "quota") && !strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return NewError(ReasonAPIError, "model call failed: "+Truncate(msg, 200), err)
	}
	if dailyHintRe.MatchString(msg) {
		return QuotaError(ScopeDaily, UntilMidnight(now), err)
	}
	return QuotaError(ScopeMinute, ExtractRetryDelay(msg), err)
}

// ExtractRetryDelay parses "retry in 12.5s" or "seconds: 12" hints; defaults to 60s.
func ExtractRetryDelay(msg string) time.Duration {
	if m := retryInRe.FindStringSubmatch(msg); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	if m := retrySecsRe.FindStringSubmatch(msg); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return DefaultRetryAfter
}

// UntilMidnight returns the time left until the next local calendar day.
func UntilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Sub(now)
}

func roundDuration(d time.Duration) time.Duration {
	if d > time.Hour {
		return d.Round(time.Minute)
	}
	return d.Round(time.Second)
}

// Failure is the uniform result shape returned to the presentation layer.
type Failure struct {
	Success    bool       `json:"success"`
	Reason     Reason     `json:"reason"`
	Message    string     `json:"message"`
	Scope      QuotaScope `json:"scope,omitempty"`
	RetryAfter *int       `json:"retry_after,omitempty"` // seconds
	RetryAt    string     `json:"retry_at,omitempty"`    // RFC 3339
}

// FailureOf renders err in the uniform result shape.
func FailureOf(err error, now time.Time) Failure {
	var e *Error
	if !errors.As(err, &e) {
		return Failure{Reason: ReasonAPIError, Message: Truncate(err.Error(), 200)}
	}
	f := Failure{Reason: e.Reason, Message: e.Message, Scope: e.Scope}
	if e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		f.RetryAfter = &secs
		f.RetryAt = now.Add(e.RetryAfter).Format(time.RFC3339)
	}
	return f
}
