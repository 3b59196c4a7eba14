package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/learn"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

func TestFormatFailure(t *testing.T) {
	secs := 90
	got := formatFailure(engine.Failure{Reason: engine.ReasonQuotaExceeded, Message: "daily limit reached", RetryAfter: &secs})
	assert.Equal(t, "QUOTA_EXCEEDED: daily limit reached (retry in 1m30s)", got)

	assert.Equal(t, "API_ERROR", formatFailure(engine.Failure{Reason: engine.ReasonAPIError}))
}

func TestRenderOutput(t *testing.T) {
	out := &learn.Output{
		Transcript: &learn.Transcript{ContentID: "abc", Source: learn.SourceCaptions},
		Result: &learn.Result{
			ContentID: "abc",
			Summary:   "A short summary.",
			Quiz: []learn.QuizQuestion{{
				Question:      "Which letter?",
				Options:       map[string]string{"B": "bee", "A": "ay", "D": "dee", "C": "see"},
				CorrectAnswer: "A",
				Explanation:   "First.",
			}},
			QuizShort: true,
			Failures:  []learn.StepFailure{{Step: learn.KindKeyPoints, Reason: engine.ReasonAPIError, Message: "boom"}},
		},
	}

	var buf bytes.Buffer
	renderOutput(&buf, out)
	s := buf.String()

	assert.Contains(t, s, "Content: abc (transcript from captions)")
	assert.Contains(t, s, "## Summary\n\nA short summary.")
	assert.NotContains(t, s, "## Key points")
	assert.Contains(t, s, "   A) ay\n   B) bee\n   C) see\n   D) dee\n")
	assert.Contains(t, s, "only 1 of 10 questions")
	assert.Contains(t, s, "keypoints failed: API_ERROR: boom")
}

func TestRenderUsage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := learn.Usage{
		TotalKeys: 2, DailyLimit: 20, RemainingToday: 25,
		Keys: []quota.KeyStats{
			{Number: 1, Key: "AIzaSy...1234", RequestsToday: 15, RemainingToday: 5, TotalRequests: 40, Current: true},
			{Number: 2, Key: "AIzaSy...5678", RemainingToday: 20},
		},
		Pipeline: learn.Snapshot{
			Status: learn.StatusIdle, LastOutcome: learn.StatusFailure,
			Cooldown: &quota.CooldownWindow{ActiveUntil: now.Add(30 * time.Second)},
		},
	}

	var buf bytes.Buffer
	renderUsage(&buf, u, now)
	s := buf.String()

	assert.Contains(t, s, "keys=2 daily_limit=20 remaining_today=25")
	assert.Contains(t, s, "* key 1 AIzaSy...1234  today=15 remaining=5 total=40")
	assert.Contains(t, s, "  key 2 AIzaSy...5678")
	assert.Contains(t, s, "pipeline=idle last=failure")
	assert.Contains(t, s, "(30s left)")
}
