package learn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

var testTranscript = &Transcript{ContentID: "dQw4w9WgXcQ", Text: "Hello World, this is a lecture about Go."}

func quotaErr(msg string) error {
	return engine.ClassifyModelError(errors.New(msg), time.Now())
}

func TestPipeline_AllSteps(t *testing.T) {
	model := &fakeModel{}
	rot, ledger := newTestRotator(t, 20, "key-one")
	p := NewPipeline(Options{Model: model, Rotator: rot, Pacer: quota.NewPacer(0)})

	res, err := p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Empty(t, res.Failures)
	assert.Equal(t, "A short summary.", res.Summary)
	assert.Len(t, res.Quiz, QuizSize)
	assert.False(t, res.QuizShort)
	assert.Equal(t, []Kind{KindSummary, KindKeyPoints, KindQuiz}, model.steps)
	assert.Equal(t, 3, ledger.Usage("key-one").RequestsToday)
}

func TestPipeline_CooldownBetweenCalls(t *testing.T) {
	const gap = 80 * time.Millisecond
	model := &fakeModel{delay: 5 * time.Millisecond}
	rot, _ := newTestRotator(t, 20, "key-one", "key-two")
	p := NewPipeline(Options{Model: model, Rotator: rot, Pacer: quota.NewPacer(gap)})

	_, err := p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	require.Len(t, model.starts, 3)
	for i := 1; i < len(model.starts); i++ {
		assert.GreaterOrEqual(t, model.starts[i].Sub(model.starts[i-1]), gap)
	}
}

func TestPipeline_RecordsEachCallImmediately(t *testing.T) {
	rot, ledger := newTestRotator(t, 20, "key-one")
	model := &fakeModel{}
	model.generate = func(step Kind, key string) (string, error) {
		want := map[Kind]int{KindSummary: 0, KindKeyPoints: 1, KindQuiz: 2}[step]
		assert.Equal(t, want, ledger.Usage(key).RequestsToday)
		return defaultAnswer(step), nil
	}
	p := NewPipeline(Options{Model: model, Rotator: rot, Pacer: quota.NewPacer(0)})
	_, err := p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
}

func TestPipeline_QuotaAbortKeepsPartialResult(t *testing.T) {
	rot, ledger := newTestRotator(t, 20, "key-one")
	state := NewState(nil)
	model := &fakeModel{generate: func(step Kind, _ string) (string, error) {
		if step == KindQuiz {
			return "", quotaErr("googleapi: Error 429: Quota exceeded for metric generate_content_free_tier_requests, retry in 12s")
		}
		return defaultAnswer(step), nil
	}}
	p := NewPipeline(Options{Model: model, Rotator: rot, Pacer: quota.NewPacer(0), State: state})

	res, err := p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", res.Summary)
	assert.NotEmpty(t, res.KeyPoints)
	assert.Empty(t, res.Quiz)
	assert.True(t, res.Aborted)
	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, KindQuiz, f.Step)
	assert.Equal(t, engine.ReasonQuotaExceeded, f.Reason)
	assert.Equal(t, engine.ScopeMinute, f.Scope)
	require.NotNil(t, f.RetryAfter)
	assert.Equal(t, 12, *f.RetryAfter)
	assert.NotEmpty(t, f.RetryAt)
	assert.Equal(t, 2, ledger.Usage("key-one").RequestsToday)
	assert.NotNil(t, state.Cooldown.Active())

	// the next run does not start while the window is open
	_, err = p.Run(context.Background(), testTranscript)
	assert.True(t, engine.IsQuota(err))
	assert.Equal(t, 3, model.calls())
}

func TestPipeline_QuotaOnFirstStepStopsEverything(t *testing.T) {
	rot, _ := newTestRotator(t, 20, "key-one")
	model := &fakeModel{generate: func(Kind, string) (string, error) {
		return "", quotaErr("RESOURCE_EXHAUSTED: limit per day reached")
	}}
	p := NewPipeline(Options{Model: model, Rotator: rot, Pacer: quota.NewPacer(0)})

	res, err := p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls())
	assert.True(t, res.Aborted)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, engine.ScopeDaily, res.Failures[0].Scope)
}

func TestPipeline_DailyRejectionRetiresOnlyThatKey(t *testing.T) {
	rot, ledger := newTestRotator(t, 20, "key-one", "key-two")
	state := NewState(nil)
	model := &fakeModel{generate: func(step Kind, key string) (string, error) {
		if key == "key-one" {
			return "", quotaErr("429 RESOURCE_EXHAUSTED: limit per day reached")
		}
		return defaultAnswer(step), nil
	}}
	p := NewPipeline(Options{Model: model, Rotator: rot, Pacer: quota.NewPacer(0), State: state})

	res, err := p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, engine.ScopeDaily, res.Failures[0].Scope)
	assert.Nil(t, state.Cooldown.Active())
	assert.Equal(t, 20, ledger.Usage("key-one").RequestsToday)
	assert.Zero(t, ledger.Usage("key-one").TotalRequests)
	assert.Equal(t, 20, rot.Remaining())

	res, err = p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Equal(t, []string{"key-one", "key-two", "key-two", "key-two"}, model.keys)
	assert.Equal(t, 3, ledger.Usage("key-two").RequestsToday)
}

func TestPipeline_KeysRunOutMidway(t *testing.T) {
	rot, ledger := newTestRotator(t, 1, "key-one", "key-two")
	model := &fakeModel{}
	p := NewPipeline(Options{Model: model, Rotator: rot, Pacer: quota.NewPacer(0)})

	res, err := p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-one", "key-two"}, model.keys)
	assert.NotEmpty(t, res.Summary)
	assert.NotEmpty(t, res.KeyPoints)
	assert.True(t, res.Aborted)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, KindQuiz, res.Failures[0].Step)
	assert.Equal(t, engine.ReasonQuotaExceeded, res.Failures[0].Reason)
	assert.Equal(t, 1, ledger.Usage("key-one").RequestsToday)
	assert.Equal(t, 1, ledger.Usage("key-two").RequestsToday)

	_, err = p.Run(context.Background(), testTranscript)
	assert.True(t, engine.IsQuota(err))
}

func TestPipeline_PerArtifactFailures(t *testing.T) {
	rot, _ := newTestRotator(t, 20, "key-one")
	model := &fakeModel{generate: func(step Kind, _ string) (string, error) {
		switch step {
		case KindSummary:
			return "", engine.ClassifyModelError(errors.New("500 internal error"), time.Now())
		case KindQuiz:
			return "I could not produce a quiz.", nil
		}
		return defaultAnswer(step), nil
	}}
	p := NewPipeline(Options{Model: model, Rotator: rot, Pacer: quota.NewPacer(0)})

	res, err := p.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	assert.False(t, res.Aborted)
	assert.Empty(t, res.Summary)
	assert.NotEmpty(t, res.KeyPoints)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, KindSummary, res.Failures[0].Step)
	assert.Equal(t, engine.ReasonAPIError, res.Failures[0].Reason)
	assert.Equal(t, KindQuiz, res.Failures[1].Step)
	assert.Equal(t, engine.ReasonMalformedModelOutput, res.Failures[1].Reason)
	assert.Equal(t, 3, model.calls())
}

func TestPipeline_NoKeys(t *testing.T) {
	p := NewPipeline(Options{Model: &fakeModel{}, Pacer: quota.NewPacer(0)})
	_, err := p.Run(context.Background(), testTranscript)
	require.Error(t, err)
	assert.Equal(t, engine.ReasonAPIError, engine.ReasonOf(err))
}

func TestState_Lifecycle(t *testing.T) {
	s := NewState(nil)
	assert.Equal(t, StatusIdle, s.Snapshot().Status)

	release, err := s.Begin()
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, s.Snapshot().Status)

	_, err = s.Begin()
	assert.Equal(t, engine.ReasonAlreadyProcessing, engine.ReasonOf(err))

	release(false)
	release(true)
	snap := s.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, StatusFailure, snap.LastOutcome)

	release, err = s.Begin()
	require.NoError(t, err)
	release(true)
	assert.Equal(t, StatusSuccess, s.Snapshot().LastOutcome)
}
