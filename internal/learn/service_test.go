package learn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/sources"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

func newTestService(t *testing.T, model *fakeModel, keys ...string) (*Service, *State, *Cache) {
	t.Helper()
	rot, _ := newTestRotator(t, 20, keys...)
	cache, _ := newTestCache(t)
	state := NewState(nil)
	svc := NewService(Options{
		Model: model,
		Captions: &fakeCaptions{
			tracks: []sources.CaptionTrack{{Language: "English", LanguageCode: "en", BaseURL: "/en"}},
			segs:   []sources.Segment{{Text: "0:00 Hello"}, {Text: "0:05 World"}},
		},
		Downloader: sources.NewYTDLP("yt-dlp", t.TempDir(), &fakeYTDLP{}),
		Rotator:    rot,
		Pacer:      quota.NewPacer(0),
		State:      state,
		Cache:      cache,
	})
	return svc, state, cache
}

func TestService_ProcessThenServeFromCache(t *testing.T) {
	model := &fakeModel{}
	svc, state, _ := newTestService(t, model, "AIzaSyAAAAAAAAAAAAAAAA1234")
	ctx := context.Background()

	out, err := svc.Process(ctx, videoURL)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", out.Transcript.Text)
	assert.True(t, out.Complete())
	assert.False(t, out.FromCache)
	assert.Equal(t, 3, model.calls())
	assert.Equal(t, StatusSuccess, state.Snapshot().LastOutcome)

	cached, err := svc.IsCached(ctx, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.True(t, cached)

	again, err := svc.Process(ctx, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, out.Summary, again.Summary)
	assert.Equal(t, out.Quiz, again.Quiz)
	assert.Equal(t, 3, model.calls())

	st := svc.CacheStatus(ctx)
	assert.Equal(t, 1, st.Quiz)

	n, err := svc.ClearCache(ctx, videoURL)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	cached, _ = svc.IsCached(ctx, videoURL)
	assert.False(t, cached)
}

func TestService_PartialResultsAreCachedPerArtifact(t *testing.T) {
	model := &fakeModel{generate: func(step Kind, _ string) (string, error) {
		if step == KindQuiz {
			return "no quiz today", nil
		}
		return defaultAnswer(step), nil
	}}
	svc, state, cache := newTestService(t, model, "key-one")
	ctx := context.Background()

	out, err := svc.Process(ctx, videoURL)
	require.NoError(t, err)
	assert.False(t, out.Complete())
	assert.Equal(t, StatusFailure, state.Snapshot().LastOutcome)

	assert.False(t, cache.IsFullyCached(ctx, "dQw4w9WgXcQ"))
	st := cache.Stats(ctx)
	assert.Equal(t, 1, st.Transcript)
	assert.Equal(t, 1, st.Summary)
	assert.Equal(t, 1, st.KeyPoints)
	assert.Zero(t, st.Quiz)

	// a retry reuses the cached transcript
	tr, err := svc.AcquireTranscript(ctx, videoURL)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, tr.Source)
}

func TestService_ShortQuizIsCachedWithFlag(t *testing.T) {
	model := &fakeModel{generate: func(step Kind, _ string) (string, error) {
		if step == KindQuiz {
			return `[{"question":"Q?","options":{"A":"a","B":"b","C":"c","D":"d"},"correct_answer":"B","explanation":"e"}]`, nil
		}
		return defaultAnswer(step), nil
	}}
	svc, _, cache := newTestService(t, model, "key-one")
	ctx := context.Background()

	out, err := svc.Process(ctx, videoURL)
	require.NoError(t, err)
	require.Len(t, out.Quiz, 1)
	assert.True(t, out.QuizShort)
	assert.True(t, cache.IsFullyCached(ctx, "dQw4w9WgXcQ"))

	again, err := svc.Process(ctx, videoURL)
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.True(t, again.QuizShort)
	assert.Equal(t, out.Quiz, again.Quiz)
	assert.Equal(t, 3, model.calls())
}

func TestService_GuardRejectsOverlappingRuns(t *testing.T) {
	model := &fakeModel{}
	svc, state, _ := newTestService(t, model, "key-one")

	release, err := state.Begin()
	require.NoError(t, err)

	_, err = svc.Process(context.Background(), videoURL)
	assert.Equal(t, engine.ReasonAlreadyProcessing, engine.ReasonOf(err))
	_, err = svc.Run(context.Background(), testTranscript)
	assert.Equal(t, engine.ReasonAlreadyProcessing, engine.ReasonOf(err))
	assert.Zero(t, model.calls())

	release(true)
	res, err := svc.Run(context.Background(), testTranscript)
	require.NoError(t, err)
	assert.True(t, res.Complete())
}

func TestService_GuardReleasedOnFailure(t *testing.T) {
	svc, state, _ := newTestService(t, &fakeModel{})
	_, err := svc.Process(context.Background(), videoURL)
	require.Error(t, err)
	assert.Equal(t, StatusIdle, state.Snapshot().Status)
	assert.Equal(t, StatusFailure, state.Snapshot().LastOutcome)
}

func TestService_UsageStats(t *testing.T) {
	model := &fakeModel{}
	svc, _, _ := newTestService(t, model, "AIzaSyAAAAAAAAAAAAAAAA1234", "AIzaSyBBBBBBBBBBBBBBBB5678")
	_, err := svc.Run(context.Background(), testTranscript)
	require.NoError(t, err)

	u := svc.UsageStats()
	assert.Equal(t, 2, u.TotalKeys)
	assert.Equal(t, 37, u.RemainingToday)
	require.Len(t, u.Keys, 2)
	assert.Equal(t, "AIzaSy...1234", u.Keys[0].Key)
	assert.Equal(t, 3, u.Keys[0].RequestsToday)
	assert.True(t, u.Keys[0].Current)
	assert.True(t, u.CanRun)
	assert.Equal(t, StatusIdle, u.Pipeline.Status)
}

func TestService_TranscriptInfo(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeModel{})
	tracks, err := svc.TranscriptInfo(context.Background(), videoURL)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "English", tracks[0].Language)

	_, err = svc.TranscriptInfo(context.Background(), "not a video")
	assert.Equal(t, engine.ReasonInvalidInput, engine.ReasonOf(err))
}
