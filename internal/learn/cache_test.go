package learn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	return NewCache(context.Background(), CacheOptions{Dir: dir, Enabled: true}), dir
}

func sampleQuiz() []QuizQuestion {
	return []QuizQuestion{{
		Question:      "Q?",
		Options:       map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"},
		CorrectAnswer: "C",
		Explanation:   "c",
	}}
}

func TestCache_NoPartialReads(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	const id = "dQw4w9WgXcQ"

	require.NoError(t, c.Put(ctx, id, Partial{Transcript: "T"}))
	_, ok := c.Get(ctx, id)
	assert.False(t, ok)
	assert.False(t, c.IsFullyCached(ctx, id))

	text, ok := c.GetTranscript(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "T", text)

	require.NoError(t, c.Put(ctx, id, Partial{Summary: "S", KeyPoints: "K"}))
	_, ok = c.Get(ctx, id)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, id, Partial{Quiz: sampleQuiz()}))
	assert.True(t, c.IsFullyCached(ctx, id))
	rec, ok := c.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, &Record{Transcript: "T", Summary: "S", KeyPoints: "K", Quiz: sampleQuiz()}, rec)
}

func TestCache_LastWriteWins(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	const id = "txt_abc"

	require.NoError(t, c.Put(ctx, id, Partial{Transcript: "T", Summary: "old", KeyPoints: "K", Quiz: sampleQuiz()}))
	require.NoError(t, c.Put(ctx, id, Partial{Summary: "new"}))

	rec, ok := c.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "new", rec.Summary)
	assert.Equal(t, "T", rec.Transcript)
}

func TestCache_LayoutAndEnvelope(t *testing.T) {
	c, dir := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "abc", Partial{Summary: "S"}))

	data, err := os.ReadFile(filepath.Join(dir, "summaries", "abc.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content_id": "abc"`)
	assert.Contains(t, string(data), `"content": "S"`)
	assert.Contains(t, string(data), `"cached_at"`)
}

func TestCache_CorruptArtifactIsMiss(t *testing.T) {
	c, dir := newTestCache(t)
	ctx := context.Background()
	const id = "abc"
	require.NoError(t, c.Put(ctx, id, Partial{Transcript: "T", Summary: "S", KeyPoints: "K", Quiz: sampleQuiz()}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quizzes", id+".json"), []byte("{not json"), 0o644))

	_, ok := c.Get(ctx, id)
	assert.False(t, ok)
	assert.False(t, c.IsFullyCached(ctx, id))
}

func TestCache_ClearAndStats(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	full := Partial{Transcript: "T", Summary: "S", KeyPoints: "K", Quiz: sampleQuiz()}
	require.NoError(t, c.Put(ctx, "one", full))
	require.NoError(t, c.Put(ctx, "two", full))
	require.NoError(t, c.Put(ctx, "three", Partial{Transcript: "T"}))

	st := c.Stats(ctx)
	assert.Equal(t, CacheStats{Enabled: true, Transcript: 3, Summary: 2, KeyPoints: 2, Quiz: 2}, st)

	n, err := c.Clear(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.False(t, c.IsFullyCached(ctx, "one"))
	assert.True(t, c.IsFullyCached(ctx, "two"))

	n, err = c.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, CacheStats{Enabled: true}, c.Stats(ctx))
}

func TestCache_Disabled(t *testing.T) {
	c := NewCache(context.Background(), CacheOptions{Dir: t.TempDir()})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "abc", Partial{Transcript: "T"}))
	_, ok := c.GetTranscript(ctx, "abc")
	assert.False(t, ok)
	assert.False(t, c.Stats(ctx).Enabled)
}

func TestCache_RejectsUnsafeIDs(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	assert.Error(t, c.Put(ctx, "../escape", Partial{Transcript: "T"}))
	_, err := c.Clear(ctx, "a/b")
	assert.Error(t, err)
	assert.False(t, c.IsFullyCached(ctx, "../escape"))
}

func TestCache_UnwritableDirIsSoft(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	c := NewCache(context.Background(), CacheOptions{Dir: blocker, Enabled: true})
	ctx := context.Background()
	err := c.Put(ctx, "abc", Partial{Transcript: "T"})
	assert.Error(t, err)
	_, ok := c.Get(ctx, "abc")
	assert.False(t, ok)
}

func TestCache_RedisMirror(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	dir := t.TempDir()
	c := NewCache(ctx, CacheOptions{Dir: dir, Enabled: true, RedisURL: url})
	require.True(t, c.Stats(ctx).Redis)
	rs, ok := c.mirror.(*redisStore)
	require.True(t, ok)
	defer rs.Close()
	_, _ = c.Clear(ctx, "")

	full := Partial{Transcript: "T", Summary: "S", KeyPoints: "K", Quiz: sampleQuiz()}
	require.NoError(t, c.Put(ctx, "mirrored", full))

	// the mirror serves reads even when the file store lost the entry
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "summaries")))
	rec, ok := c.Get(ctx, "mirrored")
	require.True(t, ok)
	assert.Equal(t, "S", rec.Summary)

	_, err := c.Clear(ctx, "mirrored")
	require.NoError(t, err)
	_, ok, err = rs.Get(ctx, KindSummary, "mirrored")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewCache_RedisUnavailableFallsBackToFiles(t *testing.T) {
	ctx := context.Background()
	for name, url := range map[string]string{
		"bad url":     "not-a-redis-url",
		"unreachable": "redis://127.0.0.1:1/0",
	} {
		t.Run(name, func(t *testing.T) {
			c := NewCache(ctx, CacheOptions{Dir: t.TempDir(), Enabled: true, RedisURL: url})
			st := c.Stats(ctx)
			assert.True(t, st.Enabled)
			assert.False(t, st.Redis)
			require.NoError(t, c.Put(ctx, "abc", Partial{Transcript: "T"}))
			rec, ok := c.Get(ctx, "abc")
			require.True(t, ok)
			assert.Equal(t, "T", rec.Transcript)
		})
	}
}
