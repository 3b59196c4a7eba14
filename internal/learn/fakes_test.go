package learn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_learn/internal/engine/sources"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

// fakeModel records call start times and answers by prompt type.
type fakeModel struct {
	mu         sync.Mutex
	starts     []time.Time
	keys       []string
	steps      []Kind
	transcribe func(key, path string) (string, error)
	generate   func(step Kind, key string) (string, error)
	delay      time.Duration

	transcribed int
}

func promptKind(prompt string) Kind {
	switch {
	case strings.Contains(prompt, "quiz creator"):
		return KindQuiz
	case strings.Contains(prompt, "learning points"):
		return KindKeyPoints
	default:
		return KindSummary
	}
}

func (m *fakeModel) Generate(_ context.Context, apiKey, prompt string) (string, error) {
	m.mu.Lock()
	step := promptKind(prompt)
	m.starts = append(m.starts, time.Now())
	m.keys = append(m.keys, apiKey)
	m.steps = append(m.steps, step)
	gen := m.generate
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if gen != nil {
		return gen(step, apiKey)
	}
	return defaultAnswer(step), nil
}

func (m *fakeModel) Transcribe(_ context.Context, apiKey, path string) (string, error) {
	m.mu.Lock()
	m.transcribed++
	m.keys = append(m.keys, apiKey)
	fn := m.transcribe
	m.mu.Unlock()
	if fn != nil {
		return fn(apiKey, path)
	}
	return "spoken words from the audio track", nil
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.starts)
}

var validQuizAnswer string

func defaultAnswer(step Kind) string {
	switch step {
	case KindQuiz:
		return validQuizAnswer
	case KindKeyPoints:
		return "1. First point\n2. Second point"
	default:
		return "A short summary."
	}
}

func init() {
	var sb strings.Builder
	sb.WriteString("```json\n[")
	for i := 0; i < QuizSize; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"question":"Q?","options":{"A":"a","B":"b","C":"c","D":"d"},"correct_answer":"A","explanation":"e"}`)
	}
	sb.WriteString("]\n```")
	validQuizAnswer = sb.String()
}

// fakeCaptions serves fixed tracks and segments.
type fakeCaptions struct {
	tracks  []sources.CaptionTrack
	segs    []sources.Segment
	listErr error
	fetched int
}

func (f *fakeCaptions) ListTracks(context.Context, string) ([]sources.CaptionTrack, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tracks, nil
}

func (f *fakeCaptions) FetchTrack(context.Context, sources.CaptionTrack) ([]sources.Segment, error) {
	f.fetched++
	return f.segs, nil
}

// fakeYTDLP stands in for the yt-dlp binary.
type fakeYTDLP struct {
	fail  bool
	calls int
}

func (f *fakeYTDLP) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	f.calls++
	if f.fail {
		return []byte("ERROR: HTTP Error 403: Forbidden"), errors.New("exit status 1")
	}
	for i, a := range args {
		if a == "-o" {
			out := strings.Replace(args[i+1], "%(ext)s", "mp3", 1)
			return nil, os.WriteFile(out, []byte("ID3"), 0o600)
		}
	}
	return nil, errors.New("no output template")
}

func newTestRotator(t *testing.T, limit int, keys ...string) (*quota.Rotator, *quota.Ledger) {
	t.Helper()
	ledger := quota.NewLedger(quota.NewFileStore(filepath.Join(t.TempDir(), "api_usage.json")))
	return quota.NewRotator(keys, ledger, limit), ledger
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
