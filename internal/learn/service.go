// Package learn turns a transcript into a study pack (summary, key points, quiz)
// while keeping model calls within the configured per-key quota.
package learn

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/sources"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

// Options wires a Service, Acquirer or Pipeline. Nil fields get defaults:
// a rotator without keys, the default cooldown, a fresh State and a disabled cache.
type Options struct {
	Model        Model
	Captions     CaptionSource
	Downloader   AudioDownloader
	Rotator      *quota.Rotator
	Pacer        *quota.Pacer
	State        *State
	Cache        *Cache
	CaptionLangs []string
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rotator == nil {
		o.Rotator = quota.NewRotator(nil, quota.NewLedger(nil), 0)
	}
	if o.Pacer == nil {
		o.Pacer = quota.NewPacer(engine.DefaultCooldown)
	}
	if o.State == nil {
		o.State = NewState(o.Now)
	}
	if o.Cache == nil {
		o.Cache = &Cache{now: o.Now}
	}
	if len(o.CaptionLangs) == 0 {
		o.CaptionLangs = []string{"en"}
	}
	return o
}

// Service is the entry point for outer surfaces (MCP tools, CLI).
type Service struct {
	acquirer *Acquirer
	pipeline *Pipeline
	captions CaptionSource
	cache    *Cache
	rotator  *quota.Rotator
	pacer    *quota.Pacer
	state    *State
	now      func() time.Time
}

// NewService builds a service; the acquirer and pipeline share one state and pacer.
func NewService(o Options) *Service {
	o = o.withDefaults()
	return &Service{
		acquirer: NewAcquirer(o),
		pipeline: NewPipeline(o),
		captions: o.Captions,
		cache:    o.Cache,
		rotator:  o.Rotator,
		pacer:    o.Pacer,
		state:    o.State,
		now:      o.Now,
	}
}

// Output is the full result of Process.
type Output struct {
	Transcript *Transcript `json:"transcript"`
	*Result
}

// AcquireTranscript returns the transcript for a URL, video ID or pasted text,
// preferring a cached transcript.
func (s *Service) AcquireTranscript(ctx context.Context, raw string) (*Transcript, error) {
	in, err := ParseInput(raw)
	if err != nil {
		return nil, err
	}
	return s.acquire(ctx, in)
}

func (s *Service) acquire(ctx context.Context, in Input) (*Transcript, error) {
	id := in.ContentID()
	if in.VideoID != "" {
		if text, ok := s.cache.GetTranscript(ctx, id); ok {
			return &Transcript{ContentID: id, VideoID: in.VideoID, Text: text, Source: SourceCache}, nil
		}
	}
	tr, err := s.acquirer.AcquireInput(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, tr.ContentID, Partial{Transcript: tr.Text}); err != nil {
		slog.Warn("learn: transcript not cached", slog.String("id", tr.ContentID), slog.Any("error", err))
	}
	return tr, nil
}

// Process acquires the transcript and generates summary, key points and quiz.
// A fully cached entry is returned without any model call.
func (s *Service) Process(ctx context.Context, raw string) (*Output, error) {
	in, err := ParseInput(raw)
	if err != nil {
		return nil, err
	}
	id := in.ContentID()
	if rec, ok := s.cache.Get(ctx, id); ok {
		slog.Info("learn: served from cache", slog.String("id", id))
		return cachedOutput(id, in.VideoID, rec), nil
	}

	release, err := s.state.Begin()
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() { release(ok) }()

	tr, err := s.acquire(ctx, in)
	if err != nil {
		return nil, err
	}
	res, err := s.run(ctx, tr)
	if err != nil {
		return &Output{Transcript: tr, Result: &Result{ContentID: tr.ContentID}}, err
	}
	ok = res.Complete()
	return &Output{Transcript: tr, Result: res}, nil
}

// Run generates the artifacts for an already acquired transcript.
func (s *Service) Run(ctx context.Context, tr *Transcript) (*Result, error) {
	release, err := s.state.Begin()
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() { release(ok) }()

	res, err := s.run(ctx, tr)
	if err != nil {
		return nil, err
	}
	ok = res.Complete()
	return res, nil
}

func (s *Service) run(ctx context.Context, tr *Transcript) (*Result, error) {
	res, err := s.pipeline.Run(ctx, tr)
	if err != nil {
		return nil, err
	}
	// a short quiz is kept as is; cache readers flag it again by length
	p := Partial{Summary: res.Summary, KeyPoints: res.KeyPoints, Quiz: res.Quiz}
	if err := s.cache.Put(ctx, tr.ContentID, p); err != nil {
		slog.Warn("learn: results not cached", slog.String("id", tr.ContentID), slog.Any("error", err))
	}
	return res, nil
}

func cachedOutput(id, videoID string, rec *Record) *Output {
	return &Output{
		Transcript: &Transcript{ContentID: id, VideoID: videoID, Text: rec.Transcript, Source: SourceCache},
		Result: &Result{
			ContentID: id,
			Summary:   rec.Summary,
			KeyPoints: rec.KeyPoints,
			Quiz:      rec.Quiz,
			QuizShort: IsShortQuiz(rec.Quiz),
			FromCache: true,
		},
	}
}

// CacheStatus reports cache counts.
func (s *Service) CacheStatus(ctx context.Context) CacheStats {
	return s.cache.Stats(ctx)
}

// resolveID maps a URL, video ID, pasted text or txt_ content ID to its cache key.
func resolveID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "txt_") && ValidContentID(raw) {
		return raw, nil
	}
	in, err := ParseInput(raw)
	if err != nil {
		return "", err
	}
	return in.ContentID(), nil
}

// IsCached reports whether the entry for raw is fully cached.
func (s *Service) IsCached(ctx context.Context, raw string) (bool, error) {
	id, err := resolveID(raw)
	if err != nil {
		return false, err
	}
	return s.cache.IsFullyCached(ctx, id), nil
}

// ClearCache removes one entry, or all entries when raw is empty.
func (s *Service) ClearCache(ctx context.Context, raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return s.cache.Clear(ctx, "")
	}
	id, err := resolveID(raw)
	if err != nil {
		return 0, err
	}
	return s.cache.Clear(ctx, id)
}

// Usage is the quota and pipeline state report.
type Usage struct {
	TotalKeys      int              `json:"total_keys"`
	DailyLimit     int              `json:"daily_limit"`
	RemainingToday int              `json:"remaining_today"`
	Keys           []quota.KeyStats `json:"keys"`
	Pipeline       Snapshot         `json:"pipeline"`
	CallInterval   int              `json:"call_interval_seconds"`
	NextCallIn     int              `json:"next_call_in_seconds"`
	CanRun         bool             `json:"can_run"`
}

// UsageStats reports per-key usage, the cooldown window and pipeline status.
func (s *Service) UsageStats() Usage {
	snap := s.state.Snapshot()
	st := s.rotator.Stats()
	return Usage{
		TotalKeys:      st.TotalKeys,
		DailyLimit:     st.DailyLimit,
		RemainingToday: st.RemainingToday,
		Keys:           st.Keys,
		Pipeline:       snap,
		CallInterval:   ceilSeconds(s.pacer.Interval()),
		NextCallIn:     ceilSeconds(s.pacer.ReadyIn()),
		CanRun:         snap.Cooldown == nil && snap.Status != StatusRunning && s.rotator.HasAvailableQuota(),
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// TranscriptInfo lists the caption tracks of a video.
func (s *Service) TranscriptInfo(ctx context.Context, raw string) ([]sources.CaptionTrack, error) {
	id, ok := sources.ExtractVideoID(raw)
	if !ok {
		return nil, engine.NewError(engine.ReasonInvalidInput, "not a YouTube URL or video ID", nil)
	}
	if s.captions == nil {
		return nil, unavailable("caption source is not configured", nil)
	}
	tracks, err := s.captions.ListTracks(ctx, id)
	if err != nil {
		return nil, unavailable("no captions for this video", err)
	}
	return tracks, nil
}
