package learn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/sources"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

// MinPastedLength is the shortest pasted transcript accepted.
const MinPastedLength = 50

const slowDownload = 90 * time.Second

// Transcript sources.
const (
	SourceCaptions      = "captions"
	SourceTranscription = "transcription"
	SourcePasted        = "pasted"
	SourceCache         = "cache"
)

// CaptionSource lists and fetches caption tracks.
type CaptionSource interface {
	ListTracks(ctx context.Context, videoID string) ([]sources.CaptionTrack, error)
	FetchTrack(ctx context.Context, track sources.CaptionTrack) ([]sources.Segment, error)
}

// AudioDownloader fetches the audio track of a video into a scratch file.
type AudioDownloader interface {
	Download(ctx context.Context, videoURL string) (*sources.AudioFile, error)
}

// Model is the generative model, called with an explicit API key.
type Model interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
	Transcribe(ctx context.Context, apiKey, audioPath string) (string, error)
}

// Transcript is acquired text plus where it came from.
// Segments are set only for caption-derived transcripts.
type Transcript struct {
	ContentID string            `json:"content_id"`
	VideoID   string            `json:"video_id,omitempty"`
	Text      string            `json:"text"`
	Segments  []sources.Segment `json:"segments,omitempty"`
	Source    string            `json:"source"`
	Language  string            `json:"language,omitempty"`
}

// Acquirer produces a transcript from a video or from pasted text.
// For videos it tries captions, then downloads the audio and has the model
// transcribe it. A download failure ends the attempt.
type Acquirer struct {
	captions   CaptionSource
	downloader AudioDownloader
	model      Model
	rotator    *quota.Rotator
	pacer      *quota.Pacer
	state      *State
	langs      []string
	now        func() time.Time
}

// NewAcquirer builds an acquirer from o.
func NewAcquirer(o Options) *Acquirer {
	o = o.withDefaults()
	return &Acquirer{
		captions:   o.Captions,
		downloader: o.Downloader,
		model:      o.Model,
		rotator:    o.Rotator,
		pacer:      o.Pacer,
		state:      o.State,
		langs:      o.CaptionLangs,
		now:        o.Now,
	}
}

// Input is a parsed user input: a video ID or pasted transcript text.
type Input struct {
	VideoID string
	Text    string
}

// ContentID is the cache key for the input.
func (in Input) ContentID() string {
	if in.VideoID != "" {
		return in.VideoID
	}
	return "txt_" + engine.Fingerprint(in.Text)
}

// ParseInput classifies raw as a YouTube URL, a bare video ID or pasted text.
func ParseInput(raw string) (Input, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Input{}, engine.NewError(engine.ReasonInvalidInput, "enter a YouTube URL or paste a transcript", nil)
	}
	if id, ok := sources.ExtractVideoID(raw); ok {
		return Input{VideoID: id}, nil
	}
	if sources.IsYouTubeURL(raw) && !strings.ContainsAny(raw, " \n\t") {
		return Input{}, engine.NewError(engine.ReasonInvalidInput, "could not find a video ID in the URL", nil)
	}
	text := cleanPasted(raw)
	if len(text) < MinPastedLength {
		return Input{}, engine.NewError(engine.ReasonInvalidInput,
			fmt.Sprintf("transcript is too short, paste at least %d characters", MinPastedLength), nil)
	}
	return Input{Text: text}, nil
}

func cleanPasted(s string) string {
	return strings.TrimSpace(engine.CollapseSpace(engine.StripTimestamps(s)))
}

// Acquire returns the transcript for raw input.
func (a *Acquirer) Acquire(ctx context.Context, raw string) (*Transcript, error) {
	in, err := ParseInput(raw)
	if err != nil {
		return nil, err
	}
	return a.AcquireInput(ctx, in)
}

// AcquireInput returns the transcript for a parsed input.
func (a *Acquirer) AcquireInput(ctx context.Context, in Input) (*Transcript, error) {
	if in.VideoID == "" {
		return &Transcript{ContentID: in.ContentID(), Text: in.Text, Source: SourcePasted}, nil
	}

	tr, err := a.fromCaptions(ctx, in.VideoID)
	if err == nil {
		engine.IncrCaptionHits()
		return tr, nil
	}
	engine.IncrCaptionMisses()
	slog.Warn("transcript: captions unavailable, falling back to audio",
		slog.String("video", in.VideoID), slog.Any("error", err))
	return a.fromAudio(ctx, in.VideoID)
}

func (a *Acquirer) fromCaptions(ctx context.Context, videoID string) (*Transcript, error) {
	if a.captions == nil {
		return nil, errors.New("no caption source")
	}
	tracks, err := a.captions.ListTracks(ctx, videoID)
	if err != nil {
		return nil, err
	}
	track, ok := sources.PickTrack(tracks, a.langs)
	if !ok {
		return nil, errors.New("no fetchable caption track")
	}
	segs, err := a.captions.FetchTrack(ctx, track)
	if err != nil {
		return nil, err
	}
	text := cleanPasted(sources.JoinSegments(segs))
	if text == "" {
		return nil, errors.New("caption track is empty")
	}
	slog.Info("transcript: from captions",
		slog.String("video", videoID), slog.String("lang", track.LanguageCode),
		slog.Bool("generated", track.IsGenerated), slog.Int("words", engine.WordCount(text)))
	return &Transcript{
		ContentID: videoID,
		VideoID:   videoID,
		Text:      text,
		Segments:  segs,
		Source:    SourceCaptions,
		Language:  track.LanguageCode,
	}, nil
}

func (a *Acquirer) fromAudio(ctx context.Context, videoID string) (*Transcript, error) {
	if a.downloader == nil || a.model == nil {
		return nil, unavailable("no captions and audio transcription is not configured", nil)
	}
	if a.rotator.Len() == 0 {
		return nil, unavailable("no captions and no API key configured for audio transcription", nil)
	}
	if err := a.state.Cooldown.Check(); err != nil {
		return nil, err
	}
	if !a.rotator.HasAvailableQuota() {
		return nil, a.dailyExhausted()
	}

	var audio *sources.AudioFile
	err := engine.TrackOperation(ctx, "audio download", slowDownload, func(ctx context.Context) error {
		var err error
		audio, err = a.downloader.Download(ctx, sources.CanonicalURL(videoID))
		return err
	})
	if err != nil {
		return nil, unavailable("no captions and the audio download failed", err)
	}
	defer audio.Cleanup()

	key, ok := a.rotator.NextAvailableKey()
	if !ok {
		return nil, a.dailyExhausted()
	}

	var text string
	err = a.pacer.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = a.model.Transcribe(ctx, key, audio.Path)
		return err
	})
	if err != nil {
		var e *engine.Error
		if errors.As(err, &e) && e.Reason == engine.ReasonQuotaExceeded {
			a.state.rejectQuota(a.rotator, key, e)
			return nil, e
		}
		return nil, unavailable("audio transcription failed", err)
	}
	a.rotator.Record(key)

	text = cleanPasted(text)
	if text == "" {
		return nil, unavailable("audio transcription returned no text", nil)
	}
	slog.Info("transcript: from audio", slog.String("video", videoID), slog.Int("words", engine.WordCount(text)))
	return &Transcript{ContentID: videoID, VideoID: videoID, Text: text, Source: SourceTranscription}, nil
}

func (a *Acquirer) dailyExhausted() error {
	return engine.QuotaError(engine.ScopeDaily, engine.UntilMidnight(a.now()), nil)
}

func unavailable(msg string, err error) error {
	return engine.NewError(engine.ReasonTranscriptUnavailable,
		msg+"; try another video or paste the transcript", err)
}
