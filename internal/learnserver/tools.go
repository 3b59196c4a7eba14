package learnserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/sources"
	"github.com/anatolykoptev/go_learn/internal/learn"
	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

// TranscriptInput is the learn_transcript input.
type TranscriptInput struct {
	Input    string `json:"input" jsonschema:"YouTube URL, 11-char video ID, or pasted transcript text"`
	Segments bool   `json:"segments,omitempty" jsonschema:"Include timed caption segments when the transcript came from captions"`
}

// TranscriptOutput is the learn_transcript result.
type TranscriptOutput struct {
	Success    bool              `json:"success"`
	Error      *engine.Failure   `json:"error,omitempty"`
	Transcript *learn.Transcript `json:"transcript,omitempty"`
	Words      int               `json:"words,omitempty"`
}

func transcriptTool(svc *learn.Service) mcp.ToolHandlerFor[TranscriptInput, TranscriptOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TranscriptInput) (*mcp.CallToolResult, TranscriptOutput, error) {
		err := toolutil.RequireInput("input", input.Input)
		var tr *learn.Transcript
		if err == nil {
			tr, err = svc.AcquireTranscript(ctx, input.Input)
		}
		out := TranscriptOutput{}
		out.Success, out.Error = toolutil.Outcome("learn_transcript", err)
		if tr != nil {
			out.Transcript = toolutil.StripSegments(tr, input.Segments)
			out.Words = engine.WordCount(tr.Text)
		}
		return nil, out, nil
	}
}

// TracksInput is the learn_tracks input.
type TracksInput struct {
	Input string `json:"input" jsonschema:"YouTube URL or 11-char video ID"`
}

// TracksOutput is the learn_tracks result.
type TracksOutput struct {
	Success bool                   `json:"success"`
	Error   *engine.Failure        `json:"error,omitempty"`
	Tracks  []sources.CaptionTrack `json:"tracks,omitempty"`
}

func tracksTool(svc *learn.Service) mcp.ToolHandlerFor[TracksInput, TracksOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TracksInput) (*mcp.CallToolResult, TracksOutput, error) {
		tracks, err := svc.TranscriptInfo(ctx, input.Input)
		out := TracksOutput{Tracks: tracks}
		out.Success, out.Error = toolutil.Outcome("learn_tracks", err)
		return nil, out, nil
	}
}

// ProcessInput is the learn_process input.
type ProcessInput struct {
	Input string `json:"input" jsonschema:"YouTube URL, 11-char video ID, or pasted transcript text (at least 50 characters)"`
}

// ProcessOutput is the learn_process result. Success is false when any artifact
// is missing; the artifacts that were produced are still returned.
type ProcessOutput struct {
	Success          bool                 `json:"success"`
	Error            *engine.Failure      `json:"error,omitempty"`
	ContentID        string               `json:"content_id,omitempty"`
	TranscriptSource string               `json:"transcript_source,omitempty"`
	Summary          string               `json:"summary,omitempty"`
	KeyPoints        string               `json:"key_points,omitempty"`
	Quiz             []learn.QuizQuestion `json:"quiz,omitempty"`
	QuizShort        bool                 `json:"quiz_short,omitempty"`
	FromCache        bool                 `json:"from_cache,omitempty"`
	Aborted          bool                 `json:"aborted,omitempty"`
	Failures         []learn.StepFailure  `json:"failures,omitempty"`
}

func processTool(svc *learn.Service) mcp.ToolHandlerFor[ProcessInput, ProcessOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ProcessInput) (*mcp.CallToolResult, ProcessOutput, error) {
		err := toolutil.RequireInput("input", input.Input)
		var res *learn.Output
		if err == nil {
			res, err = svc.Process(ctx, input.Input)
		}
		out := ProcessOutput{}
		out.Success, out.Error = toolutil.Outcome("learn_process", err)
		if res == nil {
			return nil, out, nil
		}
		if res.Transcript != nil {
			out.TranscriptSource = res.Transcript.Source
		}
		if r := res.Result; r != nil {
			out.ContentID = r.ContentID
			out.Summary = r.Summary
			out.KeyPoints = r.KeyPoints
			out.Quiz = r.Quiz
			out.QuizShort = r.QuizShort
			out.FromCache = r.FromCache
			out.Aborted = r.Aborted
			out.Failures = r.Failures
			if err == nil && !r.Complete() {
				out.Success = false
			}
		}
		return nil, out, nil
	}
}

// CacheStatusInput is the learn_cache_status input.
type CacheStatusInput struct {
	Input string `json:"input,omitempty" jsonschema:"Optional URL, video ID or content ID to check"`
}

// CacheStatusOutput is the learn_cache_status result.
type CacheStatusOutput struct {
	Success bool             `json:"success"`
	Error   *engine.Failure  `json:"error,omitempty"`
	Stats   learn.CacheStats `json:"stats"`
	Cached  *bool            `json:"cached,omitempty"`
}

func cacheStatusTool(svc *learn.Service) mcp.ToolHandlerFor[CacheStatusInput, CacheStatusOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CacheStatusInput) (*mcp.CallToolResult, CacheStatusOutput, error) {
		out := CacheStatusOutput{Stats: svc.CacheStatus(ctx)}
		var err error
		if input.Input != "" {
			var cached bool
			cached, err = svc.IsCached(ctx, input.Input)
			if err == nil {
				out.Cached = &cached
			}
		}
		out.Success, out.Error = toolutil.Outcome("learn_cache_status", err)
		return nil, out, nil
	}
}

// CacheClearInput is the learn_cache_clear input.
type CacheClearInput struct {
	Input string `json:"input,omitempty" jsonschema:"URL, video ID or content ID to remove"`
	All   bool   `json:"all,omitempty" jsonschema:"Remove every cached entry"`
}

// CacheClearOutput is the learn_cache_clear result.
type CacheClearOutput struct {
	Success bool            `json:"success"`
	Error   *engine.Failure `json:"error,omitempty"`
	Removed int             `json:"removed"`
}

func cacheClearTool(svc *learn.Service) mcp.ToolHandlerFor[CacheClearInput, CacheClearOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CacheClearInput) (*mcp.CallToolResult, CacheClearOutput, error) {
		var (
			removed int
			err     error
		)
		switch {
		case input.All:
			removed, err = svc.ClearCache(ctx, "")
		default:
			err = toolutil.RequireInput("input (or all=true)", input.Input)
			if err == nil {
				removed, err = svc.ClearCache(ctx, input.Input)
			}
		}
		out := CacheClearOutput{Removed: removed}
		out.Success, out.Error = toolutil.Outcome("learn_cache_clear", err)
		return nil, out, nil
	}
}

// UsageInput is the learn_usage input.
type UsageInput struct{}

// UsageOutput is the learn_usage result.
type UsageOutput struct {
	Success bool        `json:"success"`
	Usage   learn.Usage `json:"usage"`
}

func usageTool(svc *learn.Service) mcp.ToolHandlerFor[UsageInput, UsageOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ UsageInput) (*mcp.CallToolResult, UsageOutput, error) {
		return nil, UsageOutput{Success: true, Usage: svc.UsageStats()}, nil
	}
}
