package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	ModelCalls         atomic.Int64
	ModelErrors        atomic.Int64
	QuotaRejections    atomic.Int64
	Transcriptions     atomic.Int64
	CaptionHits        atomic.Int64
	CaptionMisses      atomic.Int64
	AudioDownloads     atomic.Int64
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
	StorageErrors      atomic.Int64
	QuizRepairs        atomic.Int64
	QuizShort          atomic.Int64
	PipelineRuns       atomic.Int64
	PipelineRejections atomic.Int64
}

var metricKeys = []string{
	"model_calls", "model_errors", "quota_rejections",
	"transcriptions", "caption_hits", "caption_misses", "audio_downloads",
	"cache_hits", "cache_misses", "storage_errors",
	"quiz_repairs", "quiz_short",
	"pipeline_runs", "pipeline_rejections",
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"model_calls":         metrics.ModelCalls.Load(),
		"model_errors":        metrics.ModelErrors.Load(),
		"quota_rejections":    metrics.QuotaRejections.Load(),
		"transcriptions":      metrics.Transcriptions.Load(),
		"caption_hits":        metrics.CaptionHits.Load(),
		"caption_misses":      metrics.CaptionMisses.Load(),
		"audio_downloads":     metrics.AudioDownloads.Load(),
		"cache_hits":          metrics.CacheHits.Load(),
		"cache_misses":        metrics.CacheMisses.Load(),
		"storage_errors":      metrics.StorageErrors.Load(),
		"quiz_repairs":        metrics.QuizRepairs.Load(),
		"quiz_short":          metrics.QuizShort.Load(),
		"pipeline_runs":       metrics.PipelineRuns.Load(),
		"pipeline_rejections": metrics.PipelineRejections.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrModelCalls()         { metrics.ModelCalls.Add(1) }
func IncrModelErrors()        { metrics.ModelErrors.Add(1) }
func IncrQuotaRejections()    { metrics.QuotaRejections.Add(1) }
func IncrTranscriptions()     { metrics.Transcriptions.Add(1) }
func IncrCaptionHits()        { metrics.CaptionHits.Add(1) }
func IncrCaptionMisses()      { metrics.CaptionMisses.Add(1) }
func IncrAudioDownloads()     { metrics.AudioDownloads.Add(1) }
func IncrCacheHits()          { metrics.CacheHits.Add(1) }
func IncrCacheMisses()        { metrics.CacheMisses.Add(1) }
func IncrStorageErrors()      { metrics.StorageErrors.Add(1) }
func IncrQuizRepairs()        { metrics.QuizRepairs.Add(1) }
func IncrQuizShort()          { metrics.QuizShort.Add(1) }
func IncrPipelineRuns()       { metrics.PipelineRuns.Add(1) }
func IncrPipelineRejections() { metrics.PipelineRejections.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
