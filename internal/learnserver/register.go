// Package learnserver exposes the learning service as MCP tools.
package learnserver

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/learn"
)

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 6

// RegisterTools registers the learning tools on the given MCP server:
// learn_transcript, learn_tracks, learn_process, learn_cache_status,
// learn_cache_clear, learn_usage.
func RegisterTools(server *mcp.Server, svc *learn.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "learn_transcript",
		Description: "Get the transcript of a YouTube video (URL or 11-char ID), or clean up pasted transcript text (at least 50 characters). Tries captions first (manual English, then auto-generated, then any language), then downloads the audio and transcribes it with Gemini. Cached transcripts are reused.",
	}, transcriptTool(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "learn_tracks",
		Description: "List caption tracks available for a YouTube video: language, language code, whether auto-generated and whether translatable.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, tracksTool(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "learn_process",
		Description: "Turn a YouTube video or pasted transcript into a study pack: summary, 8-12 key learning points and a 10-question multiple-choice quiz. Uses up to three Gemini calls spaced by a cooldown and rotated across API keys under a daily limit. Returns partial results when quota runs out; fully cached videos cost no API calls.",
	}, processTool(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "learn_cache_status",
		Description: "Show how many transcripts, summaries, key point lists and quizzes are cached. Pass input (URL, video ID or content ID) to check whether one entry is fully cached.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, cacheStatusTool(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "learn_cache_clear",
		Description: "Delete cached artifacts for one video (URL, video ID or content ID), or everything with all=true.",
	}, cacheClearTool(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "learn_usage",
		Description: "Show API key usage: requests today, remaining today and lifetime totals per key (keys masked), the active quota cooldown if any, and whether a processing run is in progress.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, usageTool(svc))
}
