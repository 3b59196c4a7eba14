// Package sources fetches raw video material: caption tracks and audio.
package sources

// YouTube support is split across files by responsibility:
//   youtube_innertube.go: watch-page player response types and the scrape that extracts them
//   youtube_transcript.go: caption track listing, track preference and timedtext decoding
//   videoid.go: URL parsing and canonical watch URLs
//   audio.go: yt-dlp audio download into a per-call scratch directory
