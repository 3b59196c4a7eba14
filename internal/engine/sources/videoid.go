package sources

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID returns the video ID from a YouTube URL or a bare ID.
// Handles youtu.be/<id>, /watch?v=<id>, /embed/<id>, /v/<id> and /shorts/<id>.
func ExtractVideoID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if videoIDRe.MatchString(raw) {
		return raw, true
	}
	if !strings.Contains(raw, "://") && (strings.HasPrefix(raw, "youtu") || strings.HasPrefix(raw, "www.youtu") || strings.HasPrefix(raw, "m.youtu")) {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(u.Host), "www."), "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "youtube-nocookie.com", "music.youtube.com":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case len(parts) >= 2 && (parts[0] == "embed" || parts[0] == "v" || parts[0] == "shorts" || parts[0] == "live"):
			id = parts[1]
		}
	default:
		return "", false
	}
	if !videoIDRe.MatchString(id) {
		return "", false
	}
	return id, true
}

// IsYouTubeURL reports whether s looks like a YouTube link.
func IsYouTubeURL(s string) bool {
	return strings.Contains(s, "youtube.com") || strings.Contains(s, "youtu.be")
}

// CanonicalURL returns the watch URL for a video ID.
func CanonicalURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
