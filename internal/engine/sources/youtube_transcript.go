package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	stealth "github.com/anatolykoptev/go-stealth"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// YouTube caption fetching.
// Primary:  scrape watch page ytInitialPlayerResponse → captionTracks (works from any IP)
// Fallback: ANDROID Innertube /player → captionTracks                 (works from non-blocked IPs)
// Either way the chosen track is fetched as timedtext XML.

var errNoCaptions = errors.New("no caption tracks")

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

// CaptionTrack describes one available caption track.
type CaptionTrack struct {
	Language       string `json:"language"`
	LanguageCode   string `json:"language_code"`
	IsGenerated    bool   `json:"is_generated"`
	IsTranslatable bool   `json:"is_translatable"`
	BaseURL        string `json:"-"`
}

// Segment is one time-aligned caption line.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// YouTubeCaptions lists and fetches YouTube caption tracks.
type YouTubeCaptions struct {
	baseURL string
	client  *http.Client
	browser *stealth.BrowserClient
}

// CaptionOption configures YouTubeCaptions.
type CaptionOption func(*YouTubeCaptions)

// WithBaseURL points the scraper at another host (tests, mirrors).
func WithBaseURL(u string) CaptionOption {
	return func(y *YouTubeCaptions) { y.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the plain HTTP client.
func WithHTTPClient(c *http.Client) CaptionOption {
	return func(y *YouTubeCaptions) { y.client = c }
}

// WithBrowserClient routes watch-page, timedtext and player requests through a stealth client.
func WithBrowserClient(bc *stealth.BrowserClient) CaptionOption {
	return func(y *YouTubeCaptions) { y.browser = bc }
}

// NewYouTubeCaptions creates a caption source using engine.Cfg clients by default.
func NewYouTubeCaptions(opts ...CaptionOption) *YouTubeCaptions {
	y := &YouTubeCaptions{
		baseURL: "https://www.youtube.com",
		client:  engine.Cfg.HTTPClient,
		browser: engine.Cfg.BrowserClient,
	}
	for _, o := range opts {
		o(y)
	}
	if y.client == nil {
		y.client = http.DefaultClient
	}
	return y
}

// ListTracks returns the caption tracks available for a video.
func (y *YouTubeCaptions) ListTracks(ctx context.Context, videoID string) ([]CaptionTrack, error) {
	tracks, err := y.tracksViaPageScrape(ctx, videoID)
	if err == nil {
		return tracks, nil
	}
	slog.Warn("youtube: page scrape failed, trying player",
		slog.String("id", videoID), slog.Any("err", err))

	resp, err := y.postPlayer(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return resp.tracks()
}

// FetchTrack downloads and parses one caption track.
func (y *YouTubeCaptions) FetchTrack(ctx context.Context, track CaptionTrack) ([]Segment, error) {
	if track.BaseURL == "" {
		return nil, errors.New("caption track has no URL")
	}
	target := track.BaseURL
	if strings.HasPrefix(target, "/") {
		target = y.baseURL + target
	}
	body, err := y.getBody(ctx, target, 2*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	segs, err := decodeTimedText(body)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, errors.New("empty caption track")
	}
	return segs, nil
}

// tracksViaPageScrape scrapes the watch page HTML and extracts captionTracks
// from ytInitialPlayerResponse.
func (y *YouTubeCaptions) tracksViaPageScrape(ctx context.Context, videoID string) ([]CaptionTrack, error) {
	body, err := y.getBody(ctx, y.baseURL+"/watch?v="+videoID, 6*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	idx := bytes.Index(body, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var playerResp innertubePlayerResp
	if err := json.Unmarshal(jsonData, &playerResp); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return playerResp.tracks()
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

func langMatches(code, lang string) bool {
	code, lang = strings.ToLower(code), strings.ToLower(lang)
	return code == lang || strings.HasPrefix(code, lang+"-")
}

// PickTrack selects the caption track to use: a manual track in a preferred
// language, then an auto-generated one, then the first fetchable track.
// Tracks that require a PoToken are skipped.
func PickTrack(tracks []CaptionTrack, langs []string) (CaptionTrack, bool) {
	usable := make([]CaptionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return CaptionTrack{}, false
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if !t.IsGenerated && langMatches(t.LanguageCode, lang) {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.IsGenerated && langMatches(t.LanguageCode, lang) {
				return t, true
			}
		}
	}
	return usable[0], true
}

// JoinSegments concatenates caption text into one blob.
func JoinSegments(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}
