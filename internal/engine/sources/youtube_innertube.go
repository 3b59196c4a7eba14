package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	stealth "github.com/anatolykoptev/go-stealth"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// YouTube Innertube API: low-level constants, types, and HTTP primitives.
// Track selection and segment assembly live in youtube_transcript.go.

const (
	ytPlayerPath     = "/youtubei/v1/player"
	ytAndroidVersion = "20.10.38"
	ytAndroidUA      = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"
)

// --- ANDROID client types (/player endpoint) ---

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type innertubePlayerResp struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []rawCaptionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type rawCaptionTrack struct {
	BaseURL        string `json:"baseUrl"`
	LanguageCode   string `json:"languageCode"`
	Kind           string `json:"kind"` // "asr" = auto-generated
	IsTranslatable bool   `json:"isTranslatable"`
	Name           struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
}

func (t rawCaptionTrack) track() CaptionTrack {
	name := t.Name.SimpleText
	if name == "" {
		var sb strings.Builder
		for _, r := range t.Name.Runs {
			sb.WriteString(r.Text)
		}
		name = sb.String()
	}
	if name == "" {
		name = t.LanguageCode
	}
	return CaptionTrack{
		Language:       name,
		LanguageCode:   t.LanguageCode,
		IsGenerated:    t.Kind == "asr",
		IsTranslatable: t.IsTranslatable,
		BaseURL:        t.BaseURL,
	}
}

func (r *innertubePlayerResp) tracks() ([]CaptionTrack, error) {
	if r.Captions == nil {
		if r.PlayabilityStatus != nil && r.PlayabilityStatus.Reason != "" {
			return nil, fmt.Errorf("captions unavailable: %s", r.PlayabilityStatus.Reason)
		}
		return nil, errNoCaptions
	}
	raw := r.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(raw) == 0 {
		return nil, errNoCaptions
	}
	out := make([]CaptionTrack, 0, len(raw))
	for _, t := range raw {
		out = append(out, t.track())
	}
	return out, nil
}

// --- Timedtext XML types ---

// Classic format: <transcript><text start="1.2" dur="3.4">...</text></transcript>.
// srv3 format:    <timedtext><body><p t="1200" d="3400">...</p></body></timedtext>.
type ytTimedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",innerxml"`
	} `xml:"text"`
	Paragraphs []struct {
		T    string `xml:"t,attr"`
		D    string `xml:"d,attr"`
		Text string `xml:",innerxml"`
	} `xml:"body>p"`
}

func (tt *ytTimedText) segments() []Segment {
	segs := make([]Segment, 0, len(tt.Lines)+len(tt.Paragraphs))
	for _, l := range tt.Lines {
		if text := engine.CleanCaption(l.Text); text != "" {
			segs = append(segs, Segment{Text: text, Start: parseFloat(l.Start), Duration: parseFloat(l.Dur)})
		}
	}
	for _, p := range tt.Paragraphs {
		if text := engine.CleanCaption(p.Text); text != "" {
			segs = append(segs, Segment{Text: text, Start: parseFloat(p.T) / 1000, Duration: parseFloat(p.D) / 1000})
		}
	}
	return segs
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func decodeTimedText(body []byte) ([]Segment, error) {
	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}
	return tt.segments(), nil
}

// getBody performs a GET with retry and returns the capped body.
// Uses the stealth browser client when configured, plain HTTP otherwise.
func (y *YouTubeCaptions) getBody(ctx context.Context, target string, limit int64) ([]byte, error) {
	if y.browser != nil {
		headers := map[string]string{"accept-language": "en-US,en;q=0.9"}
		for k, v := range stealth.ChromeHeaders() {
			if _, ok := headers[k]; !ok {
				headers[k] = v
			}
		}
		return y.browserDo(http.MethodGet, target, headers, nil)
	}

	resp, err := stealth.RetryHTTP(ctx, stealth.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", stealth.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		return y.client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// browserDo sends one request through the stealth client and requires a 200.
func (y *YouTubeCaptions) browserDo(method, target string, headers map[string]string, body io.Reader) ([]byte, error) {
	data, _, status, err := y.browser.Do(method, target, headers, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d", method, target, status)
	}
	return data, nil
}

// postPlayer calls the ANDROID Innertube /player endpoint.
func (y *YouTubeCaptions) postPlayer(ctx context.Context, videoID string) (*innertubePlayerResp, error) {
	reqBody, err := json.Marshal(innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, err
	}

	target := y.baseURL + ytPlayerPath + "?prettyPrint=false"
	if y.browser != nil {
		body, err := y.browserDo(http.MethodPost, target, map[string]string{
			"content-type":             "application/json",
			"user-agent":               ytAndroidUA,
			"x-youtube-client-name":    "3",
			"x-youtube-client-version": ytAndroidVersion,
		}, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("android innertube: %w", err)
		}
		var playerResp innertubePlayerResp
		if err := json.Unmarshal(body, &playerResp); err != nil {
			return nil, fmt.Errorf("decode player: %w", err)
		}
		return &playerResp, nil
	}

	resp, err := stealth.RetryHTTP(ctx, stealth.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		return y.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("android innertube: %w", err)
	}
	defer resp.Body.Close()

	var playerResp innertubePlayerResp
	if err := json.NewDecoder(resp.Body).Decode(&playerResp); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	return &playerResp, nil
}

// extractJSON returns the balanced {...} object at the start of data, honoring strings.
func extractJSON(data []byte) []byte {
	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return nil
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(data); i++ {
		c := data[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return data[start : i+1]
			}
		}
	}
	return nil
}
