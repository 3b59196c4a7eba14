package engine

import (
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	stealth "github.com/anatolykoptev/go-stealth"
)

// Defaults for the free usage tier.
const (
	DefaultDailyLimit = 20
	DefaultCooldown   = 13 * time.Second
)

// Config holds all engine configuration, injected from main.
type Config struct {
	APIKeys         []string
	LLMAPIBase      string
	LLMModel        string
	TranscribeModel string
	TranscribeBase  string // Files/GenerateContent API root; empty uses the SDK default
	LLMTemperature  float64
	LLMMaxTokens    int
	DailyLimit      int
	Cooldown        time.Duration
	DataDir         string // content cache root
	UsageFile       string // JSON usage ledger
	UsageDB         string // SQLite usage ledger; overrides UsageFile when set
	RedisURL        string // optional cache mirror
	CacheEnabled    bool
	YTDLPPath       string
	TempDir         string
	CaptionLangs    []string
	HTTPClient      *http.Client
	BrowserClient   *stealth.BrowserClient // nil = plain HTTP for caption scraping
}

var cfg = Config{HTTPClient: http.DefaultClient}

// Cfg exposes the engine configuration for sub-packages (sources, learn).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	cfg = c
	Cfg = &cfg
}

// ConfigFromEnv assembles a Config from the process environment.
func ConfigFromEnv() Config {
	dataDir := env.Str("DATA_DIR", "cache")
	return Config{
		APIKeys: CollectKeys(
			append([]string{
				env.Str("GOOGLE_API_KEY", ""),
				env.Str("GOOGLE_API_KEY_2", ""),
				env.Str("GOOGLE_API_KEY_3", ""),
			}, env.List("GOOGLE_API_KEYS", "")...)...,
		),
		LLMAPIBase:      env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:        env.Str("LLM_MODEL", "gemini-flash-latest"),
		TranscribeModel: env.Str("TRANSCRIBE_MODEL", "gemini-flash-latest"),
		TranscribeBase:  env.Str("TRANSCRIBE_API_BASE", ""),
		LLMTemperature:  env.Float("LLM_TEMPERATURE", 0.4),
		LLMMaxTokens:    env.Int("LLM_MAX_TOKENS", 8192),
		DailyLimit:      env.Int("DAILY_LIMIT", DefaultDailyLimit),
		Cooldown:        env.Duration("COOLDOWN", DefaultCooldown),
		DataDir:         dataDir,
		UsageFile:       env.Str("USAGE_FILE", dataDir+"/api_usage.json"),
		UsageDB:         env.Str("USAGE_DB", ""),
		RedisURL:        env.Str("REDIS_URL", ""),
		CacheEnabled:    parseBool(env.Str("CACHE_ENABLED", "true")),
		YTDLPPath:       env.Str("YTDLP_PATH", "yt-dlp"),
		TempDir:         env.Str("TEMP_DIR", ""),
		CaptionLangs:    env.List("CAPTION_LANGS", "en"),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
}

// CollectKeys drops empty values, template placeholders and duplicates, keeping order.
func CollectKeys(raw ...string) []string {
	seen := make(map[string]bool, len(raw))
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] || isPlaceholderKey(k) {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

func isPlaceholderKey(k string) bool {
	return strings.HasPrefix(k, "your_") && strings.HasSuffix(k, "_here")
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}
