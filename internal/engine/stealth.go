package engine

import (
	"log/slog"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
)

// NewBrowserClient builds the Chrome-fingerprinted client used for caption
// scraping, routed through a Webshare proxy pool when webshareKey is set.
// It returns nil when the client cannot be created; callers fall back to plain HTTP.
func NewBrowserClient(webshareKey string) *stealth.BrowserClient {
	opts := []stealth.ClientOption{stealth.WithTimeout(15)}

	if webshareKey != "" {
		pool, err := proxypool.NewWebshare(webshareKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Warn("stealth client init failed, captions use plain HTTP", slog.Any("error", err))
		return nil
	}
	slog.Info("stealth browser client initialized")
	return bc
}
