package learn

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/sources"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

// Build assembles a Service from the engine configuration. The returned close
// function releases the ledger database and the redis mirror.
func Build(ctx context.Context, c engine.Config) (*Service, func()) {
	var closers []func() error

	store := openLedgerStore(c, &closers)
	ledger := quota.NewLedger(store)
	rotator := quota.NewRotator(c.APIKeys, ledger, c.DailyLimit)

	cache := NewCache(ctx, CacheOptions{Dir: c.DataDir, RedisURL: c.RedisURL, Enabled: c.CacheEnabled})
	if rs, ok := cache.mirror.(*redisStore); ok {
		closers = append(closers, rs.Close)
	}

	cooldown := c.Cooldown
	if cooldown <= 0 {
		cooldown = engine.DefaultCooldown
	}

	svc := NewService(Options{
		Model:        engine.NewGeminiModel(c),
		Captions:     sources.NewYouTubeCaptions(),
		Downloader:   sources.NewYTDLP(c.YTDLPPath, c.TempDir, nil),
		Rotator:      rotator,
		Pacer:        quota.NewPacer(cooldown),
		State:        NewState(time.Now),
		Cache:        cache,
		CaptionLangs: c.CaptionLangs,
	})

	if rotator.Len() == 0 {
		slog.Warn("learn: no API key configured, only cached results and transcripts are available")
	}
	slog.Info("learn: ready",
		slog.Int("keys", rotator.Len()), slog.Int("daily_limit", rotator.Limit()),
		slog.Int("remaining_today", rotator.Remaining()), slog.Duration("cooldown", cooldown))

	return svc, func() {
		for _, fn := range closers {
			if err := fn(); err != nil {
				slog.Warn("learn: close failed", slog.Any("error", err))
			}
		}
	}
}

func openLedgerStore(c engine.Config, closers *[]func() error) quota.Store {
	if c.UsageDB != "" {
		db, err := quota.OpenSQLiteStore(c.UsageDB)
		if err == nil {
			*closers = append(*closers, db.Close)
			slog.Info("ledger: sqlite", slog.String("path", c.UsageDB))
			return db
		}
		engine.IncrStorageErrors()
		slog.Warn("ledger: sqlite unavailable, using JSON file", slog.Any("error", err))
	}
	path := c.UsageFile
	if path == "" {
		path = "api_usage.json"
	}
	return quota.NewFileStore(path)
}
