// ytlearn: terminal front end for the go_learn study-pack service.
//
// Usage:
//
//	ytlearn process --quiz-out quiz.json https://youtu.be/dQw4w9WgXcQ
//	ytlearn transcript dQw4w9WgXcQ
//	ytlearn usage
//	ytlearn cache clear --all
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/learn"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()})))

	app := &cli.App{
		Name:    "ytlearn",
		Usage:   "Summaries, key points and quizzes from YouTube videos",
		Version: version,
		Commands: []*cli.Command{
			processCommand(),
			transcriptCommand(),
			tracksCommand(),
			usageCommand(),
			cacheCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if env.Str("LOG_LEVEL", "") == "debug" {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// withService builds the service for a single command invocation.
func withService(fn func(c *cli.Context, svc *learn.Service) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg := engine.ConfigFromEnv()
		cfg.BrowserClient = engine.NewBrowserClient(env.Str("WEBSHARE_API_KEY", ""))
		engine.Init(cfg)

		ctx := c.Context
		if ctx == nil {
			ctx = context.Background()
		}
		svc, closeSvc := learn.Build(ctx, cfg)
		defer closeSvc()
		return fn(c, svc)
	}
}
