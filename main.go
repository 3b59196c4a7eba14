// go_learn: YouTube study-pack MCP server.
//
// Turns a YouTube video or pasted transcript into a summary, key learning points
// and a 10-question quiz, spreading Gemini calls across several free-tier API keys.
// Runs as HTTP MCP server or stdio transport.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/learn"
	"github.com/anatolykoptev/go_learn/internal/learnserver"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}
	mcpPort := env.Str("MCP_PORT", "8893")

	c := initEngine()
	svc, closeSvc := learn.Build(context.Background(), c)
	defer closeSvc()

	slog.Info("starting go_learn", slog.String("port", mcpPort))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_learn",
		Version: version,
	}, nil)

	learnserver.RegisterTools(server, svc)
	slog.Info("tools registered", slog.Int("count", learnserver.ToolCount))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_learn",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initEngine() engine.Config {
	c := engine.ConfigFromEnv()
	c.BrowserClient = engine.NewBrowserClient(env.Str("WEBSHARE_API_KEY", ""))
	engine.Init(c)
	return c
}
