// Entry point for the pagelens daemon: observe one page, keep highlights
// synchronised, serve the local debug API, optionally expose MCP tools
// over stdio.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagelens"
	"github.com/hazyhaar/pagelens/internal/debugapi"
)

func main() {
	var (
		configPath   = flag.String("config", "pagelens.yaml", "path to the YAML configuration file")
		urlOverride  = flag.String("url", "", "override page.url from the config")
		mcpTransport = flag.String("mcp", "", "MCP transport: empty disables, 'stdio' serves tools on stdin/stdout")
	)
	flag.Parse()

	cfg, err := pagelens.LoadConfigFile(*configPath)
	if err != nil {
		slog.Error("load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *urlOverride != "" {
		cfg.Page.URL = *urlOverride
	}

	// Logging.
	var lvl slog.Level
	switch cfg.Log.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng, err := pagelens.New(pagelens.Options{Config: cfg, Logger: logger})
	if err != nil {
		slog.Error("pagelens engine", "error", err)
		os.Exit(1)
	}
	if err := eng.Start(ctx); err != nil {
		slog.Error("pagelens start", "error", err)
		os.Exit(1)
	}
	defer eng.Stop()

	// Local debug API.
	var srv *http.Server
	if cfg.DebugAPI.Listen != "" {
		srv = &http.Server{
			Addr:              cfg.DebugAPI.Listen,
			Handler:           debugapi.New(eng, logger),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			slog.Info("debug api starting", "addr", cfg.DebugAPI.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("debug api", "error", err)
				os.Exit(1)
			}
		}()
	}

	// Optional MCP over stdio.
	if *mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "pagelens",
			Version: "1.0.0",
		}, nil)
		eng.RegisterMCPTools(mcpSrv)
		go func() {
			slog.Info("mcp starting", "transport", "stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}
}
