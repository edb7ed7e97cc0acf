// Command vixd is the page accessibility daemon.
//
// Usage:
//
//	vixd -url https://example.com                  # attach to a live page
//	vixd -config vixd.yaml -url https://example.com
//	vixd -url https://example.com -mcp             # also serve MCP on stdio
//	vixd -file page.html                           # offline one-shot analysis
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/vixlabs/vix/agent"
	"github.com/vixlabs/vix/audit"
	"github.com/vixlabs/vix/bus"
	"github.com/vixlabs/vix/dom/memdom"
	"github.com/vixlabs/vix/dom/roddom"
	"github.com/vixlabs/vix/extract"
	"github.com/vixlabs/vix/ident"
	"github.com/vixlabs/vix/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to vixd.yaml config file")
	pageURL := flag.String("url", "", "page to attach to")
	filePath := flag.String("file", "", "offline: analyze an HTML file and exit")
	controlURL := flag.String("control-url", "", "existing DevTools websocket endpoint (empty launches a browser)")
	headless := flag.Bool("headless", true, "run the launched browser headless")
	stealthMode := flag.Bool("stealth", false, "create pages through the stealth evasion script")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		logger.Error("vixd: config", "error", err)
		os.Exit(1)
	}

	if *filePath != "" {
		err = runOffline(logger, *filePath)
	} else if *pageURL != "" {
		err = run(ctx, logger, cfg, *pageURL, *controlURL, *headless, *stealthMode, *serveMCP)
	} else {
		fmt.Fprintln(os.Stderr, "usage: vixd -url <url> [-config <file>] [-mcp] | -file <page.html>")
		os.Exit(1)
	}
	if err != nil {
		logger.Error("vixd: fatal", "error", err)
		os.Exit(1)
	}
}

func resolveConfig(path string) (*agent.Config, error) {
	if path == "" {
		return &agent.Config{}, nil
	}
	return agent.LoadConfigFile(path)
}

func run(ctx context.Context, logger *slog.Logger, cfg *agent.Config, pageURL, controlURL string, headless, stealthMode, serveMCP bool) error {
	browser, err := roddom.Connect(ctx, roddom.Config{
		ControlURL: controlURL,
		Headless:   headless,
		Stealth:    stealthMode,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer browser.Close()

	doc, err := browser.Open(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("open %s: %w", pageURL, err)
	}
	defer doc.Close()

	a, err := agent.New(doc, cfg, logger)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	defer a.Close()

	d := bus.New(bus.WithLogger(logger))
	a.RegisterBus(d)

	if err := doc.Observe(ctx, a.Coordinator()); err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	a.Start(ctx)

	if _, err := a.AnalyzePage(ctx); err != nil {
		logger.Warn("vixd: initial analysis failed", "url", pageURL, "error", err)
	}

	if serveMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "vixd",
			Version: "1.0.0",
		}, nil)
		a.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("vixd: mcp", "error", err)
			}
		}()
		logger.Info("vixd: mcp serving", "transport", "stdio")
	}

	srv := &http.Server{
		Addr:              cfg.Panel.Addr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("vixd: panel serving", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("vixd: panel", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("vixd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("vixd: panel shutdown", "error", err)
	}
	return nil
}

// offlineReport is the one-shot analysis output.
type offlineReport struct {
	URL        string            `json:"url"`
	Title      string            `json:"title,omitempty"`
	Stats      extract.TreeStats `json:"stats"`
	Assigned   int               `json:"assigned"`
	Images     []extract.Image   `json:"images,omitempty"`
	Actions    []extract.Action  `json:"actions,omitempty"`
	Violations []audit.Violation `json:"violations,omitempty"`
}

// runOffline analyzes a saved HTML file without a browser or backend:
// tag, snapshot, extract, audit, print JSON.
func runOffline(logger *slog.Logger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := memdom.Parse(f, "file://"+path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	body := doc.Body()
	if body == nil {
		return fmt.Errorf("vixd: %s has no body", path)
	}
	assigned := ident.New(nil, logger).Assign(body)

	root := snapshot.New(snapshot.Config{Logger: logger}).SnapshotDocument(doc)
	if root == nil {
		return fmt.Errorf("vixd: empty snapshot")
	}

	report := offlineReport{
		URL:        doc.URL(),
		Title:      doc.Title(),
		Stats:      extract.Stats(root),
		Assigned:   assigned.Assigned,
		Images:     extract.Images(root),
		Actions:    extract.Actions(root),
		Violations: audit.NewRuleAuditor().Audit(root),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
