package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/logging"
	"github.com/zombor/receipt-capture/internal/scanning"
	"github.com/zombor/receipt-capture/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type scannerConfig struct {
	kind            string
	openRouterKey   string
	openRouterModel string
	openRouterURL   string
	referer         string
	geminiKey       string
	geminiModel     string
	ollamaURL       string
	ollamaModel     string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-capture")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		logEnv          = fs.StringLong("log-env", logging.ProductionEnvironment, "Log format: 'development' or 'production'")
		scannerType     = fs.StringLong("scanner", "openrouter", "Scanner type: 'openrouter', 'gemini' or 'ollama'")
		openRouterKey   = fs.StringLong("openrouter-key", "", "OpenRouter API key (or set OPENROUTER_API_KEY env var)")
		openRouterModel = fs.StringLong("openrouter-model", "google/gemini-2.5-flash", "OpenRouter model name")
		openRouterURL   = fs.StringLong("openrouter-url", "https://openrouter.ai/api/v1", "OpenRouter API base URL")
		referer         = fs.StringLong("referer", "", "HTTP-Referer sent to OpenRouter (optional)")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		tickInterval    = fs.DurationLong("tick-interval", capture.DefaultConfig().TickInterval, "Progress animation tick interval")
		gracePeriod     = fs.DurationLong("grace-period", capture.DefaultConfig().GracePeriod, "How long completed progress is shown before review")
		successHold     = fs.DurationLong("success-hold", capture.DefaultConfig().SuccessHold, "How long the success screen is shown before resetting")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		_               = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_CAPTURE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger, flush, err := logging.New(*logEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer flush()
	slog.SetDefault(logger)

	scanner, err := newScanner(scannerConfig{
		kind:            *scannerType,
		openRouterKey:   *openRouterKey,
		openRouterModel: *openRouterModel,
		openRouterURL:   *openRouterURL,
		referer:         *referer,
		geminiKey:       *geminiKey,
		geminiModel:     *geminiModel,
		ollamaURL:       *ollamaURL,
		ollamaModel:     *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	machine := capture.NewMachine(scanner, capture.Config{
		TickInterval: *tickInterval,
		GracePeriod:  *gracePeriod,
		SuccessHold:  *successHold,
	},
		capture.WithContext(ctx),
		capture.WithLogger(logger),
		capture.WithMetrics(capture.NewMetrics(registry)),
		capture.WithSink(capture.LogSink{Logger: logger}),
	)
	defer machine.Close()

	basicAuth := web.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := web.NewServer(machine, basicAuth, registry)

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server starting", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		machine.Close()
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

// newScanner builds the configured extraction backend
func newScanner(cfg scannerConfig) (scanning.Scanner, error) {
	switch cfg.kind {
	case "openrouter":
		apiKey := cfg.openRouterKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENROUTER_API_KEY")
		}
		if apiKey == "" {
			slog.Warn("No OpenRouter API key configured; scans will fail with an authorization error", "flag", "--openrouter-key", "env", "OPENROUTER_API_KEY")
		}
		slog.Info("Initializing OpenRouter scanner...", "model", cfg.openRouterModel)
		return scanning.NewOpenRouter(apiKey, cfg.openRouterModel,
			scanning.WithOpenRouterURL(cfg.openRouterURL),
			scanning.WithOpenRouterReferer(cfg.referer, "Receipt Capture"),
		), nil
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		return scanning.NewGemini(apiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: use openrouter, gemini or ollama", cfg.kind)
	}
}
