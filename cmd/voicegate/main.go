// Command voicegate is the main entry point for the Voicegate voice
// assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echohall/voicegate/internal/config"
	"github.com/echohall/voicegate/internal/gateway"
	"github.com/echohall/voicegate/internal/observe"
	"github.com/echohall/voicegate/internal/resilience"
	"github.com/echohall/voicegate/internal/tools"
	"github.com/echohall/voicegate/pkg/provider/llm/ollama"
	"github.com/echohall/voicegate/pkg/provider/stt/whisper"
	"github.com/echohall/voicegate/pkg/provider/tts/piper"
)

// version is stamped by the build; "dev" for local runs.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicegate: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicegate starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicegate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Engines and collaborators ─────────────────────────────────────────────
	// Both engines sit behind circuit breakers so a flapping backend server
	// trips fast instead of stalling every session on request timeouts.
	fbCfg := resilience.FallbackConfig{}

	whisperEng, err := whisper.New(cfg.STT.ServerURL,
		whisper.WithModel(cfg.STT.Model),
		whisper.WithLanguage(cfg.STT.Language),
	)
	if err != nil {
		slog.Error("failed to create STT engine", "err", err)
		return 1
	}
	sttEng := resilience.NewSTTFallback(whisperEng, "whisper", fbCfg)

	piperEng, err := piper.New(cfg.TTS.ServerURL, piper.WithModelDir(cfg.TTS.ModelDir))
	if err != nil {
		slog.Error("failed to create TTS engine", "err", err)
		return 1
	}
	ttsEng := resilience.NewTTSFallback(piperEng, "piper", fbCfg)

	modelHost := ollama.New(
		ollama.WithBaseURL(cfg.LLM.OllamaURL),
		ollama.WithDefaultModel(cfg.LLM.OllamaModel),
	)

	var searchOpts []tools.SearchOption
	if cfg.Search.TavilyAPIKey != "" {
		searchOpts = append(searchOpts, tools.WithTavilyKey(cfg.Search.TavilyAPIKey))
	}
	if cfg.Search.BraveAPIKey != "" {
		searchOpts = append(searchOpts, tools.WithBraveKey(cfg.Search.BraveAPIKey))
	}
	registry := tools.DefaultRegistry(tools.NewWebSearch(searchOpts...))

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	srv := gateway.NewServer(cfg, sttEng, ttsEng, modelHost, registry,
		gateway.WithLogger(logger))

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Voicegate — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("STT server", cfg.STT.ServerURL)
	printEntry("TTS server", cfg.TTS.ServerURL)
	printEntry("Model host", cfg.LLM.OllamaURL)
	printEntry("LLM default", cfg.LLM.DefaultProviderName())
	printEntry("Voice", cfg.TTS.DefaultVoice)
	if cfg.Server.AuthToken != "" {
		printEntry("Auth", "token required")
	} else {
		printEntry("Auth", "(open)")
	}
	if cfg.Server.TLS != nil {
		printEntry("TLS", "enabled")
	}
	printEntry("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
