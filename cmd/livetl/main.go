// Command livetl is the realtime subtitle server: it captures stream audio,
// recognises and translates each utterance, and broadcasts subtitle events
// to websocket viewers.
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

	"github.com/sorane/livetl/internal/app"
	"github.com/sorane/livetl/internal/config"
	"github.com/sorane/livetl/pkg/provider/asr"
	"github.com/sorane/livetl/pkg/provider/asr/whisper"
	"github.com/sorane/livetl/pkg/provider/translate"
	translateanyllm "github.com/sorane/livetl/pkg/provider/translate/anyllm"
	translateopenai "github.com/sorane/livetl/pkg/provider/translate/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	checkOnly := flag.Bool("check", false, "probe the recognition and translation endpoints, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "livetl: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "livetl: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("livetl starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"broadcast_addr", cfg.Broadcast.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *checkOnly {
		return runCheck(ctx, application, cfg)
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runCheck probes both provider endpoints and reports the outcome.
func runCheck(ctx context.Context, application *app.App, cfg *config.Config) int {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := application.Check(probeCtx); err != nil {
		fmt.Fprintf(os.Stderr, "livetl: connection check failed: %v\n", err)
		return 1
	}
	fmt.Printf("ok: asr %q at %s, translate %q reachable\n",
		cfg.ASR.Name, cfg.ASR.BaseURL, cfg.Translate.Name)
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Recognition ─────────────────────────────────────────────────────────

	reg.RegisterASR("whisper", func(entry config.ASRConfig) (asr.Client, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		if entry.Timeout > 0 {
			opts = append(opts, whisper.WithTimeout(entry.Timeout.Std()))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── Translation ─────────────────────────────────────────────────────────

	reg.RegisterTranslator("openai", func(entry config.TranslateConfig) (translate.Translator, error) {
		var opts []translateopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, translateopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, translateopenai.WithTimeout(entry.Timeout.Std()))
		}
		if entry.ContextLines > 0 {
			opts = append(opts, translateopenai.WithContextLines(entry.ContextLines))
		}
		return translateopenai.New(entry.APIKey, entry.Model, entry.SourceLanguage, entry.TargetLanguage, opts...)
	})

	// The remaining backends share the any-llm adapter. ollama and llamacpp
	// are local servers addressed by BaseURL; the rest are hosted APIs.
	for _, providerName := range []string{
		"ollama", "anthropic", "gemini", "mistral", "groq", "llamacpp",
	} {
		reg.RegisterTranslator(providerName, func(entry config.TranslateConfig) (translate.Translator, error) {
			var opts []translateanyllm.Option
			if entry.APIKey != "" {
				opts = append(opts, translateanyllm.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, translateanyllm.WithBaseURL(entry.BaseURL))
			}
			if entry.Timeout > 0 {
				opts = append(opts, translateanyllm.WithTimeout(entry.Timeout.Std()))
			}
			if entry.ContextLines > 0 {
				opts = append(opts, translateanyllm.WithContextLines(entry.ContextLines))
			}
			return translateanyllm.New(providerName, entry.Model, entry.SourceLanguage, entry.TargetLanguage, opts...)
		})
	}
}

// buildProviders instantiates the configured providers using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	client, err := reg.CreateASR(cfg.ASR)
	if err != nil {
		return nil, fmt.Errorf("create asr client %q: %w", cfg.ASR.Name, err)
	}
	ps.ASR = client
	slog.Info("provider created", "kind", "asr", "name", cfg.ASR.Name, "model", cfg.ASR.Model)

	translator, err := reg.CreateTranslator(cfg.Translate)
	if err != nil {
		return nil, fmt.Errorf("create translator %q: %w", cfg.Translate.Name, err)
	}
	ps.Translator = translator
	slog.Info("provider created", "kind", "translate", "name", cfg.Translate.Name, "model", cfg.Translate.Model)

	return ps, nil
}

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
