// Command sentir runs the Sentir Conciencia server: the REST API, the live
// voice WebSocket, and the operational endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sentirlabs/sentir/internal/companion"
	"github.com/sentirlabs/sentir/internal/config"
	"github.com/sentirlabs/sentir/internal/gateway"
	"github.com/sentirlabs/sentir/internal/journal"
	"github.com/sentirlabs/sentir/internal/journal/postgres"
	"github.com/sentirlabs/sentir/internal/observe"
	"github.com/sentirlabs/sentir/pkg/provider/chat"
	chatgemini "github.com/sentirlabs/sentir/pkg/provider/chat/gemini"
	chatopenai "github.com/sentirlabs/sentir/pkg/provider/chat/openai"
	"github.com/sentirlabs/sentir/pkg/provider/embeddings"
	embedgemini "github.com/sentirlabs/sentir/pkg/provider/embeddings/gemini"
	embedopenai "github.com/sentirlabs/sentir/pkg/provider/embeddings/openai"
	"github.com/sentirlabs/sentir/pkg/provider/live"
	livegemini "github.com/sentirlabs/sentir/pkg/provider/live/gemini"
	"github.com/sentirlabs/sentir/pkg/provider/media"
	mediagemini "github.com/sentirlabs/sentir/pkg/provider/media/gemini"
	"github.com/sentirlabs/sentir/pkg/provider/tts"
	ttsgemini "github.com/sentirlabs/sentir/pkg/provider/tts/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A local .env is a convenience for development; absence is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "sentir: load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sentir: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sentir: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("sentir starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "sentir",
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	chatProvider, err := buildChat(cfg.Providers.Chat)
	if err != nil {
		slog.Error("chat provider setup failed", "err", err)
		return 1
	}
	ttsProvider, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("tts provider setup failed", "err", err)
		return 1
	}
	liveProvider := buildLive(cfg.Providers.Live)
	mediaProvider, err := buildMedia(cfg.Providers.Media)
	if err != nil {
		slog.Error("media provider setup failed", "err", err)
		return 1
	}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("journal store setup failed", "err", err)
		return 1
	}
	defer closeStore()

	engine, err := companion.NewEngine(chatProvider, ttsProvider, store)
	if err != nil {
		slog.Error("companion setup failed", "err", err)
		return 1
	}

	server, err := gateway.New(gateway.Config{
		Companion:      engine,
		Media:          mediaProvider,
		Live:           liveProvider,
		Store:          store,
		LiveQueueLimit: cfg.Live.CaptureQueueLimit,
	})
	if err != nil {
		slog.Error("gateway setup failed", "err", err)
		return 1
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
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

func buildChat(entry config.ProviderEntry) (chat.Provider, error) {
	switch entry.Name {
	case "openai":
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		var opts []chatopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, chatopenai.WithBaseURL(entry.BaseURL))
		}
		return chatopenai.New(entry.APIKey, model, opts...)
	default:
		var opts []chatgemini.Option
		if entry.Model != "" {
			opts = append(opts, chatgemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, chatgemini.WithBaseURL(entry.BaseURL))
		}
		return chatgemini.New(entry.APIKey, opts...)
	}
}

// buildTTS returns nil when no key is configured; the companion then serves
// text-only turns.
func buildTTS(entry config.ProviderEntry) (tts.Provider, error) {
	if entry.APIKey == "" {
		slog.Info("tts disabled, no api key configured")
		return nil, nil
	}
	var opts []ttsgemini.Option
	if entry.Model != "" {
		opts = append(opts, ttsgemini.WithModel(entry.Model))
	}
	if entry.BaseURL != "" {
		opts = append(opts, ttsgemini.WithBaseURL(entry.BaseURL))
	}
	return ttsgemini.New(entry.APIKey, opts...)
}

// buildLive returns nil when no key is configured; the websocket endpoint
// then reports live sessions as unavailable.
func buildLive(entry config.ProviderEntry) live.Provider {
	if entry.APIKey == "" {
		slog.Info("live sessions disabled, no api key configured")
		return nil
	}
	var opts []livegemini.Option
	if entry.Model != "" {
		opts = append(opts, livegemini.WithModel(entry.Model))
	}
	if entry.BaseURL != "" {
		opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
	}
	return livegemini.New(entry.APIKey, opts...)
}

// buildMedia returns nil when no key is configured; the art endpoints then
// answer 501.
func buildMedia(entry config.ProviderEntry) (media.Provider, error) {
	if entry.APIKey == "" {
		slog.Info("media generation disabled, no api key configured")
		return nil, nil
	}
	var opts []mediagemini.Option
	if entry.BaseURL != "" {
		opts = append(opts, mediagemini.WithBaseURL(entry.BaseURL))
	}
	return mediagemini.New(entry.APIKey, opts...)
}

func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		return embedopenai.New(entry.APIKey, entry.Model)
	default:
		var opts []embedgemini.Option
		if entry.Model != "" {
			opts = append(opts, embedgemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, embedgemini.WithBaseURL(entry.BaseURL))
		}
		return embedgemini.New(entry.APIKey, opts...)
	}
}

// buildStore picks PostgreSQL with embedding search when a DSN is configured
// and falls back to the in-memory store otherwise.
func buildStore(ctx context.Context, cfg *config.Config) (journal.Store, func(), error) {
	if cfg.Journal.PostgresDSN == "" {
		slog.Info("using in-memory journal store")
		return journal.NewMemStore(), func() {}, nil
	}
	embedder, err := buildEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		return nil, nil, fmt.Errorf("embeddings provider: %w", err)
	}
	store, err := postgres.NewStore(ctx, cfg.Journal.PostgresDSN, embedder)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using postgresql journal store", "embedding_model", embedder.ModelID())
	return store, store.Close, nil
}
