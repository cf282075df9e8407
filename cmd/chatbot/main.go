// Command chatbot runs the Omniaweb website chatbot backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/omniaweb/chatbot/config"
	"github.com/omniaweb/chatbot/conversation"
	"github.com/omniaweb/chatbot/conversation/ai"
	"github.com/omniaweb/chatbot/conversation/emit"
	"github.com/omniaweb/chatbot/conversation/model"
	anthropicmodel "github.com/omniaweb/chatbot/conversation/model/anthropic"
	googlemodel "github.com/omniaweb/chatbot/conversation/model/google"
	openaimodel "github.com/omniaweb/chatbot/conversation/model/openai"
	"github.com/omniaweb/chatbot/conversation/notify"
	"github.com/omniaweb/chatbot/conversation/store"
	"github.com/omniaweb/chatbot/server"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "chatbot",
	Short: "Omniaweb website chatbot backend",
	Long: `Backend service for the Omniaweb website chat widget.

Handles the conversation flow (service inquiry, lead qualification,
support requests), optional AI-generated replies with cost and rate
limits, and escalation of qualified leads to the sales team.

All configuration comes from CHATBOT_* environment variables,
optionally loaded from a .env file.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine in production, where the platform injects
	// the environment directly.
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	sessions, err := store.Open(store.Config{Driver: cfg.StoreDriver, DSN: cfg.StoreDSN})
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() { _ = sessions.Close() }()

	registry := prometheus.NewRegistry()
	metrics := conversation.NewMetrics(registry)

	var emitter emit.Emitter = emit.NewLogEmitter(logger)
	if cfg.TraceEnabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		defer func() { _ = tp.Shutdown(context.Background()) }()
		emitter = emit.NewMultiEmitter(
			emitter,
			emit.NewOTelEmitter(otel.Tracer("chatbot")),
		)
	}

	kb := conversation.DefaultKnowledgeBase()
	engine := conversation.NewEngine(kb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var generator *ai.Generator
	if cfg.AIEnabled() {
		chat, modelName, closeModel, err := buildChatModel(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize AI provider: %w", err)
		}
		if closeModel != nil {
			defer func() { _ = closeModel() }()
		}
		generator = ai.NewGenerator(chat, kb, ai.Options{
			ModelName:     modelName,
			CostLimit:     cfg.CostLimit,
			RatePerMinute: cfg.AICallsPerMinute,
			CacheTTL:      cfg.CacheTTL,
			CallTimeout:   cfg.AITimeout,
			Metrics:       metrics,
			Emitter:       emitter,
		})
		logger.Info("AI provider enabled", "provider", cfg.AIProvider, "model", modelName)
	} else {
		logger.Info("no AI provider configured, running scripted flow only")
	}

	dispatcher := notify.NewDispatcher(kb, cfg.WebhookURL, cfg.EmailEndpoint, logger)

	srv := server.New(server.Options{
		Config:     cfg,
		Logger:     logger,
		Engine:     engine,
		Generator:  generator,
		Store:      sessions,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Emitter:    emitter,
		Registry:   registry,
	})

	logger.Info("chatbot listening", "addr", cfg.Addr, "store", cfg.StoreDriver)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("chatbot stopped")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}

// buildChatModel instantiates the configured provider. The returned
// close function is non-nil only for providers holding a connection.
func buildChatModel(ctx context.Context, cfg *config.Config) (model.ChatModel, string, func() error, error) {
	switch cfg.AIProvider {
	case "openai":
		name := cfg.Model
		if name == "" {
			name = "gpt-4o-mini"
		}
		return openaimodel.NewChatModel(cfg.OpenAIAPIKey, name, cfg.MaxTokens, cfg.Temperature), name, nil, nil
	case "anthropic":
		name := cfg.Model
		if name == "" {
			name = "claude-3-5-haiku-latest"
		}
		return anthropicmodel.NewChatModel(cfg.AnthropicAPIKey, name, cfg.MaxTokens, cfg.Temperature), name, nil, nil
	case "google":
		name := cfg.Model
		if name == "" {
			name = "gemini-1.5-flash"
		}
		m, err := googlemodel.NewChatModel(ctx, cfg.GoogleAPIKey, name, cfg.MaxTokens, cfg.Temperature)
		if err != nil {
			return nil, "", nil, err
		}
		return m, name, m.Close, nil
	default:
		return nil, "", nil, fmt.Errorf("unknown provider %q", cfg.AIProvider)
	}
}
