package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sketchpilot-dev/sketchpilot/internal/config"
	"github.com/sketchpilot-dev/sketchpilot/internal/followup"
	"github.com/sketchpilot-dev/sketchpilot/internal/metrics"
	"github.com/sketchpilot-dev/sketchpilot/internal/promptctx"
	"github.com/sketchpilot-dev/sketchpilot/internal/provider"
	"github.com/sketchpilot-dev/sketchpilot/internal/server"
	"github.com/sketchpilot-dev/sketchpilot/internal/session"
	"github.com/sketchpilot-dev/sketchpilot/internal/transport"
	apperrors "github.com/sketchpilot-dev/sketchpilot/pkg/errors"
)

const defaultConfigPath = "config/sketchpilot.yaml"

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var (
		configPath string
		verbosity  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon",
		Long: `Run the agent daemon.

The daemon exposes session management and the per-room event stream over HTTP,
and serves prometheus metrics on /metrics.

Examples:
  sketchpilot serve
  sketchpilot serve --config /etc/sketchpilot/config.yaml -v 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, verbosity)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to the configuration file")
	cmd.Flags().IntVarP(&verbosity, "verbosity", "v", 0, "Log verbosity level")

	return cmd
}

func runServe(ctx context.Context, configPath string, verbosity int) error {
	log := newLogger(verbosity)

	cfg, err := loadConfiguration(configPath, log)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, configPath, err)
	}
	if cfg.Provider.Name == "ndjson" {
		return fmt.Errorf("the ndjson provider reads a local stream; use the run command")
	}

	log.Info("Starting sketchpilot daemon",
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	providers := provider.NewRegistry()
	if err := registerProviders(providers, cfg); err != nil {
		return err
	}

	var store *followup.Store
	if cfg.Followup.StorePath != "" {
		store, err = followup.OpenStore(cfg.Followup.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open follow-up store: %w", err)
		}
		log.Info("Durable follow-up store opened", "path", cfg.Followup.StorePath)
	}

	hub := transport.NewHub()
	rooms := server.NewRoomRegistry()
	builder := promptctx.NewDefaultBuilder(rooms)
	runner := session.NewRunner(cfg, hub, providers, builder, rooms, store, m, log)

	srv := server.New(cfg, hub, runner, rooms, registry, log)
	httpServer := srv.HTTPServer()

	go func() {
		log.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "HTTP server error")
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info("Shutdown signal received, gracefully stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	if err := hub.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("hub close: %w", err))
	}
	if store != nil {
		if err := store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("store close: %w", err))
		}
	}

	log.Info("Shutdown complete")
	return result.ErrorOrNil()
}

func registerProviders(providers *provider.Registry, cfg *config.Config) error {
	switch cfg.Provider.Name {
	case "anthropic":
		return providers.Register(provider.NewAnthropicProvider(cfg.Provider.APIKey, cfg.Provider.Model, cfg.Provider.MaxTokens))
	case "openai":
		return providers.Register(provider.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.Model, cfg.Provider.MaxTokens))
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func loadConfiguration(configPath string, log logr.Logger) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Info("Config file not found, using defaults", "path", configPath)
		cfg := config.DefaultConfig()
		if cfg.Provider.APIKeyEnv != "" {
			cfg.Provider.APIKey = os.Getenv(cfg.Provider.APIKeyEnv)
		}

		if err := config.SaveConfig(cfg, configPath); err != nil {
			log.Info("Could not save default config", "path", configPath, "err", err.Error())
		} else {
			log.Info("Default configuration saved", "path", configPath)
		}
		return cfg, nil
	}
	return config.LoadConfig(configPath)
}
