package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/config"
	"github.com/snarg/vidtalk-engine/internal/transcribe"
	"github.com/spf13/cobra"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var overrides config.Overrides

	root := &cobra.Command{
		Use:           "vidtalk",
		Short:         "Video transcription pipeline",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	root.PersistentFlags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd(&overrides))
	root.AddCommand(converterCmd(&overrides))
	root.AddCommand(transcribeCmd(&overrides))
	return root
}

// loadConfig reads config and builds the process logger.
func loadConfig(overrides *config.Overrides) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(*overrides)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

func newLogger(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
}

// providerConfig maps config onto the speech-to-text backend settings.
// Workers AI authenticates with the Cloudflare API token.
func providerConfig(cfg *config.Config) transcribe.ProviderConfig {
	pc := transcribe.ProviderConfig{
		Provider:  cfg.STTProvider,
		Model:     cfg.STTModel,
		URL:       cfg.STTURL,
		APIKey:    cfg.STTAPIKey,
		AccountID: cfg.CFAccountID,
		Keyterms:  cfg.STTKeyterms,
		Timeout:   cfg.STTTimeout,
	}
	if cfg.STTProvider == "" || cfg.STTProvider == "workersai" {
		pc.APIKey = cfg.CFAPIToken
	}
	return pc
}

func groupOptions(cfg *config.Config) transcribe.GroupOptions {
	return transcribe.GroupOptions{
		MaxWords:    cfg.SegmentMaxWords,
		MaxDuration: cfg.SegmentMaxDuration,
	}
}
