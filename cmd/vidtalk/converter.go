package main

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/vidtalk-engine/internal/config"
	"github.com/snarg/vidtalk-engine/internal/converter"
	"github.com/snarg/vidtalk-engine/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func converterCmd(overrides *config.Overrides) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "converter",
		Short: "Run the video-to-audio conversion service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConverter(cmd.Context(), overrides)
		},
	}
	cmd.Flags().StringVar(&overrides.ConverterAddr, "listen", "", "HTTP listen address (default :8081)")
	return cmd
}

func runConverter(ctx context.Context, overrides *config.Overrides) error {
	cfg, log, err := loadConfig(overrides)
	if err != nil {
		return err
	}
	log = log.With().Str("component", "converter").Logger()
	log.Info().Str("version", version).Msg("conversion service starting")

	store, err := storage.New(cfg.S3, cfg.StorageDir, cfg.StoragePublicURL, log)
	if err != nil {
		return err
	}

	ffmpeg := converter.NewFFmpeg(cfg.FFmpegPath)
	if !ffmpeg.Available() {
		log.Warn().Str("path", cfg.FFmpegPath).Msg("ffmpeg not found, conversions will fail")
	}

	srv := &http.Server{
		Addr: cfg.ConverterAddr,
		Handler: converter.NewHandler(converter.HandlerOptions{
			Store:     store,
			Extractor: ffmpeg,
			WorkDir:   cfg.WorkDir,
			Log:       log,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.ConverterTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("storage", store.Type()).Msg("http server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	log.Info().Msg("conversion service stopped")
	return err
}
