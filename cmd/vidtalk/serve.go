package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/api"
	"github.com/snarg/vidtalk-engine/internal/config"
	"github.com/snarg/vidtalk-engine/internal/converter"
	"github.com/snarg/vidtalk-engine/internal/database"
	"github.com/snarg/vidtalk-engine/internal/metrics"
	"github.com/snarg/vidtalk-engine/internal/mqttclient"
	"github.com/snarg/vidtalk-engine/internal/processor"
	"github.com/snarg/vidtalk-engine/internal/storage"
	"github.com/snarg/vidtalk-engine/internal/transcribe"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(overrides *config.Overrides) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the processing orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), overrides)
		},
	}
	cmd.Flags().StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	cmd.Flags().StringVar(&overrides.MQTTBrokerURL, "mqtt-broker", "", "MQTT broker URL (empty disables MQTT)")
	cmd.Flags().StringVar(&overrides.STTProvider, "stt-provider", "", "speech-to-text backend (workersai, whisper, openai, deepinfra, elevenlabs)")
	return cmd
}

func runServe(ctx context.Context, overrides *config.Overrides) error {
	startTime := time.Now()

	cfg, log, err := loadConfig(overrides)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	log.Info().Str("version", version).Msg("vidtalk starting")

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	// Object storage
	storeLog := log.With().Str("component", "storage").Logger()
	store, err := storage.New(cfg.S3, cfg.StorageDir, cfg.StoragePublicURL, storeLog)
	if err != nil {
		return err
	}

	// Speech-to-text
	provider, err := transcribe.NewProvider(providerConfig(cfg))
	if err != nil {
		return err
	}
	log.Info().Str("provider", provider.Name()).Str("model", provider.Model()).Msg("speech-to-text configured")
	transcriber := transcribe.NewTranscriber(transcribe.TranscriberOptions{
		Provider:  provider,
		ChunkSize: cfg.ChunkSizeBytes,
		Opts:      transcribe.TranscribeOpts{Language: cfg.STTLanguage},
		Log:       log.With().Str("component", "transcribe").Logger(),
	})

	// MQTT (optional)
	var mqtt *mqttclient.Client
	var broker api.BrokerStatus
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			return fmt.Errorf("connect to mqtt broker: %w", err)
		}
		defer mqtt.Close()
		broker = mqtt
	}

	// Orchestrator
	registry := processor.NewRegistry(processor.Options{
		Converter:   converter.NewClient(cfg.ConverterURL, cfg.ConverterTimeout),
		Downloader:  processor.NewHTTPDownloader(cfg.DownloadTimeout),
		Transcriber: transcriber,
		Gateway:     db,
		Jobs:        db,
		Grouping:    groupOptions(cfg),
		OnStatus: func(job processor.Job) {
			if mqtt == nil {
				return
			}
			if err := mqtt.PublishStatus(job.VideoID, job); err != nil {
				log.Warn().Err(err).Str("video_id", job.VideoID).Msg("failed to publish job status")
			}
		},
		Log:       log,
		QueueSize: cfg.ProcessorQueueSize,
	})

	if mqtt != nil {
		mqtt.SetProcessHandler(mqttProcessHandler(ctx, db, registry, log))
	}

	prometheus.MustRegister(metrics.NewCollector(db.Pool, registry))

	// HTTP server
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		DB:        db,
		Videos:    db,
		Processor: registry,
		Active:    registry,
		Store:     store,
		MQTT:      broker,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	log.Info().Int("active_videos", registry.Active()).Msg("waiting for in-flight runs")
	registry.Close()
	log.Info().Msg("vidtalk stopped")
	return err
}

type videoLookup interface {
	GetVideo(ctx context.Context, id string) (*database.Video, error)
}

type runSubmitter interface {
	Submit(ctx context.Context, videoID, sourceURL string) (<-chan processor.Result, error)
}

// mqttProcessHandler queues MQTT process requests for known videos. Requests
// for ids without a video row are dropped: their transcript could not be
// stored.
func mqttProcessHandler(ctx context.Context, videos videoLookup, runs runSubmitter, log zerolog.Logger) mqttclient.ProcessHandler {
	return func(req mqttclient.ProcessRequest) {
		if _, err := videos.GetVideo(ctx, req.VideoID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				log.Warn().Str("video_id", req.VideoID).Msg("mqtt process request for unknown video")
			} else {
				log.Error().Err(err).Str("video_id", req.VideoID).Msg("mqtt process request lookup failed")
			}
			return
		}
		if _, err := runs.Submit(ctx, req.VideoID, req.VideoURL); err != nil {
			log.Warn().Err(err).Str("video_id", req.VideoID).Msg("mqtt process request rejected")
		}
	}
}
