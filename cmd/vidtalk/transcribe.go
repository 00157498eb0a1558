package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snarg/vidtalk-engine/internal/config"
	"github.com/snarg/vidtalk-engine/internal/transcribe"
	"github.com/spf13/cobra"
)

type transcribeOutput struct {
	Text     string               `json:"text"`
	Language string               `json:"language,omitempty"`
	Chunks   int                  `json:"chunks"`
	Segments []transcribe.Segment `json:"segments"`
}

func transcribeCmd(overrides *config.Overrides) *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a local audio file and print its segments as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(overrides)
			if err != nil {
				return err
			}
			if language == "" {
				language = cfg.STTLanguage
			}

			audio, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			provider, err := transcribe.NewProvider(providerConfig(cfg))
			if err != nil {
				return err
			}
			t := transcribe.NewTranscriber(transcribe.TranscriberOptions{
				Provider:  provider,
				ChunkSize: cfg.ChunkSizeBytes,
				Opts: transcribe.TranscribeOpts{
					Language: language,
					Filename: filepath.Base(args[0]),
				},
				Log: log.With().Str("component", "transcribe").Logger(),
			})

			result, chunks, err := t.Transcribe(cmd.Context(), audio)
			if err != nil {
				return fmt.Errorf("transcribe %s: %w", args[0], err)
			}

			segments := transcribe.GroupSegments(result.Words, groupOptions(cfg))
			if segments == nil {
				segments = []transcribe.Segment{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(transcribeOutput{
				Text:     result.Text,
				Language: result.Language,
				Chunks:   chunks,
				Segments: segments,
			})
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "language hint (ISO 639-1, default STT_LANGUAGE)")
	cmd.Flags().StringVar(&overrides.STTProvider, "stt-provider", "", "speech-to-text backend (workersai, whisper, openai, deepinfra, elevenlabs)")
	return cmd
}
