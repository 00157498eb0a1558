package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/metrics"
)

// TranscriberOptions configures a Transcriber.
type TranscriberOptions struct {
	Provider  Provider
	ChunkSize int // bytes per inference call, DefaultChunkSize if zero
	Opts      TranscribeOpts
	Log       zerolog.Logger
}

// Transcriber runs a whole audio buffer through a Provider one chunk at a
// time and merges the results.
type Transcriber struct {
	provider  Provider
	chunkSize int
	opts      TranscribeOpts
	log       zerolog.Logger
}

// NewTranscriber creates a chunking transcriber.
func NewTranscriber(opts TranscriberOptions) *Transcriber {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Transcriber{
		provider:  opts.Provider,
		chunkSize: size,
		opts:      opts.Opts,
		log:       opts.Log,
	}
}

// ChunkSize returns the configured chunk limit in bytes.
func (t *Transcriber) ChunkSize() int { return t.chunkSize }

// Transcribe splits audio, transcribes every chunk sequentially, and merges
// the responses. It returns the merged result and the number of chunks sent.
// The first failing chunk aborts the run.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (Result, int, error) {
	total := ChunkCount(len(audio), t.chunkSize)
	if total > 1 {
		t.log.Info().
			Int("bytes", len(audio)).
			Int("chunks", total).
			Msg("transcribing large file in chunks")
	}

	parts := make([]Response, 0, total)
	for chunk := range SplitChunks(audio, t.chunkSize) {
		start := time.Now()
		resp, err := t.provider.Transcribe(ctx, chunk.Data, t.opts)
		metrics.InferenceDuration.WithLabelValues(t.provider.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ChunksTranscribedTotal.WithLabelValues(t.provider.Name(), "error").Inc()
			return Result{}, chunk.Index + 1, fmt.Errorf("chunk %d/%d: %w", chunk.Index+1, total, err)
		}
		if resp == nil {
			metrics.ChunksTranscribedTotal.WithLabelValues(t.provider.Name(), "error").Inc()
			return Result{}, chunk.Index + 1, fmt.Errorf("chunk %d/%d: %w", chunk.Index+1, total,
				inferenceErr(t.provider.Name(), nil, "empty response"))
		}
		metrics.ChunksTranscribedTotal.WithLabelValues(t.provider.Name(), "ok").Inc()

		t.log.Debug().
			Int("chunk", chunk.Index+1).
			Int("chunks", total).
			Int("offset", chunk.Offset).
			Int("bytes", len(chunk.Data)).
			Int("words", len(resp.Words)).
			Dur("took", time.Since(start)).
			Msg("chunk transcribed")

		parts = append(parts, *resp)
	}

	return Merge(parts), len(parts), nil
}
