package processor

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/converter"
	"github.com/snarg/vidtalk-engine/internal/database"
	"github.com/snarg/vidtalk-engine/internal/metrics"
	"github.com/snarg/vidtalk-engine/internal/transcribe"
)

// defaultLanguage is stored when the provider does not report one.
const defaultLanguage = "en"

// Converter extracts the audio track of a video.
type Converter interface {
	Convert(ctx context.Context, videoID, sourceURL string) (*converter.Result, error)
}

// Downloader fetches the converted audio.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Transcriber runs a whole audio file through speech-to-text. It returns the
// merged result and the number of chunks sent.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (transcribe.Result, int, error)
}

// Gateway persists transcripts and video state. GetVideo and
// UpdateVideoStatus return database.ErrNotFound for unknown videos.
type Gateway interface {
	CreateTranscript(ctx context.Context, t *database.TranscriptRow) error
	CreateTranscriptSegment(ctx context.Context, s *database.SegmentRow) error
	UpdateVideoStatus(ctx context.Context, videoID, status string, processedAt *time.Time) error
	GetVideo(ctx context.Context, id string) (*database.Video, error)
}

// Summary describes a completed run.
type Summary struct {
	VideoID          string `json:"videoId"`
	TranscriptID     string `json:"transcriptId"`
	AudioURL         string `json:"audioUrl"`
	ChunkCount       int    `json:"chunkCount"`
	WordCount        int    `json:"wordCount"`
	TranscriptLength int    `json:"transcriptLength"`
	SegmentCount     int    `json:"segmentCount"`
}

// Result is the outcome of one submitted run.
type Result struct {
	Summary *Summary
	Err     error
}

type request struct {
	ctx       context.Context
	sourceURL string
	reply     chan Result
}

// Processor owns the processing of one video. Its goroutine runs submitted
// requests one at a time in submission order.
type Processor struct {
	videoID string
	opts    *Options
	log     zerolog.Logger

	inbox chan request
	ready chan struct{} // closed once the persisted job has been loaded

	pending int // guarded by Registry.mu
}

func newProcessor(videoID string, opts *Options) *Processor {
	return &Processor{
		videoID: videoID,
		opts:    opts,
		log:     opts.Log.With().Str("video_id", videoID).Logger(),
		inbox:   make(chan request, opts.QueueSize),
		ready:   make(chan struct{}),
	}
}

// run loads the persisted job, then drains the inbox until the registry
// closes it.
func (p *Processor) run(r *Registry) {
	defer r.wg.Done()

	p.loadJob()
	close(p.ready)

	for req := range p.inbox {
		summary, err := p.process(req.ctx, req.sourceURL)
		req.reply <- Result{Summary: summary, Err: err}
		r.done(p)
	}
}

func (p *Processor) loadJob() {
	row, err := p.opts.Jobs.LoadJob(context.Background(), p.videoID)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to load processing job")
		return
	}
	if row != nil && Status(row.Status) == StatusProcessing {
		p.log.Warn().Msg("previous run was interrupted, restarting")
	}
}

// process runs the whole pipeline once. Every failure after the initial job
// write is recorded on the job and the video before it is returned.
func (p *Processor) process(ctx context.Context, sourceURL string) (*Summary, error) {
	wall := time.Now()
	start := p.opts.Now()
	metrics.JobsStartedTotal.Inc()
	defer func() {
		metrics.JobDuration.Observe(time.Since(wall).Seconds())
	}()

	job := Job{
		Status:    StatusProcessing,
		VideoID:   p.videoID,
		SourceURL: sourceURL,
		StartedAt: &start,
	}
	if err := p.saveJob(ctx, job); err != nil {
		metrics.JobsFinishedTotal.WithLabelValues(string(StatusFailed)).Inc()
		p.log.Error().Err(err).Msg("failed to record processing start")
		return nil, err
	}
	p.log.Info().Str("source_url", sourceURL).Msg("processing started")

	summary, err := p.pipeline(ctx, sourceURL)
	if err != nil {
		p.fail(ctx, job, err)
		metrics.JobsFinishedTotal.WithLabelValues(string(StatusFailed)).Inc()
		return nil, err
	}

	completedAt := p.opts.Now()
	if err := p.markVideo(ctx, database.VideoCompleted, &completedAt); err != nil {
		p.fail(ctx, job, err)
		metrics.JobsFinishedTotal.WithLabelValues(string(StatusFailed)).Inc()
		return nil, err
	}

	job.Status = StatusCompleted
	job.CompletedAt = &completedAt
	job.AudioURL = summary.AudioURL
	if err := p.saveJob(ctx, job); err != nil {
		p.fail(ctx, job, err)
		metrics.JobsFinishedTotal.WithLabelValues(string(StatusFailed)).Inc()
		return nil, err
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(StatusCompleted)).Inc()
	p.log.Info().
		Int("chunks", summary.ChunkCount).
		Int("words", summary.WordCount).
		Int("segments", summary.SegmentCount).
		Dur("took", time.Since(wall)).
		Msg("processing completed")
	return summary, nil
}

// pipeline converts, downloads, transcribes, and stores the transcript.
func (p *Processor) pipeline(ctx context.Context, sourceURL string) (*Summary, error) {
	audioURL, err := p.convert(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	p.log.Info().Str("audio_url", redactURL(audioURL)).Msg("conversion complete")

	audio, err := p.opts.Downloader.Download(ctx, audioURL)
	if err != nil {
		var de *DownloadError
		if !errors.As(err, &de) {
			err = &DownloadError{URL: redactURL(audioURL), Err: err}
		}
		return nil, err
	}
	p.log.Info().Int("bytes", len(audio)).Msg("audio downloaded")

	result, chunks, err := p.opts.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}
	p.log.Info().Int("chunks", chunks).Int("words", len(result.Words)).Msg("transcription complete")

	language := result.Language
	if language == "" {
		language = defaultLanguage
	}
	transcript := &database.TranscriptRow{
		ID:        p.opts.NewID(),
		VideoID:   p.videoID,
		Content:   result.Text,
		Language:  language,
		CreatedAt: p.opts.Now(),
	}
	if err := p.opts.Gateway.CreateTranscript(ctx, transcript); err != nil {
		return nil, &PersistenceError{Op: "create transcript", Err: err}
	}

	segments := transcribe.GroupSegments(result.Words, p.opts.Grouping)
	for _, seg := range segments {
		row := &database.SegmentRow{
			ID:           p.opts.NewID(),
			TranscriptID: transcript.ID,
			Text:         seg.Text,
			StartTime:    seg.StartTime,
			EndTime:      seg.EndTime,
			Order:        seg.Order,
		}
		if err := p.opts.Gateway.CreateTranscriptSegment(ctx, row); err != nil {
			return nil, &PersistenceError{Op: "create transcript segment", Err: err}
		}
	}

	return &Summary{
		VideoID:          p.videoID,
		TranscriptID:     transcript.ID,
		AudioURL:         audioURL,
		ChunkCount:       chunks,
		WordCount:        len(result.Words),
		TranscriptLength: utf8.RuneCountInString(result.Text),
		SegmentCount:     len(segments),
	}, nil
}

func (p *Processor) convert(ctx context.Context, sourceURL string) (string, error) {
	res, err := p.opts.Converter.Convert(ctx, p.videoID, sourceURL)
	if err != nil {
		return "", &ConversionError{VideoID: p.videoID, Msg: "conversion request failed", Err: err}
	}
	if res == nil || !res.Success {
		msg := "conversion failed"
		if res != nil && res.Error != "" {
			msg = res.Error
		}
		return "", &ConversionError{VideoID: p.videoID, Msg: msg}
	}
	if res.AudioURL == "" {
		return "", &ConversionError{VideoID: p.videoID, Msg: "conversion returned no audio URL"}
	}
	return res.AudioURL, nil
}

// fail records cause on the job and the video. Errors while recording are
// logged; cause is what the caller sees.
func (p *Processor) fail(ctx context.Context, job Job, cause error) {
	failedAt := p.opts.Now()
	job.Status = StatusFailed
	job.Error = cause.Error()
	job.FailedAt = &failedAt
	job.CompletedAt = nil

	p.log.Error().Err(cause).Msg("processing failed")

	if err := p.saveJob(ctx, job); err != nil {
		p.log.Error().Err(err).Msg("failed to record job failure")
	}
	if err := p.markVideo(ctx, database.VideoFailed, nil); err != nil {
		p.log.Error().Err(err).Msg("failed to mark video failed")
	}
}

// markVideo updates the video row when it exists. A job can run for an id
// with no video row, in which case this is a no-op.
func (p *Processor) markVideo(ctx context.Context, status string, processedAt *time.Time) error {
	if _, err := p.opts.Gateway.GetVideo(ctx, p.videoID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			p.log.Debug().Str("status", status).Msg("no video row, skipping status update")
			return nil
		}
		return &PersistenceError{Op: "get video", Err: err}
	}
	err := p.opts.Gateway.UpdateVideoStatus(ctx, p.videoID, status, processedAt)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return &PersistenceError{Op: "update video status", Err: err}
	}
	return nil
}

func (p *Processor) saveJob(ctx context.Context, job Job) error {
	if err := p.opts.Jobs.SaveJob(ctx, job.row()); err != nil {
		return &PersistenceError{Op: "save job", Err: err}
	}
	if p.opts.OnStatus != nil {
		p.opts.OnStatus(job)
	}
	return nil
}
