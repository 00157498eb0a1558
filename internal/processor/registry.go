package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/transcribe"
)

// Options wires the collaborators shared by every Processor.
type Options struct {
	Converter   Converter
	Downloader  Downloader
	Transcriber Transcriber
	Gateway     Gateway
	Jobs        JobStore
	Grouping    transcribe.GroupOptions

	// OnStatus, if set, is called after every job write (e.g. to publish
	// status events). It runs on the processor goroutine and must not block.
	OnStatus func(Job)

	Log       zerolog.Logger
	QueueSize int              // runs that may wait per video, minimum 1
	Now       func() time.Time // defaults to time.Now
	NewID     func() string    // defaults to uuid.NewString
}

// Registry maps video ids to their Processor. Processors are created on the
// first submission for an id and dropped once their inbox drains; runs for
// different videos proceed in parallel.
type Registry struct {
	opts *Options

	mu     sync.Mutex
	procs  map[string]*Processor
	closed bool
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. Converter, Downloader, Transcriber,
// Gateway, and Jobs are required.
func NewRegistry(opts Options) *Registry {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	opts.Log = opts.Log.With().Str("component", "processor").Logger()
	return &Registry{
		opts:  &opts,
		procs: make(map[string]*Processor),
	}
}

// Submit queues a run for videoID and returns a channel that receives its
// result. A run already in flight for the same video is not interrupted; the
// new one waits behind it. The run ignores cancellation of ctx.
func (r *Registry) Submit(ctx context.Context, videoID, sourceURL string) (<-chan Result, error) {
	if videoID == "" {
		return nil, fmt.Errorf("video id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	p := r.procs[videoID]
	if p == nil {
		p = newProcessor(videoID, r.opts)
		r.procs[videoID] = p
		r.wg.Add(1)
		go p.run(r)
	}

	reply := make(chan Result, 1)
	select {
	case p.inbox <- request{ctx: context.WithoutCancel(ctx), sourceURL: sourceURL, reply: reply}:
		p.pending++
		return reply, nil
	default:
		return nil, ErrQueueFull
	}
}

// ProcessVideo runs the pipeline for a video and waits for the outcome. If
// ctx ends first ProcessVideo returns ctx.Err() and the run carries on.
func (r *Registry) ProcessVideo(ctx context.Context, videoID, sourceURL string) (*Summary, error) {
	reply, err := r.Submit(ctx, videoID, sourceURL)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Summary, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns the persisted job of a video, or a job with status idle
// when nothing has been persisted. It waits for a live processor's initial
// load but never for queued runs.
func (r *Registry) Status(ctx context.Context, videoID string) (Job, error) {
	r.mu.Lock()
	p := r.procs[videoID]
	r.mu.Unlock()

	if p != nil {
		select {
		case <-p.ready:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}

	row, err := r.opts.Jobs.LoadJob(ctx, videoID)
	if err != nil {
		return Job{}, fmt.Errorf("load job: %w", err)
	}
	return jobFromRow(row), nil
}

// Active returns the number of videos with a run queued or in flight.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// Close stops accepting submissions, lets queued runs finish, and waits for
// every processor goroutine to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	r.opts.Log.Info().Msg("processor registry stopped")
}

// done is called by a processor after each run. The last pending run closes
// the inbox, which ends the processor goroutine.
func (r *Registry) done(p *Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.pending--
	if p.pending == 0 {
		delete(r.procs, p.videoID)
		close(p.inbox)
	}
}
