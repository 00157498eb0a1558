package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/converter"
	"github.com/snarg/vidtalk-engine/internal/database"
	"github.com/snarg/vidtalk-engine/internal/transcribe"
)

// fakeConverter returns a fixed result. With gate set, each call signals
// started and then blocks until gate yields or is closed.
type fakeConverter struct {
	res     *converter.Result
	err     error
	gate    chan struct{}
	started chan string

	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32
}

func (f *fakeConverter) Convert(_ context.Context, videoID, _ string) (*converter.Result, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if f.started != nil {
		f.started <- videoID
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &converter.Result{Success: true, AudioURL: "https://cdn.test/videos/" + videoID + "/audio.mp3"}, nil
}

type fakeDownloader struct {
	data []byte
	err  error
	urls []string
	mu   sync.Mutex
}

func (f *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

// fakeProvider returns one canned response per call, in order.
type fakeProvider struct {
	mu        sync.Mutex
	responses []transcribe.Response
	err       error
	calls     int
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake" }

func (f *fakeProvider) Transcribe(context.Context, []byte, transcribe.TranscribeOpts) (*transcribe.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if i < len(f.responses) {
		r := f.responses[i]
		return &r, nil
	}
	return &transcribe.Response{}, nil
}

// fakeGateway is an in-memory persistence gateway.
type fakeGateway struct {
	mu          sync.Mutex
	videos      map[string]*database.Video
	transcripts []database.TranscriptRow
	segments    []database.SegmentRow
	updates     []string // "id:status"

	transcriptErr error
	segmentErr    error

	// deleteAfterTranscript removes the video row once its transcript is
	// written, as a concurrent DELETE would.
	deleteAfterTranscript bool
}

func newFakeGateway(videoIDs ...string) *fakeGateway {
	g := &fakeGateway{videos: make(map[string]*database.Video)}
	for _, id := range videoIDs {
		g.videos[id] = &database.Video{ID: id, Status: database.VideoProcessing}
	}
	return g
}

func (g *fakeGateway) CreateTranscript(_ context.Context, t *database.TranscriptRow) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.transcriptErr != nil {
		return g.transcriptErr
	}
	// transcripts.video_id references videos(id)
	if _, ok := g.videos[t.VideoID]; !ok {
		return fmt.Errorf("insert transcript: video %q violates foreign key", t.VideoID)
	}
	g.transcripts = append(g.transcripts, *t)
	if g.deleteAfterTranscript {
		delete(g.videos, t.VideoID)
	}
	return nil
}

func (g *fakeGateway) CreateTranscriptSegment(_ context.Context, s *database.SegmentRow) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.segmentErr != nil {
		return g.segmentErr
	}
	g.segments = append(g.segments, *s)
	return nil
}

func (g *fakeGateway) UpdateVideoStatus(_ context.Context, id, status string, processedAt *time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.videos[id]
	if !ok {
		return database.ErrNotFound
	}
	v.Status = status
	if processedAt != nil {
		v.ProcessedAt = processedAt
	}
	g.updates = append(g.updates, id+":"+status)
	return nil
}

func (g *fakeGateway) GetVideo(_ context.Context, id string) (*database.Video, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.videos[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (g *fakeGateway) video(id string) database.Video {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.videos[id]
}

// memJobs is an in-memory JobStore that also records every saved status.
type memJobs struct {
	mu      sync.Mutex
	rows    map[string]database.JobRow
	history []Status
	saveErr error
}

func newMemJobs() *memJobs {
	return &memJobs{rows: make(map[string]database.JobRow)}
}

func (m *memJobs) LoadJob(_ context.Context, id string) (*database.JobRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memJobs) SaveJob(_ context.Context, j *database.JobRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rows[j.VideoID] = *j
	m.history = append(m.history, Status(j.Status))
	return nil
}

func (m *memJobs) statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Status(nil), m.history...)
}

type testEnv struct {
	conv     *fakeConverter
	dl       *fakeDownloader
	provider *fakeProvider
	gw       *fakeGateway
	jobs     *memJobs
	reg      *Registry
}

// newTestEnv builds a registry whose transcriber splits at 100 bytes.
func newTestEnv(videoIDs ...string) *testEnv {
	env := &testEnv{
		conv:     &fakeConverter{},
		dl:       &fakeDownloader{data: make([]byte, 50)},
		provider: &fakeProvider{},
		gw:       newFakeGateway(videoIDs...),
		jobs:     newMemJobs(),
	}
	var seq atomic.Int64
	env.reg = NewRegistry(Options{
		Converter:  env.conv,
		Downloader: env.dl,
		Transcriber: transcribe.NewTranscriber(transcribe.TranscriberOptions{
			Provider:  env.provider,
			ChunkSize: 100,
			Log:       zerolog.Nop(),
		}),
		Gateway:   env.gw,
		Jobs:      env.jobs,
		Grouping:  transcribe.DefaultGroupOptions(),
		Log:       zerolog.Nop(),
		QueueSize: 4,
		NewID:     func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
	})
	return env
}
