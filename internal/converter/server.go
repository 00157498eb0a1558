package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/vidtalk-engine/internal/metrics"
	"github.com/snarg/vidtalk-engine/internal/storage"
)

// Extractor turns a video file into an MP3 file.
type Extractor interface {
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
}

// HandlerOptions configures the conversion service.
type HandlerOptions struct {
	Store     storage.ObjectStore
	Extractor Extractor
	WorkDir   string // parent of per-request temp dirs, os.TempDir() if empty
	Log       zerolog.Logger
}

type handler struct {
	store     storage.ObjectStore
	extractor Extractor
	workDir   string
	log       zerolog.Logger
}

// NewHandler builds the conversion service router:
//
//	GET  /health
//	GET  /metrics
//	POST /process
//	GET  /files/videos/{id}/audio.mp3   (local storage only)
func NewHandler(opts HandlerOptions) http.Handler {
	h := &handler{
		store:     opts.Store,
		extractor: opts.Extractor,
		workDir:   opts.WorkDir,
		log:       opts.Log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(opts.Log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration_ms", dur).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/process", h.process)
	if _, ok := opts.Store.(*storage.LocalStore); ok {
		// Only derived audio is published; uploaded sources stay private.
		r.Get("/files/videos/{id}/audio.mp3", h.audio)
	}
	return r
}

// audio serves the extracted MP3 of a video from local storage, at the
// address LocalStore.URL hands out for AudioKey.
func (h *handler) audio(w http.ResponseWriter, r *http.Request) {
	rc, err := h.store.Open(r.Context(), AudioKey(chi.URLParam(r, "id")))
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("open audio failed")
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := io.Copy(w, rc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("audio response interrupted")
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	ffmpegOK := true
	if f, ok := h.extractor.(*FFmpeg); ok && !f.Available() {
		ffmpegOK = false
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"ffmpeg":  ffmpegOK,
		"storage": h.store.Type(),
	})
}

func (h *handler) process(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, Result{Error: "invalid request body"})
		return
	}
	if req.VideoID == "" || req.VideoURL == "" {
		writeResult(w, http.StatusBadRequest, Result{Error: "missing videoId or videoUrl"})
		return
	}

	start := time.Now()
	log := hlog.FromRequest(r).With().Str("video_id", req.VideoID).Logger()

	audioURL, err := h.convert(r.Context(), req, log)
	metrics.ConversionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("conversion failed")
		writeResult(w, http.StatusInternalServerError, Result{Error: err.Error()})
		return
	}
	metrics.ConversionsTotal.WithLabelValues("ok").Inc()

	log.Info().Str("audio_url", audioURL).Dur("took", time.Since(start)).Msg("conversion complete")
	writeResult(w, http.StatusOK, Result{Success: true, AudioURL: audioURL})
}

// convert downloads the source object, extracts its audio, and uploads the MP3.
func (h *handler) convert(ctx context.Context, req Request, log zerolog.Logger) (string, error) {
	tempDir, err := os.MkdirTemp(h.workDir, "convert-*")
	if err != nil {
		return "", fmt.Errorf("create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	key := SourceKey(req.VideoURL)
	log.Info().Str("key", key).Msg("downloading source video")
	videoPath := filepath.Join(tempDir, "input"+filepath.Ext(key))
	if err := h.download(ctx, key, videoPath); err != nil {
		return "", fmt.Errorf("download video: %w", err)
	}

	log.Info().Msg("extracting audio")
	mp3Path := filepath.Join(tempDir, "output.mp3")
	if err := h.extractor.ExtractAudio(ctx, videoPath, mp3Path); err != nil {
		return "", fmt.Errorf("convert video: %w", err)
	}

	f, err := os.Open(mp3Path)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	audioKey := AudioKey(req.VideoID)
	if err := h.store.Save(ctx, audioKey, f, "audio/mpeg"); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	audioURL, err := h.store.URL(ctx, audioKey)
	if err != nil {
		return "", fmt.Errorf("audio url: %w", err)
	}
	return audioURL, nil
}

func (h *handler) download(ctx context.Context, key, dst string) error {
	rc, err := h.store.Open(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// AudioKey is where the extracted audio of a video is stored.
func AudioKey(videoID string) string {
	return "videos/" + videoID + "/audio.mp3"
}

// SourceKey maps the videoUrl of a request to an object key. Bare keys pass
// through; for URLs the key is the path from its "videos" segment on, or the
// whole path when there is none.
func SourceKey(videoURL string) string {
	if !strings.HasPrefix(videoURL, "http://") && !strings.HasPrefix(videoURL, "https://") {
		return strings.TrimPrefix(videoURL, "/")
	}
	u, err := url.Parse(videoURL)
	if err != nil {
		return videoURL
	}
	p := strings.TrimPrefix(u.Path, "/")
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if part == "videos" && i < len(parts)-1 {
			return strings.Join(parts[i:], "/")
		}
	}
	return p
}

func writeResult(w http.ResponseWriter, status int, res Result) {
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
