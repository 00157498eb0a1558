package api

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/vidtalk-engine/internal/converter"
	"github.com/snarg/vidtalk-engine/internal/database"
	"github.com/snarg/vidtalk-engine/internal/processor"
	"github.com/snarg/vidtalk-engine/internal/storage"
	"github.com/snarg/vidtalk-engine/internal/transcribe"
)

// maxUploadMemory is the part of a multipart upload kept in memory; the rest
// spills to temp files.
const maxUploadMemory = 32 << 20

// VideoStore is the persistence the video endpoints need.
type VideoStore interface {
	CreateVideo(ctx context.Context, v *database.Video) error
	GetVideo(ctx context.Context, id string) (*database.Video, error)
	ListVideos(ctx context.Context, filter database.VideoFilter) ([]database.Video, int, error)
	DeleteVideo(ctx context.Context, id string) error
	GetTranscriptWithSegments(ctx context.Context, videoID string) (*database.TranscriptWithSegments, error)
	SearchSegments(ctx context.Context, query string, filter database.SegmentSearchFilter) ([]database.SegmentSearchHit, int, error)
}

// VideoProcessor runs and reports transcription jobs.
type VideoProcessor interface {
	Submit(ctx context.Context, videoID, sourceURL string) (<-chan processor.Result, error)
	ProcessVideo(ctx context.Context, videoID, sourceURL string) (*processor.Summary, error)
	Status(ctx context.Context, videoID string) (processor.Job, error)
}

type VideosHandler struct {
	db    VideoStore
	proc  VideoProcessor
	store storage.ObjectStore // nil disables uploads
	now   func() time.Time
	log   zerolog.Logger
}

func NewVideosHandler(db VideoStore, proc VideoProcessor, store storage.ObjectStore, log zerolog.Logger) *VideosHandler {
	return &VideosHandler{
		db:    db,
		proc:  proc,
		store: store,
		now:   time.Now,
		log:   log.With().Str("handler", "videos").Logger(),
	}
}

// Routes registers the video and transcript endpoints.
func (h *VideosHandler) Routes(r chi.Router) {
	r.Post("/videos", h.CreateVideo)
	r.Get("/videos", h.ListVideos)
	r.Get("/videos/{id}", h.GetVideo)
	r.Delete("/videos/{id}", h.DeleteVideo)
	r.Post("/videos/{id}/process", h.ProcessVideo)
	r.Get("/videos/{id}/status", h.GetStatus)
	r.Get("/videos/{id}/transcript", h.GetTranscript)
	r.Get("/transcripts/search", h.SearchTranscripts)
}

type createVideoRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Filename    string  `json:"filename"`
	URL         string  `json:"url"`
	Duration    *int    `json:"duration"`
}

// CreateVideo handles POST /api/v1/videos. It accepts either a JSON body
// naming an existing source (url) or a multipart upload with a "file" part,
// stores the video row, and starts processing.
func (h *VideosHandler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	var req createVideoRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var status int
		var err error
		req, status, err = h.upload(r, id)
		if err != nil {
			WriteError(w, status, err.Error())
			return
		}
	} else if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		WriteError(w, http.StatusBadRequest, "url or file is required")
		return
	}
	if req.Filename == "" {
		req.Filename = path.Base(req.URL)
	}
	if req.Title == "" {
		req.Title = strings.TrimSuffix(req.Filename, path.Ext(req.Filename))
	}

	v := &database.Video{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Filename:    req.Filename,
		URL:         req.URL,
		Duration:    req.Duration,
		Status:      database.VideoProcessing,
		UploadedAt:  h.now().UTC(),
	}
	if err := h.db.CreateVideo(r.Context(), v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("create video failed")
		WriteError(w, http.StatusInternalServerError, "failed to create video")
		return
	}

	if _, err := h.proc.Submit(r.Context(), v.ID, v.URL); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("video_id", v.ID).Msg("processing not started")
	}
	WriteJSON(w, http.StatusCreated, v)
}

// upload streams the "file" part to the object store under
// videos/{id}/source{ext} and returns the request it describes. Video.URL is
// the object key, which the converter resolves against the same store.
func (h *VideosHandler) upload(r *http.Request, id string) (createVideoRequest, int, error) {
	var req createVideoRequest
	if h.store == nil {
		return req, http.StatusServiceUnavailable, errors.New("uploads are not configured")
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return req, http.StatusBadRequest, errors.New("invalid multipart form: " + err.Error())
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return req, http.StatusBadRequest, errors.New("missing file part")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := "videos/" + id + "/source" + strings.ToLower(path.Ext(header.Filename))
	if err := h.store.Save(r.Context(), key, file, contentType); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("key", key).Msg("video upload failed")
		return req, http.StatusInternalServerError, errors.New("failed to store video")
	}

	req.Title = r.FormValue("title")
	if d := r.FormValue("description"); d != "" {
		req.Description = &d
	}
	req.Filename = header.Filename
	req.URL = key
	return req, 0, nil
}

// ListVideos handles GET /api/v1/videos.
func (h *VideosHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := database.VideoFilter{Limit: p.Limit, Offset: p.Offset}
	if v, ok := QueryString(r, "status"); ok {
		filter.Status = v
	}

	videos, total, err := h.db.ListVideos(r.Context(), filter)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list videos failed")
		WriteError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	if videos == nil {
		videos = []database.Video{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"videos": videos,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// GetVideo handles GET /api/v1/videos/{id}.
func (h *VideosHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadVideo(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

// DeleteVideo handles DELETE /api/v1/videos/{id}. The row, its transcripts,
// and its job go first; stored objects are removed best effort.
func (h *VideosHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadVideo(w, r)
	if !ok {
		return
	}
	if err := h.db.DeleteVideo(r.Context(), v.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "video not found")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("video_id", v.ID).Msg("delete video failed")
		WriteError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}

	if h.store != nil {
		keys := []string{converter.AudioKey(v.ID)}
		if !isRemoteURL(v.URL) {
			keys = append(keys, v.URL)
		}
		for _, key := range keys {
			if err := h.store.Delete(r.Context(), key); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Str("key", key).Msg("failed to delete stored object")
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProcessVideo handles POST /api/v1/videos/{id}/process. By default the run
// is queued and 202 returned; with ?wait=true the response is the run summary.
func (h *VideosHandler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	if wait, _ := QueryBool(r, "wait"); wait {
		summary, err := h.proc.ProcessVideo(r.Context(), v.ID, v.URL)
		if err != nil {
			writeProcessError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, summary)
		return
	}

	if _, err := h.proc.Submit(r.Context(), v.ID, v.URL); err != nil {
		writeProcessError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"videoId": v.ID,
		"status":  string(processor.StatusProcessing),
	})
}

// GetStatus handles GET /api/v1/videos/{id}/status. Ids without a video row
// are answered too, since jobs can be started over MQTT.
func (h *VideosHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.proc.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("load job status failed")
		WriteError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetTranscript handles GET /api/v1/videos/{id}/transcript.
func (h *VideosHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	t, err := h.db.GetTranscriptWithSegments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "transcript not found")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("load transcript failed")
		WriteError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if t.Segments == nil {
		t.Segments = []database.SegmentRow{}
	}
	WriteJSON(w, http.StatusOK, t)
}

// SearchTranscripts handles GET /api/v1/transcripts/search?q=.
func (h *VideosHandler) SearchTranscripts(w http.ResponseWriter, r *http.Request) {
	q, ok := QueryString(r, "q")
	if !ok {
		WriteError(w, http.StatusBadRequest, "q is required")
		return
	}
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := database.SegmentSearchFilter{Limit: p.Limit, Offset: p.Offset}
	if v, ok := QueryString(r, "videoId"); ok {
		filter.VideoID = v
	}

	hits, total, err := h.db.SearchSegments(r.Context(), q, filter)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("transcript search failed")
		WriteError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if hits == nil {
		hits = []database.SegmentSearchHit{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"results": hits,
		"total":   total,
		"limit":   p.Limit,
		"offset":  p.Offset,
	})
}

func (h *VideosHandler) loadVideo(w http.ResponseWriter, r *http.Request) (*database.Video, bool) {
	v, err := h.db.GetVideo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "video not found")
			return nil, false
		}
		hlog.FromRequest(r).Error().Err(err).Msg("load video failed")
		WriteError(w, http.StatusInternalServerError, "failed to load video")
		return nil, false
	}
	return v, true
}

// writeProcessError maps pipeline errors to HTTP statuses.
func writeProcessError(w http.ResponseWriter, err error) {
	var (
		ce *processor.ConversionError
		de *processor.DownloadError
		ie *transcribe.InferenceError
		pe *processor.PersistenceError
	)
	switch {
	case errors.Is(err, processor.ErrQueueFull):
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, processor.ErrClosed):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteErrorDetail(w, http.StatusGatewayTimeout, "processing still running", err.Error())
	case errors.As(err, &ce):
		WriteErrorDetail(w, http.StatusBadGateway, "conversion failed", err.Error())
	case errors.As(err, &de):
		WriteErrorDetail(w, http.StatusBadGateway, "audio download failed", err.Error())
	case errors.As(err, &ie):
		WriteErrorDetail(w, http.StatusBadGateway, "transcription failed", err.Error())
	case errors.As(err, &pe):
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to save results", err.Error())
	default:
		WriteErrorDetail(w, http.StatusInternalServerError, "processing failed", err.Error())
	}
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
