package converter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/storage"
)

// fakeExtractor copies the input and prefixes it so the test can see it ran.
type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, in, out string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte("mp3:"), data...), 0o644)
}

func newTestServer(t *testing.T, ex Extractor) (*httptest.Server, *storage.LocalStore) {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir(), "http://files.test/files")
	srv := httptest.NewServer(NewHandler(HandlerOptions{
		Store:     store,
		Extractor: ex,
		WorkDir:   t.TempDir(),
		Log:       zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

func postProcess(t *testing.T, url, body string) (int, Result) {
	t.Helper()
	resp, err := http.Post(url+"/process", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /process: %v", err)
	}
	defer resp.Body.Close()
	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, res
}

func TestServer_Process(t *testing.T) {
	ex := &fakeExtractor{}
	srv, store := newTestServer(t, ex)
	ctx := context.Background()
	if err := store.Save(ctx, "videos/v1/source.mp4", strings.NewReader("VIDEO"), "video/mp4"); err != nil {
		t.Fatal(err)
	}

	status, res := postProcess(t, srv.URL, `{"videoId":"v1","videoUrl":"https://pub.r2.dev/videos/v1/source.mp4"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, result = %+v", status, res)
	}
	if !res.Success || res.AudioURL != "http://files.test/files/videos/v1/audio.mp3" {
		t.Errorf("result = %+v", res)
	}

	rc, err := store.Open(ctx, AudioKey("v1"))
	if err != nil {
		t.Fatalf("audio not stored: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "mp3:VIDEO" {
		t.Errorf("stored audio = %q", data)
	}

	// The stored audio is served under /files.
	resp, err := http.Get(srv.URL + "/files/videos/v1/audio.mp3")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "mp3:VIDEO" {
		t.Errorf("GET /files = %d %q", resp.StatusCode, body)
	}
}

func TestServer_FilesServesOnlyAudio(t *testing.T) {
	srv, store := newTestServer(t, &fakeExtractor{})
	ctx := context.Background()
	store.Save(ctx, "videos/v1/source.mp4", strings.NewReader("VIDEO"), "video/mp4")
	store.Save(ctx, "videos/v1/audio.mp3", strings.NewReader("MP3"), "audio/mpeg")

	tests := []struct {
		path string
		want int
	}{
		{"/files/videos/v1/audio.mp3", http.StatusOK},
		{"/files/videos/v1/source.mp4", http.StatusNotFound},
		{"/files/videos/v1/", http.StatusNotFound},
		{"/files/videos/v2/audio.mp3", http.StatusNotFound},
		{"/files/videos/..%2Fv1/audio.mp3", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusOK && resp.Header.Get("Content-Type") != "audio/mpeg" {
				t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestServer_ProcessErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		extractErr error
		wantStatus int
		wantErr    string
	}{
		{"bad_json", `{`, nil, http.StatusBadRequest, "invalid request body"},
		{"missing_fields", `{"videoId":"v1"}`, nil, http.StatusBadRequest, "missing videoId or videoUrl"},
		{"missing_source", `{"videoId":"v2","videoUrl":"videos/v2/none.mp4"}`, nil, http.StatusInternalServerError, "download video"},
		{"ffmpeg_fails", `{"videoId":"v1","videoUrl":"videos/v1/source.mp4"}`, errors.New("exit status 1"), http.StatusInternalServerError, "convert video"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t, &fakeExtractor{err: tt.extractErr})
			store.Save(context.Background(), "videos/v1/source.mp4", strings.NewReader("VIDEO"), "video/mp4")

			status, res := postProcess(t, srv.URL, tt.body)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if res.Success {
				t.Error("Success = true, want false")
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("Error = %q, want it to contain %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" || body["storage"] != "local" {
		t.Errorf("body = %v", body)
	}
}

func TestSourceKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"videos/v1/source.mp4", "videos/v1/source.mp4"},
		{"/videos/v1/source.mp4", "videos/v1/source.mp4"},
		{"https://pub-abc.r2.dev/videos/v1/source.mp4", "videos/v1/source.mp4"},
		{"https://host/bucket/videos/v1/source.mp4?X-Amz-Signature=abc", "videos/v1/source.mp4"},
		{"https://host/uploads/clip.mp4", "uploads/clip.mp4"},
		{"https://host/videos", "videos"},
	}
	for _, tt := range tests {
		if got := SourceKey(tt.in); got != tt.want {
			t.Errorf("SourceKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFFmpegArgs(t *testing.T) {
	got := strings.Join(ffmpegArgs("in.mp4", "out.mp3"), " ")
	want := "-i in.mp4 -vn -acodec libmp3lame -ab 128k -ar 44100 -y out.mp3"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestLastLines(t *testing.T) {
	if got := lastLines("a\nb\nc\n", 2); got != "b | c" {
		t.Errorf("lastLines = %q", got)
	}
}
