package converter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Convert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/process" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.VideoID != "v1" || req.VideoURL != "videos/v1/source.mp4" {
			t.Errorf("request = %+v", req)
		}
		io.WriteString(w, `{"success":true,"mp3Url":"https://cdn/videos/v1/audio.mp3"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 5*time.Second)
	res, err := c.Convert(context.Background(), "v1", "videos/v1/source.mp4")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !res.Success || res.AudioURL != "https://cdn/videos/v1/audio.mp3" {
		t.Errorf("result = %+v", res)
	}
}

func TestClient_FailureBodyOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"success":false,"error":"boom"}`)
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, 5*time.Second).Convert(context.Background(), "v1", "x")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Success || res.Error != "boom" {
		t.Errorf("result = %+v", res)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 5*time.Second).Convert(context.Background(), "v1", "x")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewClient(url, time.Second).Convert(context.Background(), "v1", "x"); err == nil {
		t.Error("expected error for closed server")
	}
}
