package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID_Generated(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestID(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	first := rec.Header().Get("X-Request-ID")
	if first == "" {
		t.Fatal("no X-Request-ID on response")
	}

	rec = httptest.NewRecorder()
	RequestID(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if second := rec.Header().Get("X-Request-ID"); second == first {
		t.Errorf("two requests share id %q", first)
	}
}

func TestRequestID_CallerSupplied(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "upload-42")
	RequestID(okHandler).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "upload-42" {
		t.Errorf("X-Request-ID = %q, want upload-42", got)
	}
}

func TestLogger_TagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := RequestID(Logger(zerolog.New(&buf))(okHandler))

	req := httptest.NewRequest("GET", "/api/v1/videos", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("access log is not JSON: %v (%q)", err, buf.String())
	}
	if line["request_id"] != "trace-me" {
		t.Errorf("request_id = %v", line["request_id"])
	}
	if line["path"] != "/api/v1/videos" {
		t.Errorf("path = %v", line["path"])
	}
}

func TestCORS(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	CORS(inner).ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/v1/videos", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if called {
		t.Error("preflight reached the handler")
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Errorf("Access-Control-Expose-Headers = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Error("DELETE not allowed cross-origin")
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		query  string
		want   int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"valid", "s3cret", "Bearer s3cret", "", http.StatusOK},
		{"wrong_token", "s3cret", "Bearer nope", "", http.StatusUnauthorized},
		{"missing", "s3cret", "", "", http.StatusUnauthorized},
		{"basic_scheme", "s3cret", "Basic czNjcmV0", "", http.StatusUnauthorized},
		{"query_token_not_accepted", "s3cret", "", "?token=s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/videos"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			BearerAuth(tt.token)(okHandler).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			if !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer") {
				t.Errorf("WWW-Authenticate = %q", rec.Header().Get("WWW-Authenticate"))
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error != "unauthorized" {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestRecoverer(t *testing.T) {
	panicker := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	})
	rec := httptest.NewRecorder()
	Recoverer(panicker).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Error != "internal server error" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestRecoverer_AbortHandlerPropagates(t *testing.T) {
	aborter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})
	defer func() {
		if rv := recover(); rv != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rv)
		}
	}()
	Recoverer(aborter).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}
