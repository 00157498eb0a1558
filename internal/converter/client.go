package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is the body of POST /process.
type Request struct {
	VideoID  string `json:"videoId"`
	VideoURL string `json:"videoUrl"` // object key or a URL containing /videos/...
}

// Result is the conversion service reply.
type Result struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"mp3Url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Client calls a conversion service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a conversion service client. Conversions of long videos
// take minutes, so timeout should be generous.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Convert asks the service to extract audio for a video. A reply body is
// decoded whatever the status code, since the service reports failures as
// {"success":false,"error":...} with a 4xx/5xx status. An error is returned
// only when the service could not be reached or replied with something that
// is not a Result.
func (c *Client) Convert(ctx context.Context, videoID, sourceURL string) (*Result, error) {
	body, err := json.Marshal(Request{VideoID: videoID, VideoURL: sourceURL})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("converter returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
