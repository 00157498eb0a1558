package processor

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/snarg/vidtalk-engine/internal/metrics"
)

// HTTPDownloader fetches converted audio with a plain GET.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates a downloader with the given overall timeout.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{client: &http.Client{Timeout: timeout}}
}

// Download returns the whole response body. Any failure is a *DownloadError.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL string) ([]byte, error) {
	shown := redactURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: shown, Err: err}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: shown, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &DownloadError{URL: shown, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownloadError{URL: shown, Err: err}
	}
	metrics.AudioBytesDownloaded.Add(float64(len(data)))
	return data, nil
}

// redactURL drops the query string, which holds the signature of presigned URLs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}
