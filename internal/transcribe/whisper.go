package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// (speaches, faster-whisper-server, whisper.cpp server).
type WhisperClient struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

// whisperResponse is the verbose_json response. Text is a pointer so a
// missing field is reported as malformed output.
type whisperResponse struct {
	Text     *string       `json:"text"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
	Words    []whisperWord `json:"words"`
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewWhisperClient creates a new Whisper HTTP client. apiKey may be empty.
func NewWhisperClient(url, model, apiKey string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:    url,
		model:  model,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (wc *WhisperClient) Name() string { return "whisper" }

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe uploads one audio payload as multipart/form-data and requests
// word-level timestamps. Only non-default parameters are sent.
func (wc *WhisperClient) Transcribe(ctx context.Context, audio []byte, opts TranscribeOpts) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := opts.Filename
	if filename == "" {
		filename = "audio.mp3"
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, inferenceErr(wc.Name(), err, "create form file")
	}
	if _, err := part.Write(audio); err != nil {
		return nil, inferenceErr(wc.Name(), err, "copy audio data")
	}

	if wc.model != "" {
		w.WriteField("model", wc.model)
	}
	if opts.Language != "" {
		w.WriteField("language", opts.Language)
	}
	if opts.Temperature > 0 {
		w.WriteField("temperature", fmt.Sprintf("%.2f", opts.Temperature))
	}
	if opts.Prompt != "" {
		w.WriteField("prompt", opts.Prompt)
	}
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "word")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, &buf)
	if err != nil {
		return nil, inferenceErr(wc.Name(), err, "create request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if wc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+wc.apiKey)
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, inferenceErr(wc.Name(), err, "request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, inferenceErr(wc.Name(), err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, inferenceErr(wc.Name(), nil, "API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, inferenceErr(wc.Name(), err, "decode response")
	}
	if result.Text == nil {
		return nil, inferenceErr(wc.Name(), nil, "invalid response: missing text")
	}

	var words []Word
	if len(result.Words) > 0 {
		words = make([]Word, len(result.Words))
		for i, ww := range result.Words {
			words[i] = Word{Text: ww.Word, Start: ww.Start, End: ww.End}
		}
	}

	return &Response{
		Text:     *result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Words:    words,
	}, nil
}
