package transcribe

import (
	"bytes"
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.Whisper1

// OpenAIClient transcribes through the OpenAI audio API using go-openai.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI transcription client. baseURL overrides
// the API root (e.g. "http://localhost:8000/v1") when non-empty.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return "openai" }

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string { return c.model }

// Transcribe sends one audio payload with verbose_json and word timestamps.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, opts TranscribeOpts) (*Response, error) {
	filename := opts.Filename
	if filename == "" {
		filename = "audio.mp3"
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       c.model,
		FilePath:    filename,
		Reader:      bytes.NewReader(audio),
		Prompt:      opts.Prompt,
		Temperature: float32(opts.Temperature),
		Language:    opts.Language,
		Format:      openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, inferenceErr(c.Name(), err, "create transcription")
	}

	var words []Word
	if len(resp.Words) > 0 {
		words = make([]Word, len(resp.Words))
		for i, w := range resp.Words {
			words[i] = Word{Text: w.Word, Start: w.Start, End: w.End}
		}
	}

	return &Response{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Words:    words,
	}, nil
}
