package transcribe

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

const (
	workersAIBaseURL      = "https://api.cloudflare.com/client/v4/accounts/"
	defaultWorkersAIModel = "@cf/openai/whisper"
)

// WorkersAIClient calls Cloudflare Workers AI speech recognition models.
// POST {base}/{account_id}/ai/run/{model} with the raw audio as the body.
type WorkersAIClient struct {
	baseURL   string
	accountID string
	apiToken  string
	model     string
	client    *http.Client
}

// workersAIEnvelope is the standard Cloudflare API response wrapper.
type workersAIEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

// workersAIResult is the whisper model output. Text is a pointer so a
// missing field can be told apart from an empty transcription.
type workersAIResult struct {
	Text      *string         `json:"text"`
	WordCount int             `json:"word_count"`
	Words     []workersAIWord `json:"words"`
}

// workersAIWord accepts both "word" and "text" for the token field.
type workersAIWord struct {
	Word  string  `json:"word"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewWorkersAIClient creates a Workers AI client. An empty model selects
// @cf/openai/whisper.
func NewWorkersAIClient(accountID, apiToken, model string, timeout time.Duration) *WorkersAIClient {
	if model == "" {
		model = defaultWorkersAIModel
	}
	return &WorkersAIClient{
		baseURL:   workersAIBaseURL,
		accountID: accountID,
		apiToken:  apiToken,
		model:     model,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (c *WorkersAIClient) Name() string { return "workersai" }

// Model returns the configured model identifier.
func (c *WorkersAIClient) Model() string { return c.model }

// Transcribe sends one audio payload to Workers AI.
func (c *WorkersAIClient) Transcribe(ctx context.Context, audio []byte, opts TranscribeOpts) (*Response, error) {
	url := strings.TrimSuffix(c.baseURL, "/") + "/" + c.accountID + "/ai/run/" + c.model

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return nil, inferenceErr(c.Name(), err, "create request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, inferenceErr(c.Name(), err, "request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, inferenceErr(c.Name(), err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, inferenceErr(c.Name(), nil, "API error (status %d): %s", resp.StatusCode, string(body))
	}

	var env workersAIEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, inferenceErr(c.Name(), err, "decode response")
	}
	if !env.Success {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, fmt.Sprintf("%d %s", e.Code, e.Message))
		}
		return nil, inferenceErr(c.Name(), nil, "response not successful: %s", strings.Join(msgs, "; "))
	}

	var result workersAIResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, inferenceErr(c.Name(), err, "decode result")
	}
	if result.Text == nil {
		return nil, inferenceErr(c.Name(), nil, "invalid response: missing text")
	}

	var words []Word
	if len(result.Words) > 0 {
		words = make([]Word, len(result.Words))
		for i, w := range result.Words {
			text := w.Word
			if text == "" {
				text = w.Text
			}
			words[i] = Word{Text: text, Start: w.Start, End: w.End}
		}
	}

	return &Response{
		Text:  *result.Text,
		Words: words,
	}, nil
}
