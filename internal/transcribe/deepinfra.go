package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for Whisper models.
type DeepInfraClient struct {
	baseURL string
	apiKey  string
	model   string // e.g. "openai/whisper-large-v3-turbo"
	client  *http.Client
}

type deepInfraResponse struct {
	Text     *string            `json:"text"`
	Language string             `json:"language"`
	Duration float64            `json:"duration"`
	Words    []deepInfraWord    `json:"words"`
	Segments []deepInfraSegment `json:"segments"`
}

// deepInfraWord uses "text" for the word, not "word" like OpenAI.
type deepInfraWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type deepInfraSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewDeepInfraClient creates a DeepInfra client. baseURL may be empty.
func NewDeepInfraClient(baseURL, apiKey, model string, timeout time.Duration) *DeepInfraClient {
	if baseURL == "" {
		baseURL = deepInfraBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if model == "" {
		model = "openai/whisper-large-v3-turbo"
	}
	return &DeepInfraClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (di *DeepInfraClient) Name() string { return "deepinfra" }

func (di *DeepInfraClient) Model() string { return di.model }

// Transcribe posts one audio payload to {baseURL}{model}. The file part is
// named "audio", DeepInfra's convention.
func (di *DeepInfraClient) Transcribe(ctx context.Context, audio []byte, opts TranscribeOpts) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := opts.Filename
	if filename == "" {
		filename = "audio.mp3"
	}
	part, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return nil, inferenceErr(di.Name(), err, "create form file")
	}
	if _, err := part.Write(audio); err != nil {
		return nil, inferenceErr(di.Name(), err, "copy audio data")
	}
	if opts.Language != "" {
		w.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		w.WriteField("initial_prompt", opts.Prompt)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, di.baseURL+di.model, &buf)
	if err != nil {
		return nil, inferenceErr(di.Name(), err, "create request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+di.apiKey)

	resp, err := di.client.Do(req)
	if err != nil {
		return nil, inferenceErr(di.Name(), err, "request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, inferenceErr(di.Name(), err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, inferenceErr(di.Name(), nil, "API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result deepInfraResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, inferenceErr(di.Name(), err, "decode response")
	}
	if result.Text == nil {
		return nil, inferenceErr(di.Name(), nil, "invalid response: missing text")
	}

	var words []Word
	if len(result.Words) > 0 {
		words = make([]Word, len(result.Words))
		for i, dw := range result.Words {
			words[i] = Word{Text: dw.Text, Start: dw.Start, End: dw.End}
		}
	} else if len(result.Segments) > 0 {
		words = wordsFromSegments(result.Segments)
	}

	return &Response{
		Text:     *result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Words:    words,
	}, nil
}

// wordsFromSegments synthesizes words from segment timestamps, spreading
// each segment's time range evenly over its whitespace-separated tokens.
func wordsFromSegments(segments []deepInfraSegment) []Word {
	var words []Word
	for _, seg := range segments {
		tokens := strings.Fields(seg.Text)
		if len(tokens) == 0 {
			continue
		}
		wordDur := (seg.End - seg.Start) / float64(len(tokens))
		for i, tok := range tokens {
			words = append(words, Word{
				Text:  tok,
				Start: seg.Start + float64(i)*wordDur,
				End:   seg.Start + float64(i+1)*wordDur,
			})
		}
	}
	return words
}
