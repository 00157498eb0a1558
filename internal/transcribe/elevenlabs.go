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

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API.
type ElevenLabsClient struct {
	url      string
	apiKey   string
	model    string // "scribe_v1" or "scribe_v2"
	keyterms string // JSON array, empty when none configured
	client   *http.Client
}

type elevenlabsResponse struct {
	LanguageCode string           `json:"language_code"`
	Text         *string          `json:"text"`
	Words        []elevenlabsWord `json:"words"`
}

// elevenlabsWord is a word or spacing entry.
type elevenlabsWord struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"` // "word", "spacing", "audio_event"
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewElevenLabsClient creates an ElevenLabs client. url may be empty;
// keyterms is a comma-separated list of terms to boost.
func NewElevenLabsClient(url, apiKey, model, keyterms string, timeout time.Duration) *ElevenLabsClient {
	if url == "" {
		url = elevenLabsSTTEndpoint
	}
	if model == "" {
		model = "scribe_v1"
	}
	return &ElevenLabsClient{
		url:      url,
		apiKey:   apiKey,
		model:    model,
		keyterms: buildKeyterms(keyterms),
		client:   &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

func (el *ElevenLabsClient) Model() string { return el.model }

// Transcribe uploads one audio payload and requests word timestamps.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, audio []byte, opts TranscribeOpts) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := opts.Filename
	if filename == "" {
		filename = "audio.mp3"
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, inferenceErr(el.Name(), err, "create form file")
	}
	if _, err := part.Write(audio); err != nil {
		return nil, inferenceErr(el.Name(), err, "copy audio data")
	}

	w.WriteField("model_id", el.model)
	if opts.Language != "" {
		w.WriteField("language_code", opts.Language)
	}
	w.WriteField("timestamps_granularity", "word")
	if el.keyterms != "" {
		w.WriteField("keyterms", el.keyterms)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, el.url, &buf)
	if err != nil {
		return nil, inferenceErr(el.Name(), err, "create request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, inferenceErr(el.Name(), err, "request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, inferenceErr(el.Name(), err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, inferenceErr(el.Name(), nil, "API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, inferenceErr(el.Name(), err, "decode response")
	}
	if result.Text == nil {
		return nil, inferenceErr(el.Name(), nil, "invalid response: missing text")
	}

	// spacing and audio events carry no words
	var words []Word
	for _, ew := range result.Words {
		if ew.Type != "word" {
			continue
		}
		words = append(words, Word{Text: ew.Text, Start: ew.Start, End: ew.End})
	}

	return &Response{
		Text:     *result.Text,
		Language: result.LanguageCode,
		Words:    words,
	}, nil
}

// buildKeyterms turns "a, b" into the JSON array of {"text": term} objects
// the API expects.
func buildKeyterms(raw string) string {
	type keyterm struct {
		Text string `json:"text"`
	}
	var terms []keyterm
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, keyterm{Text: t})
		}
	}
	if len(terms) == 0 {
		return ""
	}
	b, _ := json.Marshal(terms)
	return string(b)
}
