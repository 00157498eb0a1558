package transcribe

import (
	"context"
	"fmt"
	"time"
)

// Provider is the interface for speech-to-text backends.
// Each call is independent: no state is carried between chunks.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOpts) (*Response, error)
	Name() string  // "workersai", "whisper", "openai", "deepinfra", "elevenlabs"
	Model() string // model identifier for logs
}

// TranscribeOpts are per-request options. Zero values are omitted from requests.
type TranscribeOpts struct {
	Language    string
	Temperature float64
	Prompt      string
	Filename    string // upload name for multipart backends, defaults to "audio.mp3"
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds, 0 if unknown
	Words    []Word  // nil if provider doesn't return word timestamps
}

// Word is a timestamped word from any STT provider.
// Speaker and Confidence are never populated by the current providers.
type Word struct {
	Text       string   `json:"text"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Speaker    string   `json:"speaker,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Provider  string // "workersai", "whisper", "openai", "deepinfra", "elevenlabs"
	Model     string
	URL       string // whisper endpoint, or base URL override for the hosted APIs
	APIKey    string
	AccountID string // Cloudflare account (workersai)
	Keyterms  string // comma-separated boost terms (elevenlabs)
	Timeout   time.Duration
}

// NewProvider builds the configured STT backend.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "workersai":
		if cfg.AccountID == "" || cfg.APIKey == "" {
			return nil, fmt.Errorf("workersai provider requires CF_ACCOUNT_ID and CF_API_TOKEN")
		}
		return NewWorkersAIClient(cfg.AccountID, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "whisper":
		if cfg.URL == "" {
			return nil, fmt.Errorf("whisper provider requires STT_URL")
		}
		return NewWhisperClient(cfg.URL, cfg.Model, cfg.APIKey, cfg.Timeout), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires STT_API_KEY")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.URL, cfg.Model, cfg.Timeout), nil
	case "deepinfra":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("deepinfra provider requires STT_API_KEY")
		}
		return NewDeepInfraClient(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "elevenlabs":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("elevenlabs provider requires STT_API_KEY")
		}
		return NewElevenLabsClient(cfg.URL, cfg.APIKey, cfg.Model, cfg.Keyterms, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}
