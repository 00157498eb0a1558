package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseURL is required by serve only; the converter and the one-shot
	// transcribe command run without a database.
	DatabaseURL string `env:"DATABASE_URL"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Conversion service
	ConverterURL     string        `env:"CONVERTER_URL" envDefault:"http://localhost:8081"`
	ConverterAddr    string        `env:"CONVERTER_ADDR" envDefault:":8081"`
	ConverterTimeout time.Duration `env:"CONVERTER_TIMEOUT" envDefault:"10m"`
	DownloadTimeout  time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"5m"`
	FFmpegPath       string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	WorkDir          string        `env:"WORK_DIR"` // temp dir for ffmpeg, os.TempDir() if empty

	// Speech-to-text
	STTProvider string        `env:"STT_PROVIDER" envDefault:"workersai"` // "workersai", "whisper", "openai", "deepinfra", "elevenlabs"
	STTModel    string        `env:"STT_MODEL"`
	STTURL      string        `env:"STT_URL"`
	STTAPIKey   string        `env:"STT_API_KEY"`
	CFAccountID string        `env:"CF_ACCOUNT_ID"`
	CFAPIToken  string        `env:"CF_API_TOKEN"`
	STTTimeout  time.Duration `env:"STT_TIMEOUT" envDefault:"5m"`
	STTLanguage string        `env:"STT_LANGUAGE"`
	STTKeyterms string        `env:"STT_KEYTERMS"` // elevenlabs only

	ChunkSizeBytes     int     `env:"CHUNK_SIZE_BYTES" envDefault:"1048576"`
	SegmentMaxWords    int     `env:"SEGMENT_MAX_WORDS" envDefault:"15"`
	SegmentMaxDuration float64 `env:"SEGMENT_MAX_DURATION" envDefault:"10"`
	ProcessorQueueSize int     `env:"PROCESSOR_QUEUE_SIZE" envDefault:"4"`

	// MQTT is optional; empty broker URL disables it.
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"vidtalk"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"vidtalk"`

	// Object storage. Local files are used unless S3_BUCKET is set.
	StorageDir       string   `env:"STORAGE_DIR" envDefault:"./data"`
	StoragePublicURL string   `env:"STORAGE_PUBLIC_URL" envDefault:"http://localhost:8081/files"`
	S3               S3Config `envPrefix:"S3_"`
}

// S3Config configures an S3-compatible bucket (AWS, R2, MinIO).
type S3Config struct {
	Bucket        string        `env:"BUCKET"`
	Endpoint      string        `env:"ENDPOINT"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	AccessKey     string        `env:"ACCESS_KEY_ID"`
	SecretKey     string        `env:"SECRET_ACCESS_KEY"`
	Prefix        string        `env:"PREFIX"`
	PublicURL     string        `env:"PUBLIC_URL"` // public bucket URL; presigned URLs are used when empty
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether S3 storage is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	MQTTBrokerURL string
	STTProvider   string
	ConverterAddr string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.STTProvider != "" {
		cfg.STTProvider = overrides.STTProvider
	}
	if overrides.ConverterAddr != "" {
		cfg.ConverterAddr = overrides.ConverterAddr
	}

	return cfg, nil
}
