package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/config"
)

func TestProviderConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantKey string
	}{
		{"workersai_uses_cf_token", config.Config{STTProvider: "workersai", CFAPIToken: "cf", STTAPIKey: "other"}, "cf"},
		{"default_provider_uses_cf_token", config.Config{CFAPIToken: "cf"}, "cf"},
		{"openai_uses_api_key", config.Config{STTProvider: "openai", CFAPIToken: "cf", STTAPIKey: "sk"}, "sk"},
		{"whisper_uses_api_key", config.Config{STTProvider: "whisper", STTAPIKey: "wk"}, "wk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := providerConfig(&tt.cfg)
			if pc.APIKey != tt.wantKey {
				t.Errorf("APIKey = %q, want %q", pc.APIKey, tt.wantKey)
			}
			if pc.Provider != tt.cfg.STTProvider {
				t.Errorf("Provider = %q", pc.Provider)
			}
		})
	}
}

func TestGroupOptions(t *testing.T) {
	opts := groupOptions(&config.Config{SegmentMaxWords: 20, SegmentMaxDuration: 7.5})
	if opts.MaxWords != 20 || opts.MaxDuration != 7.5 {
		t.Errorf("opts = %+v", opts)
	}
}

func TestNewLogger(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"":      zerolog.InfoLevel,
		"bogus": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := newLogger(in).GetLevel(); got != want {
			t.Errorf("newLogger(%q) level = %v, want %v", in, got, want)
		}
	}
}

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "converter", "transcribe"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
